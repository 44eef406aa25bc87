// Package hsdir reads and writes Tor v3 hidden service directories.
//
// A directory holds three files, in the layout tor itself produces for a
// HiddenServiceDir:
//
//	hostname                 "<address>.onion\n"
//	hs_ed25519_secret_key    32-byte header + 64-byte expanded secret key
//	hs_ed25519_public_key    32-byte header + 32-byte public key
//
// Copying such a directory into a tor data directory makes tor serve the
// generated address.
package hsdir

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/oniongen/internal/onion"
)

// File names inside a hidden service directory.
const (
	HostnameFile  = "hostname"
	SecretKeyFile = "hs_ed25519_secret_key"
	PublicKeyFile = "hs_ed25519_public_key"
)

const (
	headerSize   = 32
	secretHeader = "== ed25519v1-secret: type0 =="
	publicHeader = "== ed25519v1-public: type0 =="

	dirPerm  = 0700
	filePerm = 0600
)

var (
	// ErrDirectoryExists is returned by Write when the target directory
	// already exists and is not empty.
	ErrDirectoryExists = errors.New("hidden service directory already exists and is not empty")

	// ErrInvalidKeyFile is returned when a key file has the wrong header or size.
	ErrInvalidKeyFile = errors.New("invalid hidden service key file")

	// ErrHostnameMismatch is returned when the hostname file does not match
	// the public key.
	ErrHostnameMismatch = errors.New("hostname does not match public key")
)

// Keyed is an identity that exposes the key material needed on disk.
// *onion.Identity implements it.
type Keyed interface {
	Hostname() string
	PublicKey() ed25519.PublicKey
	ExpandedSecretKey() []byte
}

// Write creates dir and writes the three hidden service files for id.
// dir may exist if it is empty.
func Write(id Keyed, dir string) error {
	secret := id.ExpandedSecretKey()
	if len(secret) != onion.ExpandedKeySize {
		return fmt.Errorf("%w: secret key unavailable", ErrInvalidKeyFile)
	}

	empty, err := isEmptyDir(dir)
	if err != nil {
		return err
	}
	if !empty {
		return fmt.Errorf("%w: %s", ErrDirectoryExists, dir)
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	// MkdirAll leaves the mode of an existing directory alone.
	if err := os.Chmod(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", dir, err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{SecretKeyFile, withHeader(secretHeader, secret)},
		{PublicKeyFile, withHeader(publicHeader, id.PublicKey())},
		{HostnameFile, []byte(id.Hostname() + "\n")},
	}
	for i := range files {
		path := filepath.Join(dir, files[i].name)
		if err := os.WriteFile(path, files[i].data, filePerm); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	wipe(secret)
	wipe(files[0].data)
	return nil
}

// Read loads the identity stored in dir and checks that the hostname file
// agrees with the public key.
func Read(dir string) (*onion.Identity, error) {
	secret, err := readKeyFile(filepath.Join(dir, SecretKeyFile), secretHeader, onion.ExpandedKeySize)
	if err != nil {
		return nil, err
	}
	defer wipe(secret)

	pub, err := readKeyFile(filepath.Join(dir, PublicKeyFile), publicHeader, ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}

	id, err := onion.FromExpandedKey(pub, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity from %s: %w", dir, err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, HostnameFile)) //nolint:gosec // path is built from the caller's directory
	if err != nil {
		_ = id.Close()
		return nil, fmt.Errorf("failed to read hostname: %w", err)
	}
	if strings.TrimSpace(string(raw)) != id.Hostname() {
		_ = id.Close()
		return nil, fmt.Errorf("%w: %s", ErrHostnameMismatch, dir)
	}
	return id, nil
}

// ReadHostname returns the address stored in dir's hostname file.
func ReadHostname(dir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, HostnameFile)) //nolint:gosec // path is built from the caller's directory
	if err != nil {
		return "", fmt.Errorf("failed to read hostname: %w", err)
	}
	return onion.NormalizeAddress(strings.TrimSpace(string(raw)))
}

func readKeyFile(path, header string, size int) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the caller's directory
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) != headerSize+size {
		return nil, fmt.Errorf("%w: %s has %d bytes", ErrInvalidKeyFile, filepath.Base(path), len(data))
	}
	if !bytes.Equal(data[:headerSize], padHeader(header)) {
		return nil, fmt.Errorf("%w: %s has an unexpected header", ErrInvalidKeyFile, filepath.Base(path))
	}
	return data[headerSize:], nil
}

func withHeader(header string, key []byte) []byte {
	out := make([]byte, 0, headerSize+len(key))
	out = append(out, padHeader(header)...)
	return append(out, key...)
}

// padHeader NUL-pads header to headerSize bytes.
func padHeader(header string) []byte {
	b := make([]byte, headerSize)
	copy(b, header)
	return b
}

func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir) //nolint:gosec // path is built from the caller's directory
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", dir, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return false, nil
	}

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

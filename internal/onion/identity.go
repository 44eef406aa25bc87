package onion

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// ExpandedKeySize is the size of a Tor expanded ed25519 secret key:
	// the clamped scalar followed by the hash prefix.
	ExpandedKeySize = 64

	// keyBlobPrefix marks an ed25519 key blob as accepted by the Tor
	// control port ADD_ONION command.
	keyBlobPrefix = "ED25519-V3:"
)

// ErrInvalidExpandedKey is returned when an expanded secret key is not 64 bytes.
var ErrInvalidExpandedKey = errors.New("invalid expanded ed25519 secret key size")

// Identity is a generated v3 onion identity: an ed25519 key pair and the
// address derived from its public half.
//
// An Identity is owned by a single goroutine. Close wipes the secret key.
type Identity struct {
	publicKey ed25519.PublicKey
	expanded  []byte
	address   string
	closed    bool
}

// Generate creates a new identity from randomness read from r.
// A nil reader uses crypto/rand.
func Generate(r io.Reader) (*Identity, error) {
	if r == nil {
		r = rand.Reader
	}

	seed := make([]byte, ed25519.SeedSize)
	defer wipe(seed)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("read ed25519 seed: %w", err)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	defer wipe(priv)

	return newIdentity(priv.Public().(ed25519.PublicKey), ExpandSeed(seed))
}

// FromExpandedKey rebuilds an identity from a public key and a Tor expanded
// secret key, as stored in a hidden service directory.
func FromExpandedKey(pub, expanded []byte) (*Identity, error) {
	if len(expanded) != ExpandedKeySize {
		return nil, ErrInvalidExpandedKey
	}
	return newIdentity(pub, append([]byte(nil), expanded...))
}

func newIdentity(pub, expanded []byte) (*Identity, error) {
	addr, err := AddressFromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &Identity{
		publicKey: append(ed25519.PublicKey(nil), pub...),
		expanded:  expanded,
		address:   addr,
	}, nil
}

// ExpandSeed converts a 32-byte ed25519 seed into Tor's 64-byte expanded
// secret key: SHA-512(seed) with the first half clamped.
func ExpandSeed(seed []byte) []byte {
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	out := make([]byte, ExpandedKeySize)
	copy(out, h[:])
	wipe(h[:])
	return out
}

// Address returns the 56-character address without the ".onion" suffix.
func (id *Identity) Address() string {
	return id.address
}

// Hostname returns the address with the ".onion" suffix, as Tor writes it
// to the hostname file.
func (id *Identity) Hostname() string {
	return id.address + Suffix
}

// PublicKey returns a copy of the ed25519 public key.
func (id *Identity) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), id.publicKey...)
}

// ExpandedSecretKey returns a copy of the expanded secret key, or nil after Close.
func (id *Identity) ExpandedSecretKey() []byte {
	if id.closed {
		return nil
	}
	return append([]byte(nil), id.expanded...)
}

// KeyString serializes the key. With includePrivate it returns the
// "ED25519-V3:<base64>" blob Tor accepts for ADD_ONION; otherwise the base64
// public key. After Close the private form is empty.
func (id *Identity) KeyString(includePrivate bool) string {
	if !includePrivate {
		return base64.StdEncoding.EncodeToString(id.publicKey)
	}
	if id.closed {
		return ""
	}
	return keyBlobPrefix + base64.StdEncoding.EncodeToString(id.expanded)
}

// Close wipes the secret key. It is safe to call more than once.
func (id *Identity) Close() error {
	if id.closed {
		return nil
	}
	wipe(id.expanded)
	id.expanded = nil
	id.closed = true
	return nil
}

// ParseKeyBlob decodes an "ED25519-V3:<base64>" blob into an expanded key.
func ParseKeyBlob(blob string) ([]byte, error) {
	if len(blob) <= len(keyBlobPrefix) || blob[:len(keyBlobPrefix)] != keyBlobPrefix {
		return nil, ErrInvalidExpandedKey
	}
	key, err := base64.StdEncoding.DecodeString(blob[len(keyBlobPrefix):])
	if err != nil {
		return nil, fmt.Errorf("decode key blob: %w", err)
	}
	if len(key) != ExpandedKeySize {
		return nil, ErrInvalidExpandedKey
	}
	return key, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

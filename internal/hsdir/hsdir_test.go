package hsdir

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/oniongen/internal/generator"
	"github.com/nao1215/oniongen/internal/onion"
)

// fixedIdentity returns a deterministic identity for tests.
func fixedIdentity(t *testing.T) *onion.Identity {
	t.Helper()

	id, err := onion.Generate(bytes.NewReader(bytes.Repeat([]byte{7}, 32)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = id.Close() })
	return id
}

// TestWrite tests the on-disk layout.
func TestWrite(t *testing.T) {
	t.Parallel()

	id := fixedIdentity(t)
	dir := filepath.Join(t.TempDir(), id.Address())

	if err := Write(id, dir); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("expected directory mode 0700, got %o", perm)
	}

	hostname, err := os.ReadFile(filepath.Join(dir, HostnameFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(hostname) != id.Hostname()+"\n" {
		t.Errorf("unexpected hostname file %q", hostname)
	}

	secret, err := os.ReadFile(filepath.Join(dir, SecretKeyFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(secret) != 96 {
		t.Fatalf("expected 96-byte secret key file, got %d", len(secret))
	}
	if !strings.HasPrefix(string(secret), "== ed25519v1-secret: type0 ==\x00\x00\x00") {
		t.Errorf("unexpected secret key header %q", secret[:32])
	}
	if !bytes.Equal(secret[32:], id.ExpandedSecretKey()) {
		t.Error("secret key body does not match the identity")
	}

	public, err := os.ReadFile(filepath.Join(dir, PublicKeyFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(public) != 64 || !bytes.Equal(public[32:], id.PublicKey()) {
		t.Error("public key file does not match the identity")
	}

	for _, name := range []string{HostnameFile, SecretKeyFile, PublicKeyFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("expected %s mode 0600, got %o", name, perm)
		}
	}
}

// TestWrite_ExistingDirectory tests the overwrite guard.
func TestWrite_ExistingDirectory(t *testing.T) {
	t.Parallel()

	t.Run("empty directory is reused", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		if err := Write(fixedIdentity(t), dir); err != nil {
			t.Errorf("expected write into empty directory to succeed, got %v", err)
		}
	})

	t.Run("non-empty directory is refused", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "keep"), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
		if err := Write(fixedIdentity(t), dir); !errors.Is(err, ErrDirectoryExists) {
			t.Errorf("expected ErrDirectoryExists, got %v", err)
		}
	})

	t.Run("regular file is refused", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
		if err := Write(fixedIdentity(t), path); !errors.Is(err, ErrDirectoryExists) {
			t.Errorf("expected ErrDirectoryExists, got %v", err)
		}
	})
}

// TestWrite_ClosedIdentity tests that a wiped identity cannot be written.
func TestWrite_ClosedIdentity(t *testing.T) {
	t.Parallel()

	id := fixedIdentity(t)
	_ = id.Close()

	if err := Write(id, filepath.Join(t.TempDir(), "svc")); !errors.Is(err, ErrInvalidKeyFile) {
		t.Errorf("expected ErrInvalidKeyFile, got %v", err)
	}
}

// TestRead tests loading a written directory.
func TestRead(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		id := fixedIdentity(t)
		dir := filepath.Join(t.TempDir(), "svc")
		if err := Write(id, dir); err != nil {
			t.Fatal(err)
		}

		got, err := Read(dir)
		if err != nil {
			t.Fatalf("Read() failed: %v", err)
		}
		defer got.Close()

		if got.Address() != id.Address() {
			t.Errorf("expected address %s, got %s", id.Address(), got.Address())
		}
		if got.KeyString(true) != id.KeyString(true) {
			t.Error("expected identical key blob")
		}

		host, err := ReadHostname(dir)
		if err != nil {
			t.Fatal(err)
		}
		if host != id.Hostname() {
			t.Errorf("ReadHostname() = %q, expected %q", host, id.Hostname())
		}
	})

	t.Run("hostname mismatch", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "svc")
		if err := Write(fixedIdentity(t), dir); err != nil {
			t.Fatal(err)
		}
		other := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion\n"
		if err := os.WriteFile(filepath.Join(dir, HostnameFile), []byte(other), 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := Read(dir); !errors.Is(err, ErrHostnameMismatch) {
			t.Errorf("expected ErrHostnameMismatch, got %v", err)
		}
	})

	t.Run("bad header", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "svc")
		if err := Write(fixedIdentity(t), dir); err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(dir, PublicKeyFile)
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		data[0] = 'X'
		if err := os.WriteFile(path, data, 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := Read(dir); !errors.Is(err, ErrInvalidKeyFile) {
			t.Errorf("expected ErrInvalidKeyFile, got %v", err)
		}
	})

	t.Run("truncated secret key", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "svc")
		if err := Write(fixedIdentity(t), dir); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, SecretKeyFile), []byte("short"), 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := Read(dir); !errors.Is(err, ErrInvalidKeyFile) {
			t.Errorf("expected ErrInvalidKeyFile, got %v", err)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		t.Parallel()

		if _, err := Read(filepath.Join(t.TempDir(), "missing")); err == nil {
			t.Error("expected error for missing directory")
		}
	})
}

// plainIdentity implements generator.Identity without exposing keys.
type plainIdentity struct{}

func (plainIdentity) Address() string { return "plain" }

func (plainIdentity) KeyString(bool) string { return "" }

func (plainIdentity) Close() error { return nil }

// TestWriter tests the persister adapter.
func TestWriter(t *testing.T) {
	t.Parallel()

	t.Run("persists onion identities", func(t *testing.T) {
		t.Parallel()

		id := fixedIdentity(t)
		dir := filepath.Join(t.TempDir(), id.Address())

		var p generator.Persister = NewWriter(nil)
		if err := p.Persist(t.Context(), id, dir); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(dir, HostnameFile)); err != nil {
			t.Errorf("expected hostname file: %v", err)
		}
	})

	t.Run("rejects identities without keys", func(t *testing.T) {
		t.Parallel()

		err := NewWriter(nil).Persist(t.Context(), plainIdentity{}, t.TempDir())
		if !errors.Is(err, ErrUnsupportedIdentity) {
			t.Errorf("expected ErrUnsupportedIdentity, got %v", err)
		}
	})

	t.Run("honors cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		err := NewWriter(nil).Persist(ctx, fixedIdentity(t), filepath.Join(t.TempDir(), "svc"))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

// TestPickers tests the directory pickers.
func TestPickers(t *testing.T) {
	t.Parallel()

	id := plainIdentity{}

	dir, ok := PickUnder("/srv/onions")(id)
	if !ok || dir != filepath.Join("/srv/onions", "plain") {
		t.Errorf("PickUnder() = %q, %v", dir, ok)
	}

	if dir, ok := PickNone(id); ok || dir != "" {
		t.Errorf("PickNone() = %q, %v", dir, ok)
	}
}

// TestEngineIntegration runs the engine with real identities and directories.
func TestEngineIntegration(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	factory := func() (generator.Identity, error) {
		id, err := onion.Generate(nil)
		if err != nil {
			return nil, err
		}
		return id, nil
	}

	// Every v3 address ends in 'd', so this matches each candidate.
	pattern, err := generator.CompilePattern("[a-z]", false)
	if err != nil {
		t.Fatal(err)
	}

	e, err := generator.New(factory,
		generator.WithPattern(pattern),
		generator.WithGenerateMax(3),
		generator.WithDirectoryPicker(PickUnder(root)),
		generator.WithPersister(NewWriter(nil)),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if err := e.Wait(t.Context()); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 hidden service directories, got %d", len(entries))
	}
	for _, entry := range entries {
		id, err := Read(filepath.Join(root, entry.Name()))
		if err != nil {
			t.Fatalf("Read(%s) failed: %v", entry.Name(), err)
		}
		if id.Address() != entry.Name() {
			t.Errorf("directory %s holds %s", entry.Name(), id.Address())
		}
		_ = id.Close()
	}
}

package hsdir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nao1215/oniongen/internal/generator"
)

// ErrUnsupportedIdentity is returned when an identity does not expose its keys.
var ErrUnsupportedIdentity = errors.New("identity does not expose key material")

// Writer persists matched identities as hidden service directories.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a Writer. A nil logger uses slog.Default().
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

// Persist implements generator.Persister.
func (w *Writer) Persist(ctx context.Context, id generator.Identity, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keyed, ok := id.(Keyed)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedIdentity, id)
	}
	if err := Write(keyed, dir); err != nil {
		return err
	}

	w.logger.Debug("wrote hidden service directory", "address", id.Address(), "dir", dir)
	return nil
}

// PickUnder returns a picker that places each match in root/<address>.
func PickUnder(root string) generator.DirectoryPicker {
	return func(id generator.Identity) (string, bool) {
		return filepath.Join(root, id.Address()), true
	}
}

// PickNone is a picker that never produces a location, so matches are
// counted but not written.
func PickNone(generator.Identity) (string, bool) {
	return "", false
}

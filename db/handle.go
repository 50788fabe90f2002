package db

import (
	"context"
	"errors"
	"sync"

	"go.hackfix.me/mailstore/db/migrator"
)

// ErrClosed is returned by Handle.Get after the handle was closed.
var ErrClosed = errors.New("database handle is closed")

// RegistryFunc returns the migration registry a database is migrated with.
type RegistryFunc func() (*migrator.Registry, error)

// OpenFunc opens a database and brings it to a usable state.
type OpenFunc func(ctx context.Context) (*DB, error)

// Handle provides a database that is opened at most once per process. The
// first caller of Get runs the open function, and concurrent callers block
// until it completes. All callers receive the same database, or the same error.
type Handle struct {
	once sync.Once
	open OpenFunc
	mx   sync.Mutex
	db   *DB
	err  error
}

// NewHandle returns a new handle that opens the database with fn on first use.
func NewHandle(fn OpenFunc) *Handle {
	return &Handle{open: fn}
}

// Get returns the database, opening it if this is the first call.
func (h *Handle) Get(ctx context.Context) (*DB, error) {
	h.once.Do(func() {
		d, err := h.open(ctx)
		h.mx.Lock()
		h.db, h.err = d, err
		h.mx.Unlock()
	})

	h.mx.Lock()
	defer h.mx.Unlock()

	return h.db, h.err
}

// Close closes the database if it was opened. Subsequent calls to Get return
// ErrClosed.
func (h *Handle) Close() error {
	h.once.Do(func() {})

	h.mx.Lock()
	d := h.db
	h.db, h.err = nil, ErrClosed
	h.mx.Unlock()

	if d == nil {
		return nil
	}

	//nolint:wrapcheck // Wrapped by the caller.
	return d.Close()
}

// MigratedOpener returns an OpenFunc that opens the database at path and
// migrates it to the registry's version.
func MigratedOpener(path string, registry RegistryFunc, opts ...Option) OpenFunc {
	return func(ctx context.Context) (*DB, error) {
		reg, err := registry()
		if err != nil {
			return nil, err
		}

		d, err := Open(ctx, path, opts...)
		if err != nil {
			return nil, err
		}

		if _, err = d.Migrate(ctx, reg); err != nil {
			_ = d.Close()
			return nil, err
		}

		return d, nil
	}
}

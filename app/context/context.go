package context

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/mailstore/app/config"
	"go.hackfix.me/mailstore/db"
)

// Context contains common objects used by the application. It is passed around
// the application to avoid direct dependencies on external systems, and make
// testing easier.
type Context struct {
	Ctx     context.Context  // global context
	FS      vfs.FileSystem   // filesystem
	Logger  *slog.Logger     // global logger
	TimeNow func() time.Time // current system time
	Config  *config.Config

	// Store opens the mail store on first use, migrating it if necessary.
	Store *db.Handle

	// Standard streams
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Metadata
	Version *VersionInfo
}

// StoreOptions returns the database options derived from the configuration.
func (c *Context) StoreOptions() []db.Option {
	opts := []db.Option{db.WithLogger(c.Logger)}
	if c.TimeNow != nil {
		opts = append(opts, db.WithTimeNow(c.TimeNow))
	}
	if c.Config == nil {
		return opts
	}

	if c.Config.Store.JournalMode.Valid {
		opts = append(opts, db.WithJournalMode(c.Config.Store.JournalMode.V))
	}
	if c.Config.Store.Synchronous.Valid {
		opts = append(opts, db.WithSynchronous(c.Config.Store.Synchronous.V))
	}
	if c.Config.Store.BusyTimeout.Valid {
		opts = append(opts, db.WithBusyTimeout(c.Config.Store.BusyTimeout.V))
	}

	return opts
}

// StorePath returns the path of the mail store database.
func (c *Context) StorePath() string {
	return c.Config.Store.Path.V
}

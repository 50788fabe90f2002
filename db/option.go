package db

import (
	"log/slog"
	"time"
)

type options struct {
	journalMode string
	synchronous string
	busyTimeout time.Duration
	timeNow     func() time.Time
	logger      *slog.Logger
}

func defaultOptions() *options {
	return &options{
		journalMode: "WAL",
		synchronous: "NORMAL",
		busyTimeout: 5 * time.Second,
		timeNow:     time.Now,
		logger:      slog.Default(),
	}
}

// Option is a function that allows configuring the database.
type Option func(*options)

// WithJournalMode sets the SQLite journal mode, e.g. WAL or DELETE.
func WithJournalMode(mode string) Option {
	return func(o *options) {
		o.journalMode = mode
	}
}

// WithSynchronous sets the SQLite synchronous level, e.g. NORMAL or FULL.
func WithSynchronous(level string) Option {
	return func(o *options) {
		o.synchronous = level
	}
}

// WithBusyTimeout sets how long a connection waits on a locked database.
func WithBusyTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.busyTimeout = timeout
	}
}

// WithTimeNow sets the function used to retrieve the current system time.
func WithTimeNow(timeNowFn func() time.Time) Option {
	return func(o *options) {
		o.timeNow = timeNowFn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

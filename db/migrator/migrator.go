package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store is the persistent store the migrator operates on.
type Store interface {
	// Version returns the schema version recorded in the store. 0 means the
	// store was just created and holds no schema.
	Version(ctx context.Context) (int, error)
	// Begin starts an atomic scope. Either all statements executed through the
	// returned Tx take effect, or none of them do.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an atomic scope on a Store.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	// SetVersion records the schema version. It takes effect on Commit.
	SetVersion(ctx context.Context, version int) error
	Commit() error
	Rollback() error
}

// BootstrapName is the history name of the creation of a fresh store.
const BootstrapName = "create schema"

// AppliedStep describes a step that was applied during an Open call.
type AppliedStep struct {
	From, To int
	Name     string
	Duration time.Duration
}

// Report summarizes the outcome of an Open call.
type Report struct {
	// From is the version found in the store.
	From int
	// To is the version the store is at after the call.
	To int
	// Fresh is true if the store was created at the target version.
	Fresh   bool
	Applied []AppliedStep
}

// Migrator brings stores up to the target version of its registry.
type Migrator struct {
	mx       sync.Mutex
	registry *Registry
	logger   *slog.Logger
	timeNow  func() time.Time
	history  string
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger used to report each applied step.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) {
		m.logger = logger
	}
}

// WithTimeNow sets the function used to retrieve the current time.
func WithTimeNow(timeNowFn func() time.Time) Option {
	return func(m *Migrator) {
		m.timeNow = timeNowFn
	}
}

// WithHistory enables recording a row in the given table for every applied
// step. The table is created if it doesn't exist.
func WithHistory(table string) Option {
	return func(m *Migrator) {
		m.history = table
	}
}

// New returns a new Migrator for the given registry.
func New(registry *Registry, opts ...Option) *Migrator {
	m := &Migrator{
		registry: registry,
		logger:   slog.Default(),
		timeNow:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Registry returns the registry used by the migrator.
func (m *Migrator) Registry() *Registry {
	return m.registry
}

// Open brings the store to the target version. A fresh store is created
// directly at the target version. A stale store has every missing step applied
// exactly once, in ascending order, each in its own atomic scope along with the
// version update. If any step fails, the store remains at the version reached
// by the last successful step, and an error is returned.
func (m *Migrator) Open(ctx context.Context, store Store) (*Report, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	version, err := store.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed reading store version: %w", err)
	}

	target := m.registry.Target()
	report := &Report{From: version, To: version}
	m.logger.Debug("read store version", "version", version, "target", target)

	switch {
	case version < 0:
		return report, InvalidVersionError{Version: version}
	case version == 0:
		if err = m.bootstrap(ctx, store); err != nil {
			return report, err
		}
		report.To = target
		report.Fresh = true
		m.logger.Info("created store", "version", target)
		return report, nil
	}

	// Resolve the whole chain first, so that a gap doesn't leave the store at
	// some intermediate version.
	plan, err := m.registry.Plan(version)
	if err != nil {
		return report, err
	}

	for _, step := range plan {
		start := m.timeNow()
		if err = m.apply(ctx, store, step); err != nil {
			return report, err
		}
		dur := m.timeNow().Sub(start)

		report.To = step.To
		report.Applied = append(report.Applied, AppliedStep{
			From: step.From, To: step.To, Name: step.Name, Duration: dur,
		})
		m.logger.Info("applied migration step",
			"from", step.From, "to", step.To, "name", step.Name, "duration", dur)
	}

	return report, nil
}

func (m *Migrator) bootstrap(ctx context.Context, store Store) error {
	target := m.registry.Target()
	return m.atomically(ctx, store, 0, target, func(tx Tx) error {
		for i, stmt := range m.registry.Schema() {
			if _, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
				return StatementError{From: 0, To: target, Index: i, SQL: stmt.SQL, Err: err}
			}
		}
		if err := m.record(ctx, tx, target, BootstrapName, m.registry.SchemaChecksum()); err != nil {
			return err
		}
		return tx.SetVersion(ctx, target)
	})
}

func (m *Migrator) apply(ctx context.Context, store Store, step *Step) error {
	return m.atomically(ctx, store, step.From, step.To, func(tx Tx) error {
		for i, stmt := range step.Statements {
			if _, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
				return StatementError{From: step.From, To: step.To, Index: i, SQL: stmt.SQL, Err: err}
			}
		}
		if err := m.record(ctx, tx, step.To, step.Name, step.Checksum()); err != nil {
			return err
		}
		return tx.SetVersion(ctx, step.To)
	})
}

func (m *Migrator) atomically(ctx context.Context, store Store, from, to int, fn func(Tx) error) error {
	tx, err := store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed starting migration from version %d to %d: %w", from, to, err)
	}

	if err = fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, RollbackError{From: from, To: to, Err: rerr})
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed committing migration from version %d to %d: %w", from, to, err)
	}

	return nil
}

func (m *Migrator) record(ctx context.Context, tx Tx, version int, name, sum string) error {
	if m.history == "" {
		return nil
	}

	createStmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`, m.history)
	if _, err := tx.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("failed creating migration history table: %w", err)
	}

	insertStmt := fmt.Sprintf(`INSERT INTO "%s" (version, name, checksum, applied_at)
		VALUES (?, ?, ?, ?)`, m.history)
	_, err := tx.ExecContext(ctx, insertStmt, version, name, sum, m.timeNow().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed recording migration to version %d: %w", version, err)
	}

	return nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	//nolint:revive,nolintlint // Idiomatic way of loading DB libraries.
	_ "github.com/glebarez/go-sqlite"

	"go.hackfix.me/mailstore/db/migrator"
	"go.hackfix.me/mailstore/db/queries"
	"go.hackfix.me/mailstore/db/schema"
	"go.hackfix.me/mailstore/db/types"
)

// DB wraps sql.DB with migration functionality.
type DB struct {
	*sql.DB
	timeNow func() time.Time
	logger  *slog.Logger
	path    string

	// Report of the last successful Migrate call.
	migration *migrator.Report
}

var (
	_ types.Querier  = (*DB)(nil)
	_ migrator.Store = (*DB)(nil)
)

// Open creates and configures a new SQLite database connection. The schema is
// not touched; call Migrate to bring it to the current version.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if fpath, ok := filePath(path); ok {
		if err := os.MkdirAll(filepath.Dir(fpath), 0o700); err != nil {
			return nil, fmt.Errorf("failed creating database directory: %w", err)
		}
	}

	sqliteDB, err := sql.Open("sqlite", dsn(path, o))
	if err != nil {
		return nil, fmt.Errorf("failed opening SQLite database: %w", err)
	}

	if isMemory(path) {
		// See https://github.com/mattn/go-sqlite3#faq
		sqliteDB.SetMaxIdleConns(10)
		sqliteDB.SetConnMaxLifetime(time.Duration(math.Inf(1)))
	}

	d := &DB{DB: sqliteDB, path: path, timeNow: o.timeNow, logger: o.logger}

	diag, err := queries.GetDiagnostics(ctx, d)
	if err != nil {
		_ = sqliteDB.Close()
		return nil, fmt.Errorf("failed reading SQLite diagnostics: %w", err)
	}
	d.logger.Info("opened database", "path", path,
		"sqlite_version", diag.SQLiteVersion,
		"journal_mode", diag.JournalMode,
		"synchronous", diag.Synchronous,
		"foreign_keys", diag.ForeignKeys)

	return d, nil
}

// Migrate brings the schema to the version of the given registry. Only one
// process at a time can migrate a file-backed database.
func (d *DB) Migrate(ctx context.Context, registry *migrator.Registry) (*migrator.Report, error) {
	if fpath, ok := filePath(d.path); ok {
		unlock, err := lockFile(ctx, fpath+".lock")
		if err != nil {
			return nil, fmt.Errorf("failed acquiring migration lock: %w", err)
		}
		defer func() {
			if uerr := unlock(); uerr != nil {
				d.logger.Warn("failed releasing migration lock", "error", uerr)
			}
		}()
	}

	m := migrator.New(registry,
		migrator.WithLogger(d.logger.With("path", d.path)),
		migrator.WithTimeNow(d.timeNow),
		migrator.WithHistory(schema.HistoryTable),
	)

	report, err := m.Open(ctx, d)
	if err != nil {
		return report, fmt.Errorf("failed migrating database: %w", err)
	}
	d.migration = report

	return report, nil
}

// Migration returns what the last successful Migrate call did, or nil if the
// database wasn't migrated.
func (d *DB) Migration() *migrator.Report {
	return d.migration
}

// Version returns the schema version stored in the database header.
func (d *DB) Version(ctx context.Context) (int, error) {
	//nolint:wrapcheck // Wrapped by the caller.
	return queries.Version(ctx, d)
}

// Begin starts a transaction used for applying a migration step.
func (d *DB) Begin(ctx context.Context) (migrator.Tx, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed starting transaction: %w", err)
	}
	return &migrationTx{Tx: tx}, nil
}

// Path returns the path the database was opened with.
func (d *DB) Path() string {
	return d.path
}

// TimeNow returns the current system time.
func (d *DB) TimeNow() time.Time {
	return d.timeNow()
}

type migrationTx struct {
	*sql.Tx
}

// SetVersion writes the version to the database header. In SQLite this is
// part of the transaction, so it's only persisted on commit.
func (tx *migrationTx) SetVersion(ctx context.Context, version int) error {
	// PRAGMA arguments can't be bound, but version is an integer.
	_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	if err != nil {
		return fmt.Errorf("failed setting schema version to %d: %w", version, err)
	}
	return nil
}

func dsn(path string, o *options) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.busyTimeout.Milliseconds()))
	if !isMemory(path) {
		params.Add("_pragma", fmt.Sprintf("journal_mode(%s)", o.journalMode))
	}
	params.Add("_pragma", fmt.Sprintf("synchronous(%s)", o.synchronous))

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return path + sep + params.Encode()
}

func isMemory(path string) bool {
	return strings.Contains(path, "mode=memory") || strings.Contains(path, ":memory:")
}

// filePath returns the filesystem path of a database, stripping any URI scheme
// and parameters. It returns false for in-memory databases.
func filePath(path string) (string, bool) {
	if isMemory(path) {
		return "", false
	}
	p := strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p, p != ""
}

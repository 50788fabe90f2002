package queries

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.hackfix.me/mailstore/db/types"
)

// Version returns the schema version stored in the database header. 0 means
// the database was just created.
func Version(ctx context.Context, d types.Querier) (int, error) {
	var version int
	err := d.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed reading schema version: %w", err)
	}

	return version, nil
}

// Diagnostics contains information about the SQLite engine and the connection
// settings in effect.
type Diagnostics struct {
	SQLiteVersion string
	JournalMode   string
	Synchronous   string
	ForeignKeys   bool
}

var synchronousLevels = map[int]string{0: "OFF", 1: "NORMAL", 2: "FULL", 3: "EXTRA"}

// GetDiagnostics returns the SQLite version and connection settings.
func GetDiagnostics(ctx context.Context, d types.Querier) (*Diagnostics, error) {
	var (
		diag   Diagnostics
		syncLv int
		fk     int
	)
	err := d.QueryRowContext(ctx, `SELECT sqlite_version(),
		(SELECT journal_mode FROM pragma_journal_mode),
		(SELECT synchronous FROM pragma_synchronous),
		(SELECT foreign_keys FROM pragma_foreign_keys)`).
		Scan(&diag.SQLiteVersion, &diag.JournalMode, &syncLv, &fk)
	if err != nil {
		return nil, err
	}

	diag.JournalMode = strings.ToUpper(diag.JournalMode)
	diag.Synchronous = synchronousLevels[syncLv]
	diag.ForeignKeys = fk == 1

	return &diag, nil
}

// GetAllTables returns a map of all table names in the database that contain user data.
func GetAllTables(ctx context.Context, d types.Querier) (tables map[string]struct{}, rerr error) {
	allTables := make(map[string]struct{})
	rows, err := d.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err = rows.Close(); err != nil {
			rerr = fmt.Errorf("failed closing table rows: %w", err)
		}
	}()

	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return nil, err
		}

		// Exclude internal tables
		if !strings.HasPrefix(name, "_") {
			allTables[name] = struct{}{}
		}
	}

	return allTables, rows.Err()
}

// Column describes a table column.
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	Default    *string
	PrimaryKey bool
}

// GetColumns returns the columns of the given table in definition order.
func GetColumns(ctx context.Context, d types.Querier, table string) (cols []Column, rerr error) {
	rows, err := d.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err = rows.Close(); err != nil {
			rerr = fmt.Errorf("failed closing column rows: %w", err)
		}
	}()

	for rows.Next() {
		var (
			col     Column
			notNull int
			pk      int
		)
		if err = rows.Scan(&col.Name, &col.Type, &notNull, &col.Default, &pk); err != nil {
			return nil, types.ScanError{ModelName: "column", Err: err}
		}
		col.NotNull = notNull == 1
		col.PrimaryKey = pk > 0
		cols = append(cols, col)
	}

	return cols, rows.Err()
}

// HistoryEntry is a record of an applied migration step.
type HistoryEntry struct {
	Version   int
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// History returns the migration steps recorded in the given table, oldest
// version first. It returns no entries if the table doesn't exist.
func History(ctx context.Context, d types.Querier, table string) (entries []HistoryEntry, rerr error) {
	var n int
	err := d.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("failed checking for migration history: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	rows, err := d.QueryContext(ctx, fmt.Sprintf(
		`SELECT version, name, checksum, applied_at FROM "%s" ORDER BY version ASC`, table))
	if err != nil {
		return nil, types.LoadError{ModelName: "migration history", Err: err}
	}
	defer func() {
		if err = rows.Close(); err != nil {
			rerr = fmt.Errorf("failed closing migration history rows: %w", err)
		}
	}()

	for rows.Next() {
		var (
			e         HistoryEntry
			appliedAt int64
		)
		if err = rows.Scan(&e.Version, &e.Name, &e.Checksum, &appliedAt); err != nil {
			return nil, types.ScanError{ModelName: "migration history", Err: err}
		}
		e.AppliedAt = time.UnixMilli(appliedAt).UTC()
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

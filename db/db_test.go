package db

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/mailstore/db/migrator"
	"go.hackfix.me/mailstore/db/models"
	"go.hackfix.me/mailstore/db/queries"
	"go.hackfix.me/mailstore/db/schema"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func timeNowFn() time.Time {
	return timeNow
}

func openTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mailstore.db")
	d, err := Open(t.Context(), path,
		WithTimeNow(timeNowFn), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return d
}

// seedBaseline creates the version 1 schema with a few records, as the first
// release would have left it.
func seedBaseline(t *testing.T, d *DB) {
	t.Helper()

	ctx := t.Context()
	for _, stmt := range schema.Baseline {
		_, err := d.ExecContext(ctx, stmt.SQL)
		require.NoError(t, err)
	}

	for _, stmt := range []string{
		`INSERT INTO account (id, name, host, port, user, password, synchronize, is_primary, signature)
			VALUES (1, 'work', 'imap.example.com', 993, 'alice', 'secret', 1, 1, 'Regards, Alice')`,
		`INSERT INTO account (id, name, host, port, user, password, synchronize, is_primary, signature)
			VALUES (2, 'home', 'imap.example.org', 993, 'alice', 'secret', 1, 0, NULL)`,
		`INSERT INTO identity (id, name, email, account, host, port, starttls, user, password, synchronize, is_primary)
			VALUES (1, 'Alice', 'alice@example.com', 1, 'smtp.example.com', 587, 1, 'alice', 'secret', 1, 1)`,
		`INSERT INTO identity (id, name, email, account, host, port, starttls, user, password, synchronize, is_primary)
			VALUES (2, 'Alice', 'alice@example.org', 2, 'smtp.example.org', 587, 1, 'alice', 'secret', 1, 0)`,
		`INSERT INTO folder (id, account, name, type, synchronize, "after")
			VALUES (1, 1, 'INBOX', 'Inbox', 1, 7)`,
		`INSERT INTO folder (id, account, name, type, synchronize, "after")
			VALUES (2, 1, 'Archive', 'User', 0, 90)`,
		`PRAGMA user_version = 1`,
	} {
		_, err := d.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
}

func newRegistry(t *testing.T, target int) *migrator.Registry {
	t.Helper()

	reg, err := migrator.NewRegistry(target, schema.Tables, schema.Steps[:target-1]...)
	require.NoError(t, err)

	return reg
}

func TestDBMigrateFresh(t *testing.T) {
	t.Parallel()

	d := openTestDB(t)
	ctx := t.Context()

	reg, err := schema.Registry()
	require.NoError(t, err)

	report, err := d.Migrate(ctx, reg)
	require.NoError(t, err)
	assert.True(t, report.Fresh)
	assert.Empty(t, report.Applied)

	version, err := d.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.Version, version)

	tables, err := queries.GetAllTables(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{
		"account": {}, "identity": {}, "folder": {}, "message": {},
		"attachment": {}, "operation": {}, "answer": {}, "log": {},
	}, tables)

	history, err := queries.History(ctx, d, schema.HistoryTable)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, schema.Version, history[0].Version)
	assert.Equal(t, "create schema", history[0].Name)
	assert.Equal(t, reg.SchemaChecksum(), history[0].Checksum)
	assert.Equal(t, timeNow, history[0].AppliedAt)
}

func TestDBMigrateScenario(t *testing.T) {
	t.Parallel()

	d := openTestDB(t)
	ctx := t.Context()
	seedBaseline(t, d)

	report, err := d.Migrate(ctx, newRegistry(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, report.From)
	assert.Equal(t, 3, report.To)
	assert.False(t, report.Fresh)
	require.Len(t, report.Applied, 2)
	assert.Equal(t, "folder retention", report.Applied[0].Name)
	assert.Equal(t, "identity signature", report.Applied[1].Name)

	version, err := d.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	type folderDays struct{ sync, keep int }
	rows, err := d.QueryContext(ctx, `SELECT sync_days, keep_days FROM folder ORDER BY id`)
	require.NoError(t, err)
	var days []folderDays
	for rows.Next() {
		var fd folderDays
		require.NoError(t, rows.Scan(&fd.sync, &fd.keep))
		days = append(days, fd)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []folderDays{{7, 7}, {90, 90}}, days)

	var sig1, sig2 sql.Null[string]
	require.NoError(t, d.QueryRowContext(ctx,
		`SELECT signature FROM identity WHERE id = 1`).Scan(&sig1))
	require.NoError(t, d.QueryRowContext(ctx,
		`SELECT signature FROM identity WHERE id = 2`).Scan(&sig2))
	assert.Equal(t, sql.Null[string]{V: "Regards, Alice", Valid: true}, sig1)
	assert.False(t, sig2.Valid)

	// New folders get the static default.
	_, err = d.ExecContext(ctx, `INSERT INTO folder (account, name, type, synchronize, sync_days)
		VALUES (1, 'Sent', 'Sent', 1, 14)`)
	require.NoError(t, err)
	var keep int
	require.NoError(t, d.QueryRowContext(ctx,
		`SELECT keep_days FROM folder WHERE name = 'Sent'`).Scan(&keep))
	assert.Equal(t, 30, keep)

	history, err := queries.History(ctx, d, schema.HistoryTable)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, schema.Steps[0].Checksum(), history[0].Checksum)
	assert.Equal(t, 3, history[1].Version)
}

// A store migrated from the first release must end up with the same tables,
// columns and indexes as a store created at the current version.
func TestDBMigrateMatchesFresh(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	reg, err := schema.Registry()
	require.NoError(t, err)

	fresh := openTestDB(t)
	_, err = fresh.Migrate(ctx, reg)
	require.NoError(t, err)

	migrated := openTestDB(t)
	seedBaseline(t, migrated)
	report, err := migrated.Migrate(ctx, reg)
	require.NoError(t, err)
	assert.Len(t, report.Applied, schema.Version-1)

	freshTables, err := queries.GetAllTables(ctx, fresh)
	require.NoError(t, err)
	migratedTables, err := queries.GetAllTables(ctx, migrated)
	require.NoError(t, err)
	require.Equal(t, freshTables, migratedTables)

	for table := range freshTables {
		freshCols, err := queries.GetColumns(ctx, fresh, table)
		require.NoError(t, err)
		migratedCols, err := queries.GetColumns(ctx, migrated, table)
		require.NoError(t, err)
		assert.ElementsMatch(t, freshCols, migratedCols, "table %s", table)
	}

	assert.Equal(t, indexNames(t, fresh), indexNames(t, migrated))
}

func indexNames(t *testing.T, d *DB) []string {
	t.Helper()

	rows, err := d.QueryContext(t.Context(),
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name NOT LIKE 'sqlite_%'`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	sort.Strings(names)

	return names
}

func TestDBMigrateForwardingReference(t *testing.T) {
	t.Parallel()

	d := openTestDB(t)
	ctx := t.Context()
	seedBaseline(t, d)

	reg, err := schema.Registry()
	require.NoError(t, err)
	_, err = d.Migrate(ctx, reg)
	require.NoError(t, err)

	original := &models.Message{Folder: 1, MsgID: "<1@example.com>", Received: timeNow}
	require.NoError(t, original.Save(ctx, d))

	fwd := &models.Message{
		Folder: 1, MsgID: "<2@example.com>", Received: timeNow.Add(time.Minute),
		Forwarding: sql.Null[uint64]{V: original.ID, Valid: true},
	}
	require.NoError(t, fwd.Save(ctx, d))

	require.NoError(t, models.DeleteMessage(ctx, d, original.ID))

	msgs, err := models.Messages(ctx, d, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, fwd.ID, msgs[0].ID)
	assert.False(t, msgs[0].Forwarding.Valid)
}

func TestDBMigrateAtomic(t *testing.T) {
	t.Parallel()

	d := openTestDB(t)
	ctx := t.Context()
	seedBaseline(t, d)

	bad := &migrator.Step{
		From: 1, To: 2, Name: "broken",
		Statements: migrator.SQL(
			`ALTER TABLE folder ADD COLUMN color INTEGER`,
			`UPDATE folder SET color = 1`,
			`INSERT INTO nonexistent VALUES (1)`,
		),
	}
	reg, err := migrator.NewRegistry(2, nil, bad)
	require.NoError(t, err)

	_, err = d.Migrate(ctx, reg)
	var stmtErr migrator.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, 2, stmtErr.Index)

	version, err := d.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	cols, err := queries.GetColumns(ctx, d, "folder")
	require.NoError(t, err)
	for _, col := range cols {
		assert.NotEqual(t, "color", col.Name)
	}

	history, err := queries.History(ctx, d, schema.HistoryTable)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDBMigrateIdempotent(t *testing.T) {
	t.Parallel()

	d := openTestDB(t)
	ctx := t.Context()
	seedBaseline(t, d)

	reg, err := schema.Registry()
	require.NoError(t, err)

	_, err = d.Migrate(ctx, reg)
	require.NoError(t, err)

	report, err := d.Migrate(ctx, reg)
	require.NoError(t, err)
	assert.Empty(t, report.Applied)
	assert.Equal(t, schema.Version, report.From)

	history, err := queries.History(ctx, d, schema.HistoryTable)
	require.NoError(t, err)
	assert.Len(t, history, schema.Version-1)
}

func TestDBMigrateErrors(t *testing.T) {
	t.Parallel()

	t.Run("err/downgrade", func(t *testing.T) {
		t.Parallel()

		d := openTestDB(t)
		_, err := d.ExecContext(t.Context(), `PRAGMA user_version = 9`)
		require.NoError(t, err)

		reg, err := schema.Registry()
		require.NoError(t, err)

		_, err = d.Migrate(t.Context(), reg)
		var downErr migrator.UnsupportedDowngradeError
		require.ErrorAs(t, err, &downErr)
		assert.Equal(t, migrator.UnsupportedDowngradeError{OnDisk: 9, Target: schema.Version}, downErr)
	})

	t.Run("err/gap", func(t *testing.T) {
		t.Parallel()

		d := openTestDB(t)
		seedBaseline(t, d)

		reg, err := migrator.NewRegistry(5, schema.Tables, schema.Steps[0], schema.Steps[2], schema.Steps[3])
		require.NoError(t, err)

		_, err = d.Migrate(t.Context(), reg)
		var missing migrator.MissingStepError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, 2, missing.From)

		version, err := d.Version(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 1, version)

		cols, err := queries.GetColumns(t.Context(), d, "folder")
		require.NoError(t, err)
		assert.Equal(t, "after", cols[5].Name)
	})
}

func TestDBMigrateLockFile(t *testing.T) {
	t.Parallel()

	d := openTestDB(t)
	reg, err := schema.Registry()
	require.NoError(t, err)

	_, err = d.Migrate(t.Context(), reg)
	require.NoError(t, err)

	_, err = os.Stat(d.Path() + ".lock")
	assert.NoError(t, err)
}

func TestDBMigrateLockCanceled(t *testing.T) {
	t.Parallel()

	d := openTestDB(t)
	reg, err := schema.Registry()
	require.NoError(t, err)

	unlock, err := lockFile(t.Context(), d.Path()+".lock")
	require.NoError(t, err)
	defer func() { require.NoError(t, unlock()) }()

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	_, err = d.Migrate(ctx, reg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	version, err := d.Version(t.Context())
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestOpenDiagnostics(t *testing.T) {
	t.Parallel()

	d := openTestDB(t)
	diag, err := queries.GetDiagnostics(t.Context(), d)
	require.NoError(t, err)
	assert.NotEmpty(t, diag.SQLiteVersion)
	assert.Equal(t, "WAL", diag.JournalMode)
	assert.Equal(t, "NORMAL", diag.Synchronous)
	assert.True(t, diag.ForeignKeys)
}

func TestFilePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path  string
		exp   string
		expOK bool
	}{
		{path: "/data/mailstore.db", exp: "/data/mailstore.db", expOK: true},
		{path: "file:/data/mailstore.db?cache=shared", exp: "/data/mailstore.db", expOK: true},
		{path: "file:test?mode=memory&cache=shared", expOK: false},
		{path: ":memory:", expOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			p, ok := filePath(tt.path)
			assert.Equal(t, tt.expOK, ok)
			assert.Equal(t, tt.exp, p)
		})
	}
}

func TestDBFolderMessages(t *testing.T) {
	t.Parallel()

	d := openTestDB(t)
	ctx := t.Context()
	seedBaseline(t, d)

	reg, err := schema.Registry()
	require.NoError(t, err)
	_, err = d.Migrate(ctx, reg)
	require.NoError(t, err)

	attempt := func(at time.Time) sql.Null[time.Time] {
		return sql.Null[time.Time]{V: at, Valid: true}
	}
	msgs := []*models.Message{
		{Folder: 1, MsgID: "<1@example.com>", Received: timeNow},
		{Folder: 1, MsgID: "<2@example.com>", Received: timeNow.Add(time.Hour), LastAttempt: attempt(timeNow)},
		{
			Folder: 1, MsgID: "<3@example.com>", Received: timeNow.Add(2 * time.Hour),
			LastAttempt: attempt(timeNow.Add(2 * time.Hour)),
		},
		{Folder: 2, MsgID: "<4@example.com>", Received: timeNow.Add(time.Hour)},
	}
	for _, m := range msgs {
		require.NoError(t, m.Save(ctx, d))
	}

	msgIDs := func(msgs []*models.Message) []string {
		ids := make([]string, len(msgs))
		for i, m := range msgs {
			ids[i] = m.MsgID
		}
		return ids
	}

	got, err := models.FolderMessages(ctx, d, 1, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"<1@example.com>", "<2@example.com>", "<3@example.com>"}, msgIDs(got))

	got, err = models.FolderMessages(ctx, d, 1, timeNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"<2@example.com>", "<3@example.com>"}, msgIDs(got))

	got, err = models.PendingMessages(ctx, d, 1, timeNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"<1@example.com>", "<2@example.com>"}, msgIDs(got))
	assert.Equal(t, timeNow, got[1].LastAttempt.V)
}

// Migration reports only what the Migrate call on that DB did, even if another
// connection migrated the same file in the meantime.
func TestDBMigration(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "mailstore.db")
	open := func() *DB {
		d, err := Open(ctx, path, WithTimeNow(timeNowFn), WithLogger(slog.New(slog.DiscardHandler)))
		require.NoError(t, err)
		t.Cleanup(func() { _ = d.Close() })
		return d
	}

	first := open()
	seedBaseline(t, first)
	second := open()
	assert.Nil(t, second.Migration())

	reg, err := schema.Registry()
	require.NoError(t, err)

	report, err := first.Migrate(ctx, reg)
	require.NoError(t, err)
	assert.Same(t, report, first.Migration())
	assert.Len(t, report.Applied, schema.Version-1)

	_, err = second.Migrate(ctx, reg)
	require.NoError(t, err)
	report = second.Migration()
	require.NotNil(t, report)
	assert.Equal(t, schema.Version, report.From)
	assert.Equal(t, schema.Version, report.To)
	assert.False(t, report.Fresh)
	assert.Empty(t, report.Applied)
}

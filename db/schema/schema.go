// Package schema defines the mail store entities, and the steps that migrate
// stores created by earlier releases.
package schema

import (
	"go.hackfix.me/mailstore/db/migrator"
)

// Version is the schema version of the entities defined in this package.
const Version = 5

// HistoryTable is the table where applied steps are recorded.
const HistoryTable = "_migrations"

// Tables creates the schema at Version.
var Tables = migrator.SQL(
	`CREATE TABLE account (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		user TEXT NOT NULL,
		password TEXT NOT NULL,
		auth_type INTEGER NOT NULL DEFAULT 0,
		synchronize INTEGER NOT NULL,
		is_primary INTEGER NOT NULL,
		signature TEXT,
		poll_interval INTEGER NOT NULL DEFAULT 9,
		last_connected INTEGER,
		state TEXT,
		error TEXT
	)`,
	`CREATE TABLE identity (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		replyto TEXT,
		account INTEGER NOT NULL REFERENCES account(id) ON DELETE CASCADE,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		starttls INTEGER NOT NULL,
		user TEXT NOT NULL,
		password TEXT NOT NULL,
		synchronize INTEGER NOT NULL,
		is_primary INTEGER NOT NULL,
		signature TEXT,
		state TEXT,
		error TEXT
	)`,
	`CREATE INDEX index_identity_account ON identity (account)`,
	`CREATE TABLE folder (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account INTEGER REFERENCES account(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		synchronize INTEGER NOT NULL,
		sync_days INTEGER NOT NULL,
		keep_days INTEGER NOT NULL DEFAULT 30,
		state TEXT,
		error TEXT
	)`,
	`CREATE UNIQUE INDEX index_folder_account_name ON folder (account, name)`,
	`CREATE TABLE message (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account INTEGER REFERENCES account(id) ON DELETE CASCADE,
		folder INTEGER NOT NULL REFERENCES folder(id) ON DELETE CASCADE,
		identity INTEGER REFERENCES identity(id) ON DELETE SET NULL,
		replying INTEGER REFERENCES message(id) ON DELETE SET NULL,
		forwarding INTEGER REFERENCES message(id) ON UPDATE NO ACTION ON DELETE SET NULL,
		uid INTEGER,
		msgid TEXT,
		refs TEXT,
		inreplyto TEXT,
		thread TEXT,
		from_addrs TEXT,
		to_addrs TEXT,
		cc_addrs TEXT,
		bcc_addrs TEXT,
		reply_addrs TEXT,
		subject TEXT,
		size INTEGER,
		sent INTEGER,
		received INTEGER NOT NULL,
		seen INTEGER NOT NULL DEFAULT 0,
		ui_seen INTEGER NOT NULL DEFAULT 0,
		ui_hide INTEGER NOT NULL DEFAULT 0,
		last_attempt INTEGER,
		error TEXT
	)`,
	`CREATE INDEX index_message_folder ON message (folder)`,
	`CREATE INDEX index_message_identity ON message (identity)`,
	`CREATE INDEX index_message_replying ON message (replying)`,
	`CREATE INDEX index_message_forwarding ON message (forwarding)`,
	`CREATE UNIQUE INDEX index_message_folder_uid ON message (folder, uid)`,
	`CREATE INDEX index_message_thread ON message (thread)`,
	`CREATE TABLE attachment (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message INTEGER NOT NULL REFERENCES message(id) ON DELETE CASCADE,
		sequence INTEGER NOT NULL,
		name TEXT,
		type TEXT NOT NULL,
		size INTEGER,
		progress INTEGER,
		available INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE UNIQUE INDEX index_attachment_message_sequence ON attachment (message, sequence)`,
	`CREATE TABLE operation (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folder INTEGER NOT NULL REFERENCES folder(id) ON DELETE CASCADE,
		message INTEGER REFERENCES message(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		args TEXT NOT NULL,
		created INTEGER NOT NULL
	)`,
	`CREATE INDEX index_operation_folder ON operation (folder)`,
	`CREATE INDEX index_operation_message ON operation (message)`,
	`CREATE TABLE answer (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		text TEXT NOT NULL
	)`,
	`CREATE TABLE log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time INTEGER NOT NULL,
		data TEXT NOT NULL
	)`,
	`CREATE INDEX index_log_time ON log (time)`,
)

// Steps migrate stores created by earlier releases, oldest first.
var Steps = []*migrator.Step{
	{
		From: 1, To: 2, Name: "folder retention",
		Statements: migrator.SQL(
			`ALTER TABLE folder RENAME COLUMN "after" TO sync_days`,
			`ALTER TABLE folder ADD COLUMN keep_days INTEGER NOT NULL DEFAULT 30`,
			// Existing folders keep messages for as long as they synchronized
			// them, not for the static default.
			`UPDATE folder SET keep_days = sync_days`,
		),
	},
	{
		From: 2, To: 3, Name: "identity signature",
		Statements: migrator.SQL(
			`ALTER TABLE identity ADD COLUMN signature TEXT`,
			`UPDATE identity SET signature =
				(SELECT account.signature FROM account WHERE account.id = identity.account)`,
		),
	},
	{
		From: 3, To: 4, Name: "message forwarding",
		Statements: migrator.SQL(
			`ALTER TABLE message ADD COLUMN forwarding INTEGER
				REFERENCES message(id) ON UPDATE NO ACTION ON DELETE SET NULL`,
			`CREATE INDEX index_message_forwarding ON message (forwarding)`,
		),
	},
	{
		From: 4, To: 5, Name: "connection attempts",
		Statements: migrator.SQL(
			`ALTER TABLE account ADD COLUMN last_connected INTEGER`,
			`ALTER TABLE message ADD COLUMN last_attempt INTEGER`,
		),
	},
}

// Registry returns the migration registry for the current schema.
func Registry() (*migrator.Registry, error) {
	//nolint:wrapcheck // The registry errors are descriptive enough.
	return migrator.NewRegistry(Version, Tables, Steps...)
}

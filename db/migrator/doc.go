// Package migrator brings a persistent store from the schema version found on
// disk to the version expected by the running program.
//
// Features:
// - Versions are plain integers stored in a single slot of the store (for
// SQLite, the user_version header field)
// - Steps are data: a (from, to) pair plus an ordered list of statements
// - Each step runs in its own transaction together with the version update
// - Forward-only; a store newer than the program is refused
// - Fresh stores are created directly at the target version
// - Optional per-step history rows with a checksum of the step definition
package migrator

package migrator

import "fmt"

// MissingStepError is returned when no step is registered between two adjacent
// versions that lie on the path to the target version.
type MissingStepError struct {
	From, To int
}

func (e MissingStepError) Error() string {
	return fmt.Sprintf("missing migration step from version %d to %d", e.From, e.To)
}

// InvalidVersionError is returned when the store records a negative version,
// which no program release writes.
type InvalidVersionError struct {
	Version int
}

func (e InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid store version %d: must not be negative", e.Version)
}

// StatementError is returned when a statement of a step fails. The step was
// rolled back, and the store remains at version From.
type StatementError struct {
	From, To int
	// Index is the position of the failed statement within the step.
	Index int
	SQL   string
	Err   error
}

func (e StatementError) Error() string {
	return fmt.Sprintf("failed migrating from version %d to %d: statement %d: %s",
		e.From, e.To, e.Index, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e StatementError) Unwrap() error {
	return e.Err
}

// UnsupportedDowngradeError is returned when the store was written by a newer
// program than the one running.
type UnsupportedDowngradeError struct {
	OnDisk, Target int
}

func (e UnsupportedDowngradeError) Error() string {
	return fmt.Sprintf("store version %d is newer than the supported version %d", e.OnDisk, e.Target)
}

// RollbackError is returned when the atomic scope of a failed step couldn't be
// rolled back.
type RollbackError struct {
	From, To int
	Err      error
}

func (e RollbackError) Error() string {
	return fmt.Sprintf("failed rolling back migration from version %d to %d: %s", e.From, e.To, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e RollbackError) Unwrap() error {
	return e.Err
}

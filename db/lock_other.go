//go:build !unix

package db

import "context"

// lockFile is a no-op on platforms without flock. Callers must ensure a single
// process migrates the database.
func lockFile(context.Context, string) (func() error, error) {
	return func() error { return nil }, nil
}

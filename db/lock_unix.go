//go:build unix

package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const lockRetryInterval = 50 * time.Millisecond

// lockFile takes an exclusive advisory lock on the file at path, creating it
// if necessary. It waits until the lock is available or ctx is done.
func lockFile(ctx context.Context, path string) (unlock func() error, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed opening lock file: %w", err)
	}
	fd := int(f.Fd()) //nolint:gosec // File descriptors fit in an int.

	for {
		err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = f.Close()
			return nil, fmt.Errorf("failed locking %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	return func() error {
		if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed unlocking %s: %w", path, err)
		}
		return f.Close()
	}, nil
}

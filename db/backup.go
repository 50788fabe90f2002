package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nrednav/cuid2"
)

const backupPrefix = "mailstore-"

// BackupName returns a unique file name for a backup of a database at the
// given schema version.
func BackupName(version int) string {
	return fmt.Sprintf("%sv%d-%s.db", backupPrefix, version, cuid2.Generate())
}

// Backup writes a consistent copy of the database to dest. The file must not
// already exist.
func (d *DB) Backup(ctx context.Context, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return fmt.Errorf("failed creating backup directory: %w", err)
	}

	if _, err := d.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("failed writing backup to %s: %w", dest, err)
	}

	d.logger.Info("created backup", "path", dest)

	return nil
}

// PruneBackups removes backups in dir last modified before cutoff. It returns
// the paths of the removed files.
func PruneBackups(dir string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed reading backup directory: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, ".db") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return removed, fmt.Errorf("failed reading backup file info: %w", err)
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(dir, name)
		if err = os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed removing backup: %w", err)
		}
		removed = append(removed, path)
	}

	return removed, nil
}

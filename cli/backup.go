package cli

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	actx "go.hackfix.me/mailstore/app/context"
	aerrors "go.hackfix.me/mailstore/app/errors"
	"go.hackfix.me/mailstore/db"
)

// The Backup command writes a consistent copy of the mail store while it's in
// use. Backups in the backup directory older than the retention period are
// removed afterwards.
type Backup struct {
	Out  string                  `help:"Path of the backup file. Defaults to a unique name in the backup directory."`
	Keep sql.Null[time.Duration] `type:"duration" help:"How long to keep backups for, e.g. 7d or 1M. Overrides the configuration."`
}

// Run the backup command.
func (c *Backup) Run(appCtx *actx.Context) (rerr error) {
	d, err := openExisting(appCtx)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil && rerr == nil {
			rerr = aerrors.NewRuntimeError("failed closing mail store", err, "")
		}
	}()

	version, err := d.Version(appCtx.Ctx)
	if err != nil {
		return aerrors.NewRuntimeError("failed reading schema version", err, "")
	}

	dest := c.Out
	retention := appCtx.Config.Backup.Retention.V
	if dest == "" {
		dest = filepath.Join(appCtx.Config.Backup.Dir.V, db.BackupName(version))
	} else {
		// Only the backup directory is pruned.
		retention = 0
	}

	return writeBackup(appCtx, d, dest, retention)
}

// writeBackup writes a backup of d to dest. If retention is set, older backups
// in the same directory are removed.
func writeBackup(appCtx *actx.Context, d *db.DB, dest string, retention time.Duration) error {
	if err := d.Backup(appCtx.Ctx, dest); err != nil {
		return aerrors.NewRuntimeError("failed writing backup", err, "")
	}

	if _, err := fmt.Fprintf(appCtx.Stdout, "Wrote backup to %s.\n", dest); err != nil {
		return err
	}

	if retention <= 0 {
		return nil
	}

	removed, err := db.PruneBackups(filepath.Dir(dest), appCtx.TimeNow().Add(-retention))
	for _, path := range removed {
		appCtx.Logger.Info("removed old backup", "path", path)
	}
	if err != nil {
		return aerrors.NewRuntimeError("failed removing old backups", err, "")
	}

	return nil
}

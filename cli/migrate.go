package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	actx "go.hackfix.me/mailstore/app/context"
	aerrors "go.hackfix.me/mailstore/app/errors"
	"go.hackfix.me/mailstore/db"
	"go.hackfix.me/mailstore/db/migrator"
	"go.hackfix.me/mailstore/db/schema"
)

// The Migrate command brings an existing mail store to the current schema
// version. A backup is written before any step is applied, unless disabled.
type Migrate struct {
	DryRun   bool `help:"Only show the steps that would be applied."`
	NoBackup bool `help:"Don't write a backup before migrating."`
}

// Run the migrate command.
func (c *Migrate) Run(appCtx *actx.Context) error {
	reg, err := schema.Registry()
	if err != nil {
		return aerrors.NewRuntimeError("invalid migration registry", err, "")
	}

	ok, err := c.prepare(appCtx, reg)
	if err != nil || !ok {
		return err
	}

	d, err := appCtx.Store.Get(appCtx.Ctx)
	if err != nil {
		return migrationError(err)
	}

	// Another process might have migrated the store since it was inspected, so
	// only what this process did is reported.
	report := d.Migration()
	switch {
	case report == nil:
		return aerrors.NewRuntimeError("mail store wasn't migrated", nil, "")
	case report.Fresh:
		_, err = fmt.Fprintf(appCtx.Stdout, "Created mail store with schema version %d.\n", report.To)
		return err
	case len(report.Applied) == 0:
		_, err = fmt.Fprintf(appCtx.Stdout, "Mail store is up to date at schema version %d.\n", report.To)
		return err
	}

	_, err = fmt.Fprintf(appCtx.Stdout, "Migrated mail store from schema version %d to %d.\n",
		report.From, report.To)
	if err != nil {
		return err
	}

	return printApplied(appCtx, report.Applied)
}

// prepare reads the stored version and resolves the steps to apply. A backup
// is written unless this is a dry run. It returns false if there's nothing left
// to do.
func (c *Migrate) prepare(appCtx *actx.Context, reg *migrator.Registry) (ok bool, rerr error) {
	d, err := openExisting(appCtx)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := d.Close(); err != nil && rerr == nil {
			rerr = aerrors.NewRuntimeError("failed closing mail store", err, "")
		}
	}()

	version, err := d.Version(appCtx.Ctx)
	if err != nil {
		return false, aerrors.NewRuntimeError("failed reading schema version", err, "")
	}

	if version == 0 {
		if c.DryRun {
			_, err = fmt.Fprintf(appCtx.Stdout,
				"Mail store is empty, and would be created at schema version %d.\n", reg.Target())
			return false, err
		}
		return true, nil
	}

	plan, err := reg.Plan(version)
	if err != nil {
		return false, migrationError(err)
	}

	if len(plan) == 0 {
		_, err = fmt.Fprintf(appCtx.Stdout, "Mail store is up to date at schema version %d.\n", version)
		return false, err
	}

	if c.DryRun {
		return false, printPlan(appCtx, "Pending steps:", plan)
	}

	cfg := appCtx.Config.Backup
	if cfg.BeforeMigrate.V && !c.NoBackup {
		dest := filepath.Join(cfg.Dir.V, db.BackupName(version))
		if err = writeBackup(appCtx, d, dest, cfg.Retention.V); err != nil {
			return false, err
		}
	}

	return true, nil
}

func printPlan(appCtx *actx.Context, title string, plan []*migrator.Step) error {
	if _, err := fmt.Fprintln(appCtx.Stdout, title); err != nil {
		return err
	}

	data := make([][]string, len(plan))
	for i, step := range plan {
		data[i] = []string{
			fmt.Sprintf("%d", step.From), fmt.Sprintf("%d", step.To), step.Name, step.Checksum(),
		}
	}

	if err := renderTable([]string{"From", "To", "Name", "Checksum"}, data, appCtx.Stdout); err != nil {
		return aerrors.NewRuntimeError("failed rendering migration plan", err, "")
	}

	return nil
}

func printApplied(appCtx *actx.Context, applied []migrator.AppliedStep) error {
	if _, err := fmt.Fprintln(appCtx.Stdout, "Applied steps:"); err != nil {
		return err
	}

	data := make([][]string, len(applied))
	for i, step := range applied {
		data[i] = []string{
			strconv.Itoa(step.From), strconv.Itoa(step.To), step.Name,
			step.Duration.Round(time.Millisecond).String(),
		}
	}

	if err := renderTable([]string{"From", "To", "Name", "Duration"}, data, appCtx.Stdout); err != nil {
		return aerrors.NewRuntimeError("failed rendering applied steps", err, "")
	}

	return nil
}

// migrationError adds structured metadata to migration failures, so that they
// can be logged with the failing version and statement.
func migrationError(err error) error {
	var (
		stmtErr    migrator.StatementError
		missingErr migrator.MissingStepError
		downErr    migrator.UnsupportedDowngradeError
	)
	switch {
	case errors.As(err, &stmtErr):
		return aerrors.WithCause(errors.New("failed migrating mail store"), err,
			"from", stmtErr.From, "to", stmtErr.To,
			"statement", stmtErr.Index, "sql", stmtErr.SQL)
	case errors.As(err, &missingErr):
		return aerrors.WithCause(errors.New("failed migrating mail store"), err,
			"from", missingErr.From, "to", missingErr.To)
	case errors.As(err, &downErr):
		return aerrors.NewRuntimeError("mail store can't be opened", err,
			"The store was written by a newer release. Upgrade mailstore, or restore a backup.")
	default:
		return aerrors.NewRuntimeError("failed migrating mail store", err, "")
	}
}

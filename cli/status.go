package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	actx "go.hackfix.me/mailstore/app/context"
	aerrors "go.hackfix.me/mailstore/app/errors"
	"go.hackfix.me/mailstore/db/migrator"
	"go.hackfix.me/mailstore/db/queries"
	"go.hackfix.me/mailstore/db/schema"
)

// The Status command shows the state of the mail store without modifying it.
type Status struct{}

// Run the status command.
func (c *Status) Run(appCtx *actx.Context) (rerr error) {
	reg, err := schema.Registry()
	if err != nil {
		return aerrors.NewRuntimeError("invalid migration registry", err, "")
	}

	d, err := openExisting(appCtx)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil && rerr == nil {
			rerr = aerrors.NewRuntimeError("failed closing mail store", err, "")
		}
	}()

	ctx := appCtx.Ctx
	version, err := d.Version(ctx)
	if err != nil {
		return aerrors.NewRuntimeError("failed reading schema version", err, "")
	}
	diag, err := queries.GetDiagnostics(ctx, d)
	if err != nil {
		return aerrors.NewRuntimeError("failed reading store diagnostics", err, "")
	}
	history, err := queries.History(ctx, d, schema.HistoryTable)
	if err != nil {
		return aerrors.NewRuntimeError("failed reading migration history", err, "")
	}

	state := "up to date"
	plan, err := reg.Plan(version)
	var missingErr migrator.MissingStepError
	switch {
	case version == 0:
		state = "empty"
	case errors.As(err, &migrator.UnsupportedDowngradeError{}):
		state = "newer than supported"
	case errors.As(err, &migrator.InvalidVersionError{}):
		state = "invalid version"
	case errors.As(err, &missingErr):
		state = fmt.Sprintf("can't be migrated: %s", missingErr)
	case err != nil:
		return aerrors.NewRuntimeError("failed resolving migration plan", err, "")
	case len(plan) > 0:
		state = fmt.Sprintf("%d pending steps", len(plan))
	}

	summary := [][]string{
		{"Store", d.Path()},
		{"Version", strconv.Itoa(version)},
		{"Target", strconv.Itoa(reg.Target())},
		{"State", state},
		{"SQLite", diag.SQLiteVersion},
		{"Journal mode", diag.JournalMode},
		{"Synchronous", diag.Synchronous},
		{"Foreign keys", strconv.FormatBool(diag.ForeignKeys)},
	}
	if err = renderTable([]string{"Property", "Value"}, summary, appCtx.Stdout); err != nil {
		return aerrors.NewRuntimeError("failed rendering status", err, "")
	}

	if len(plan) > 0 {
		if err = printPlan(appCtx, "\nPending steps:", plan); err != nil {
			return err
		}
	}

	if len(history) == 0 {
		return nil
	}

	if _, err = fmt.Fprintln(appCtx.Stdout, "\nHistory:"); err != nil {
		return err
	}
	data := make([][]string, len(history))
	for i, e := range history {
		data[i] = []string{
			strconv.Itoa(e.Version), e.Name, e.AppliedAt.Format(time.RFC3339),
			e.Checksum, checksumState(reg, e),
		}
	}
	err = renderTable([]string{"Version", "Name", "Applied", "Checksum", "State"}, data, appCtx.Stdout)
	if err != nil {
		return aerrors.NewRuntimeError("failed rendering migration history", err, "")
	}

	return nil
}

// checksumState compares a recorded step with the registered one. Steps
// edited after they were applied are reported as changed.
func checksumState(reg *migrator.Registry, e queries.HistoryEntry) string {
	var expected string
	switch {
	case e.Name == migrator.BootstrapName:
		if e.Version != reg.Target() {
			return "unknown"
		}
		expected = reg.SchemaChecksum()
	default:
		step, ok := reg.Step(e.Version - 1)
		if !ok {
			return "unknown"
		}
		expected = step.Checksum()
	}

	if e.Checksum != expected {
		return "changed"
	}

	return "ok"
}

package cli

import (
	"fmt"

	"github.com/mandelsoft/vfs/pkg/vfs"

	actx "go.hackfix.me/mailstore/app/context"
	aerrors "go.hackfix.me/mailstore/app/errors"
	"go.hackfix.me/mailstore/db/schema"
)

// The Init command creates a new mail store at the current schema version, and
// writes the configuration file if it doesn't exist.
type Init struct{}

// Run the init command.
func (c *Init) Run(appCtx *actx.Context) error {
	path := appCtx.StorePath()
	exists, err := storeExists(path)
	if err != nil {
		return err
	}
	if exists {
		return aerrors.NewRuntimeError(
			fmt.Sprintf("mail store already exists at %s", path), nil,
			"Run 'mailstore migrate' to upgrade an existing store.")
	}

	if _, err = appCtx.Store.Get(appCtx.Ctx); err != nil {
		return aerrors.NewRuntimeError("failed creating mail store", err, "")
	}

	_, err = appCtx.FS.Stat(appCtx.Config.Path())
	switch {
	case vfs.IsErrNotExist(err):
		if err = appCtx.Config.Save(); err != nil {
			return aerrors.NewRuntimeError("failed writing configuration file", err, "")
		}
	case err != nil:
		return aerrors.NewRuntimeError("failed checking configuration file", err, "")
	}

	_, err = fmt.Fprintf(appCtx.Stdout, "Created mail store at %s with schema version %d.\n",
		path, schema.Version)

	return err
}

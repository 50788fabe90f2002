package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	actx "go.hackfix.me/mailstore/app/context"
	aerrors "go.hackfix.me/mailstore/app/errors"
	"go.hackfix.me/mailstore/db"
)

func storeExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, aerrors.NewRuntimeError("failed checking mail store", err, "")
	}
}

// openExisting opens the mail store without migrating it. It fails if the
// store doesn't exist.
func openExisting(appCtx *actx.Context) (*db.DB, error) {
	path := appCtx.StorePath()
	exists, err := storeExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, aerrors.NewRuntimeError(
			fmt.Sprintf("no mail store at %s", path), nil,
			"Run 'mailstore init' to create one.")
	}

	d, err := db.Open(appCtx.Ctx, path, appCtx.StoreOptions()...)
	if err != nil {
		return nil, aerrors.NewRuntimeError("failed opening mail store", err, "")
	}

	return d, nil
}

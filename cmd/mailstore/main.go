package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"go.hackfix.me/mailstore/app"
	aerrors "go.hackfix.me/mailstore/app/errors"
)

func main() {
	a, err := app.New("mailstore",
		filepath.Join(xdg.ConfigHome, "mailstore", "config.json"),
		filepath.Join(xdg.DataHome, "mailstore"),
		app.WithFDs(
			os.Stdin,
			colorable.NewColorable(os.Stdout),
			colorable.NewColorable(os.Stderr),
		),
		app.WithFS(osfs.New()),
		app.WithLogger(
			isatty.IsTerminal(os.Stdout.Fd()),
			isatty.IsTerminal(os.Stderr.Fd()),
		),
	)
	if err != nil {
		aerrors.Errorf(err)
		os.Exit(1)
	}
	if err = a.Run(os.Args[1:]); err != nil {
		var serr *aerrors.StructuredError
		if errors.As(err, &serr) {
			aerrors.Log(slog.Default(), err)
		} else {
			aerrors.Errorf(err)
		}
		os.Exit(1)
	}
}

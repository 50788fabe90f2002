package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"

	"go.hackfix.me/mailstore/app/config"
	actx "go.hackfix.me/mailstore/app/context"
	aerrors "go.hackfix.me/mailstore/app/errors"
	"go.hackfix.me/mailstore/cli"
	"go.hackfix.me/mailstore/db"
	"go.hackfix.me/mailstore/db/schema"
)

// App is the application.
type App struct {
	name string
	ctx  *actx.Context
	cli  *cli.CLI
	// the logging level is set via the CLI, if the app was initialized with the
	// WithLogger option.
	logLevel *slog.LevelVar
}

// New initializes a new application. configFilePath and dataDir are the
// defaults of the corresponding CLI flags.
func New(name, configFilePath, dataDir string, opts ...Option) (*App, error) {
	version, err := actx.GetVersion()
	if err != nil {
		return nil, err
	}

	defaultCtx := &actx.Context{
		Ctx:     context.Background(),
		FS:      memoryfs.New(),
		Logger:  slog.Default(),
		TimeNow: time.Now,
		Version: version,
	}
	app := &App{name: name, ctx: defaultCtx}

	for _, opt := range opts {
		opt(app)
	}

	ver := fmt.Sprintf("%s %s", app.name, app.ctx.Version.String())
	app.cli, err = cli.New(configFilePath, dataDir, ver)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Run initializes the application environment and starts execution of the
// application.
func (app *App) Run(args []string) error {
	if err := app.cli.Parse(args); err != nil {
		return err
	}

	if app.logLevel != nil {
		app.logLevel.Set(app.cli.Log.Level)
		slog.SetLogLoggerLevel(app.cli.Log.Level)
	}

	cfg := app.ctx.Config
	if cfg == nil {
		cfg = config.NewConfig(app.ctx.FS, app.cli.ConfigFile)
		if err := cfg.Load(); err != nil {
			return aerrors.NewRuntimeError("failed loading configuration", err,
				fmt.Sprintf("Check the configuration file at %s.", cfg.Path()))
		}
	}
	cfg.SetDefaults(app.cli.DataDir)
	app.cli.ApplyConfig(cfg)

	// Each run gets its own configuration and store handle, unless they were
	// provided with options.
	runCtx := *app.ctx
	runCtx.Config = cfg
	if runCtx.Store == nil {
		runCtx.Store = db.NewHandle(
			db.MigratedOpener(cfg.Store.Path.V, schema.Registry, runCtx.StoreOptions()...))
		defer func() {
			if err := runCtx.Store.Close(); err != nil {
				runCtx.Logger.Warn("failed closing mail store", "error", err)
			}
		}()
	}

	app.ctx.Logger.Debug("running command", "command", app.cli.Command(),
		"config", cfg.Path(), "store", cfg.Store.Path.V)

	//nolint:wrapcheck // Commands return descriptive errors.
	return app.cli.Execute(&runCtx)
}

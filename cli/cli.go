package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alecthomas/kong"

	"go.hackfix.me/mailstore/app/config"
	actx "go.hackfix.me/mailstore/app/context"
)

// CLI is the command line interface of mailstore.
type CLI struct {
	Init    Init    `kong:"cmd,help='Create a new mail store.'"`
	Migrate Migrate `kong:"cmd,help='Bring the mail store to the current schema version.'"`
	Status  Status  `kong:"cmd,help='Show the schema version, pending steps and migration history.'"`
	Backup  Backup  `kong:"cmd,help='Write a copy of the mail store.'"`
	Answer  Answer  `kong:"cmd,help='Manage reply templates.'"`

	Log struct {
		Level slog.Level `enum:"DEBUG,INFO,WARN,ERROR" default:"INFO" help:"Set the app logging level."`
	} `embed:"" prefix:"log-"`
	// NOTE: Not using kong.ConfigFlag, since configuration is managed
	// independently from the CLI.
	ConfigFile string           `kong:"default='${configFile}',help='Path to the mailstore configuration file.'"`
	DataDir    string           `kong:"default='${dataDir}',help='Path to the directory where mailstore data is stored.'"`
	Store      string           `kong:"help='Path to the mail store database. Overrides the configuration.'"`
	Version    kong.VersionFlag `kong:"help='Output version and exit.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// New initializes the command-line interface.
func New(configFilePath, dataDir, version string) (*CLI, error) {
	c := &CLI{}
	kparser, err := kong.New(c,
		kong.Name("mailstore"),
		kong.Description("Manage the local mail store of the mail client."),
		kong.UsageOnError(),
		kong.DefaultEnvars("MAILSTORE"),
		kong.NamedMapper("duration", DurationMapper{}),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			Summary:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"configFile": configFilePath,
			"dataDir":    dataDir,
			"version":    version,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating the Kong parser: %w", err)
	}

	c.kong = kparser

	return c, nil
}

// Execute starts the command execution. Parse must be called before this method.
func (c *CLI) Execute(appCtx *actx.Context) error {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	c.kong.Stdout = appCtx.Stdout
	c.kong.Stderr = appCtx.Stderr

	//nolint:wrapcheck // This is fine.
	return c.kctx.Run(appCtx)
}

// Parse the given command line arguments. This method must be called before
// Execute.
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return fmt.Errorf("failed parsing CLI arguments: %w", err)
	}
	c.kctx = kctx

	return nil
}

// Command returns the full path of the executed command.
func (c *CLI) Command() string {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	cmdPath := []string{}
	for _, p := range c.kctx.Path {
		if p.Command != nil {
			cmdPath = append(cmdPath, p.Command.Name)
		}
	}

	return strings.Join(cmdPath, " ")
}

// ApplyConfig merges CLI flags into the configuration. Values set on the
// command line take precedence.
func (c *CLI) ApplyConfig(cfg *config.Config) {
	if c.Store != "" {
		cfg.Store.Path.V = c.Store
		cfg.Store.Path.Valid = true
	}
	if c.Backup.Keep.Valid {
		cfg.Backup.Retention = c.Backup.Keep
	}
}

// subcommand returns the name of the executed subcommand of a command group,
// e.g. "add" for "answer add".
func subcommand(kctx *kong.Context) string {
	parts := strings.Fields(kctx.Command())
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

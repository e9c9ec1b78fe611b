package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"labelcomposer/internal/config"
	"labelcomposer/internal/logging"
)

// Exit codes
const (
	exitNotComputable = 1
	exitFailure       = 2
)

// exitError ends the process with code without printing anything further
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app holds state shared by all subcommands
type app struct {
	configPath string
	dbPath     string
	jsonOutput bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "labelctl",
		Short:         "Check which label combinations a segmentation scheme can derive",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: search $"+config.EnvConfigPath+", ./"+config.ConfigFileName+", XDG paths)")
	flags.StringVar(&a.dbPath, "db", "", "SQLite database path (overrides config)")
	flags.BoolVar(&a.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		newCheckCmd(a),
		newClosureCmd(a),
		newCompareCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newListCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) init() error {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if a.configPath != "" {
		cfg, path, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}

	a.cfg = cfg
	a.logger = logging.Init(cfg.LoggingConfig())
	if path != "" {
		a.logger.Debug("config loaded", "path", path)
	}
	return nil
}

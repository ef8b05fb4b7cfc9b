// Package cli implements the chatvault command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/jswain/chatvault/internal/config"
	"github.com/jswain/chatvault/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatvault",
		Short: "chatvault — chat conversation history service",
		Long:  "chatvault persists streaming chat conversations: a session store with autosave, title derivation and a history API for chat UIs.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			// Bootstrap logger; commands that load config rebuild it
			// from the logging section via applyLogConfig.
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level, "pretty")
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.chatvault/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSessionsCmd())

	return cmd
}

// applyLogConfig rebuilds the package logger from the loaded config's
// logging section. An explicit --log-level flag wins over the config file.
func applyLogConfig(cfg config.LoggingConfig) {
	level := logLevel
	if level == "" {
		level = cfg.Level
	}
	log = logging.New(nil, level, cfg.Style)
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

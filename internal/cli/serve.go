package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jswain/chatvault/internal/config"
	"github.com/jswain/chatvault/internal/server"
	"github.com/jswain/chatvault/internal/session"
	"github.com/jswain/chatvault/internal/storage"
	"github.com/jswain/chatvault/internal/titlegen"
)

func newServeCmd() *cobra.Command {
	var (
		port      int
		dbPath    string
		ephemeral bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chatvault history server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			applyLogConfig(cfg.Logging)

			if port != 0 {
				cfg.Server.Port = port
			}
			if dbPath != "" {
				cfg.Storage.Path = dbPath
			}
			if ephemeral {
				cfg.Storage.Driver = "memory"
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			kv, cleanup, err := openKV(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			repoOpts := []session.RepositoryOption{}
			if gen := newTitleGenerator(cfg.TitleGen); gen != nil {
				repoOpts = append(repoOpts, session.WithTitleGenerator(gen))
			}
			repo := session.NewRepository(kv, log, repoOpts...)

			srv := server.New(cfg, repo, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path (overrides config)")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "keep sessions in memory only")

	return cmd
}

// openKV builds the configured storage backend. The cleanup function closes
// the underlying database, if any.
func openKV(cfg config.Config) (storage.KV, func(), error) {
	if cfg.Storage.Driver == "memory" {
		return storage.NewMemoryKV(), func() {}, nil
	}

	db, err := storage.Open(paths.DatabasePath(cfg.Storage), log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return storage.NewSQLiteKV(db), func() { db.Close() }, nil
}

// newTitleGenerator builds the configured title-generation collaborator, or
// nil when disabled (titles then fall back to derivation).
func newTitleGenerator(cfg config.TitleGenConfig) titlegen.Generator {
	switch cfg.Provider {
	case "http":
		return titlegen.NewHTTPGenerator(cfg.Endpoint, nil)
	case "openai":
		return titlegen.NewOpenAIGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil
	}
}

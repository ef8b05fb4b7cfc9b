package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jswain/chatvault/internal/config"
	"github.com/jswain/chatvault/internal/session"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage saved conversations",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsClearCmd())
	cmd.AddCommand(newSessionsRenameCmd())
	cmd.AddCommand(newSessionsRegenTitleCmd())

	return cmd
}

// withRepository loads config, opens storage and hands a ready repository to
// fn, closing the database afterwards.
func withRepository(fn func(*session.Repository) error) error {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return err
	}
	applyLogConfig(cfg.Logging)

	kv, cleanup, err := openKV(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := []session.RepositoryOption{}
	if gen := newTitleGenerator(cfg.TitleGen); gen != nil {
		opts = append(opts, session.WithTitleGenerator(gen))
	}
	return fn(session.NewRepository(kv, log, opts...))
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(func(repo *session.Repository) error {
				sessions := repo.ListSessions()
				if len(sessions) == 0 {
					fmt.Println("no saved conversations")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTITLE\tMODE\tMESSAGES\tUPDATED")
				for _, s := range sessions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
						s.ID, s.Title, s.Mode, len(s.Messages),
						s.UpdatedAt.Format(time.DateTime))
				}
				return w.Flush()
			})
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(func(repo *session.Repository) error {
				sess, ok := repo.GetSession(args[0])
				if !ok {
					return fmt.Errorf("session %s not found", args[0])
				}

				fmt.Printf("%s (%s, %d messages)\n\n", sess.Title, sess.Mode, len(sess.Messages))
				for _, m := range sess.Messages {
					fmt.Printf("[%s] %s\n", m.Role, m.Content)
				}
				return nil
			})
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(func(repo *session.Repository) error {
				repo.DeleteSession(args[0])
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newSessionsClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			return withRepository(func(repo *session.Repository) error {
				repo.ClearAll()
				fmt.Println("all conversations deleted")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion of all conversations")
	return cmd
}

func newSessionsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation (sticks until the title is regenerated)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(func(repo *session.Repository) error {
				if !repo.UpdateTitle(args[0], args[1]) {
					return fmt.Errorf("session %s not found", args[0])
				}
				fmt.Printf("renamed %s to %q\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newSessionsRegenTitleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regen-title <id>",
		Short: "Regenerate a conversation's title from its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(func(repo *session.Repository) error {
				title, err := repo.RegenerateTitle(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("title: %s\n", title)
				return nil
			})
		},
	}
}

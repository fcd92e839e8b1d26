package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/example/court-scheduler/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and refresh the booking session cookies",
	}
	cmd.AddCommand(newSessionStatusCmd())
	cmd.AddCommand(newSessionReloadCmd())
	return cmd
}

func newSessionStatusCmd() *cobra.Command {
	var ping bool

	c := &cobra.Command{
		Use:   "status",
		Short: "Show session file age and, optionally, whether the provider accepts it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			mgr, client, err := newBookingClient(cfg)
			if err != nil {
				return err
			}

			snap := mgr.Snapshot()
			if snap.CapturedAt.IsZero() {
				color.Red("no session loaded from %s", cfg.SessionFile)
				os.Exit(1)
			}

			age := snap.Age(time.Now()).Round(time.Second)
			fmt.Fprintf(os.Stdout, "session file: %s\ncookies: %d\ncaptured: %s (%s ago)\n",
				cfg.SessionFile, len(snap.Cookies), snap.CapturedAt.Format(time.RFC3339), age)
			if mgr.Stale(time.Now()) {
				color.Yellow("stale: older than %s; refresh before the next trigger fires", cfg.SessionMaxAge)
			} else {
				color.Green("fresh")
			}

			if ping {
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := client.Ping(ctx); err != nil {
					color.Red("provider check failed: %v", err)
					os.Exit(1)
				}
				color.Green("provider accepts the session")
			}
			return nil
		},
	}
	c.Flags().BoolVar(&ping, "ping", false, "hit the provider to verify the cookies still authenticate")
	return c
}

// newSessionReloadCmd drops the reload marker a running server watches for.
// The next tick re-reads the session file and clears the marker.
func newSessionReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Signal a running server to re-read the session file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfg.ReloadSignal, []byte(time.Now().Format(time.RFC3339)+"\n"), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "wrote %s; the server reloads on its next tick\n", cfg.ReloadSignal)
			return nil
		},
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/court-scheduler/internal/auth"
	"github.com/example/court-scheduler/internal/booking"
	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/migrate"
	"github.com/example/court-scheduler/internal/requests"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/example/court-scheduler/internal/web"
	"github.com/spf13/cobra"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the web UI + scheduling engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.RequireCookieKeys(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}

			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			dir, err := loadDirectory(cfg)
			if err != nil {
				return err
			}
			loc, err := loadLocation(cfg)
			if err != nil {
				return err
			}

			mgr, client, err := newBookingClient(cfg)
			if err != nil {
				return err
			}

			authStore := auth.NewStore(d, cfg.CookieHashKey, cfg.CookieBlockKey)
			repo := requests.NewRepo(d)

			engine := &scheduler.Engine{
				Store:        repo,
				Resolver:     &booking.Resolver{Client: client},
				Warmer:       client,
				Creds:        mgr,
				Directory:    dir,
				Advance:      cfg.AdvanceWindow,
				TickInterval: cfg.TickInterval,
				PrewarmLead:  cfg.PrewarmLead,
				Location:     loc,
			}
			go func() { _ = engine.Run(ctx) }()

			ws := &web.Server{
				Auth:          authStore,
				Engine:        engine,
				Session:       mgr,
				BaseURL:       cfg.BaseURL,
				ListLimit:     cfg.ListLimit,
				SessionMaxAge: cfg.SessionMaxAge,
			}
			return web.Start(ctx, cfg.ListenAddr, ws.Routes())
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}

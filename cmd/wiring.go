package cmd

import (
	"fmt"
	"time"

	"github.com/example/court-scheduler/internal/activeillini"
	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/facilities"
	"github.com/example/court-scheduler/internal/session"
)

func loadDirectory(cfg config.Config) (*facilities.Directory, error) {
	if cfg.FacilitiesFile == "" {
		return facilities.Builtin(), nil
	}
	dir, err := facilities.Load(cfg.FacilitiesFile)
	if err != nil {
		return nil, fmt.Errorf("facilities catalog %s: %w", cfg.FacilitiesFile, err)
	}
	return dir, nil
}

// newBookingClient builds the session-file manager and the provider client
// on top of it. A missing session file is not fatal here; requests will
// fail with an auth error until one appears.
func newBookingClient(cfg config.Config) (*session.Manager, *activeillini.Client, error) {
	mgr := session.NewManager(cfg.SessionFile, cfg.ReloadSignal, cfg.SessionMaxAge, cfg.SessionPoll)
	if err := mgr.Load(); err != nil {
		fmt.Printf("warning: session file %s not loaded: %v\n", cfg.SessionFile, err)
	}
	client := activeillini.New(cfg.BookingBaseURL, mgr, cfg.ReserveTimeout)
	return mgr, client, nil
}

func loadLocation(cfg config.Config) (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	return loc, nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/example/court-scheduler/internal/booking"
	"github.com/example/court-scheduler/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newBookCmd() *cobra.Command {
	var (
		facility string
		dateStr  string
		slotText string
		courtID  string
	)

	c := &cobra.Command{
		Use:   "book",
		Short: "Attempt a booking right now, skipping the scheduler",
		Long: "Runs one contention resolution immediately. Useful when the slot\n" +
			"is already open, or for trying a same-day reservation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			dir, err := loadDirectory(cfg)
			if err != nil {
				return err
			}
			loc, err := loadLocation(cfg)
			if err != nil {
				return err
			}
			fac, ok := dir.Get(facility)
			if !ok {
				return fmt.Errorf("unknown facility %q", facility)
			}
			date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
			if err != nil {
				return fmt.Errorf("invalid --date (want YYYY-MM-DD)")
			}

			mgr, client, err := newBookingClient(cfg)
			if err != nil {
				return err
			}
			if mgr.Stale(time.Now()) {
				fmt.Fprintln(os.Stderr, color.YellowString(
					"warning: session cookies are stale; the attempt may fail with an auth error"))
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			courts, err := client.Prepare(ctx, fac)
			if err != nil {
				return fmt.Errorf("prepare: %w", err)
			}
			dir.CacheCourts(facility, courts)
			fac, _ = dir.Get(facility)

			r := &booking.Resolver{Client: client}
			out := r.Resolve(ctx, fac, date, slotText, courtID)

			switch out.Kind {
			case booking.Booked:
				color.Green("booked %s %q on court %s (attempts=%d)", dateStr, slotText, out.CourtID, out.Attempts)
				return nil
			case booking.NoAvailability:
				color.Yellow("no court has %q open on %s", slotText, dateStr)
			case booking.AllTaken:
				color.Yellow("lost the race on every open court (attempts=%d)", out.Attempts)
			case booking.AuthExpired:
				color.Red("session expired: %v", out.Err)
			default:
				color.Red("booking failed: %v", out.Err)
			}
			os.Exit(1)
			return nil
		},
	}

	c.Flags().StringVar(&facility, "facility", "", "facility name")
	c.Flags().StringVar(&dateStr, "date", "", "target date YYYY-MM-DD")
	c.Flags().StringVar(&slotText, "slot", "", `slot text, e.g. "11 AM - 12 PM"`)
	c.Flags().StringVar(&courtID, "court-id", "", "optional court id; pins a specific court")
	_ = c.MarkFlagRequired("facility")
	_ = c.MarkFlagRequired("date")
	_ = c.MarkFlagRequired("slot")
	return c
}

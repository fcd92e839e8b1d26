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

func newSlotsCmd() *cobra.Command {
	var (
		facility string
		dateStr  string
	)

	c := &cobra.Command{
		Use:   "slots",
		Short: "List open slots for a facility on a date",
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

			_, client, err := newBookingClient(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			agg, err := client.AggregateSlots(ctx, fac, date)
			if err != nil {
				return err
			}
			if len(agg) == 0 {
				fmt.Fprintf(os.Stdout, "no open slots at %s on %s\n", facility, dateStr)
				return nil
			}
			for _, s := range agg {
				line := fmt.Sprintf("%-18s %d/%d courts open", s.Text, s.OpenCourts, s.Total)
				if s.OpenCourts == 0 {
					fmt.Fprintln(os.Stdout, line)
					continue
				}
				color.Green("%s", line)
			}
			return nil
		},
	}

	c.Flags().StringVar(&facility, "facility", "", "facility name")
	c.Flags().StringVar(&dateStr, "date", "", "date YYYY-MM-DD")
	_ = c.MarkFlagRequired("facility")
	_ = c.MarkFlagRequired("date")
	return c
}

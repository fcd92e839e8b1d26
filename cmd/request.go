package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/migrate"
	"github.com/example/court-scheduler/internal/requests"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Manage scheduled reservation requests (non-UI)",
	}
	cmd.AddCommand(newRequestCreateCmd())
	cmd.AddCommand(newRequestListCmd())
	cmd.AddCommand(newRequestCancelCmd())
	return cmd
}

// newRequestEngine wires just enough of the engine to submit, list, and
// cancel. No resolver or booking client; those belong to the server loop.
func newRequestEngine(ctx context.Context, cfg config.Config) (*scheduler.Engine, *db.DB, error) {
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Up(ctx, d); err != nil {
		d.Close()
		return nil, nil, err
	}
	dir, err := loadDirectory(cfg)
	if err != nil {
		d.Close()
		return nil, nil, err
	}
	loc, err := loadLocation(cfg)
	if err != nil {
		d.Close()
		return nil, nil, err
	}
	e := &scheduler.Engine{
		Store:     requests.NewRepo(d),
		Directory: dir,
		Advance:   cfg.AdvanceWindow,
		Location:  loc,
	}
	return e, d, nil
}

func newRequestCreateCmd() *cobra.Command {
	var (
		facility string
		dateStr  string
		slotText string
		courtID  string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Schedule a reservation request; it fires when the slot opens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			e, d, err := newRequestEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			date, err := time.ParseInLocation("2006-01-02", dateStr, e.Location)
			if err != nil {
				return fmt.Errorf("invalid --date (want YYYY-MM-DD)")
			}

			id, err := e.Submit(ctx, scheduler.Submission{
				Facility: facility,
				Date:     date,
				SlotText: slotText,
				Pinned:   courtID,
			})
			if err != nil {
				return err
			}

			req, err := requests.NewRepo(d).Get(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created request id=%d fires_at=%s\n",
				id, req.TriggerAt.In(e.Location).Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	c.Flags().StringVar(&facility, "facility", "", "facility name (see builtin catalog or FACILITIES_FILE)")
	c.Flags().StringVar(&dateStr, "date", "", "target date YYYY-MM-DD")
	c.Flags().StringVar(&slotText, "slot", "", `slot text, e.g. "11 AM - 12 PM"`)
	c.Flags().StringVar(&courtID, "court-id", "", "optional court id; pins a specific court")
	_ = c.MarkFlagRequired("facility")
	_ = c.MarkFlagRequired("date")
	_ = c.MarkFlagRequired("slot")
	return c
}

func newRequestListCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "list",
		Short: "List requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			e, d, err := newRequestEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			if limit <= 0 {
				limit = cfg.ListLimit
			}
			reqs, err := e.List(ctx, limit)
			if err != nil {
				return err
			}
			for _, r := range reqs {
				printRequest(e, r)
			}
			return nil
		},
	}
	c.Flags().IntVar(&limit, "limit", 0, "max rows (defaults to LIST_LIMIT)")
	return c
}

func printRequest(e *scheduler.Engine, r requests.Request) {
	state := r.State
	switch r.State {
	case requests.StateSucceeded:
		state = color.GreenString(r.State)
	case requests.StateFailed, requests.StateQuarantined:
		state = color.RedString(r.State)
	case requests.StateNoAvailability:
		state = color.YellowString(r.State)
	}
	detail := ""
	if r.BookedCourt != nil {
		detail = " court=" + *r.BookedCourt
	}
	if r.LastError != nil {
		detail += fmt.Sprintf(" error=%q", *r.LastError)
	}
	if r.Late {
		detail += " late"
	}
	fmt.Fprintf(os.Stdout, "id=%d %s %s %q fires_at=%s state=%s%s\n",
		r.ID, r.Facility, r.TargetDate.Format("2006-01-02"), r.SlotText,
		r.TriggerAt.In(e.Location).Format("2006-01-02 15:04:05"), state, detail)
}

func newRequestCancelCmd() *cobra.Command {
	var id int64
	c := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a pending request",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			e, d, err := newRequestEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			ok, err := e.Cancel(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("request %d is not pending; only pending requests can be cancelled", id)
			}
			fmt.Fprintf(os.Stdout, "cancelled request %d\n", id)
			return nil
		},
	}
	c.Flags().Int64Var(&id, "id", 0, "request id")
	_ = c.MarkFlagRequired("id")
	return c
}

// Package scheduler owns the timeline of pending reservation requests: it
// computes trigger instants, wakes ahead of them to warm up, fires at the
// instant, and records the outcome in the durable store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/court-scheduler/internal/booking"
	"github.com/example/court-scheduler/internal/facilities"
	"github.com/example/court-scheduler/internal/metrics"
	"github.com/example/court-scheduler/internal/requests"
	"github.com/example/court-scheduler/internal/slots"
)

// Submission errors. Both are the caller's fault and are never retried.
var (
	ErrInvalidSlot     = errors.New("invalid slot")
	ErrInvalidFacility = errors.New("unknown facility")
)

// Store is the durable request store the engine drives. *requests.Repo
// satisfies it.
type Store interface {
	Create(ctx context.Context, req requests.Request) (int64, error)
	Active(ctx context.Context) ([]requests.Request, error)
	List(ctx context.Context, limit int) ([]requests.Request, error)
	Transition(ctx context.Context, id int64, from, to string) (bool, error)
	Cancel(ctx context.Context, id int64) (bool, error)
	Finish(ctx context.Context, id int64, state string, attempts int, late bool, bookedCourt, lastErr *string) error
	Quarantine(ctx context.Context, id int64, reason string) error
}

// Resolver runs one contention resolution to a terminal outcome.
type Resolver interface {
	Resolve(ctx context.Context, fac facilities.Facility, date time.Time, slotText, pinned string) booking.Outcome
}

// Warmer is the connection warm-up hint; it also resolves court ids ahead
// of time. *activeillini.Client satisfies it.
type Warmer interface {
	Prepare(ctx context.Context, fac facilities.Facility) ([]string, error)
}

// Credentials is the slice of the session manager the loop drives.
type Credentials interface {
	MaybeReload() (bool, error)
	CheckSignal() (bool, error)
	Reload() error
	Age(now time.Time) time.Duration
}

type Engine struct {
	Store     Store
	Resolver  Resolver
	Warmer    Warmer
	Creds     Credentials
	Directory *facilities.Directory

	// Advance is the fixed window before a slot's start at which the
	// provider opens it (72h for Active Illini).
	Advance time.Duration
	// TickInterval bounds wake-up latency; worst-case jitter before the
	// pre-warm window is about half of it. Inside the window the execution
	// goroutine sleeps to the exact trigger instant, so fire precision does
	// not depend on the tick.
	TickInterval time.Duration
	// PrewarmLead is how far before the trigger instant preparation starts.
	PrewarmLead time.Duration
	Location    *time.Location

	// Now is the clock, overridable in tests.
	Now func() time.Time

	mu       sync.Mutex
	inflight map[int64]bool
	wg       sync.WaitGroup
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) loc() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.Local
}

// Submission describes one desired reservation.
type Submission struct {
	Facility string
	Date     time.Time // the day to book for
	SlotText string    // e.g. "6 - 7 PM"
	Pinned   string    // optional court id, bypasses contention resolution
	// TriggerAt overrides the computed trigger instant when non-zero.
	TriggerAt time.Time
}

// Submit validates the submission, computes its trigger instant, and
// persists it as pending.
func (e *Engine) Submit(ctx context.Context, sub Submission) (int64, error) {
	if _, ok := e.Directory.Get(sub.Facility); !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFacility, sub.Facility)
	}
	slot, err := slots.Parse(sub.SlotText, sub.Date, e.loc())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}

	trigger := sub.TriggerAt
	if trigger.IsZero() {
		trigger = slot.TriggerAt(e.Advance)
	}

	req := requests.Request{
		Facility:   sub.Facility,
		TargetDate: sub.Date,
		SlotText:   slot.Text,
		TriggerAt:  trigger,
	}
	if sub.Pinned != "" {
		pinned := sub.Pinned
		req.PinnedCourt = &pinned
	}

	id, err := e.Store.Create(ctx, req)
	if err != nil {
		return 0, err
	}
	metrics.RequestsSubmitted.Inc()
	log.Printf("scheduler: request %d: %s %s %q fires at %s",
		id, sub.Facility, sub.Date.Format("2006-01-02"), slot.Text, trigger.Format(time.RFC3339))
	return id, nil
}

// Cancel withdraws a request that is still pending. It reports false, not
// an error, for unknown ids and requests already past pending.
func (e *Engine) Cancel(ctx context.Context, id int64) (bool, error) {
	return e.Store.Cancel(ctx, id)
}

// List returns the newest requests up to limit.
func (e *Engine) List(ctx context.Context, limit int) ([]requests.Request, error) {
	return e.Store.List(ctx, limit)
}

// ReloadCredentials forces an immediate credential snapshot reload.
func (e *Engine) ReloadCredentials() error {
	if err := e.Creds.Reload(); err != nil {
		return err
	}
	metrics.CredentialReloads.Inc()
	return nil
}

// Run drives the tick loop until ctx is cancelled, then waits for in-flight
// executions to finish.
func (e *Engine) Run(ctx context.Context) error {
	t := time.NewTicker(e.TickInterval)
	defer t.Stop()

	e.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			return ctx.Err()
		case <-t.C:
			e.pollCredentials()
			e.Tick(ctx)
		}
	}
}

func (e *Engine) pollCredentials() {
	if signaled, err := e.Creds.CheckSignal(); err != nil {
		log.Printf("scheduler: reload signal: %v", err)
	} else if signaled {
		metrics.CredentialReloads.Inc()
	}
	if reloaded, err := e.Creds.MaybeReload(); err != nil {
		log.Printf("scheduler: credential reload: %v", err)
	} else if reloaded {
		metrics.CredentialReloads.Inc()
	}
	metrics.SessionAgeSeconds.Set(e.Creds.Age(e.now()).Seconds())
}

// Tick scans the store's non-terminal requests and starts an execution
// goroutine for each one whose pre-warm window has opened. Tick is
// idempotent: requests already in flight are skipped, and a per-request
// failure never stops the scan.
func (e *Engine) Tick(ctx context.Context) {
	reqs, err := e.Store.Active(ctx)
	if err != nil {
		log.Printf("scheduler: load active requests: %v", err)
		return
	}

	now := e.now()
	for _, req := range reqs {
		if e.isInflight(req.ID) {
			continue
		}
		if reason, ok := e.validate(req); !ok {
			log.Printf("scheduler: request %d quarantined: %s", req.ID, reason)
			if err := e.Store.Quarantine(ctx, req.ID, reason); err != nil {
				log.Printf("scheduler: quarantine request %d: %v", req.ID, err)
			}
			metrics.QuarantinedRequests.Inc()
			continue
		}
		if now.Before(req.TriggerAt.Add(-e.PrewarmLead)) {
			continue
		}

		e.markInflight(req.ID)
		e.wg.Add(1)
		req := req
		go func() {
			defer e.wg.Done()
			defer e.clearInflight(req.ID)
			e.execute(ctx, req)
		}()
	}
}

// Wait blocks until all in-flight executions have completed.
func (e *Engine) Wait() { e.wg.Wait() }

// validate guards against records that drifted since they were written
// (catalog changes, hand-edited rows). A bad record is quarantined rather
// than crashing the loop for everyone else.
func (e *Engine) validate(req requests.Request) (string, bool) {
	if _, ok := e.Directory.Get(req.Facility); !ok {
		return fmt.Sprintf("unknown facility %q", req.Facility), false
	}
	if _, err := slots.Parse(req.SlotText, req.TargetDate, e.loc()); err != nil {
		return fmt.Sprintf("unparseable slot %q", req.SlotText), false
	}
	if req.TriggerAt.IsZero() {
		return "missing trigger instant", false
	}
	return "", true
}

// execute runs one request from pre-warm to terminal state. It is the sole
// writer of the request's final state and last_error.
func (e *Engine) execute(ctx context.Context, req requests.Request) {
	fac, _ := e.Directory.Get(req.Facility)

	// A fresh process may find requests whose trigger passed while it was
	// down; they run immediately but are flagged as late.
	late := e.now().Sub(req.TriggerAt) > e.TickInterval

	if req.State == requests.StatePending {
		ok, err := e.Store.Transition(ctx, req.ID, requests.StatePending, requests.StatePreparing)
		if err != nil {
			log.Printf("scheduler: request %d: transition to preparing: %v", req.ID, err)
			return
		}
		if !ok {
			// cancelled between the tick query and now
			return
		}
		req.State = requests.StatePreparing
	}

	if courts, err := e.Warmer.Prepare(ctx, fac); err != nil {
		log.Printf("scheduler: request %d: prepare: %v", req.ID, err)
	} else {
		e.Directory.CacheCourts(req.Facility, courts)
		fac, _ = e.Directory.Get(req.Facility)
	}

	// Sleep to the exact trigger instant; the tick only gets us into the
	// neighborhood.
	if wait := req.TriggerAt.Sub(e.now()); wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	if req.State == requests.StatePreparing {
		ok, err := e.Store.Transition(ctx, req.ID, requests.StatePreparing, requests.StateExecuting)
		if err != nil || !ok {
			log.Printf("scheduler: request %d: transition to executing failed (ok=%v err=%v)", req.ID, ok, err)
			return
		}
	}

	pinned := ""
	if req.PinnedCourt != nil {
		pinned = *req.PinnedCourt
	}

	started := e.now()
	log.Printf("scheduler: request %d firing: %s %s %q late=%v",
		req.ID, req.Facility, req.TargetDate.Format("2006-01-02"), req.SlotText, late)
	outcome := e.Resolver.Resolve(ctx, fac, req.TargetDate, req.SlotText, pinned)
	e.record(ctx, req, outcome, late, time.Since(started))
}

func (e *Engine) record(ctx context.Context, req requests.Request, out booking.Outcome, late bool, took time.Duration) {
	var (
		state   string
		court   *string
		lastErr *string
	)
	switch out.Kind {
	case booking.Booked:
		state = requests.StateSucceeded
		c := out.CourtID
		court = &c
	case booking.NoAvailability:
		state = requests.StateNoAvailability
	case booking.AllTaken:
		// the provider had the slot open but every court was lost to the
		// race; still a non-system outcome
		state = requests.StateNoAvailability
		msg := fmt.Sprintf("%s: lost the race on all %d open courts", booking.CategoryTaken, out.Attempts)
		lastErr = &msg
	case booking.AuthExpired:
		state = requests.StateFailed
		msg := fmt.Sprintf("%s: %v", booking.CategoryAuthExpired, out.Err)
		lastErr = &msg
	default:
		state = requests.StateFailed
		msg := fmt.Sprintf("%s: %v", booking.CategoryTransient, out.Err)
		lastErr = &msg
	}

	if err := e.Store.Finish(ctx, req.ID, state, out.Attempts, late, court, lastErr); err != nil {
		log.Printf("scheduler: request %d: record outcome: %v", req.ID, err)
		return
	}

	metrics.Executions.WithLabelValues(out.Kind.String()).Inc()
	metrics.ReservationAttempts.Add(float64(out.Attempts))
	metrics.ResolveDuration.Observe(took.Seconds())
	if late {
		metrics.LateExecutions.Inc()
	}
	log.Printf("scheduler: request %d done: %s (attempts=%d late=%v)", req.ID, state, out.Attempts, late)
}

func (e *Engine) isInflight(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight[id]
}

func (e *Engine) markInflight(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight == nil {
		e.inflight = map[int64]bool{}
	}
	e.inflight[id] = true
}

func (e *Engine) clearInflight(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)
}

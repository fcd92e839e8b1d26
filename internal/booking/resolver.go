// Package booking resolves contention across the interchangeable courts of
// one facility: it picks a random open court, attempts the reservation, and
// falls back to the remaining open courts until one sticks or all are gone.
package booking

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/example/court-scheduler/internal/activeillini"
	"github.com/example/court-scheduler/internal/facilities"
)

// Client is the slice of the booking-site client the resolver needs.
type Client interface {
	Availability(ctx context.Context, fac facilities.Facility, date time.Time, slotText string) (activeillini.Availability, error)
	OpenSlot(ctx context.Context, productID, courtID string, date time.Time, slotText string) (activeillini.SlotButton, bool, error)
	Reserve(ctx context.Context, productID, courtID string, date time.Time, sb activeillini.SlotButton) error
}

type Resolver struct {
	Client Client

	// Intn picks the next candidate index; overridable in tests. Defaults
	// to math/rand.
	Intn func(n int) int
}

func (r *Resolver) intn(n int) int {
	if r.Intn != nil {
		return r.Intn(n)
	}
	return rand.Intn(n)
}

// Resolve attempts to reserve slotText on fac for date. A pinned court is
// attempted alone; otherwise the open courts are tried starting from a
// uniformly random one, so simultaneous competing instances spread
// across different courts instead of piling onto the same one. A definitive
// rejection consumes the candidate; a transient error gets one retry of the
// same candidate and then aborts the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, fac facilities.Facility, date time.Time, slotText, pinned string) Outcome {
	if pinned != "" {
		return r.resolvePinned(ctx, fac, date, slotText, pinned)
	}

	av, err := r.availability(ctx, fac, date, slotText)
	if err != nil {
		return abortOutcome(0, err)
	}

	candidates := make([]string, 0, len(av.Open))
	for id := range av.Open {
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return Outcome{Kind: NoAvailability}
	}

	attempts := 0
	for len(candidates) > 0 {
		i := r.intn(len(candidates))
		courtID := candidates[i]
		candidates = append(candidates[:i], candidates[i+1:]...)

		attempts++
		err := r.reserveWithRetry(ctx, fac.ProductID, courtID, date, av.Open[courtID])
		switch {
		case err == nil:
			return Outcome{Kind: Booked, CourtID: courtID, Attempts: attempts}
		case errors.Is(err, activeillini.ErrTaken):
			log.Printf("booking: court %.8s taken, %d candidates left", courtID, len(candidates))
		default:
			return abortOutcome(attempts, err)
		}
	}
	return Outcome{Kind: AllTaken, Attempts: attempts}
}

func (r *Resolver) resolvePinned(ctx context.Context, fac facilities.Facility, date time.Time, slotText, courtID string) Outcome {
	sb, open, err := r.Client.OpenSlot(ctx, fac.ProductID, courtID, date, slotText)
	if err != nil && errors.Is(err, activeillini.ErrTransient) {
		// availability read gets the same single retry as a reservation
		sb, open, err = r.Client.OpenSlot(ctx, fac.ProductID, courtID, date, slotText)
	}
	if err != nil {
		return abortOutcome(0, err)
	}
	if !open {
		return Outcome{Kind: NoAvailability}
	}

	err = r.reserveWithRetry(ctx, fac.ProductID, courtID, date, sb)
	switch {
	case err == nil:
		return Outcome{Kind: Booked, CourtID: courtID, Attempts: 1}
	case errors.Is(err, activeillini.ErrTaken):
		return Outcome{Kind: AllTaken, Attempts: 1}
	default:
		return abortOutcome(1, err)
	}
}

func (r *Resolver) availability(ctx context.Context, fac facilities.Facility, date time.Time, slotText string) (activeillini.Availability, error) {
	av, err := r.Client.Availability(ctx, fac, date, slotText)
	if err != nil && errors.Is(err, activeillini.ErrTransient) {
		av, err = r.Client.Availability(ctx, fac, date, slotText)
	}
	return av, err
}

// reserveWithRetry retries the same court once on a transient error so a
// network blip does not spuriously consume a candidate.
func (r *Resolver) reserveWithRetry(ctx context.Context, productID, courtID string, date time.Time, sb activeillini.SlotButton) error {
	err := r.Client.Reserve(ctx, productID, courtID, date, sb)
	if err != nil && errors.Is(err, activeillini.ErrTransient) {
		err = r.Client.Reserve(ctx, productID, courtID, date, sb)
	}
	return err
}

func abortOutcome(attempts int, err error) Outcome {
	if errors.Is(err, activeillini.ErrAuthExpired) {
		return Outcome{Kind: AuthExpired, Attempts: attempts, Err: err}
	}
	return Outcome{Kind: Transient, Attempts: attempts, Err: err}
}

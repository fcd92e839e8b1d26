package booking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/example/court-scheduler/internal/activeillini"
	"github.com/example/court-scheduler/internal/facilities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient scripts per-court availability and reservation results.
type fakeClient struct {
	open map[string]bool // court id -> slot open
	// reserveErrs is consumed per court, one error per attempt; an
	// exhausted queue means success.
	reserveErrs map[string][]error

	availabilityErrs []error // consumed before returning availability
	openSlotErrs     []error

	reserveCalls      []string
	availabilityCalls int
}

func (f *fakeClient) Availability(ctx context.Context, fac facilities.Facility, date time.Time, slotText string) (activeillini.Availability, error) {
	f.availabilityCalls++
	if len(f.availabilityErrs) > 0 {
		err := f.availabilityErrs[0]
		f.availabilityErrs = f.availabilityErrs[1:]
		if err != nil {
			return activeillini.Availability{}, err
		}
	}
	av := activeillini.Availability{Open: map[string]activeillini.SlotButton{}}
	for id, open := range f.open {
		av.Courts = append(av.Courts, id)
		if open {
			av.Open[id] = activeillini.SlotButton{AptID: "apt-" + id, Text: slotText}
		}
	}
	return av, nil
}

func (f *fakeClient) OpenSlot(ctx context.Context, productID, courtID string, date time.Time, slotText string) (activeillini.SlotButton, bool, error) {
	if len(f.openSlotErrs) > 0 {
		err := f.openSlotErrs[0]
		f.openSlotErrs = f.openSlotErrs[1:]
		if err != nil {
			return activeillini.SlotButton{}, false, err
		}
	}
	if f.open[courtID] {
		return activeillini.SlotButton{AptID: "apt-" + courtID, Text: slotText}, true, nil
	}
	return activeillini.SlotButton{}, false, nil
}

func (f *fakeClient) Reserve(ctx context.Context, productID, courtID string, date time.Time, sb activeillini.SlotButton) error {
	f.reserveCalls = append(f.reserveCalls, courtID)
	if q := f.reserveErrs[courtID]; len(q) > 0 {
		err := q[0]
		f.reserveErrs[courtID] = q[1:]
		return err
	}
	return nil
}

var testFac = facilities.Facility{Name: "ARC_PICKLEBALL_BADMINTON", ProductID: "prod-1", Courts: 8}

func testDate() time.Time { return time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC) }

func TestResolveBooksAnOpenCourt(t *testing.T) {
	fc := &fakeClient{open: map[string]bool{"c1": true, "c2": false, "c3": true, "c4": true}}
	r := &Resolver{Client: fc}

	out := r.Resolve(context.Background(), testFac, testDate(), "6 - 7 PM", "")
	assert.Equal(t, Booked, out.Kind)
	assert.Contains(t, []string{"c1", "c3", "c4"}, out.CourtID)
	assert.LessOrEqual(t, out.Attempts, 3)
}

func TestResolveNoAvailabilitySkipsReservation(t *testing.T) {
	fc := &fakeClient{open: map[string]bool{"c1": false, "c2": false}}
	r := &Resolver{Client: fc}

	out := r.Resolve(context.Background(), testFac, testDate(), "6 - 7 PM", "")
	assert.Equal(t, NoAvailability, out.Kind)
	assert.Empty(t, fc.reserveCalls, "no reservation call when nothing is open")
}

func TestResolveAllTakenTriesEveryOpenCourt(t *testing.T) {
	taken := fmt.Errorf("%w (SlotUnavailable)", activeillini.ErrTaken)
	fc := &fakeClient{
		open: map[string]bool{"c1": true, "c2": true, "c3": true},
		reserveErrs: map[string][]error{
			"c1": {taken}, "c2": {taken}, "c3": {taken},
		},
	}
	r := &Resolver{Client: fc}

	out := r.Resolve(context.Background(), testFac, testDate(), "6 - 7 PM", "")
	assert.Equal(t, AllTaken, out.Kind)
	assert.Equal(t, 3, out.Attempts)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, fc.reserveCalls)
}

func TestResolveFallsBackAfterRejection(t *testing.T) {
	taken := fmt.Errorf("%w", activeillini.ErrTaken)
	fc := &fakeClient{
		open:        map[string]bool{"c1": true, "c2": true},
		reserveErrs: map[string][]error{"c1": {taken}, "c2": {taken, taken}},
	}
	// deterministic order: always pick index 0
	r := &Resolver{Client: fc, Intn: func(n int) int { return 0 }}

	out := r.Resolve(context.Background(), testFac, testDate(), "6 - 7 PM", "")
	assert.Equal(t, AllTaken, out.Kind)
	// c2 is rejected twice only if retried; definitive rejections must not
	// be retried, so exactly one call per court.
	assert.Len(t, fc.reserveCalls, 2)
}

func TestResolveTransientRetriesSameCourtOnce(t *testing.T) {
	transient := fmt.Errorf("%w: timeout", activeillini.ErrTransient)
	fc := &fakeClient{
		open:        map[string]bool{"c1": true},
		reserveErrs: map[string][]error{"c1": {transient}},
	}
	r := &Resolver{Client: fc}

	out := r.Resolve(context.Background(), testFac, testDate(), "6 - 7 PM", "")
	assert.Equal(t, Booked, out.Kind, "retry of the same candidate succeeded")
	assert.Equal(t, []string{"c1", "c1"}, fc.reserveCalls)
}

func TestResolveTransientExhaustionAborts(t *testing.T) {
	transient := fmt.Errorf("%w: timeout", activeillini.ErrTransient)
	fc := &fakeClient{
		open:        map[string]bool{"c1": true, "c2": true},
		reserveErrs: map[string][]error{"c1": {transient, transient}, "c2": {transient, transient}},
	}
	r := &Resolver{Client: fc, Intn: func(n int) int { return 0 }}

	out := r.Resolve(context.Background(), testFac, testDate(), "6 - 7 PM", "")
	assert.Equal(t, Transient, out.Kind)
	require.Error(t, out.Err)
	assert.Len(t, fc.reserveCalls, 2, "resolution aborts instead of consuming the next candidate")
}

func TestResolveAuthExpiredAborts(t *testing.T) {
	auth := fmt.Errorf("%w (status=401)", activeillini.ErrAuthExpired)
	fc := &fakeClient{
		open:        map[string]bool{"c1": true, "c2": true},
		reserveErrs: map[string][]error{"c1": {auth}, "c2": {auth}},
	}
	r := &Resolver{Client: fc}

	out := r.Resolve(context.Background(), testFac, testDate(), "6 - 7 PM", "")
	assert.Equal(t, AuthExpired, out.Kind)
	assert.Len(t, fc.reserveCalls, 1, "auth failure is not retried")
}

func TestResolveAvailabilityTransientRetriedOnce(t *testing.T) {
	transient := fmt.Errorf("%w: reset", activeillini.ErrTransient)
	fc := &fakeClient{
		open:             map[string]bool{"c1": true},
		availabilityErrs: []error{transient},
	}
	r := &Resolver{Client: fc}

	out := r.Resolve(context.Background(), testFac, testDate(), "6 - 7 PM", "")
	assert.Equal(t, Booked, out.Kind)
	assert.Equal(t, 2, fc.availabilityCalls)
}

func TestResolvePinnedCourt(t *testing.T) {
	fc := &fakeClient{open: map[string]bool{"c1": true, "c9": true}}
	r := &Resolver{Client: fc}

	out := r.Resolve(context.Background(), testFac, testDate(), "6 - 7 PM", "c9")
	assert.Equal(t, Booked, out.Kind)
	assert.Equal(t, "c9", out.CourtID)
	assert.Equal(t, []string{"c9"}, fc.reserveCalls, "pinned court bypasses contention")

	// pinned court not open
	fc2 := &fakeClient{open: map[string]bool{"c9": false}}
	out = (&Resolver{Client: fc2}).Resolve(context.Background(), testFac, testDate(), "6 - 7 PM", "c9")
	assert.Equal(t, NoAvailability, out.Kind)
	assert.Empty(t, fc2.reserveCalls)

	// pinned court taken: single candidate exhausted
	fc3 := &fakeClient{
		open:        map[string]bool{"c9": true},
		reserveErrs: map[string][]error{"c9": {fmt.Errorf("%w", activeillini.ErrTaken)}},
	}
	out = (&Resolver{Client: fc3}).Resolve(context.Background(), testFac, testDate(), "6 - 7 PM", "c9")
	assert.Equal(t, AllTaken, out.Kind)
}

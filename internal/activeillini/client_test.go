package activeillini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/court-scheduler/internal/facilities"
	"github.com/example/court-scheduler/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCreds struct{ snap session.Snapshot }

func (s staticCreds) Snapshot() session.Snapshot { return s.snap }

func testCreds() staticCreds {
	return staticCreds{snap: session.Snapshot{
		Cookies:    map[string]string{".AspNet.Cookies": "abc"},
		CapturedAt: time.Now(),
	}}
}

const facilitiesPage = `
<div class="court" data-facility-id="aaaaaaaa-1111-2222-3333-444444444444"></div>
<div class="court" data-facility-id="bbbbbbbb-1111-2222-3333-444444444444"></div>
<div class="court" data-facility-id="aaaaaaaa-1111-2222-3333-444444444444"></div>
`

const slotsPage = `
<button id="s1" class="btn slot" data-apt-id="apt-1" data-timeslot-id="ts-1"
  data-timeslotinstance-id="tsi-1" data-slot-number="1"
  data-slot-text="6 - 7 PM" data-spots-left-text="2 spots left">6 - 7 PM</button>
<button id="s2" class="btn slot disabled" data-apt-id="apt-2" data-timeslot-id="ts-2"
  data-slot-text="7 - 8 PM">7 - 8 PM</button>
<button id="s3" class="btn slot" disabled data-apt-id="apt-3" data-timeslot-id="ts-3"
  data-slot-text="8 - 9 PM">8 - 9 PM</button>
<button id="other" class="btn">Back</button>
<button id="s4" class="btn slot" data-apt-id="apt-4" data-timeslot-id="ts-4"
  data-slot-text="9 - 10 PM">9 - 10 PM</button>
`

func TestParseCourtIDs(t *testing.T) {
	ids := parseCourtIDs(facilitiesPage)
	assert.Equal(t, []string{
		"aaaaaaaa-1111-2222-3333-444444444444",
		"bbbbbbbb-1111-2222-3333-444444444444",
	}, ids, "duplicates removed, page order kept")

	assert.Empty(t, parseCourtIDs("<html>nothing here</html>"))
}

func TestParseSlotButtons(t *testing.T) {
	slots := parseSlotButtons(slotsPage)
	require.Len(t, slots, 2, "disabled buttons and non-slot buttons skipped")
	assert.Equal(t, "6 - 7 PM", slots[0].Text)
	assert.Equal(t, "apt-1", slots[0].AptID)
	assert.Equal(t, "ts-1", slots[0].TimeslotID)
	assert.Equal(t, "tsi-1", slots[0].InstanceID)
	assert.Equal(t, "9 - 10 PM", slots[1].Text)
}

func TestReserveOutcomes(t *testing.T) {
	date := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
	sb := SlotButton{AptID: "apt-1", TimeslotID: "ts-1"}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "booked",
			handler: func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "prod-1", r.PostFormValue("bId"))
				assert.Equal(t, "court-1", r.PostFormValue("fId"))
				assert.Equal(t, "apt-1", r.PostFormValue("aId"))
				assert.Equal(t, "00000000-0000-0000-0000-000000000000", r.PostFormValue("tsiId"))
				c, err := r.Cookie(".AspNet.Cookies")
				require.NoError(t, err)
				assert.Equal(t, "abc", c.Value)
				w.Write([]byte(`{"Success":true,"ParticipantId":"p-9"}`))
			},
			wantErr: nil,
		},
		{
			name: "taken",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"Success":false,"ErrorCode":"SlotUnavailable"}`))
			},
			wantErr: ErrTaken,
		},
		{
			name: "auth expired",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			wantErr: ErrAuthExpired,
		},
		{
			name: "server error is transient",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: ErrTransient,
		},
		{
			name: "login page instead of json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html><form action="/login">...</form></html>`))
			},
			wantErr: ErrAuthExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := New(srv.URL, testCreds(), 2*time.Second)
			err := c.Reserve(context.Background(), "prod-1", "court-1", date, sb)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestReserveTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, testCreds(), 50*time.Millisecond)
	err := c.Reserve(context.Background(), "p", "f", time.Now(), SlotButton{})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestAvailability(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/booking/prod-1/facilities", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(facilitiesPage))
	})
	mux.HandleFunc("/booking/prod-1/slots/aaaaaaaa-1111-2222-3333-444444444444/2025/10/20", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(slotsPage))
	})
	mux.HandleFunc("/booking/prod-1/slots/bbbbbbbb-1111-2222-3333-444444444444/2025/10/20", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<button class="btn slot" data-apt-id="a" data-timeslot-id="t" data-slot-text="7 - 8 PM">7 - 8 PM</button>`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, testCreds(), 2*time.Second)
	fac := facilities.Facility{Name: "TEST", ProductID: "prod-1", Courts: 2}
	date := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)

	av, err := c.Availability(context.Background(), fac, date, "6 - 7 PM")
	require.NoError(t, err)
	assert.Len(t, av.Courts, 2)
	require.Len(t, av.Open, 1)
	_, ok := av.Open["aaaaaaaa-1111-2222-3333-444444444444"]
	assert.True(t, ok)

	agg, err := c.AggregateSlots(context.Background(), fac, date)
	require.NoError(t, err)
	require.Len(t, agg, 3)
	byText := map[string]AggregatedSlot{}
	for _, a := range agg {
		byText[a.Text] = a
	}
	assert.Equal(t, 1, byText["6 - 7 PM"].OpenCourts)
	assert.Equal(t, 1, byText["7 - 8 PM"].OpenCourts)
	assert.Equal(t, 2, byText["6 - 7 PM"].Total)
}

func TestAvailabilityAllCourtsUnreachableIsTransient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/booking/prod-1/facilities", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(facilitiesPage))
	})
	mux.HandleFunc("/booking/prod-1/slots/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, testCreds(), 2*time.Second)
	fac := facilities.Facility{Name: "TEST", ProductID: "prod-1", Courts: 2}
	date := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)

	// an outage on every court must not read as an empty slate
	_, err := c.Availability(context.Background(), fac, date, "6 - 7 PM")
	assert.ErrorIs(t, err, ErrTransient)

	_, err = c.AggregateSlots(context.Background(), fac, date)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestAvailabilitySkipsSingleUnreachableCourt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/booking/prod-1/facilities", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(facilitiesPage))
	})
	mux.HandleFunc("/booking/prod-1/slots/aaaaaaaa-1111-2222-3333-444444444444/2025/10/20", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/booking/prod-1/slots/bbbbbbbb-1111-2222-3333-444444444444/2025/10/20", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(slotsPage))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, testCreds(), 2*time.Second)
	fac := facilities.Facility{Name: "TEST", ProductID: "prod-1", Courts: 2}
	date := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)

	av, err := c.Availability(context.Background(), fac, date, "6 - 7 PM")
	require.NoError(t, err)
	require.Len(t, av.Open, 1)
	_, ok := av.Open["bbbbbbbb-1111-2222-3333-444444444444"]
	assert.True(t, ok)
}

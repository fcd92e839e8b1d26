package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/court-scheduler/internal/auth"
	"github.com/example/court-scheduler/internal/facilities"
	"github.com/example/court-scheduler/internal/requests"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/example/court-scheduler/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	mu        sync.Mutex
	nextID    int64
	created   []requests.Request
	cancelled []int64
	rows      []requests.Request
}

func (s *stubStore) Create(ctx context.Context, req requests.Request) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	req.ID = s.nextID
	s.created = append(s.created, req)
	return req.ID, nil
}

func (s *stubStore) Active(ctx context.Context) ([]requests.Request, error) { return nil, nil }

func (s *stubStore) List(ctx context.Context, limit int) ([]requests.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit < len(s.rows) {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func (s *stubStore) Transition(ctx context.Context, id int64, from, to string) (bool, error) {
	return true, nil
}

func (s *stubStore) Cancel(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, id)
	return true, nil
}

func (s *stubStore) Finish(ctx context.Context, id int64, state string, attempts int, late bool, bookedCourt, lastErr *string) error {
	return nil
}

func (s *stubStore) Quarantine(ctx context.Context, id int64, reason string) error { return nil }

func newTestServer(t *testing.T, store *stubStore) *Server {
	t.Helper()
	hash := make([]byte, 32)
	block := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
		block[i] = byte(i + 1)
	}
	dir := t.TempDir()
	mgr := session.NewManager(filepath.Join(dir, "session.json"), filepath.Join(dir, "signal"), 12*time.Hour, time.Minute)

	return &Server{
		Auth: auth.NewStore(nil, hash, block),
		Engine: &scheduler.Engine{
			Store:     store,
			Directory: facilities.Builtin(),
			Advance:   72 * time.Hour,
			Location:  time.UTC,
		},
		Session:       mgr,
		ListLimit:     50,
		SessionMaxAge: 12 * time.Hour,
	}
}

func loginCookie(t *testing.T, s *Server) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, s.Auth.SetSession(rec, req, 1))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	s := newTestServer(t, &stubStore{})
	h := s.Routes()

	for _, path := range []string{"/", "/requests/new"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusFound, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &stubStore{})
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginPageRenders(t *testing.T) {
	s := newTestServer(t, &stubStore{})
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Log in")
}

func TestHomeListsRequests(t *testing.T) {
	court := "abc-court"
	store := &stubStore{rows: []requests.Request{
		{ID: 1, Facility: "ARC_PICKLEBALL_BADMINTON", TargetDate: time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
			SlotText: "6 - 7 PM", TriggerAt: time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC), State: requests.StatePending},
		{ID: 2, Facility: "ARC_MP1", TargetDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			SlotText: "11 AM - 12 PM", TriggerAt: time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC),
			State: requests.StateSucceeded, BookedCourt: &court},
	}}
	s := newTestServer(t, store)
	h := s.Routes()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(loginCookie(t, s))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "ARC_PICKLEBALL_BADMINTON")
	assert.Contains(t, body, "6 - 7 PM")
	assert.Contains(t, body, "abc-court")
	// only the pending row offers a cancel form
	assert.Equal(t, 1, strings.Count(body, `action="/requests/cancel"`))
}

func TestCreateRequest(t *testing.T) {
	store := &stubStore{}
	s := newTestServer(t, store)
	h := s.Routes()
	cookie := loginCookie(t, s)

	form := url.Values{
		"facility": {"ARC_PICKLEBALL_BADMINTON"},
		"date":     {"2026-09-10"},
		"slot":     {"6 - 7 PM"},
	}
	req := httptest.NewRequest(http.MethodPost, "/requests/create", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	require.Len(t, store.created, 1)
	assert.Equal(t, "ARC_PICKLEBALL_BADMINTON", store.created[0].Facility)
	// 18:00 on the 10th, minus 72 hours
	assert.Equal(t, time.Date(2026, 9, 7, 18, 0, 0, 0, time.UTC), store.created[0].TriggerAt)
}

func TestCreateRequestBadInputStaysOnForm(t *testing.T) {
	store := &stubStore{}
	s := newTestServer(t, store)
	h := s.Routes()
	cookie := loginCookie(t, s)

	cases := []struct {
		form url.Values
		want string
	}{
		{url.Values{"facility": {"ARC_PICKLEBALL_BADMINTON"}, "date": {"tomorrow"}, "slot": {"6 - 7 PM"}}, "Invalid date"},
		{url.Values{"facility": {"NOWHERE"}, "date": {"2026-09-10"}, "slot": {"6 - 7 PM"}}, "unknown facility"},
		{url.Values{"facility": {"ARC_PICKLEBALL_BADMINTON"}, "date": {"2026-09-10"}, "slot": {"sixish"}}, "invalid slot"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/requests/create", strings.NewReader(tc.form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), tc.want)
	}
	assert.Empty(t, store.created)
}

func TestCancelRequest(t *testing.T) {
	store := &stubStore{}
	s := newTestServer(t, store)
	h := s.Routes()

	form := url.Values{"id": {"7"}}
	req := httptest.NewRequest(http.MethodPost, "/requests/cancel", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(loginCookie(t, s))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, []int64{7}, store.cancelled)
}

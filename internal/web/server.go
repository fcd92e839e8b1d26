// Package web is the operator-facing UI: log in, see scheduled requests
// and their outcomes, submit new ones, cancel pending ones.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/court-scheduler/internal/auth"
	"github.com/example/court-scheduler/internal/requests"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/example/court-scheduler/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed templates/*.html
var fs embed.FS

type Server struct {
	Auth    *auth.Store
	Engine  *scheduler.Engine
	Session *session.Manager

	BaseURL       string
	ListLimit     int
	SessionMaxAge time.Duration
}

type tmplData struct {
	Title string
	User  int64
	Flash string

	Requests     []requests.Request
	Facilities   []string
	SessionStale bool
	SessionAge   string
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	mux.Handle("/", s.Auth.RequireAuth(http.HandlerFunc(s.handleHome)))
	mux.Handle("/requests/new", s.Auth.RequireAuth(http.HandlerFunc(s.handleRequestNew)))
	mux.Handle("/requests/create", s.Auth.RequireAuth(http.HandlerFunc(s.handleRequestCreate)))
	mux.Handle("/requests/cancel", s.Auth.RequireAuth(http.HandlerFunc(s.handleRequestCancel)))
	mux.Handle("/session/reload", s.Auth.RequireAuth(http.HandlerFunc(s.handleSessionReload)))

	return mux
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	reqs, err := s.Engine.List(r.Context(), s.ListLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	snap := s.Session.Snapshot()
	data := tmplData{
		Title:        "Requests",
		User:         uid,
		Requests:     reqs,
		SessionStale: snap.IsStale(time.Now(), s.SessionMaxAge),
	}
	if !snap.CapturedAt.IsZero() {
		data.SessionAge = snap.Age(time.Now()).Round(time.Minute).String()
	}
	s.render(w, "templates/requests.html", data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, "templates/login.html", tmplData{Title: "Login"})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		username := strings.TrimSpace(r.FormValue("username"))
		id, err := s.Auth.Authenticate(r.Context(), username, r.FormValue("password"))
		if err != nil {
			s.render(w, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid username/password"})
			return
		}
		if err := s.Auth.SetSession(w, r, id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleRequestNew(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	s.render(w, "templates/new_request.html", tmplData{
		Title:      "New Request",
		User:       uid,
		Facilities: s.Engine.Directory.Names(),
	})
}

func (s *Server) handleRequestCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loc := s.Engine.Location
	if loc == nil {
		loc = time.Local
	}
	date, err := time.ParseInLocation("2006-01-02", r.FormValue("date"), loc)
	if err != nil {
		s.renderNewWithFlash(w, "Invalid date (want YYYY-MM-DD)")
		return
	}

	sub := scheduler.Submission{
		Facility: strings.TrimSpace(r.FormValue("facility")),
		Date:     date,
		SlotText: strings.TrimSpace(r.FormValue("slot")),
		Pinned:   strings.TrimSpace(r.FormValue("court_id")),
	}
	if _, err := s.Engine.Submit(r.Context(), sub); err != nil {
		s.renderNewWithFlash(w, err.Error())
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleRequestCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	ok, err := s.Engine.Cancel(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		log.Printf("web: cancel request %d refused (not pending)", id)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleSessionReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.Engine.ReloadCredentials(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) renderNewWithFlash(w http.ResponseWriter, flash string) {
	s.render(w, "templates/new_request.html", tmplData{
		Title:      "New Request",
		Flash:      flash,
		Facilities: s.Engine.Directory.Names(),
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	t, err := template.ParseFS(fs, "templates/base.html", name)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
	}
}

func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	fmt.Printf("listening on %s\n", addr)
	return srv.ListenAndServe()
}

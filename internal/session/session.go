// Package session holds the browser-extracted authentication cookies the
// booking client sends with every request. The cookie extractor (a separate
// tool) writes a JSON session file; this package loads it, swaps snapshots
// wholesale, and watches for refreshes.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// ErrNoSession is returned when the session file has not been written yet.
var ErrNoSession = errors.New("session file not found (run the cookie extractor first)")

// Snapshot is a point-in-time capture of the authentication cookies. It is
// never mutated after load; reloads replace it wholesale.
type Snapshot struct {
	Cookies    map[string]string `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
}

func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}

// IsStale reports whether the snapshot is older than threshold. Staleness
// is derived, not stored: the same snapshot goes stale as time passes.
func (s Snapshot) IsStale(now time.Time, threshold time.Duration) bool {
	if s.CapturedAt.IsZero() {
		return true
	}
	return s.Age(now) > threshold
}

// Manager owns the current snapshot. Readers get the snapshot by value;
// only the reload path replaces it.
type Manager struct {
	path         string
	markerPath   string
	threshold    time.Duration
	pollInterval time.Duration

	mu        sync.RWMutex
	snap      Snapshot
	loadedAt  time.Time
	lastCheck time.Time
}

func NewManager(path, markerPath string, threshold, pollInterval time.Duration) *Manager {
	return &Manager{
		path:         path,
		markerPath:   markerPath,
		threshold:    threshold,
		pollInterval: pollInterval,
	}
}

// Load reads the session file and swaps in the new snapshot.
func (m *Manager) Load() error {
	b, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNoSession
		}
		return err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("session: parse %s: %w", m.path, err)
	}
	if len(snap.Cookies) == 0 {
		return fmt.Errorf("session: %s has no cookies", m.path)
	}

	m.mu.Lock()
	m.snap = snap
	m.loadedAt = time.Now()
	m.mu.Unlock()
	log.Printf("session: loaded %d cookies captured at %s", len(snap.Cookies), snap.CapturedAt.Format(time.RFC3339))
	return nil
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

func (m *Manager) Stale(now time.Time) bool {
	return m.Snapshot().IsStale(now, m.threshold)
}

func (m *Manager) Age(now time.Time) time.Duration {
	return m.Snapshot().Age(now)
}

// MaybeReload re-reads the session file if it changed on disk since the
// last load. Checks are rate limited to the poll interval; callers may
// invoke it every tick.
func (m *Manager) MaybeReload() (bool, error) {
	m.mu.Lock()
	if time.Since(m.lastCheck) < m.pollInterval {
		m.mu.Unlock()
		return false, nil
	}
	m.lastCheck = time.Now()
	loadedAt := m.loadedAt
	m.mu.Unlock()

	fi, err := os.Stat(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !fi.ModTime().After(loadedAt) {
		return false, nil
	}
	if err := m.Load(); err != nil {
		return false, err
	}
	return true, nil
}

// CheckSignal reloads immediately when the out-of-band marker file exists,
// then removes the marker.
func (m *Manager) CheckSignal() (bool, error) {
	if m.markerPath == "" {
		return false, nil
	}
	if _, err := os.Stat(m.markerPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	log.Printf("session: reload signal detected")
	defer func() {
		if err := os.Remove(m.markerPath); err != nil {
			log.Printf("session: remove signal file: %v", err)
		}
	}()
	if err := m.Load(); err != nil {
		return false, err
	}
	return true, nil
}

// Reload forces a re-read regardless of poll interval or mtime.
func (m *Manager) Reload() error { return m.Load() }

// Package requests is the durable store of scheduled reservation requests.
// It owns every read and write of the requests table; each update is a
// single atomic statement keyed by id, so concurrent executions of
// different requests cannot corrupt each other's records.
package requests

import (
	"context"
	"time"

	"github.com/example/court-scheduler/internal/db"
)

// Lifecycle states. Transitions are monotonic: pending -> preparing ->
// executing -> one of the terminal states, plus pending -> cancelled.
// Quarantined marks a record whose stored fields can no longer be
// interpreted; the scheduling loop skips it and it needs operator
// attention.
const (
	StatePending        = "pending"
	StatePreparing      = "preparing"
	StateExecuting      = "executing"
	StateSucceeded      = "succeeded"
	StateFailed         = "failed"
	StateNoAvailability = "no_availability"
	StateCancelled      = "cancelled"
	StateQuarantined    = "quarantined"
)

// Terminal reports whether no further tick may act on a request in the
// given state.
func Terminal(state string) bool {
	switch state {
	case StateSucceeded, StateFailed, StateNoAvailability, StateCancelled, StateQuarantined:
		return true
	}
	return false
}

// Request is one desired reservation.
type Request struct {
	ID          int64
	Facility    string
	TargetDate  time.Time
	SlotText    string
	PinnedCourt *string
	TriggerAt   time.Time
	State       string
	Attempts    int
	Late        bool
	BookedCourt *string
	LastError   *string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

const requestCols = `id,facility,target_date,slot_text,pinned_court,trigger_at,state,attempts,late,booked_court,last_error,created_at,completed_at`

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Create(ctx context.Context, req Request) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO requests(facility,target_date,slot_text,pinned_court,trigger_at,state)
VALUES ($1,$2,$3,$4,$5,'pending')
RETURNING id`,
		req.Facility, req.TargetDate, req.SlotText, req.PinnedCourt, req.TriggerAt,
	).Scan(&id)
	return id, db.WrapNotFound(err)
}

func (r *Repo) Get(ctx context.Context, id int64) (Request, error) {
	row := r.db.QueryRow(ctx, `SELECT `+requestCols+` FROM requests WHERE id=$1`, id)
	req, err := scanRequest(row)
	if err != nil {
		return Request{}, db.WrapNotFound(err)
	}
	return req, nil
}

// Active returns every non-terminal request, soonest trigger first. This is
// the scheduling loop's working set; after a restart it naturally contains
// anything the previous process left mid-flight.
func (r *Repo) Active(ctx context.Context) ([]Request, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+requestCols+` FROM requests
WHERE state IN ('pending','preparing','executing')
ORDER BY trigger_at ASC`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// List returns the newest requests, most recently relevant first, capped at
// limit.
func (r *Repo) List(ctx context.Context, limit int) ([]Request, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+requestCols+` FROM requests
ORDER BY COALESCE(completed_at, trigger_at) DESC, id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Transition moves a request from one lifecycle state to another. It
// reports false when the request was not in the expected state, which is
// how a cancel racing a tick is detected.
func (r *Repo) Transition(ctx context.Context, id int64, from, to string) (bool, error) {
	n, err := r.db.Exec(ctx, `UPDATE requests SET state=$3 WHERE id=$1 AND state=$2`, id, from, to)
	return n > 0, err
}

// Cancel is only legal while a request is still pending; it reports false
// otherwise (unknown id included).
func (r *Repo) Cancel(ctx context.Context, id int64) (bool, error) {
	n, err := r.db.Exec(ctx, `
UPDATE requests SET state='cancelled', completed_at=now()
WHERE id=$1 AND state='pending'`, id)
	return n > 0, err
}

// Finish records the terminal outcome of an execution in one statement.
func (r *Repo) Finish(ctx context.Context, id int64, state string, attempts int, late bool, bookedCourt, lastErr *string) error {
	_, err := r.db.Exec(ctx, `
UPDATE requests
SET state=$2, attempts=$3, late=$4, booked_court=$5, last_error=$6, completed_at=now()
WHERE id=$1`, id, state, attempts, late, bookedCourt, lastErr)
	return err
}

// Quarantine sidelines a record the engine cannot interpret so the rest of
// the store keeps operating.
func (r *Repo) Quarantine(ctx context.Context, id int64, reason string) error {
	_, err := r.db.Exec(ctx, `
UPDATE requests SET state='quarantined', last_error=$2, completed_at=now()
WHERE id=$1`, id, reason)
	return err
}

func collect(rows db.Rows) ([]Request, error) {
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(row db.Row) (Request, error) {
	var req Request
	err := row.Scan(
		&req.ID, &req.Facility, &req.TargetDate, &req.SlotText, &req.PinnedCourt,
		&req.TriggerAt, &req.State, &req.Attempts, &req.Late, &req.BookedCourt,
		&req.LastError, &req.CreatedAt, &req.CompletedAt,
	)
	return req, err
}

package bookinglog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Entry is one finalization attempt recorded for reporting: who booked,
// what was quoted, and how the attempt ended.
type Entry struct {
	ID           uuid.UUID
	SessionID    string
	LeadID       string
	QuoteID      string
	BookingID    string
	ScopeID      string
	FrequencyID  string
	FirstJobDate string
	Total        float64
	Status       string // completed | failed
	CreatedAt    time.Time
}

// Entry statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DB is the slice of a pgx pool the repository needs; pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists booking-log entries in Postgres.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("bookinglog: db required")
	}
	return &Repository{db: db}
}

const insertSQL = `
INSERT INTO booking_log (id, session_id, lead_id, quote_id, booking_id, scope_id, frequency_id, first_job_date, total, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// Insert stores one finalization attempt.
func (r *Repository) Insert(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, insertSQL,
		e.ID, e.SessionID, e.LeadID, e.QuoteID, e.BookingID,
		e.ScopeID, e.FrequencyID, e.FirstJobDate, e.Total, e.Status, e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("bookinglog: insert: %w", err)
	}
	return e, nil
}

const recentSQL = `
SELECT id, session_id, lead_id, quote_id, booking_id, scope_id, frequency_id, first_job_date, total, status, created_at
FROM booking_log
ORDER BY created_at DESC
LIMIT $1`

// Recent returns the newest entries, most recent first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, recentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("bookinglog: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.LeadID, &e.QuoteID, &e.BookingID,
			&e.ScopeID, &e.FrequencyID, &e.FirstJobDate, &e.Total, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("bookinglog: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookinglog: rows: %w", err)
	}
	return out, nil
}

const bySessionSQL = `
SELECT id, session_id, lead_id, quote_id, booking_id, scope_id, frequency_id, first_job_date, total, status, created_at
FROM booking_log
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT 1`

// LatestForSession returns the most recent entry for a wizard session.
func (r *Repository) LatestForSession(ctx context.Context, sessionID string) (Entry, error) {
	var e Entry
	err := r.db.QueryRow(ctx, bySessionSQL, sessionID).Scan(
		&e.ID, &e.SessionID, &e.LeadID, &e.QuoteID, &e.BookingID,
		&e.ScopeID, &e.FrequencyID, &e.FirstJobDate, &e.Total, &e.Status, &e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("bookinglog: latest for session: %w", err)
	}
	return e, nil
}

package bookinglog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/wizard"
)

func TestInsertFillsDefaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO booking_log").
		WithArgs(pgxmock.AnyArg(), "sess-1", "lead-1", "quote-1", "booking-1",
			"scope-home", "freq-weekly", "2026-03-12", 170.0, StatusCompleted, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewRepository(mock)
	e, err := repo.Insert(context.Background(), Entry{
		SessionID:    "sess-1",
		LeadID:       "lead-1",
		QuoteID:      "quote-1",
		BookingID:    "booking-1",
		ScopeID:      "scope-home",
		FrequencyID:  "freq-weekly",
		FirstJobDate: "2026-03-12",
		Total:        170,
		Status:       StatusCompleted,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, e.ID, "id generated when absent")
	assert.False(t, e.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentScansRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "session_id", "lead_id", "quote_id", "booking_id",
		"scope_id", "frequency_id", "first_job_date", "total", "status", "created_at",
	}).
		AddRow(uuid.New(), "sess-2", "lead-2", "quote-2", "booking-2", "scope-home", "freq-weekly", "2026-03-14", 145.0, StatusCompleted, now).
		AddRow(uuid.New(), "sess-1", "lead-1", "quote-1", "", "scope-home", "freq-weekly", "", 170.0, StatusFailed, now.Add(-time.Hour))

	mock.ExpectQuery("SELECT (.+) FROM booking_log").
		WithArgs(10).
		WillReturnRows(rows)

	repo := NewRepository(mock)
	entries, err := repo.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "sess-2", entries[0].SessionID)
	assert.Equal(t, StatusFailed, entries[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentDefaultsLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM booking_log").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "session_id", "lead_id", "quote_id", "booking_id",
			"scope_id", "frequency_id", "first_job_date", "total", "status", "created_at",
		}))

	repo := NewRepository(mock)
	entries, err := repo.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestForSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM booking_log").
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "session_id", "lead_id", "quote_id", "booking_id",
			"scope_id", "frequency_id", "first_job_date", "total", "status", "created_at",
		}).AddRow(id, "sess-1", "lead-1", "quote-1", "booking-1", "scope-home", "freq-weekly", "2026-03-12", 170.0, StatusCompleted, now))

	repo := NewRepository(mock)
	e, err := repo.LatestForSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "booking-1", e.BookingID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcomeDerivesEntryFromRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO booking_log").
		WithArgs(pgxmock.AnyArg(), "sess-1", "lead-1", "quote-1", "booking-1",
			"scope-home", "freq-weekly", "2026-03-12", 170.0, StatusCompleted, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := NewService(NewRepository(mock), nil)
	record := wizard.BookingRecord{
		Step: wizard.StepSuccess,
		Lead: wizard.LeadState{
			ID:          "lead-1",
			ScopeIDs:    []string{"scope-home"},
			Frequencies: map[string]string{"scope-home": "freq-weekly"},
		},
		Quote: wizard.QuoteState{
			ID:    "quote-1",
			Price: &wizard.PriceBreakdown{Base: 150, AddOns: 20, Total: 170},
		},
		Schedule: wizard.ScheduleState{Date: "2026-03-12", BookingID: "booking-1"},
	}

	e, err := svc.RecordOutcome(context.Background(), "sess-1", record, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 170.0, e.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}

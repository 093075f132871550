package bookinglog

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/wizard"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/pkg/logging"
)

var tracer = otel.Tracer("clensy.internal.bookinglog")

// Service records finalization outcomes. Logging here is best-effort:
// the booking already happened (or failed) upstream, so persistence
// errors are surfaced to the caller for logging but never block the
// wizard.
type Service struct {
	repo   *Repository
	logger *logging.Logger
}

// NewService constructs a booking-log service.
func NewService(repo *Repository, logger *logging.Logger) *Service {
	if repo == nil {
		panic("bookinglog: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// RecordOutcome writes one entry derived from the wizard record.
func (s *Service) RecordOutcome(ctx context.Context, sessionID string, record wizard.BookingRecord, status string) (Entry, error) {
	ctx, span := tracer.Start(ctx, "bookinglog.record")
	defer span.End()
	span.SetAttributes(
		attribute.String("clensy.session_id", sessionID),
		attribute.String("clensy.status", status),
	)

	e := Entry{
		SessionID:    sessionID,
		LeadID:       record.Lead.ID,
		QuoteID:      record.Quote.ID,
		BookingID:    record.Schedule.BookingID,
		FirstJobDate: record.Schedule.Date,
		Status:       status,
	}
	if scopeID, ok := record.Lead.SelectedScope(); ok {
		e.ScopeID = scopeID
		e.FrequencyID = record.Lead.Frequencies[scopeID]
	}
	if record.Quote.Price != nil {
		e.Total = record.Quote.Price.Total
	}

	e, err := s.repo.Insert(ctx, e)
	if err != nil {
		span.RecordError(err)
		return Entry{}, err
	}
	s.logger.Info("booking outcome recorded", "session_id", sessionID, "status", status, "booking_id", e.BookingID)
	return e, nil
}

// Recent lists the newest entries for reporting.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	ctx, span := tracer.Start(ctx, "bookinglog.recent")
	defer span.End()

	entries, err := s.repo.Recent(ctx, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return entries, nil
}

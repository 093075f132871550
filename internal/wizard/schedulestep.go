package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/observability/metrics"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/quoting"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/pkg/logging"
)

// PaymentRetryMessage is shown when booking finalization fails for a
// payment-shaped reason: the token may have expired or been malformed,
// so the user should re-enter card details and retry.
const PaymentRetryMessage = "Payment could not be processed. Please re-enter your card details and try again."

// BookingFailedMessage is the generic finalization failure message.
const BookingFailedMessage = "We could not complete your booking. Please try again."

var (
	// ErrDateUnavailable rejects a date outside the availability set or
	// in the past.
	ErrDateUnavailable = errors.New("wizard: date not available")
	// ErrBookingGate rejects finalization while the gate is not satisfied.
	ErrBookingGate = errors.New("wizard: booking prerequisites not met")
)

// ScheduleConfig tunes a scheduling stage.
type ScheduleConfig struct {
	ScopeGroupID      string
	AvailabilityHours int
	BillingTermsID    string
}

// ScheduleStage drives stage 3: availability, date selection, payment
// token capture, and booking finalization.
type ScheduleStage struct {
	crm     CRM
	logger  *logging.Logger
	metrics *metrics.WizardMetrics
	cfg     ScheduleConfig
	now     func() time.Time
}

// NewScheduleStage wires the scheduling stage.
func NewScheduleStage(crm CRM, cfg ScheduleConfig, logger *logging.Logger, m *metrics.WizardMetrics) *ScheduleStage {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.AvailabilityHours == 0 {
		cfg.AvailabilityHours = 8
	}
	return &ScheduleStage{
		crm:     crm,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
}

// LoadAvailability fetches the selectable calendar dates for the scope
// group. The client has already normalized both wire shapes into plain
// YYYY-MM-DD strings.
func (s *ScheduleStage) LoadAvailability(ctx context.Context) (map[string]bool, error) {
	dates, err := s.crm.GetAvailability(ctx, s.cfg.ScopeGroupID, s.cfg.AvailabilityHours)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		set[d] = true
	}
	return set, nil
}

// Selectable reports whether a date can be picked: it must be in the
// availability set and not before today in local time.
func (s *ScheduleStage) Selectable(date string, available map[string]bool) bool {
	if !available[date] {
		return false
	}
	d, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return false
	}
	today := s.now().In(time.Local)
	todayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.Local)
	return !d.Before(todayStart)
}

// SelectDate stores the chosen date as a local-date string and clears
// any previously chosen time, which was specific to the old date.
func (s *ScheduleStage) SelectDate(ctrl *Controller, date string, available map[string]bool) error {
	if !s.Selectable(date, available) {
		return ErrDateUnavailable
	}
	schedule := ctrl.Snapshot().Schedule
	schedule.Date = date
	schedule.Time = ""
	ctrl.Update(RecordUpdate{Schedule: &schedule})
	return nil
}

// SelectTime stores a time-of-day preference for the chosen date.
func (s *ScheduleStage) SelectTime(ctrl *Controller, t string) {
	schedule := ctrl.Snapshot().Schedule
	schedule.Time = t
	ctrl.Update(RecordUpdate{Schedule: &schedule})
}

// CapturePayment stores the tokenized card reference posted by the
// card-capture frame. Both values are required before finalization.
func (s *ScheduleStage) CapturePayment(ctrl *Controller, token, expiry string) {
	schedule := ctrl.Snapshot().Schedule
	schedule.PaymentToken = token
	schedule.PaymentExpiry = expiry
	ctrl.Update(RecordUpdate{Schedule: &schedule})
}

// CanComplete is the finalization gate: date selected, payment token and
// expiry present, and no outstanding validation errors.
func (s *ScheduleStage) CanComplete(record BookingRecord, errs FieldErrors) bool {
	return record.Schedule.Date != "" &&
		record.Schedule.PaymentToken != "" &&
		record.Schedule.PaymentExpiry != "" &&
		len(errs) == 0
}

// Progress is this stage's share of the overall wizard progress.
func (s *ScheduleStage) Progress(record BookingRecord) int {
	p := 0
	if record.Schedule.Date != "" {
		p += 10
	}
	if record.Schedule.PaymentToken != "" && record.Schedule.PaymentExpiry != "" {
		p += 10
	}
	return p
}

// Complete finalizes the booking. One scope-of-work entry is built per
// lead scope, carrying the quote's selected add-ons as recurring
// modifications and the chosen date as the first job date. A
// confirmation note is attached afterward, best-effort. On failure the
// schedule state is preserved so the user can retry.
func (s *ScheduleStage) Complete(ctx context.Context, ctrl *Controller) (string, error) {
	record := ctrl.Snapshot()
	if !s.CanComplete(record, nil) {
		return "", ErrBookingGate
	}

	sow := make([]quoting.ScopeOfWorkEntry, 0, len(record.Lead.ScopeIDs))
	for _, scopeID := range record.Lead.ScopeIDs {
		sow = append(sow, quoting.ScopeOfWorkEntry{
			ScopeID:           scopeID,
			FrequencyID:       record.Lead.Frequencies[scopeID],
			FirstJobDate:      record.Schedule.Date,
			RateModifications: buildModSelections(record.Quote.Modifications, scopeID),
		})
	}

	bookingID, err := s.crm.BookQuote(ctx, quoting.BookingRequest{
		LeadID:         record.Lead.ID,
		QuoteID:        record.Quote.ID,
		ScopeGroupID:   s.cfg.ScopeGroupID,
		ScopeOfWork:    sow,
		PaymentToken:   record.Schedule.PaymentToken,
		PaymentExpiry:  record.Schedule.PaymentExpiry,
		BillingTermsID: s.cfg.BillingTermsID,
		NotifyCustomer: true,
		NotifyProvider: true,
	})
	if err != nil {
		s.metrics.ObserveBooking("error")
		s.logger.Error("booking finalization failed", "lead_id", record.Lead.ID, "quote_id", record.Quote.ID, "error", err)
		if isPaymentError(err) {
			return PaymentRetryMessage, err
		}
		return BookingFailedMessage, err
	}

	s.crm.CreateNote(ctx, quoting.NoteRequest{
		LeadID:    record.Lead.ID,
		BookingID: bookingID,
		Text: fmt.Sprintf("Booking %s confirmed online for %s %s, first job %s.",
			bookingID, record.Lead.Identity.FirstName, record.Lead.Identity.LastName, record.Schedule.Date),
	})

	schedule := record.Schedule
	schedule.BookingID = bookingID
	ctrl.Update(RecordUpdate{Schedule: &schedule})
	ctrl.Advance(StepSchedule)

	s.metrics.ObserveBooking("ok")
	s.metrics.ObserveStepAdvance("schedule")
	s.logger.Info("booking completed", "booking_id", bookingID, "lead_id", record.Lead.ID)
	return "", nil
}

// isPaymentError recognizes payment-shaped finalization failures by the
// CRM's message text.
func isPaymentError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, token := range []string{"payment", "card", "token", "declin"} {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

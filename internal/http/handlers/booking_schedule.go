package handlers

import (
	"errors"
	"net/http"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/bookinglog"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/wizard"
)

// Availability returns the selectable calendar dates for the configured
// scope group.
func (h *WizardHandler) Availability(w http.ResponseWriter, r *http.Request) {
	_, _, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}

	set, err := h.sched.LoadAvailability(r.Context())
	if err != nil {
		h.upstreamError(w, "availability fetch failed", err)
		return
	}

	dates := make([]string, 0, len(set))
	for d := range set {
		if h.sched.Selectable(d, set) {
			dates = append(dates, d)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

// SelectDate picks the first job date. The date is re-checked against
// the current availability set server-side.
func (h *WizardHandler) SelectDate(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	var req struct {
		Date string `json:"date"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	set, err := h.sched.LoadAvailability(r.Context())
	if err != nil {
		h.upstreamError(w, "availability fetch failed", err)
		return
	}
	if err := h.sched.SelectDate(rt.ctrl, req.Date, set); err != nil {
		http.Error(w, "date not available", http.StatusUnprocessableEntity)
		return
	}

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

// PaymentToken is the bridge for the card-capture frame: the page
// relays the tokenized card reference it received via the frame's
// message event. Both values are required.
func (h *WizardHandler) PaymentToken(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	var req struct {
		Token  string `json:"token"`
		Expiry string `json:"expiry"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.Expiry == "" {
		http.Error(w, "token and expiry are required", http.StatusBadRequest)
		return
	}

	h.sched.CapturePayment(rt.ctrl, req.Token, req.Expiry)

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

// Complete finalizes the booking. Failures keep the session on the
// scheduling step with its data intact; outcomes are recorded to the
// booking log best-effort either way.
func (h *WizardHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}

	msg, err := h.sched.Complete(r.Context(), rt.ctrl)
	if err != nil {
		if errors.Is(err, wizard.ErrBookingGate) {
			http.Error(w, "select a date and enter payment details first", http.StatusConflict)
			return
		}
		h.recordOutcome(r, id, rt, bookinglog.StatusFailed)
		writeJSON(w, http.StatusBadGateway, map[string]any{"message": msg})
		return
	}

	h.recordOutcome(r, id, rt, bookinglog.StatusCompleted)

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

func (h *WizardHandler) recordOutcome(r *http.Request, id string, rt *wizardRuntime, status string) {
	if h.bookingLog == nil {
		return
	}
	if _, err := h.bookingLog.RecordOutcome(r.Context(), id, rt.ctrl.Snapshot(), status); err != nil {
		h.logger.Error("booking log write failed", "session_id", id, "error", err)
	}
}

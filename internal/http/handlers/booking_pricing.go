package handlers

import (
	"errors"
	"net/http"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/quoting"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/wizard"
)

// RateModifications lists the add-ons for the session's selected scope,
// de-duplicated by display name, each annotated with its quantity bound.
func (h *WizardHandler) RateModifications(w http.ResponseWriter, r *http.Request) {
	_, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}

	record := rt.ctrl.Snapshot()
	mods, err := h.crm.GetRateModifications(r.Context(), h.cfg.ScopeGroupID, record.Lead.ScopeIDs)
	if err != nil {
		h.upstreamError(w, "rate modification fetch failed", err)
		return
	}

	type modView struct {
		quoting.RateModification
		MaxQuantity int `json:"maxQuantity"`
	}
	out := make([]modView, 0, len(mods))
	for _, m := range mods {
		out = append(out, modView{RateModification: m, MaxQuantity: wizard.QuantityBound(m.Name)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rateModifications": out})
}

// ToggleModification selects or deselects an add-on and recalculates
// the price immediately.
func (h *WizardHandler) ToggleModification(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	var req struct {
		ID      string  `json:"id"`
		Name    string  `json:"name"`
		Cost    float64 `json:"cost"`
		ScopeID string  `json:"scopeId"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	ok := wizard.ToggleModification(rt.ctrl, quoting.RateModification{
		ID:      req.ID,
		Name:    req.Name,
		Cost:    req.Cost,
		ScopeID: req.ScopeID,
	})
	if !ok {
		http.Error(w, "modification does not belong to the selected service", http.StatusBadRequest)
		return
	}
	rt.pricing.ModificationChanged(rt.ctrl)

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

// SetModificationQuantity adjusts a selected add-on's quantity within
// its display-name bound and recalculates immediately.
func (h *WizardHandler) SetModificationQuantity(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	var req struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	if !wizard.SetModificationQuantity(rt.ctrl, req.ID, req.Quantity) {
		http.Error(w, "modification not selected", http.StatusBadRequest)
		return
	}
	rt.pricing.ModificationChanged(rt.ctrl)

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

// UpdateAddresses stores the service and billing address blocks.
func (h *WizardHandler) UpdateAddresses(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	var req struct {
		Service *wizard.AddressForm `json:"service,omitempty"`
		Billing *wizard.AddressForm `json:"billing,omitempty"`
		// Billing same as service, a common checkout shortcut.
		BillingSameAsService bool `json:"billingSameAsService"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	quote := rt.ctrl.Snapshot().Quote
	if req.Service != nil {
		quote.ServiceAddress = *req.Service
	}
	if req.Billing != nil {
		quote.BillingAddress = *req.Billing
	}
	if req.BillingSameAsService {
		quote.BillingAddress = quote.ServiceAddress
	}
	rt.ctrl.Update(wizard.RecordUpdate{Quote: &quote})

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

// GetPrice is the manual calculation endpoint, creating the lead lazily
// when it has no id yet.
func (h *WizardHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}

	questions, err := h.questionsForSession(r, rt)
	if err != nil {
		h.upstreamError(w, "question fetch failed", err)
		return
	}

	errs, err := rt.pricing.GetPrice(r.Context(), rt.ctrl, questions)
	if err != nil {
		if errors.Is(err, wizard.ErrStepInvalid) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": errs})
			return
		}
		h.upstreamError(w, "price calculation failed", err)
		return
	}

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

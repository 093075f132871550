package handlers

import (
	"net/http"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/quoting"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/wizard"
)

// questionsForSession fetches the dynamic questions for the session's
// selected scope. No scope selected means no questions yet.
func (h *WizardHandler) questionsForSession(r *http.Request, rt *wizardRuntime) ([]quoting.Question, error) {
	record := rt.ctrl.Snapshot()
	scopeID, ok := record.Lead.SelectedScope()
	if !ok {
		return nil, nil
	}
	return h.crm.GetQuestions(r.Context(), []string{scopeID})
}

type leadUpdateRequest struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`

	Street     *string `json:"street,omitempty"`
	City       *string `json:"city,omitempty"`
	State      *string `json:"state,omitempty"`
	PostalCode *string `json:"postalCode,omitempty"`

	// Set when an autocomplete selection back-fills the whole address.
	Place *struct {
		Street     string `json:"street"`
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postalCode"`
	} `json:"place,omitempty"`
}

// UpdateLead applies partial identity/address edits. Phone input is
// reformatted progressively; the formatted value is what gets stored
// and echoed back.
func (h *WizardHandler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	var req leadUpdateRequest
	if !readJSON(w, r, &req) {
		return
	}

	record := rt.ctrl.Snapshot()
	lead := record.Lead

	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&lead.Identity.FirstName, req.FirstName)
	set(&lead.Identity.LastName, req.LastName)
	set(&lead.Identity.Email, req.Email)
	if req.Phone != nil {
		lead.Identity.Phone = wizard.FormatPhone(*req.Phone)
	}
	set(&lead.Address.Street, req.Street)
	set(&lead.Address.City, req.City)
	set(&lead.Address.State, req.State)
	set(&lead.Address.PostalCode, req.PostalCode)
	if req.Place != nil {
		wizard.ApplyPlace(&lead, req.Place.Street, req.Place.City, req.Place.State, req.Place.PostalCode)
	}

	rt.ctrl.Update(wizard.RecordUpdate{Lead: &wizard.LeadUpdate{
		Identity: &lead.Identity,
		Address:  &lead.Address,
	}})

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

// ValidateField runs the blur-time check for a single field.
func (h *WizardHandler) ValidateField(w http.ResponseWriter, r *http.Request) {
	_, _, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	var req struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	msg, ok := h.lead.ValidateField(req.Field, req.Value)
	writeJSON(w, http.StatusOK, map[string]any{"valid": ok, "message": msg})
}

// CheckPostalCode validates service-area membership for a postal code.
func (h *WizardHandler) CheckPostalCode(w http.ResponseWriter, r *http.Request) {
	_, _, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	var req struct {
		PostalCode string `json:"postalCode"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	msg, ok, err := h.lead.CheckPostalCode(r.Context(), req.PostalCode)
	if err != nil {
		h.upstreamError(w, "postal code check failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": ok, "message": msg})
}

// SelectScope switches the single selected service. The scope must
// exist in the configured scope group; a sole frequency is applied
// automatically.
func (h *WizardHandler) SelectScope(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	var req struct {
		ScopeID string `json:"scopeId"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	scope, found, err := h.findScope(r, req.ScopeID)
	if err != nil {
		h.upstreamError(w, "scope group fetch failed", err)
		return
	}
	if !found {
		http.Error(w, "unknown scope", http.StatusBadRequest)
		return
	}

	record := rt.ctrl.Snapshot()
	lead := record.Lead
	wizard.SelectScope(&lead, scope, wizard.FieldErrors{})
	rt.ctrl.Update(wizard.RecordUpdate{Lead: &wizard.LeadUpdate{
		ScopeIDs:    &lead.ScopeIDs,
		Frequencies: lead.Frequencies,
	}})

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

// SelectFrequency chooses the cadence for the selected scope.
func (h *WizardHandler) SelectFrequency(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	var req struct {
		ScopeID     string `json:"scopeId"`
		FrequencyID string `json:"frequencyId"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	record := rt.ctrl.Snapshot()
	scopeID, ok := record.Lead.SelectedScope()
	if !ok || scopeID != req.ScopeID {
		http.Error(w, "scope not selected", http.StatusConflict)
		return
	}

	freqs := record.Lead.Frequencies
	freqs[req.ScopeID] = req.FrequencyID
	rt.ctrl.Update(wizard.RecordUpdate{Lead: &wizard.LeadUpdate{Frequencies: freqs}})

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

func (h *WizardHandler) findScope(r *http.Request, scopeID string) (quoting.Scope, bool, error) {
	groups, err := h.crm.GetScopeGroups(r.Context())
	if err != nil {
		return quoting.Scope{}, false, err
	}
	for _, g := range groups {
		if h.cfg.ScopeGroupID != "" && g.ID != h.cfg.ScopeGroupID {
			continue
		}
		for _, s := range g.Scopes {
			if s.ID == scopeID {
				return s, true, nil
			}
		}
	}
	return quoting.Scope{}, false, nil
}

// SubmitAnswer records a dynamic-question answer. Pricing-phase answers
// arm the debounced recalculation while the wizard is on stage 2.
func (h *WizardHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	var req struct {
		QuestionID string   `json:"questionId"`
		Value      string   `json:"value"`
		Values     []string `json:"values"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	questions, err := h.questionsForSession(r, rt)
	if err != nil {
		h.upstreamError(w, "question fetch failed", err)
		return
	}
	var question *quoting.Question
	for i := range questions {
		if questions[i].ID == req.QuestionID {
			question = &questions[i]
			break
		}
	}
	if question == nil {
		http.Error(w, "unknown question", http.StatusBadRequest)
		return
	}

	kind := wizard.KindForQuestion(*question)
	answer := wizard.Answer{Kind: kind, Value: req.Value}
	if kind == wizard.AnswerMulti {
		answer = wizard.Answer{Kind: kind, Values: req.Values}
	}

	record := rt.ctrl.Snapshot()
	answers := record.Lead.Answers
	answers[req.QuestionID] = answer
	rt.ctrl.Update(wizard.RecordUpdate{Lead: &wizard.LeadUpdate{Answers: answers}})

	if question.Step != quoting.StepBeforePricing && rt.ctrl.Step() == wizard.StepPricing {
		rt.pricing.QuestionEdited(rt.ctrl)
	}

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

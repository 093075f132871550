package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/bookinglog"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/observability/metrics"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/session"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/wizard"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/pkg/logging"
)

// WizardConfig tunes the booking wizard surface.
type WizardConfig struct {
	ScopeGroupID      string
	BillingTermsID    string
	PriceDebounce     time.Duration
	RestoreSettle     time.Duration
	AvailabilityHours int
}

// WizardHandler exposes the booking wizard as a session-scoped JSON API.
// Each session owns a live controller and pricing machine in memory;
// the aggregate record is persisted to the session store after every
// mutation so a restarted process can restore mid-wizard visitors.
type WizardHandler struct {
	crm        wizard.CRM
	store      session.Store
	logger     *logging.Logger
	metrics    *metrics.WizardMetrics
	bookingLog *bookinglog.Service // optional
	cfg        WizardConfig

	lead  *wizard.LeadStage
	sched *wizard.ScheduleStage

	mu   sync.Mutex
	live map[string]*wizardRuntime
}

type wizardRuntime struct {
	ctrl    *wizard.Controller
	pricing *wizard.PricingStage
}

// NewWizardHandler wires the wizard surface.
func NewWizardHandler(crm wizard.CRM, store session.Store, cfg WizardConfig, logger *logging.Logger, m *metrics.WizardMetrics, bl *bookinglog.Service) *WizardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WizardHandler{
		crm:        crm,
		store:      store,
		logger:     logger,
		metrics:    m,
		bookingLog: bl,
		cfg:        cfg,
		lead:       wizard.NewLeadStage(crm, logger, m),
		sched: wizard.NewScheduleStage(crm, wizard.ScheduleConfig{
			ScopeGroupID:      cfg.ScopeGroupID,
			AvailabilityHours: cfg.AvailabilityHours,
			BillingTermsID:    cfg.BillingTermsID,
		}, logger, m),
		live: make(map[string]*wizardRuntime),
	}
}

// Routes mounts the wizard endpoints.
func (h *WizardHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/scope-groups", h.ScopeGroups)
	r.Get("/billing-terms", h.BillingTerms)
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetState)
		r.Post("/back", h.Back)
		r.Post("/continue", h.Continue)
		r.Get("/questions", h.Questions)
		r.Patch("/lead", h.UpdateLead)
		r.Post("/lead/field", h.ValidateField)
		r.Post("/postal-code", h.CheckPostalCode)
		r.Post("/scope", h.SelectScope)
		r.Post("/frequency", h.SelectFrequency)
		r.Post("/answers", h.SubmitAnswer)
		r.Get("/rate-modifications", h.RateModifications)
		r.Post("/modifications/toggle", h.ToggleModification)
		r.Post("/modifications/quantity", h.SetModificationQuantity)
		r.Patch("/addresses", h.UpdateAddresses)
		r.Post("/price", h.GetPrice)
		r.Get("/availability", h.Availability)
		r.Post("/date", h.SelectDate)
		r.Post("/payment-token", h.PaymentToken)
		r.Post("/complete", h.Complete)
	})
	return r
}

// stateResponse is the shared view of a session returned by most
// mutating endpoints, so the client always has the latest record.
type stateResponse struct {
	SessionID string               `json:"sessionId"`
	Step      int                  `json:"step"`
	Progress  int                  `json:"progress"`
	Record    wizard.BookingRecord `json:"record"`
}

func (h *WizardHandler) state(id string, rt *wizardRuntime) stateResponse {
	record := rt.ctrl.Snapshot()
	progress := h.lead.Progress(record.Lead, nil)
	if record.Quote.Price != nil {
		progress += 40
	}
	progress += h.sched.Progress(record)
	return stateResponse{
		SessionID: id,
		Step:      record.Step,
		Progress:  progress,
		Record:    record,
	}
}

// CreateSession starts a fresh wizard.
func (h *WizardHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := session.New()
	if err := h.store.Save(r.Context(), sess); err != nil {
		h.logger.Error("session create failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	rt := &wizardRuntime{
		ctrl:    wizard.Restore(sess.Record),
		pricing: h.newPricingStage(),
	}
	h.mu.Lock()
	h.live[sess.ID] = rt
	h.mu.Unlock()

	h.logger.Info("wizard session created", "session_id", sess.ID)
	writeJSON(w, http.StatusCreated, h.state(sess.ID, rt))
}

func (h *WizardHandler) newPricingStage() *wizard.PricingStage {
	return wizard.NewPricingStage(h.crm, wizard.PricingConfig{
		ScopeGroupID: h.cfg.ScopeGroupID,
		Debounce:     h.cfg.PriceDebounce,
		Settle:       h.cfg.RestoreSettle,
	}, h.logger, h.metrics)
}

// resolve returns the live runtime for a session, restoring it from the
// store when the process has no in-memory copy. Restoration arms the
// pricing machine's settle window so replayed state does not trigger a
// recalculation.
func (h *WizardHandler) resolve(r *http.Request) (string, *wizardRuntime, error) {
	id := chi.URLParam(r, "sessionID")
	if id == "" {
		return "", nil, session.ErrNotFound
	}

	h.mu.Lock()
	rt, ok := h.live[id]
	h.mu.Unlock()
	if ok {
		return id, rt, nil
	}

	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		return "", nil, err
	}

	rt = &wizardRuntime{
		ctrl:    wizard.Restore(sess.Record),
		pricing: h.newPricingStage(),
	}
	snap := wizard.PricingSnapshot{
		Answers:       sess.Record.Lead.Answers,
		Modifications: sess.Record.Quote.Modifications,
	}
	rt.pricing.BeginRestore(snap)
	rt.pricing.ObserveRestore(snap)

	h.mu.Lock()
	if existing, ok := h.live[id]; ok {
		rt = existing
	} else {
		h.live[id] = rt
	}
	h.mu.Unlock()

	h.logger.Info("wizard session restored", "session_id", id, "step", sess.Record.Step)
	return id, rt, nil
}

// persist writes the current record back to the session store.
func (h *WizardHandler) persist(r *http.Request, id string, rt *wizardRuntime) error {
	sess := &session.Session{ID: id, Record: rt.ctrl.Snapshot()}
	return h.store.Save(r.Context(), sess)
}

// GetState returns the session's current step and record.
func (h *WizardHandler) GetState(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

// Back moves one step backward. Leaving the pricing step clears the
// selected add-ons.
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}

	if rt.ctrl.Step() == wizard.StepPricing {
		rt.pricing.Back(rt.ctrl)
	} else {
		rt.ctrl.Back()
	}

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

// Continue advances whichever stage the wizard is on, after that
// stage's own validation and persistence succeed.
func (h *WizardHandler) Continue(w http.ResponseWriter, r *http.Request) {
	id, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}

	var errs wizard.FieldErrors
	switch rt.ctrl.Step() {
	case wizard.StepLead:
		questions, qerr := h.questionsForSession(r, rt)
		if qerr != nil {
			h.upstreamError(w, "question fetch failed", qerr)
			return
		}
		errs, err = h.lead.Continue(r.Context(), rt.ctrl, questions)
	case wizard.StepPricing:
		errs, err = rt.pricing.Continue(r.Context(), rt.ctrl)
	default:
		http.Error(w, "no stage to continue", http.StatusConflict)
		return
	}

	if err != nil {
		if errors.Is(err, wizard.ErrStepInvalid) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": errs})
			return
		}
		if errors.Is(err, wizard.ErrNoPrice) {
			http.Error(w, "calculate a price before continuing", http.StatusConflict)
			return
		}
		h.upstreamError(w, "stage continue failed", err)
		return
	}

	if err := h.persist(r, id, rt); err != nil {
		h.logger.Error("session persist failed", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, h.state(id, rt))
}

// ScopeGroups proxies the service catalog.
func (h *WizardHandler) ScopeGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.crm.GetScopeGroups(r.Context())
	if err != nil {
		h.upstreamError(w, "scope group fetch failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scopeGroups": groups})
}

// BillingTerms proxies the billing-terms catalog.
func (h *WizardHandler) BillingTerms(w http.ResponseWriter, r *http.Request) {
	terms, err := h.crm.GetBillingTerms(r.Context())
	if err != nil {
		h.upstreamError(w, "billing terms fetch failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"billingTerms": terms})
}

// Questions returns the dynamic questions for the session's selected
// scope, already sorted.
func (h *WizardHandler) Questions(w http.ResponseWriter, r *http.Request) {
	_, rt, err := h.resolve(r)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	questions, err := h.questionsForSession(r, rt)
	if err != nil {
		h.upstreamError(w, "question fetch failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (h *WizardHandler) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	h.logger.Error("session load failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *WizardHandler) upstreamError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	http.Error(w, "upstream service unavailable", http.StatusBadGateway)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

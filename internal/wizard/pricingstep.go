package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/observability/metrics"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/quoting"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/pkg/logging"
)

// Recalculation machine states. Modeled explicitly so the "don't
// recalculate during restore" rule is testable on its own.
const (
	recalcIdle        = "idle"
	recalcRestoring   = "restoring"
	recalcDebouncing  = "debouncing"
	recalcCalculating = "calculating"
)

// ErrNoPrice is returned when a forward transition is attempted before a
// successful price calculation.
var ErrNoPrice = errors.New("wizard: no price calculated")

// schedulingQuestionIDs are question ids that belong to the booking step
// and are deliberately excluded from the quote-save payload.
var schedulingQuestionIDs = map[string]struct{}{
	"preferred-day":  {},
	"preferred-time": {},
}

// PricingConfig tunes a pricing stage instance.
type PricingConfig struct {
	ScopeGroupID string
	Debounce     time.Duration // quiet period for question-driven recalcs
	Settle       time.Duration // stability window ending restoration
}

// PricingSnapshot is the restorable slice of stage-2 state, used both as
// the expected restore target and as the recalculation signature input.
type PricingSnapshot struct {
	Answers       map[string]Answer      `json:"answers"`
	Modifications []SelectedModification `json:"modifications"`
}

// PricingStage drives stage 2 for one wizard session: debounced price
// recalculation, add-on selection, and quote persistence. One instance
// per session; it owns the session's single outstanding debounce timer.
type PricingStage struct {
	crm     CRM
	logger  *logging.Logger
	metrics *metrics.WizardMetrics
	cfg     PricingConfig

	mu            sync.Mutex
	state         string
	debounceTimer *time.Timer
	settleTimer   *time.Timer
	expected      PricingSnapshot
	lastSignature string
}

// NewPricingStage creates the stage machine in the idle state.
func NewPricingStage(crm CRM, cfg PricingConfig, logger *logging.Logger, m *metrics.WizardMetrics) *PricingStage {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 1500 * time.Millisecond
	}
	if cfg.Settle == 0 {
		cfg.Settle = 500 * time.Millisecond
	}
	return &PricingStage{
		crm:     crm,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
		state:   recalcIdle,
	}
}

// State returns the current machine state.
func (s *PricingStage) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// QuantityBound returns the per-item quantity ceiling derived from the
// add-on's display name. Items without a recognized type keep a fixed
// quantity of 1 (no quantity control).
func QuantityBound(name string) int {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "window") || strings.Contains(n, "blind"):
		return 20
	case strings.Contains(n, "laundry") || strings.Contains(n, "organiz"):
		return 3
	case strings.Contains(n, "dish"):
		return 5
	default:
		return 1
	}
}

// BeginRestore enters the restoring state: auto-recalculation is
// suppressed until the observed stage state matches the expected
// snapshot and stays unchanged for the settle window.
func (s *PricingStage) BeginRestore(expected PricingSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelDebounceLocked()
	s.state = recalcRestoring
	s.expected = expected
}

// ObserveRestore feeds the currently observed stage state into the
// restore machine. Equality with the expected snapshot arms the settle
// timer; any divergence disarms it.
func (s *PricingStage) ObserveRestore(current PricingSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != recalcRestoring {
		return
	}
	if !snapshotsEqual(current, s.expected) {
		if s.settleTimer != nil {
			s.settleTimer.Stop()
			s.settleTimer = nil
		}
		return
	}
	if s.settleTimer != nil {
		s.settleTimer.Stop()
	}
	s.settleTimer = time.AfterFunc(s.cfg.Settle, s.finishRestore)
}

func (s *PricingStage) finishRestore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != recalcRestoring {
		return
	}
	s.state = recalcIdle
	s.settleTimer = nil
}

// QuestionEdited notes an edit to a pricing-question answer and arms the
// debounce timer. Rapid edits within the quiet window coalesce into one
// recalculation; edits during restoration are ignored.
func (s *PricingStage) QuestionEdited(ctrl *Controller) {
	s.mu.Lock()
	if s.state == recalcRestoring || s.state == recalcCalculating {
		s.mu.Unlock()
		return
	}
	s.cancelDebounceLocked()
	s.state = recalcDebouncing
	s.debounceTimer = time.AfterFunc(s.cfg.Debounce, func() {
		s.mu.Lock()
		if s.state == recalcDebouncing {
			s.state = recalcIdle
		}
		s.debounceTimer = nil
		s.mu.Unlock()
		s.recalculate(ctrl, "question")
	})
	s.mu.Unlock()
}

// ModificationChanged notes a change to the selected add-ons and
// recalculates immediately, with no debounce.
func (s *PricingStage) ModificationChanged(ctrl *Controller) {
	s.mu.Lock()
	if s.state == recalcRestoring {
		s.mu.Unlock()
		return
	}
	s.cancelDebounceLocked()
	if s.state == recalcDebouncing {
		s.state = recalcIdle
	}
	s.mu.Unlock()
	s.recalculate(ctrl, "modification")
}

func (s *PricingStage) cancelDebounceLocked() {
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
}

// ToggleModification adds or removes an add-on with a default quantity
// of 1. Only add-ons owned by a currently selected scope are accepted.
func ToggleModification(ctrl *Controller, mod quoting.RateModification) bool {
	record := ctrl.Snapshot()

	owned := false
	for _, scopeID := range record.Lead.ScopeIDs {
		if scopeID == mod.ScopeID {
			owned = true
			break
		}
	}
	if !owned {
		return false
	}

	mods := record.Quote.Modifications
	for i, m := range mods {
		if m.ID == mod.ID {
			mods = append(mods[:i], mods[i+1:]...)
			quote := record.Quote
			quote.Modifications = mods
			ctrl.Update(RecordUpdate{Quote: &quote})
			return true
		}
	}
	mods = append(mods, SelectedModification{
		ID:       mod.ID,
		Name:     mod.Name,
		Cost:     mod.Cost,
		ScopeID:  mod.ScopeID,
		Quantity: 1,
	})
	quote := record.Quote
	quote.Modifications = mods
	ctrl.Update(RecordUpdate{Quote: &quote})
	return true
}

// SetModificationQuantity adjusts a selected add-on's quantity, clamped
// to [1, bound-for-its-name].
func SetModificationQuantity(ctrl *Controller, modID string, quantity int) bool {
	record := ctrl.Snapshot()
	mods := record.Quote.Modifications
	for i, m := range mods {
		if m.ID != modID {
			continue
		}
		bound := QuantityBound(m.Name)
		if quantity < 1 {
			quantity = 1
		}
		if quantity > bound {
			quantity = bound
		}
		mods[i].Quantity = quantity
		quote := record.Quote
		quote.Modifications = mods
		ctrl.Update(RecordUpdate{Quote: &quote})
		return true
	}
	return false
}

// ValidateForCalculation checks the required-question gate for pricing:
// numeric slider questions are exempt, everything else required must be
// answered.
func (s *PricingStage) ValidateForCalculation(lead LeadState, questions []quoting.Question) FieldErrors {
	errs := FieldErrors{}
	for _, q := range questions {
		if q.Step == quoting.StepBeforePricing || !q.Required || IsSlider(q) {
			continue
		}
		if lead.Answers[q.ID].Empty() {
			errs[q.ID] = "This question is required."
		}
	}
	return errs
}

// GetPrice is the manual calculation path: creates the lead lazily if it
// has no id yet, defaults unanswered optional questions, and calculates.
func (s *PricingStage) GetPrice(ctx context.Context, ctrl *Controller, questions []quoting.Question) (FieldErrors, error) {
	record := ctrl.Snapshot()

	errs := s.ValidateForCalculation(record.Lead, questions)
	if len(errs) > 0 {
		return errs, ErrStepInvalid
	}

	if record.Lead.ID == "" {
		id, err := s.crm.UpsertLead(ctx, BuildLeadUpsert(record.Lead))
		if err != nil {
			return nil, err
		}
		ctrl.Update(RecordUpdate{Lead: &LeadUpdate{ID: &id}})
		record.Lead.ID = id
	}

	if err := s.calculate(ctx, ctrl, record, questions, "manual"); err != nil {
		return nil, err
	}
	return nil, nil
}

// recalculate is the automatic path used by the debounce timer and
// modification changes. It re-fetches questions for the selected scope
// and skips quietly when the gate fails or nothing changed.
func (s *PricingStage) recalculate(ctrl *Controller, trigger string) {
	s.mu.Lock()
	if s.state == recalcCalculating || s.state == recalcRestoring {
		s.mu.Unlock()
		return
	}
	s.state = recalcCalculating
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.state == recalcCalculating {
			s.state = recalcIdle
		}
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	record := ctrl.Snapshot()
	if record.Lead.ID == "" {
		return
	}
	scopeID, ok := record.Lead.SelectedScope()
	if !ok {
		return
	}
	questions, err := s.crm.GetQuestions(ctx, []string{scopeID})
	if err != nil {
		s.logger.Error("question fetch for recalculation failed", "error", err)
		s.metrics.ObserveRecalc(trigger, "error")
		return
	}
	if len(s.ValidateForCalculation(record.Lead, questions)) > 0 {
		return
	}
	if err := s.calculate(ctx, ctrl, record, questions, trigger); err != nil {
		s.logger.Error("price recalculation failed", "trigger", trigger, "error", err)
	}
}

// calculate builds the price request, applies the idempotence guard, and
// stores the breakdown on success. Stale results are dropped when the
// wizard has moved to a different step meanwhile.
func (s *PricingStage) calculate(ctx context.Context, ctrl *Controller, record BookingRecord, questions []quoting.Question, trigger string) error {
	req := s.buildPriceRequest(record, questions)
	sig := requestSignature(req)

	s.mu.Lock()
	if sig == s.lastSignature {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	epoch := ctrl.Epoch()
	result, err := s.crm.CalculatePrice(ctx, req)
	if err != nil {
		s.metrics.ObserveRecalc(trigger, "error")
		return err
	}

	breakdown, err := buildBreakdown(record, result)
	if err != nil {
		s.metrics.ObserveRecalc(trigger, "error")
		return err
	}

	quote := record.Quote
	quote.Price = breakdown
	if !ctrl.UpdateIfEpoch(epoch, RecordUpdate{Quote: &quote}) {
		// The user left the step while the call was in flight.
		return nil
	}

	s.mu.Lock()
	s.lastSignature = sig
	s.mu.Unlock()

	s.metrics.ObserveRecalc(trigger, "ok")
	s.logger.Info("price calculated", "trigger", trigger, "total", breakdown.Total)
	return nil
}

// buildPriceRequest assembles the calculate-price payload with defaults
// applied to unanswered optional questions so the CRM always sees a
// complete question set.
func (s *PricingStage) buildPriceRequest(record BookingRecord, questions []quoting.Question) quoting.PriceRequest {
	answers := make(map[string]Answer, len(record.Lead.Answers))
	for id, a := range record.Lead.Answers {
		answers[id] = a
	}
	for _, q := range questions {
		if answers[q.ID].Empty() {
			answers[q.ID] = DefaultAnswer(q)
		}
	}

	scopes := make([]quoting.PriceScope, 0, len(record.Lead.ScopeIDs))
	for _, scopeID := range record.Lead.ScopeIDs {
		scopes = append(scopes, quoting.PriceScope{
			ScopeID:           scopeID,
			FrequencyID:       record.Lead.Frequencies[scopeID],
			RateModifications: buildModSelections(record.Quote.Modifications, scopeID),
		})
	}

	qa := make([]quoting.QuestionAnswer, 0, len(answers))
	for id, a := range answers {
		qa = append(qa, quoting.QuestionAnswer{QuestionID: id, Answer: a.Submission()})
	}
	sort.Slice(qa, func(i, j int) bool { return qa[i].QuestionID < qa[j].QuestionID })

	return quoting.PriceRequest{
		PostalCode:   record.Lead.Address.PostalCode,
		ScopeGroupID: s.cfg.ScopeGroupID,
		Scopes:       scopes,
		Answers:      qa,
	}
}

func buildModSelections(mods []SelectedModification, scopeID string) []quoting.RateModSelection {
	out := make([]quoting.RateModSelection, 0, len(mods))
	for _, m := range mods {
		if m.ScopeID != scopeID {
			continue
		}
		out = append(out, quoting.RateModSelection{ID: m.ID, Quantity: m.Quantity, Recurring: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// buildBreakdown extracts the chosen scope/frequency's costs. Total is
// always base recurring cost plus the sum of applied add-on costs.
func buildBreakdown(record BookingRecord, result *quoting.PriceResult) (*PriceBreakdown, error) {
	scopeID, ok := record.Lead.SelectedScope()
	if !ok {
		return nil, fmt.Errorf("wizard: no scope selected")
	}
	freqID := record.Lead.Frequencies[scopeID]
	f, ok := result.FrequencyByID(scopeID, freqID)
	if !ok {
		return nil, fmt.Errorf("wizard: price result missing scope %s frequency %s", scopeID, freqID)
	}

	addOns := 0.0
	if len(f.RateModifications) > 0 {
		for _, m := range f.RateModifications {
			addOns += m.CalculatedCost
		}
	} else {
		for _, m := range record.Quote.Modifications {
			addOns += m.Cost * float64(m.Quantity)
		}
	}

	return &PriceBreakdown{
		Base:          f.RecurringCost,
		AddOns:        addOns,
		Total:         f.RecurringCost + addOns,
		FirstJobCost:  f.FirstJobCost,
		TotalHours:    f.RecurringHours,
		FrequencyName: f.FrequencyName,
	}, nil
}

// ValidateAddresses checks only the address block; dynamic-question
// validation already gates price calculation and is not re-run here.
func (s *PricingStage) ValidateAddresses(quote QuoteState) FieldErrors {
	errs := FieldErrors{}
	check := func(prefix string, a AddressForm) {
		if strings.TrimSpace(a.Street) == "" {
			errs[prefix+"Street"] = "This field is required."
		}
		if strings.TrimSpace(a.City) == "" {
			errs[prefix+"City"] = "This field is required."
		}
		if strings.TrimSpace(a.State) == "" {
			errs[prefix+"State"] = "This field is required."
		}
		if len(strings.TrimSpace(a.PostalCode)) < 5 {
			errs[prefix+"PostalCode"] = "Postal code must be at least 5 characters."
		}
	}
	check("service", quote.ServiceAddress)
	check("billing", quote.BillingAddress)
	return errs
}

// Continue saves the quote and advances to scheduling. The quote always
// upserts under its current id, starting from the placeholder sentinel
// until the CRM assigns a real one; scheduling-related question ids stay
// out of the payload.
func (s *PricingStage) Continue(ctx context.Context, ctrl *Controller) (FieldErrors, error) {
	record := ctrl.Snapshot()

	if record.Quote.Price == nil {
		return nil, ErrNoPrice
	}
	if errs := s.ValidateAddresses(record.Quote); len(errs) > 0 {
		return errs, ErrStepInvalid
	}

	quoteID := record.Quote.ID
	if quoteID == "" {
		quoteID = quoting.PlaceholderQuoteID
	}

	answers := make([]quoting.QuestionAnswer, 0, len(record.Lead.Answers))
	for id, a := range record.Lead.Answers {
		if _, excluded := schedulingQuestionIDs[id]; excluded {
			continue
		}
		if a.Empty() {
			continue
		}
		answers = append(answers, quoting.QuestionAnswer{QuestionID: id, Answer: a.Submission()})
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].QuestionID < answers[j].QuestionID })

	sow := make([]quoting.ScopeOfWorkEntry, 0, len(record.Lead.ScopeIDs))
	for _, scopeID := range record.Lead.ScopeIDs {
		sow = append(sow, quoting.ScopeOfWorkEntry{
			ScopeID:           scopeID,
			FrequencyID:       record.Lead.Frequencies[scopeID],
			RateModifications: buildModSelections(record.Quote.Modifications, scopeID),
		})
	}

	assigned, err := s.crm.UpsertQuote(ctx, quoting.QuoteUpsertRequest{
		LeadID:  record.Lead.ID,
		QuoteID: quoteID,
		ServiceAddress: quoting.Address{
			Street:     record.Quote.ServiceAddress.Street,
			City:       record.Quote.ServiceAddress.City,
			State:      record.Quote.ServiceAddress.State,
			PostalCode: record.Quote.ServiceAddress.PostalCode,
		},
		BillingAddress: quoting.Address{
			Street:     record.Quote.BillingAddress.Street,
			City:       record.Quote.BillingAddress.City,
			State:      record.Quote.BillingAddress.State,
			PostalCode: record.Quote.BillingAddress.PostalCode,
		},
		ScopeOfWork: sow,
		Answers:     answers,
	})
	if err != nil {
		return nil, err
	}

	quote := record.Quote
	quote.ID = assigned
	ctrl.Update(RecordUpdate{Quote: &quote})
	ctrl.Advance(StepPricing)
	s.metrics.ObserveStepAdvance("pricing")
	s.logger.Info("quote saved", "quote_id", assigned, "lead_id", record.Lead.ID)
	return nil, nil
}

// Back returns to stage 1 and clears the selected add-ons: they are
// scope-specific and may no longer apply once selections change.
func (s *PricingStage) Back(ctrl *Controller) {
	record := ctrl.Snapshot()
	quote := record.Quote
	quote.Modifications = nil
	ctrl.Update(RecordUpdate{Quote: &quote})
	ctrl.Back()
}

// requestSignature produces the idempotence key for a price request.
func requestSignature(req quoting.PriceRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	return string(data)
}

func snapshotsEqual(a, b PricingSnapshot) bool {
	da, errA := json.Marshal(normalizeSnapshot(a))
	db, errB := json.Marshal(normalizeSnapshot(b))
	if errA != nil || errB != nil {
		return false
	}
	return string(da) == string(db)
}

func normalizeSnapshot(s PricingSnapshot) PricingSnapshot {
	out := PricingSnapshot{
		Answers:       map[string]Answer{},
		Modifications: append([]SelectedModification(nil), s.Modifications...),
	}
	for id, a := range s.Answers {
		if !a.Empty() {
			out.Answers[id] = a
		}
	}
	sort.Slice(out.Modifications, func(i, j int) bool { return out.Modifications[i].ID < out.Modifications[j].ID })
	return out
}

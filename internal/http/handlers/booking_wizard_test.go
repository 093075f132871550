package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/quoting"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/session"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/wizard"
)

// stubCRM is a canned quoting backend for handler tests.
type stubCRM struct {
	mu sync.Mutex

	priceCalls int
	leadCalls  int

	bookErr error
	lastReq quoting.BookingRequest
}

func (s *stubCRM) GetScopeGroups(ctx context.Context) ([]quoting.ScopeGroup, error) {
	return []quoting.ScopeGroup{{
		ID:   "sg-1",
		Name: "Residential",
		Scopes: []quoting.Scope{{
			ID:          "scope-routine",
			Name:        "Routine Cleaning",
			Frequencies: []quoting.Frequency{{ID: "freq-weekly", Name: "Weekly"}},
		}},
	}}, nil
}

func (s *stubCRM) ValidPostalCode(ctx context.Context, code string) (bool, error) {
	return code == "78701", nil
}

func (s *stubCRM) GetQuestions(ctx context.Context, scopeIDs []string) ([]quoting.Question, error) {
	return []quoting.Question{
		{ID: "hear-about", Step: quoting.StepBeforePricing, Required: true, Type: quoting.TypeSelectList,
			Options: []quoting.QuestionOption{{ID: "o1", Label: "Online"}}},
		{ID: "bedrooms", Step: quoting.StepDuringPricing, Required: true, Type: quoting.TypeWholeNumber},
	}, nil
}

func (s *stubCRM) UpsertLead(ctx context.Context, req quoting.LeadUpsertRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leadCalls++
	return "lead-1", nil
}

func (s *stubCRM) GetRateModifications(ctx context.Context, scopeGroupID string, scopeIDs []string) ([]quoting.RateModification, error) {
	return []quoting.RateModification{
		{ID: "mod-fridge", Name: "Inside Fridge", Cost: 20, ScopeID: "scope-routine"},
	}, nil
}

func (s *stubCRM) CalculatePrice(ctx context.Context, req quoting.PriceRequest) (*quoting.PriceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceCalls++

	var mods []quoting.AppliedModification
	for _, sc := range req.Scopes {
		for _, m := range sc.RateModifications {
			mods = append(mods, quoting.AppliedModification{ID: m.ID, CalculatedCost: 20 * float64(m.Quantity)})
		}
	}
	return &quoting.PriceResult{Scopes: []quoting.ScopePrice{{
		ScopeID: "scope-routine",
		Frequencies: []quoting.FrequencyPrice{{
			FrequencyID:       "freq-weekly",
			FrequencyName:     "Weekly",
			RecurringCost:     150,
			FirstJobCost:      200,
			RecurringHours:    3,
			RateModifications: mods,
		}},
	}}}, nil
}

func (s *stubCRM) UpsertQuote(ctx context.Context, req quoting.QuoteUpsertRequest) (string, error) {
	return "quote-1", nil
}

func (s *stubCRM) GetAvailability(ctx context.Context, scopeGroupID string, hours int) ([]string, error) {
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	dayAfter := time.Now().AddDate(0, 0, 2).Format("2006-01-02")
	return []string{tomorrow, dayAfter}, nil
}

func (s *stubCRM) GetBillingTerms(ctx context.Context) ([]quoting.BillingTerm, error) {
	return []quoting.BillingTerm{{ID: "2", Name: "Per Service", Default: true}}, nil
}

func (s *stubCRM) BookQuote(ctx context.Context, req quoting.BookingRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReq = req
	if s.bookErr != nil {
		return "", s.bookErr
	}
	return "booking-1", nil
}

func (s *stubCRM) CreateNote(ctx context.Context, req quoting.NoteRequest) {}

func newTestHandler(crm wizard.CRM) *WizardHandler {
	return NewWizardHandler(crm, session.NewMemoryStore(time.Hour), WizardConfig{
		ScopeGroupID:      "sg-1",
		BillingTermsID:    "2",
		PriceDebounce:     10 * time.Millisecond,
		RestoreSettle:     5 * time.Millisecond,
		AvailabilityHours: 8,
	}, nil, nil, nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, stateResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var state stateResponse
	if rec.Code < 300 && rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &state)
	}
	return rec, state
}

func TestWizardHappyPath(t *testing.T) {
	crm := &stubCRM{}
	h := newTestHandler(crm).Routes()

	rec, state := doJSON(t, h, http.MethodPost, "/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d", rec.Code)
	}
	if state.Step != wizard.StepLead {
		t.Fatalf("expected step 1, got %d", state.Step)
	}
	base := "/sessions/" + state.SessionID

	// Stage 1: identity, address, scope, required question.
	rec, _ = doJSON(t, h, http.MethodPatch, base+"/lead", map[string]any{
		"firstName": "Jane", "lastName": "Doe",
		"email": "jane@x.com", "phone": "5511112222",
		"street": "12 Main St", "city": "Austin", "state": "TX", "postalCode": "78701",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("lead update: status %d body %s", rec.Code, rec.Body.String())
	}

	rec, state = doJSON(t, h, http.MethodPost, base+"/scope", map[string]any{"scopeId": "scope-routine"})
	if rec.Code != http.StatusOK {
		t.Fatalf("scope select: status %d", rec.Code)
	}
	if got := state.Record.Lead.Frequencies["scope-routine"]; got != "freq-weekly" {
		t.Fatalf("expected sole frequency auto-selected, got %q", got)
	}

	rec, _ = doJSON(t, h, http.MethodPost, base+"/answers", map[string]any{
		"questionId": "hear-about", "value": "Online",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer: status %d", rec.Code)
	}

	rec, state = doJSON(t, h, http.MethodPost, base+"/continue", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stage 1 continue: status %d body %s", rec.Code, rec.Body.String())
	}
	if state.Step != wizard.StepPricing {
		t.Fatalf("expected step 2, got %d", state.Step)
	}
	if state.Record.Lead.ID != "lead-1" {
		t.Fatalf("expected lead id stored, got %q", state.Record.Lead.ID)
	}

	// Stage 2: answer pricing question, one $20 add-on, manual price.
	rec, _ = doJSON(t, h, http.MethodPost, base+"/answers", map[string]any{
		"questionId": "bedrooms", "value": "3",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("pricing answer: status %d", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodPost, base+"/modifications/toggle", map[string]any{
		"id": "mod-fridge", "name": "Inside Fridge", "cost": 20.0, "scopeId": "scope-routine",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle modification: status %d body %s", rec.Code, rec.Body.String())
	}

	rec, state = doJSON(t, h, http.MethodPost, base+"/price", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get price: status %d body %s", rec.Code, rec.Body.String())
	}
	if state.Record.Quote.Price == nil {
		t.Fatal("expected price breakdown")
	}
	if total := state.Record.Quote.Price.Total; total != 170 {
		t.Fatalf("expected $170 total, got %v", total)
	}

	rec, _ = doJSON(t, h, http.MethodPatch, base+"/addresses", map[string]any{
		"service":              map[string]string{"street": "12 Main St", "city": "Austin", "state": "TX", "postalCode": "78701"},
		"billingSameAsService": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("addresses: status %d", rec.Code)
	}

	rec, state = doJSON(t, h, http.MethodPost, base+"/continue", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stage 2 continue: status %d body %s", rec.Code, rec.Body.String())
	}
	if state.Step != wizard.StepSchedule {
		t.Fatalf("expected step 3, got %d", state.Step)
	}
	if state.Record.Quote.ID != "quote-1" {
		t.Fatalf("expected quote id stored, got %q", state.Record.Quote.ID)
	}

	// Stage 3: date, payment token, complete.
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	rec, _ = doJSON(t, h, http.MethodPost, base+"/date", map[string]any{"date": tomorrow})
	if rec.Code != http.StatusOK {
		t.Fatalf("date select: status %d body %s", rec.Code, rec.Body.String())
	}

	rec, _ = doJSON(t, h, http.MethodPost, base+"/payment-token", map[string]any{
		"token": "tok_123", "expiry": "12/28",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("payment token: status %d", rec.Code)
	}

	rec, state = doJSON(t, h, http.MethodPost, base+"/complete", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status %d body %s", rec.Code, rec.Body.String())
	}
	if state.Step != wizard.StepSuccess {
		t.Fatalf("expected success step, got %d", state.Step)
	}
	if state.Record.Schedule.BookingID != "booking-1" {
		t.Fatalf("expected booking id, got %q", state.Record.Schedule.BookingID)
	}
	if got := crm.lastReq.BillingTermsID; got != "2" {
		t.Fatalf("expected billing terms id 2, got %q", got)
	}
	if state.Progress != 100 {
		t.Fatalf("expected full progress, got %d", state.Progress)
	}
}

func TestSessionNotFound(t *testing.T) {
	h := newTestHandler(&stubCRM{}).Routes()

	rec, _ := doJSON(t, h, http.MethodGet, "/sessions/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestInvalidPostalCodeMessage(t *testing.T) {
	h := newTestHandler(&stubCRM{}).Routes()

	_, state := doJSON(t, h, http.MethodPost, "/sessions", nil)
	base := "/sessions/" + state.SessionID

	rec, _ := doJSON(t, h, http.MethodPost, base+"/postal-code", map[string]any{"postalCode": "99999"})
	if rec.Code != http.StatusOK {
		t.Fatalf("postal check: status %d", rec.Code)
	}
	var resp struct {
		Valid   bool   `json:"valid"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Valid {
		t.Fatal("expected invalid postal code")
	}
	if resp.Message != wizard.ServiceAreaMessage {
		t.Fatalf("expected service-area message, got %q", resp.Message)
	}
}

func TestContinueReturnsFieldErrors(t *testing.T) {
	h := newTestHandler(&stubCRM{}).Routes()

	_, state := doJSON(t, h, http.MethodPost, "/sessions", nil)
	base := "/sessions/" + state.SessionID

	rec, _ := doJSON(t, h, http.MethodPost, base+"/continue", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Errors) == 0 {
		t.Fatal("expected field errors")
	}
}

func TestCompleteWithoutPaymentIsRejected(t *testing.T) {
	h := newTestHandler(&stubCRM{}).Routes()

	_, state := doJSON(t, h, http.MethodPost, "/sessions", nil)
	base := "/sessions/" + state.SessionID

	rec, _ := doJSON(t, h, http.MethodPost, base+"/complete", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCompletePaymentFailureMessage(t *testing.T) {
	crm := &stubCRM{bookErr: fmt.Errorf("quoting: payment token declined")}
	h := newTestHandler(crm)
	routes := h.Routes()

	_, state := doJSON(t, routes, http.MethodPost, "/sessions", nil)
	base := "/sessions/" + state.SessionID

	// Drive the runtime directly to a completable stage-3 state.
	h.mu.Lock()
	rt := h.live[state.SessionID]
	h.mu.Unlock()
	rt.ctrl.Update(wizard.RecordUpdate{Lead: &wizard.LeadUpdate{
		ID:          ptr("lead-1"),
		ScopeIDs:    &[]string{"scope-routine"},
		Frequencies: map[string]string{"scope-routine": "freq-weekly"},
	}})
	rt.ctrl.Advance(wizard.StepLead)
	rt.ctrl.Update(wizard.RecordUpdate{Quote: &wizard.QuoteState{
		ID:    "quote-1",
		Price: &wizard.PriceBreakdown{Base: 150, Total: 170},
	}})
	rt.ctrl.Advance(wizard.StepPricing)
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	rt.ctrl.Update(wizard.RecordUpdate{Schedule: &wizard.ScheduleState{
		Date: tomorrow, PaymentToken: "tok_bad", PaymentExpiry: "12/28",
	}})

	rec, _ := doJSON(t, routes, http.MethodPost, base+"/complete", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != wizard.PaymentRetryMessage {
		t.Fatalf("expected payment retry message, got %q", resp.Message)
	}
}

func TestSessionRestoredFromStore(t *testing.T) {
	crm := &stubCRM{}
	store := session.NewMemoryStore(time.Hour)
	cfg := WizardConfig{
		ScopeGroupID:      "sg-1",
		BillingTermsID:    "2",
		PriceDebounce:     10 * time.Millisecond,
		RestoreSettle:     5 * time.Millisecond,
		AvailabilityHours: 8,
	}

	first := NewWizardHandler(crm, store, cfg, nil, nil, nil).Routes()
	_, state := doJSON(t, first, http.MethodPost, "/sessions", nil)

	// A different handler instance simulates a process restart.
	second := NewWizardHandler(crm, store, cfg, nil, nil, nil).Routes()
	rec, restored := doJSON(t, second, http.MethodGet, "/sessions/"+state.SessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("restore: status %d", rec.Code)
	}
	if restored.SessionID != state.SessionID {
		t.Fatalf("expected same session id, got %q", restored.SessionID)
	}
	if restored.Step != wizard.StepLead {
		t.Fatalf("expected step 1 after restore, got %d", restored.Step)
	}
}

func TestFAQList(t *testing.T) {
	h := NewFAQHandler()
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/faqs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		FAQs []FAQEntry `json:"faqs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.FAQs) == 0 {
		t.Fatal("expected FAQ entries")
	}
}

func ptr(s string) *string { return &s }

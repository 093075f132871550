package wizard

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/observability/metrics"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/quoting"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/pkg/logging"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ErrStepInvalid is returned when a forward transition is attempted with
// outstanding validation errors.
var ErrStepInvalid = errors.New("wizard: step has validation errors")

// FieldErrors maps field or question ids to inline validation messages.
type FieldErrors map[string]string

// ServiceAreaMessage is shown when a postal code fails the service-area check.
const ServiceAreaMessage = "Service not available in this area."

// LeadStage validates stage-1 input and persists the lead via the CRM.
type LeadStage struct {
	crm     CRM
	logger  *logging.Logger
	metrics *metrics.WizardMetrics
}

// NewLeadStage creates the lead-capture stage service.
func NewLeadStage(crm CRM, logger *logging.Logger, m *metrics.WizardMetrics) *LeadStage {
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadStage{crm: crm, logger: logger, metrics: m}
}

// NormalizePhone strips formatting and returns the bare digits.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPhone progressively formats digits as NNN-NNN-NNNN while typing.
func FormatPhone(s string) string {
	digits := NormalizePhone(s)
	if len(digits) > 10 {
		digits = digits[:10]
	}
	switch {
	case len(digits) <= 3:
		return digits
	case len(digits) <= 6:
		return digits[:3] + "-" + digits[3:]
	default:
		return digits[:3] + "-" + digits[3:6] + "-" + digits[6:]
	}
}

// ValidEmail reports whether the address matches the accepted pattern.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// SelectScope replaces the current single-element scope selection and
// clears prior frequency choices. When the new scope offers exactly one
// frequency it is applied immediately and its validation error cleared.
func SelectScope(lead *LeadState, scope quoting.Scope, errs FieldErrors) {
	lead.ScopeIDs = []string{scope.ID}
	lead.Frequencies = map[string]string{}
	if len(scope.Frequencies) == 1 {
		lead.Frequencies[scope.ID] = scope.Frequencies[0].ID
		delete(errs, "frequency")
	}
}

// ApplyPlace back-fills the address form from an autocomplete selection.
func ApplyPlace(lead *LeadState, street, city, state, postal string) {
	lead.Address = AddressForm{Street: street, City: city, State: state, PostalCode: postal}
}

// ValidateField runs the blur-time check for one identity/address field.
// Postal codes are validated separately because they hit the network.
func (s *LeadStage) ValidateField(field, value string) (string, bool) {
	value = strings.TrimSpace(value)
	switch field {
	case "firstName", "lastName", "street", "city", "state":
		if value == "" {
			return "This field is required.", false
		}
	case "email":
		if !ValidEmail(value) {
			return "Enter a valid email address.", false
		}
	case "phone":
		if len(NormalizePhone(value)) != 10 {
			return "Enter a 10-digit phone number.", false
		}
	}
	return "", true
}

// CheckPostalCode enforces both conditions independently: minimum length
// and the authoritative service-area membership check. It is re-run on
// every edit to the field.
func (s *LeadStage) CheckPostalCode(ctx context.Context, code string) (string, bool, error) {
	if len(strings.TrimSpace(code)) < 5 {
		return "Postal code must be at least 5 characters.", false, nil
	}
	ok, err := s.crm.ValidPostalCode(ctx, code)
	if err != nil {
		return "", false, fmt.Errorf("postal code check: %w", err)
	}
	if !ok {
		return ServiceAreaMessage, false, nil
	}
	return "", true, nil
}

// Validate runs full stage-1 validation: identity, address, postal code,
// scope + frequency selection, and required pre-pricing questions.
func (s *LeadStage) Validate(ctx context.Context, lead LeadState, questions []quoting.Question) (FieldErrors, error) {
	errs := FieldErrors{}

	check := func(field, value string) {
		if msg, ok := s.ValidateField(field, value); !ok {
			errs[field] = msg
		}
	}
	check("firstName", lead.Identity.FirstName)
	check("lastName", lead.Identity.LastName)
	check("email", lead.Identity.Email)
	check("phone", lead.Identity.Phone)
	check("street", lead.Address.Street)
	check("city", lead.Address.City)
	check("state", lead.Address.State)

	if msg, ok, err := s.CheckPostalCode(ctx, lead.Address.PostalCode); err != nil {
		return nil, err
	} else if !ok {
		errs["postalCode"] = msg
	}

	scopeID, hasScope := lead.SelectedScope()
	if !hasScope {
		errs["scope"] = "Select a service."
	} else if _, ok := lead.Frequencies[scopeID]; !ok {
		errs["frequency"] = "Select a frequency."
	}

	for _, q := range QuestionsForStep(questions, quoting.StepBeforePricing) {
		if !q.Required {
			continue
		}
		if lead.Answers[q.ID].Empty() {
			errs[q.ID] = "This question is required."
		}
	}

	return errs, nil
}

// Progress returns stage 1's contribution (0-40) to the overall bar:
// filled required fields plus answered required pre-pricing questions,
// weighted to 40 points.
func (s *LeadStage) Progress(lead LeadState, questions []quoting.Question) int {
	total := 8 // identity (4) + address (4)
	filled := 0
	for _, v := range []string{
		lead.Identity.FirstName, lead.Identity.LastName, lead.Identity.Email, lead.Identity.Phone,
		lead.Address.Street, lead.Address.City, lead.Address.State, lead.Address.PostalCode,
	} {
		if strings.TrimSpace(v) != "" {
			filled++
		}
	}

	total++ // scope selection
	if _, ok := lead.SelectedScope(); ok {
		filled++
	}

	for _, q := range QuestionsForStep(questions, quoting.StepBeforePricing) {
		if !q.Required {
			continue
		}
		total++
		if !lead.Answers[q.ID].Empty() {
			filled++
		}
	}

	return filled * 40 / total
}

// Continue re-runs full validation and, if clean, upserts the lead
// (create on first save, update thereafter), stores the returned id, and
// advances the wizard. A missing id in the response is treated as
// failure and the wizard stays on the step.
func (s *LeadStage) Continue(ctx context.Context, ctrl *Controller, questions []quoting.Question) (FieldErrors, error) {
	record := ctrl.Snapshot()

	errs, err := s.Validate(ctx, record.Lead, questions)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return errs, ErrStepInvalid
	}

	id, err := s.crm.UpsertLead(ctx, BuildLeadUpsert(record.Lead))
	if err != nil {
		return nil, err
	}

	ctrl.Update(RecordUpdate{Lead: &LeadUpdate{ID: &id}})
	ctrl.Advance(StepLead)
	s.metrics.ObserveStepAdvance("lead")
	s.logger.Info("lead saved", "lead_id", id)
	return nil, nil
}

// BuildLeadUpsert converts wizard lead state into the CRM payload.
func BuildLeadUpsert(lead LeadState) quoting.LeadUpsertRequest {
	req := quoting.LeadUpsertRequest{
		ID:        lead.ID,
		FirstName: lead.Identity.FirstName,
		LastName:  lead.Identity.LastName,
		Email:     lead.Identity.Email,
		Phone:     NormalizePhone(lead.Identity.Phone),
		Address: quoting.Address{
			Street:     lead.Address.Street,
			City:       lead.Address.City,
			State:      lead.Address.State,
			PostalCode: lead.Address.PostalCode,
		},
		Scopes:  []quoting.ScopeSelection{},
		Answers: buildAnswers(lead.Answers),
	}
	for _, scopeID := range lead.ScopeIDs {
		req.Scopes = append(req.Scopes, quoting.ScopeSelection{
			ScopeID:     scopeID,
			FrequencyID: lead.Frequencies[scopeID],
		})
	}
	return req
}

// buildAnswers flattens the answer map deterministically.
func buildAnswers(answers map[string]Answer) []quoting.QuestionAnswer {
	out := make([]quoting.QuestionAnswer, 0, len(answers))
	for id, a := range answers {
		if a.Empty() && a.Kind != AnswerMulti {
			continue
		}
		out = append(out, quoting.QuestionAnswer{QuestionID: id, Answer: a.Submission()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

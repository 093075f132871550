package quoting

import "encoding/json"

// Question step phases as tagged by the CRM.
const (
	StepBeforePricing = "1-Before Pricing"
	StepDuringPricing = "2-During Pricing"
	StepAfterPricing  = "3-After Pricing"
)

// Question types as tagged by the CRM. Anything else is free text.
const (
	TypeSelectList  = "Select List"
	TypeMultiSelect = "Multiple Select List"
	TypeWholeNumber = "Whole Number"
	TypeDecimal     = "Decimal"
	TypeRichText    = "Rich Text"
	TypeTime        = "Time"
)

// PlaceholderQuoteID is sent on quote upserts until the CRM assigns a real id.
const PlaceholderQuoteID = "000000000000000000000000"

// envelope is the CRM's standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Status  int             `json:"status"`
}

// ScopeGroup is a named collection of purchasable service types.
type ScopeGroup struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Scopes []Scope `json:"scopes"`
}

// Scope is a purchasable service type with its recurrence options.
type Scope struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Frequencies []Frequency `json:"frequencies"`
}

// Frequency is a recurrence cadence for a scope.
type Frequency struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// QuestionOption is one selectable answer for a choice-type question.
type QuestionOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Question is an externally defined dynamic form field.
type Question struct {
	ID        string           `json:"id"`
	Text      string           `json:"text"`
	HelpText  string           `json:"helpText"`
	Required  bool             `json:"required"`
	Step      string           `json:"step"`
	Type      string           `json:"type"`
	Options   []QuestionOption `json:"options,omitempty"`
	SortOrder int              `json:"sortOrder"`
}

// Address is a street address as the CRM expects it.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
}

// ScopeSelection pairs a scope with its chosen frequency.
type ScopeSelection struct {
	ScopeID     string `json:"scopeId"`
	FrequencyID string `json:"frequencyId"`
}

// QuestionAnswer is one answered question in a submission payload.
type QuestionAnswer struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// LeadUpsertRequest is the full lead shape sent to the CRM. An empty ID
// creates; a non-empty ID updates in place.
type LeadUpsertRequest struct {
	ID        string           `json:"id,omitempty"`
	FirstName string           `json:"firstName"`
	LastName  string           `json:"lastName"`
	Email     string           `json:"email"`
	Phone     string           `json:"phone"`
	Address   Address          `json:"address"`
	Scopes    []ScopeSelection `json:"scopes"`
	Answers   []QuestionAnswer `json:"answers"`
}

// leadUpsertResult tolerates the lead id arriving at the top level or
// nested under the result wrapper.
type leadUpsertResult struct {
	LeadID string `json:"leadId"`
	ID     string `json:"id"`
}

// RateModification is an optional add-on service offered by the CRM.
type RateModification struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Cost        float64 `json:"cost"`
	ScopeID     string  `json:"scopeId"`
	Description string  `json:"description"`
}

// RateModSelection is a chosen add-on inside a pricing or booking payload.
type RateModSelection struct {
	ID        string `json:"id"`
	Quantity  int    `json:"quantity"`
	Recurring bool   `json:"recurring"`
}

// PriceScope carries one scope's selections into a price calculation.
type PriceScope struct {
	ScopeID           string             `json:"scopeId"`
	FrequencyID       string             `json:"frequencyId"`
	RateModifications []RateModSelection `json:"rateModifications"`
}

// PriceRequest is the calculate-price payload.
type PriceRequest struct {
	PostalCode   string           `json:"postalCode"`
	ScopeGroupID string           `json:"scopeGroupId"`
	Scopes       []PriceScope     `json:"scopes"`
	Answers      []QuestionAnswer `json:"answers"`
}

// AppliedModification is an add-on with its calculated cost.
type AppliedModification struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	CalculatedCost float64 `json:"calculatedCost"`
}

// FrequencyPrice is one frequency's cost breakdown for a scope.
type FrequencyPrice struct {
	FrequencyID       string                `json:"frequencyId"`
	FrequencyName     string                `json:"frequencyName"`
	BaseCost          float64               `json:"baseCost"`
	MinimumCost       float64               `json:"minimumCost"`
	RecurringCost     float64               `json:"recurringCost"`
	FirstJobCost      float64               `json:"firstJobCost"`
	BaseHours         float64               `json:"baseHours"`
	RecurringHours    float64               `json:"recurringHours"`
	FirstJobHours     float64               `json:"firstJobHours"`
	RateModifications []AppliedModification `json:"rateModifications"`
}

// ScopePrice is the per-scope slice of a price result.
type ScopePrice struct {
	ScopeID     string           `json:"scopeId"`
	Frequencies []FrequencyPrice `json:"frequencies"`
}

// PriceResult is the calculate-price response.
type PriceResult struct {
	Scopes []ScopePrice `json:"scopes"`
}

// FrequencyByID returns the breakdown for one scope/frequency pair.
func (p *PriceResult) FrequencyByID(scopeID, frequencyID string) (FrequencyPrice, bool) {
	for _, s := range p.Scopes {
		if s.ScopeID != scopeID {
			continue
		}
		for _, f := range s.Frequencies {
			if f.FrequencyID == frequencyID {
				return f, true
			}
		}
	}
	return FrequencyPrice{}, false
}

// ScopeOfWorkEntry is the booking-time representation of one scope.
type ScopeOfWorkEntry struct {
	ScopeID           string             `json:"scopeId"`
	FrequencyID       string             `json:"frequencyId"`
	FirstJobDate      string             `json:"firstJobDate,omitempty"`
	RateModifications []RateModSelection `json:"rateModifications"`
}

// QuoteUpsertRequest is the quote-save payload. QuoteID carries
// PlaceholderQuoteID until the CRM assigns a real one.
type QuoteUpsertRequest struct {
	LeadID         string             `json:"leadId"`
	QuoteID        string             `json:"quoteId"`
	ServiceAddress Address            `json:"serviceAddress"`
	BillingAddress Address            `json:"billingAddress"`
	ScopeOfWork    []ScopeOfWorkEntry `json:"scopeOfWork"`
	Answers        []QuestionAnswer   `json:"answers"`
}

type quoteUpsertResult struct {
	QuoteID string `json:"quoteId"`
	ID      string `json:"id"`
}

// availabilitySlot is the richer per-date wire shape.
type availabilitySlot struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// BillingTerm is a payment-terms option offered by the CRM.
type BillingTerm struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
}

// BookingRequest finalizes a quote into a booking.
type BookingRequest struct {
	LeadID         string             `json:"leadId"`
	QuoteID        string             `json:"quoteId"`
	ScopeGroupID   string             `json:"scopeGroupId"`
	ScopeOfWork    []ScopeOfWorkEntry `json:"scopeOfWork"`
	PaymentToken   string             `json:"paymentToken"`
	PaymentExpiry  string             `json:"paymentExpiry"`
	BillingTermsID string             `json:"billingTermsId"`
	NotifyCustomer bool               `json:"notifyCustomer"`
	NotifyProvider bool               `json:"notifyProvider"`
}

type bookingResult struct {
	BookingID string `json:"bookingId"`
	ID        string `json:"id"`
}

// NoteRequest attaches a free-text note to a lead or booking.
type NoteRequest struct {
	LeadID    string `json:"leadId"`
	BookingID string `json:"bookingId,omitempty"`
	Text      string `json:"text"`
}

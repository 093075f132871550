package wizard

// Wizard step numbers. Step 4 is the terminal success view.
const (
	StepLead     = 1
	StepPricing  = 2
	StepSchedule = 3
	StepSuccess  = 4
)

// Identity holds the customer's contact fields.
type Identity struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// AddressForm is a street address as entered in the wizard.
type AddressForm struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
}

// LeadState is the wizard's view of the prospective customer. ScopeIDs is
// a slice for wire compatibility but every mutation path keeps it at most
// one element.
type LeadState struct {
	ID          string            `json:"id"`
	Identity    Identity          `json:"identity"`
	Address     AddressForm       `json:"address"`
	ScopeIDs    []string          `json:"scopeIds"`
	Frequencies map[string]string `json:"frequencies"` // scope id -> frequency id
	Answers     map[string]Answer `json:"answers"`     // question id -> answer
}

// SelectedModification is an add-on the customer opted into.
type SelectedModification struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Cost     float64 `json:"cost"`
	ScopeID  string  `json:"scopeId"`
	Quantity int     `json:"quantity"`
}

// PriceBreakdown is the computed price the pricing stage displays.
type PriceBreakdown struct {
	Base          float64 `json:"base"` // recurring cost for the chosen frequency
	AddOns        float64 `json:"addOns"`
	Total         float64 `json:"total"`
	FirstJobCost  float64 `json:"firstJobCost"`
	TotalHours    float64 `json:"totalHours"`
	FrequencyName string  `json:"frequencyName"`
}

// AdditionalServices reconstructs the add-on total from the grand total.
func (p PriceBreakdown) AdditionalServices() float64 {
	return p.Total - p.Base
}

// QuoteState is the wizard's view of the priced proposal.
type QuoteState struct {
	ID             string                 `json:"id"`
	Price          *PriceBreakdown        `json:"price,omitempty"`
	ServiceAddress AddressForm            `json:"serviceAddress"`
	BillingAddress AddressForm            `json:"billingAddress"`
	Modifications  []SelectedModification `json:"modifications"`
}

// ScheduleState holds stage-3 selections and the finalized booking id.
type ScheduleState struct {
	Date          string `json:"date"` // local calendar date, YYYY-MM-DD
	Time          string `json:"time,omitempty"`
	PaymentToken  string `json:"paymentToken"`
	PaymentExpiry string `json:"paymentExpiry"`
	BookingID     string `json:"bookingId"`
}

/// BookingRecord is the aggregate wizard state: every stage's output in
// one place, owned by the controller.
type BookingRecord struct {
	Step     int           `json:"step"`
	Lead     LeadState     `json:"lead"`
	Quote    QuoteState    `json:"quote"`
	Schedule ScheduleState `json:"schedule"`
}

// LeadUpdate is a partial edit to the lead sub-object. Nil fields leave
// the existing value untouched, so partial edits don't clobber unrelated
// lead fields.
type LeadUpdate struct {
	ID          *string           `json:"id,omitempty"`
	Identity    *Identity         `json:"identity,omitempty"`
	Address     *AddressForm      `json:"address,omitempty"`
	ScopeIDs    *[]string         `json:"scopeIds,omitempty"`
	Frequencies map[string]string `json:"frequencies,omitempty"`
	Answers     map[string]Answer `json:"answers,omitempty"`
}

// RecordUpdate is a partial update a stage proposes to the aggregate
/// record: shallow at the top level, with the lead merged one level deeper.
type RecordUpdate struct {
	Lead     *LeadUpdate    `json:"lead,omitempty"`
	Quote    *QuoteState    `json:"quote,omitempty"`
	Schedule *ScheduleState `json:"schedule,omitempty"`
}

// apply merges the update into the record.
func (r *BookingRecord) apply(u RecordUpdate) {
	if u.Lead != nil {
		if u.Lead.ID != nil {
			r.Lead.ID = *u.Lead.ID
		}
		if u.Lead.Identity != nil {
			r.Lead.Identity = *u.Lead.Identity
		}
		if u.Lead.Address != nil {
			r.Lead.Address = *u.Lead.Address
		}
		if u.Lead.ScopeIDs != nil {
			r.Lead.ScopeIDs = *u.Lead.ScopeIDs
		}
		if u.Lead.Frequencies != nil {
			r.Lead.Frequencies = u.Lead.Frequencies
		}
		if u.Lead.Answers != nil {
			r.Lead.Answers = u.Lead.Answers
		}
	}
	if u.Quote != nil {
		r.Quote = *u.Quote
	}
	if u.Schedule != nil {
		r.Schedule = *u.Schedule
	}
}

// SelectedScope returns the single active scope id, if any.
func (l LeadState) SelectedScope() (string, bool) {
	if len(l.ScopeIDs) == 0 {
		return "", false
	}
	return l.ScopeIDs[0], true
}

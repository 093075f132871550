package wizard

import "sync"

// Controller owns the current step and the aggregate booking record.
// Stages read a snapshot and propose partial updates through Update;
// nothing else mutates the record. Advancing happens only on an explicit
// call after a stage's own validation and persistence succeeded.
type Controller struct {
	mu     sync.Mutex
	record BookingRecord
	epoch  uint64 // bumped on every step change; stale-result guard
}

// NewController starts a wizard at the lead step.
func NewController() *Controller {
	return &Controller{record: BookingRecord{
		Step: StepLead,
		Lead: LeadState{
			ScopeIDs:    []string{},
			Frequencies: map[string]string{},
			Answers:     map[string]Answer{},
		},
	}}
}

// Restore rebuilds a controller from a persisted record snapshot.
func Restore(record BookingRecord) *Controller {
	if record.Step < StepLead || record.Step > StepSuccess {
		record.Step = StepLead
	}
	if record.Lead.Frequencies == nil {
		record.Lead.Frequencies = map[string]string{}
	}
	if record.Lead.Answers == nil {
		record.Lead.Answers = map[string]Answer{}
	}
	return &Controller{record: record}
}

// Snapshot returns a copy of the aggregate record.
func (c *Controller) Snapshot() BookingRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyRecord()
}

// Step returns the current step number.
func (c *Controller) Step() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.Step
}

// Epoch returns the current step epoch, for liveness checks around
// asynchronous work.
func (c *Controller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Update merges a partial update into the record.
func (c *Controller) Update(u RecordUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record.apply(u)
}

// UpdateIfEpoch merges the update only if the step epoch still matches,
// dropping stale results that arrive after the user left the step.
func (c *Controller) UpdateIfEpoch(epoch uint64, u RecordUpdate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.record.apply(u)
	return true
}

// Advance moves forward one step, but only from the step the caller just
// completed. Returns the new step.
func (c *Controller) Advance(from int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record.Step != from || c.record.Step >= StepSuccess {
		return c.record.Step, false
	}
	c.record.Step++
	c.epoch++
	return c.record.Step, true
}

// Back moves one step backward without losing any entered data.
func (c *Controller) Back() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record.Step > StepLead {
		c.record.Step--
		c.epoch++
	}
	return c.record.Step
}

func (c *Controller) copyRecord() BookingRecord {
	out := c.record
	out.Lead.ScopeIDs = append([]string(nil), c.record.Lead.ScopeIDs...)
	out.Lead.Frequencies = make(map[string]string, len(c.record.Lead.Frequencies))
	for k, v := range c.record.Lead.Frequencies {
		out.Lead.Frequencies[k] = v
	}
	out.Lead.Answers = make(map[string]Answer, len(c.record.Lead.Answers))
	for k, v := range c.record.Lead.Answers {
		out.Lead.Answers[k] = v
	}
	out.Quote.Modifications = append([]SelectedModification(nil), c.record.Quote.Modifications...)
	if c.record.Quote.Price != nil {
		price := *c.record.Quote.Price
		out.Quote.Price = &price
	}
	return out
}

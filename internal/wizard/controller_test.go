package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerStartsAtLeadStep(t *testing.T) {
	ctrl := NewController()
	assert.Equal(t, StepLead, ctrl.Step())
	record := ctrl.Snapshot()
	assert.NotNil(t, record.Lead.Frequencies)
	assert.NotNil(t, record.Lead.Answers)
}

func TestUpdateMergesLeadFieldByField(t *testing.T) {
	ctrl := NewController()
	ctrl.Update(RecordUpdate{Lead: &LeadUpdate{
		Identity: &Identity{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com", Phone: "5551112222"},
	}})
	ctrl.Update(RecordUpdate{Lead: &LeadUpdate{
		Address: &AddressForm{Street: "12 Main St", City: "Austin", State: "TX", PostalCode: "78701"},
	}})

	record := ctrl.Snapshot()
	assert.Equal(t, "Jane", record.Lead.Identity.FirstName, "earlier identity update survives later address update")
	assert.Equal(t, "12 Main St", record.Lead.Address.Street)
}

func TestSnapshotIsIsolated(t *testing.T) {
	ctrl := NewController()
	ctrl.Update(RecordUpdate{Lead: &LeadUpdate{
		Answers: map[string]Answer{"bedrooms": {Kind: AnswerNumber, Value: "3"}},
	}})

	snap := ctrl.Snapshot()
	snap.Lead.Answers["bedrooms"] = Answer{Kind: AnswerNumber, Value: "99"}
	snap.Lead.ScopeIDs = append(snap.Lead.ScopeIDs, "scope-x")

	record := ctrl.Snapshot()
	assert.Equal(t, "3", record.Lead.Answers["bedrooms"].Value)
	assert.Empty(t, record.Lead.ScopeIDs)
}

func TestAdvanceOnlyFromCurrentStep(t *testing.T) {
	ctrl := NewController()

	step, ok := ctrl.Advance(StepPricing)
	assert.False(t, ok, "cannot advance from a step the wizard is not on")
	assert.Equal(t, StepLead, step)

	step, ok = ctrl.Advance(StepLead)
	assert.True(t, ok)
	assert.Equal(t, StepPricing, step)

	ctrl.Advance(StepPricing)
	ctrl.Advance(StepSchedule)
	assert.Equal(t, StepSuccess, ctrl.Step())

	_, ok = ctrl.Advance(StepSuccess)
	assert.False(t, ok, "terminal step does not advance")
}

func TestBackStopsAtFirstStep(t *testing.T) {
	ctrl := NewController()
	ctrl.Advance(StepLead)
	assert.Equal(t, StepLead, ctrl.Back())
	assert.Equal(t, StepLead, ctrl.Back())
}

func TestUpdateIfEpochRejectsStaleWrites(t *testing.T) {
	ctrl := NewController()
	epoch := ctrl.Epoch()

	price := &PriceBreakdown{Base: 120, Total: 120}
	require.True(t, ctrl.UpdateIfEpoch(epoch, RecordUpdate{Quote: &QuoteState{Price: price}}))

	epoch = ctrl.Epoch()
	ctrl.Advance(StepLead) // bumps the epoch
	assert.False(t, ctrl.UpdateIfEpoch(epoch, RecordUpdate{Quote: &QuoteState{}}))
	assert.NotNil(t, ctrl.Snapshot().Quote.Price, "stale write dropped, prior state intact")
}

func TestBackPreservesDataForRestoration(t *testing.T) {
	ctrl := NewController()
	lead := validLead()
	ctrl.Update(RecordUpdate{Lead: &LeadUpdate{
		ID:          strPtr("lead-1"),
		Identity:    &lead.Identity,
		Address:     &lead.Address,
		ScopeIDs:    &lead.ScopeIDs,
		Frequencies: lead.Frequencies,
		Answers:     map[string]Answer{"bedrooms": {Kind: AnswerNumber, Value: "3"}},
	}})
	ctrl.Advance(StepLead)
	quote := QuoteState{
		ID:    "quote-1",
		Price: &PriceBreakdown{Base: 150, AddOns: 20, Total: 170},
		Modifications: []SelectedModification{
			{ID: "mod-fridge", Name: "Inside Fridge", Cost: 20, ScopeID: "scope-home", Quantity: 1},
		},
	}
	ctrl.Update(RecordUpdate{Quote: &quote})
	ctrl.Advance(StepPricing)

	// Going back and forth loses nothing.
	ctrl.Back()
	ctrl.Back()
	record := ctrl.Snapshot()
	assert.Equal(t, StepLead, record.Step)
	assert.Equal(t, "lead-1", record.Lead.ID)
	assert.Equal(t, "quote-1", record.Quote.ID)
	assert.Equal(t, 170.0, record.Quote.Price.Total)
	assert.Equal(t, "3", record.Lead.Answers["bedrooms"].Value)
}

func TestRestoreRebuildsFromRecord(t *testing.T) {
	original := NewController()
	original.Update(RecordUpdate{Lead: &LeadUpdate{ID: strPtr("lead-1")}})
	original.Advance(StepLead)

	restored := Restore(original.Snapshot())
	assert.Equal(t, StepPricing, restored.Step())
	assert.Equal(t, "lead-1", restored.Snapshot().Lead.ID)
}

func TestRestoreNormalizesBadStep(t *testing.T) {
	restored := Restore(BookingRecord{Step: 42})
	assert.Equal(t, StepLead, restored.Step())
}

package wizard

import (
	"context"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/quoting"
)

// CRM is the slice of the quoting client the wizard stages depend on.
// *quoting.Client satisfies it; tests substitute fakes.
type CRM interface {
	GetScopeGroups(ctx context.Context) ([]quoting.ScopeGroup, error)
	ValidPostalCode(ctx context.Context, code string) (bool, error)
	GetQuestions(ctx context.Context, scopeIDs []string) ([]quoting.Question, error)
	UpsertLead(ctx context.Context, req quoting.LeadUpsertRequest) (string, error)
	GetRateModifications(ctx context.Context, scopeGroupID string, scopeIDs []string) ([]quoting.RateModification, error)
	CalculatePrice(ctx context.Context, req quoting.PriceRequest) (*quoting.PriceResult, error)
	UpsertQuote(ctx context.Context, req quoting.QuoteUpsertRequest) (string, error)
	GetAvailability(ctx context.Context, scopeGroupID string, hours int) ([]string, error)
	GetBillingTerms(ctx context.Context) ([]quoting.BillingTerm, error)
	BookQuote(ctx context.Context, req quoting.BookingRequest) (string, error)
	CreateNote(ctx context.Context, req quoting.NoteRequest)
}

package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/wizard"
)

// ErrNotFound is returned when a session id has no stored record, either
// because it never existed or because its TTL elapsed.
var ErrNotFound = errors.New("session: not found")

// Session is one visitor's wizard in progress: the aggregate booking
// record plus bookkeeping timestamps.
type Session struct {
	ID        string               `json:"id"`
	Record    wizard.BookingRecord `json:"record"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// New creates a fresh session with a generated id and a wizard at step 1.
func New() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Record:    wizard.NewController().Snapshot(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

package event

import (
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("event not found")
)

// Event is a campus activity accepting applications. All fields except the
// application counter are owned by the (out-of-scope) event-editing
// collaborator; the lifecycle engine only reads them and bumps the counter.
type Event struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	CoordinatorID string `json:"coordinator_id"`

	MaxParticipants int `json:"max_participants"`
	// ApplicationCount counts applications received, not approved
	// participants. It is incremented exactly once per successful submission
	// and never decremented by a rejection or withdrawal; approved headcount
	// is served by the application stats aggregate.
	ApplicationCount int `json:"application_count"`
	TeamSize         int `json:"team_size"`

	RegistrationDeadline time.Time `json:"registration_deadline"` // UTC
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"` // UTC
	UpdatedAt            time.Time `json:"updated_at"` // UTC
}

// IsOpen reports whether the event still accepts submissions at `now`.
// The deadline is a point-in-time gate; there is no expiry sweep.
func (e *Event) IsOpen(now time.Time) bool {
	return e.IsActive && !now.After(e.RegistrationDeadline)
}

type Repository interface {
	GetEventByID(id string) (Event, error)
	// IncrementApplicationCount atomically bumps the event's application
	// counter by one.
	IncrementApplicationCount(id string) error
}

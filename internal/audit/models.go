package audit

import "time"

// Event is an immutable, append-only record of a session event.
//
// Invariants:
// - Events are never updated or deleted.
// - profile is required; it names the console profile whose session changed.
// - actor fields come from unverified token claims and are informational only.
type Event struct {
	ID      string    `json:"id" db:"id"`
	Profile string    `json:"profile" db:"profile"`
	Type    EventType `json:"type" db:"type"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// Path is the navigation target that produced the event, if any.
	Path   string `json:"path,omitempty" db:"path"`
	Reason string `json:"reason,omitempty" db:"reason"`

	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeForcedLogout EventType = "forced_logout"
	EventTypeRoleDenied   EventType = "role_denied"
	EventTypeLogin        EventType = "login"
	EventTypeLogout       EventType = "logout"
)

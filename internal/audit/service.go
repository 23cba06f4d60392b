package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const defaultRecentLimit = 50

// Repository is the persistence contract for audit events. It is append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
	Recent(ctx context.Context, profile string, limit int) ([]Event, error)
}

// Service records session events.
//
// Callers treat audit logging as best-effort: a failed append is logged by
// the caller and never changes a navigation or logout outcome.
type Service struct {
	repo    Repository
	profile string
	clock   func() time.Time
}

func NewService(repo Repository, profile string) *Service {
	return &Service{repo: repo, profile: profile, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Profile == "" {
		e.Profile = s.profile
	}
	if e.Profile == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Recent returns this profile's newest events, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.Recent(ctx, s.profile, limit)
}

// LogForcedLogout records credentials cleared because a protected navigation
// found no usable token.
func (s *Service) LogForcedLogout(ctx context.Context, path, reason string) error {
	return s.Append(ctx, Event{
		Type:    EventTypeForcedLogout,
		Path:    path,
		Reason:  reason,
		Message: "credentials cleared on protected navigation",
	})
}

// LogRoleDenied records a soft denial of a role-restricted view.
func (s *Service) LogRoleDenied(ctx context.Context, userID, role, path string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeRoleDenied,
		ActorUserID: userID,
		ActorRole:   role,
		Path:        path,
		Reason:      "role_not_permitted",
	})
}

func (s *Service) LogLogin(ctx context.Context, userID, role string) error {
	return s.Append(ctx, Event{Type: EventTypeLogin, ActorUserID: userID, ActorRole: role})
}

func (s *Service) LogLogout(ctx context.Context, userID, role string) error {
	return s.Append(ctx, Event{Type: EventTypeLogout, ActorUserID: userID, ActorRole: role})
}

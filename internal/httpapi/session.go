package httpapi

import (
	"context"
	"log/slog"

	"autodl-console/internal/audit"
	"autodl-console/internal/credstore"
	"autodl-console/internal/events"
	"autodl-console/internal/notify"
	"autodl-console/internal/token"
	"autodl-console/pkg/logger"
)

// Disconnecter is the shared channel's teardown.
type Disconnecter interface {
	Disconnect() error
}

// Session owns the operator's signed-in lifetime: starting the global event
// consumer after sign-in and tearing everything down on logout.
type Session struct {
	Store       credstore.Store
	Distributor *events.Distributor
	Channel     Disconnecter
	Notify      *notify.Store
	Audit       *audit.Service
	Codec       *token.Codec
	Logger      *slog.Logger
}

func (s *Session) log() *slog.Logger { return logger.OrDefault(s.Logger) }

func (s *Session) codec() *token.Codec {
	if s.Codec == nil {
		return token.NewCodec()
	}
	return s.Codec
}

// claims returns the stored token's claims, or nil.
func (s *Session) claims(ctx context.Context) token.Claims {
	raw := credstore.AccessToken(ctx, s.Store)
	if raw == "" {
		return nil
	}
	c, err := s.codec().Decode(raw)
	if err != nil {
		return nil
	}
	return c
}

// Resume starts the global consumer when a usable token is already stored,
// e.g. when the console restarts with a persistent credential store.
func (s *Session) Resume(ctx context.Context) bool {
	raw := credstore.AccessToken(ctx, s.Store)
	if raw == "" || s.codec().IsExpired(raw) {
		return false
	}
	if err := s.Distributor.Initialize(ctx); err != nil {
		s.log().Warn("session resume: event channel unavailable", "err", err)
	}
	return true
}

// Started runs after a successful sign-in.
func (s *Session) Started(ctx context.Context) {
	c := s.claims(ctx)
	if s.Audit != nil {
		if err := s.Audit.LogLogin(ctx, c.UserID(), c.Role()); err != nil {
			s.log().Warn("audit append failed", "err", err)
		}
	}
	if err := s.Distributor.Initialize(ctx); err != nil {
		s.log().Warn("event channel unavailable after sign-in", "err", err)
	}
}

// Logout is the one place the shared channel is disconnected. It clears both
// credentials, removes the global consumer's handlers, then closes the
// connection. Scoped consumers are expected to unmount on their own.
func (s *Session) Logout(ctx context.Context) error {
	c := s.claims(ctx)

	err := credstore.Clear(ctx, s.Store)
	if err != nil {
		s.log().Error("logout: clearing credentials failed", "err", err)
	}
	s.Distributor.Cleanup()
	if s.Channel != nil {
		if derr := s.Channel.Disconnect(); derr != nil {
			s.log().Warn("logout: channel disconnect failed", "err", derr)
		}
	}

	if s.Audit != nil && c != nil {
		if aerr := s.Audit.LogLogout(ctx, c.UserID(), c.Role()); aerr != nil {
			s.log().Warn("audit append failed", "err", aerr)
		}
	}
	if s.Notify != nil {
		s.Notify.Info("You have been signed out.", "Signed Out")
	}
	s.log().Info("logged out")
	return err
}

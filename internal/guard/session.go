package guard

import (
	"context"
	"errors"
	"time"

	"autodl-console/internal/token"
)

// Session is derived from the stored access token on every navigation.
// It is never cached between navigations.
type Session struct {
	Present bool
	Expired bool
	Role    string
	Claims  token.Claims
}

// Valid reports whether the session can enter protected views.
func (s Session) Valid() bool { return s.Present && !s.Expired }

// SessionFromToken derives a Session from raw at now. A malformed token is
// present but expired.
func SessionFromToken(codec *token.Codec, raw string, now time.Time) Session {
	if raw == "" {
		return Session{}
	}
	claims, err := codec.Decode(raw)
	if err != nil {
		return Session{Present: true, Expired: true, Role: token.DefaultRole}
	}
	return Session{
		Present: true,
		Expired: claims.Expired(now),
		Role:    claims.Role(),
		Claims:  claims,
	}
}

type ctxKey int

const ctxSession ctxKey = iota

// WithSession attaches the session of an allowed navigation to ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxSession, s)
}

func SessionFrom(ctx context.Context) (Session, error) {
	if s, ok := ctx.Value(ctxSession).(Session); ok {
		return s, nil
	}
	return Session{}, errors.New("session not in context")
}

// Package credstore persists the operator's access and refresh tokens.
//
// It is the console's equivalent of browser local storage: a small key/value
// store with no logic of its own. A missing value is reported with ok=false,
// never as an error.
package credstore

import (
	"context"
	"errors"
	"fmt"
)

const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

var ErrUnknownKey = errors.New("credstore: unknown key")

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Clear removes both credentials. Both removals are attempted even if the first fails.
func Clear(ctx context.Context, s Store) error {
	return errors.Join(
		s.Remove(ctx, KeyAccessToken),
		s.Remove(ctx, KeyRefreshToken),
	)
}

// AccessToken is Get for the access token with read errors folded into "absent".
func AccessToken(ctx context.Context, s Store) string {
	v, ok, err := s.Get(ctx, KeyAccessToken)
	if err != nil || !ok {
		return ""
	}
	return v
}

func checkKey(key string) error {
	switch key {
	case KeyAccessToken, KeyRefreshToken:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}

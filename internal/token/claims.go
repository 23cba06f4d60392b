package token

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRole is assumed when a token carries neither role nor user_role.
const DefaultRole = "user"

// Claims is the decoded, unverified payload of an access token.
//
// The upstream issuer adds username, email and role on top of the registered
// claims; older tokens used user_role instead of role.
type Claims map[string]any

func (c Claims) mapClaims() jwt.MapClaims { return jwt.MapClaims(c) }

// ExpiresAt returns the exp claim. ok is false when exp is missing or not numeric.
func (c Claims) ExpiresAt() (time.Time, bool) {
	exp, err := c.mapClaims().GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether the token is past exp at now.
// A token without a usable exp is expired. The boundary second itself is
// still valid: expiry starts the second after exp.
func (c Claims) Expired(now time.Time) bool {
	exp, ok := c.ExpiresAt()
	if !ok {
		return true
	}
	return now.Unix() > exp.Unix()
}

// Role resolves role, then user_role, then DefaultRole.
func (c Claims) Role() string {
	if r := c.str("role"); r != "" {
		return r
	}
	if r := c.str("user_role"); r != "" {
		return r
	}
	return DefaultRole
}

func (c Claims) Username() string { return c.str("username") }

func (c Claims) Email() string { return c.str("email") }

// UserID returns user_id, falling back to sub. Numeric ids are formatted as integers.
func (c Claims) UserID() string {
	switch v := c["user_id"].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatInt(int64(v), 10)
	}
	sub, _ := c.mapClaims().GetSubject()
	return sub
}

func (c Claims) str(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// String is for logs; it never includes the raw token.
func (c Claims) String() string {
	exp, _ := c.ExpiresAt()
	return fmt.Sprintf("user=%s role=%s exp=%d", c.UserID(), c.Role(), exp.Unix())
}

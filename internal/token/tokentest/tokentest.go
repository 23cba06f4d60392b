// Package tokentest mints access tokens for tests.
//
// Tokens are HS256-signed with a throwaway key so they have the same shape as
// the upstream issuer's; the console never checks the signature.
package tokentest

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var signingKey = []byte("tokentest-not-a-secret")

// Mint signs claims into a compact token.
func Mint(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		t.Fatalf("tokentest: sign: %v", err)
	}
	return tok
}

// Access mints a token like the upstream access token for role, expiring at exp.
func Access(t testing.TB, role string, exp time.Time) string {
	t.Helper()
	return Mint(t, jwt.MapClaims{
		"token_type": "access",
		"user_id":    7,
		"username":   "operator",
		"email":      "operator@example.com",
		"role":       role,
		"exp":        exp.Unix(),
		"iat":        exp.Add(-15 * time.Minute).Unix(),
	})
}

// Valid mints a user-role token that expires an hour from now.
func Valid(t testing.TB) string {
	t.Helper()
	return Access(t, "user", time.Now().Add(time.Hour))
}

// WithPayload builds a three-segment token whose claims segment is the
// base64url encoding of payload, which need not be JSON.
func WithPayload(payload []byte) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." + enc.EncodeToString(payload) + ".sig"
}

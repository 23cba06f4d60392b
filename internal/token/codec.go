// Package token decodes access tokens on the client side.
//
// Decoding is optimistic and unverified: the signature segment is never
// checked. The console only uses claims to decide which views to show; the
// upstream API re-verifies the token on every request it serves.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned for any token that cannot be decoded into claims.
var ErrMalformed = errors.New("token: malformed")

// Both alphabets are accepted; standard base64 characters are folded onto the
// URL-safe alphabet before decoding.
var toURLAlphabet = strings.NewReplacer("+", "-", "/", "_")

// Codec decodes tokens and evaluates expiry against an injectable clock.
type Codec struct {
	parser *jwt.Parser
	Now    func() time.Time
}

func NewCodec() *Codec {
	return &Codec{
		parser: jwt.NewParser(jwt.WithPaddingAllowed()),
		Now:    time.Now,
	}
}

// Decode returns the claims segment of raw as a JSON object.
func (c *Codec) Decode(raw string) (Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: want at least 2 segments, got %d", ErrMalformed, len(parts))
	}
	seg := toURLAlphabet.Replace(parts[1])
	if seg == "" {
		return nil, fmt.Errorf("%w: empty claims segment", ErrMalformed)
	}

	b, err := c.parser.DecodeSegment(seg)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformed, err)
	}
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("%w: claims are not utf-8", ErrMalformed)
	}

	var claims Claims
	if err := json.Unmarshal(b, &claims); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrMalformed, err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: claims are not an object", ErrMalformed)
	}
	return claims, nil
}

// IsExpired fails closed: undecodable tokens and tokens without exp are expired.
func (c *Codec) IsExpired(raw string) bool {
	claims, err := c.Decode(raw)
	if err != nil {
		return true
	}
	return claims.Expired(c.now())
}

func (c *Codec) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

var defaultCodec = NewCodec()

// Decode decodes raw with the default codec.
func Decode(raw string) (Claims, error) { return defaultCodec.Decode(raw) }

// IsExpired evaluates raw against now.
func IsExpired(raw string, now time.Time) bool {
	claims, err := defaultCodec.Decode(raw)
	if err != nil {
		return true
	}
	return claims.Expired(now)
}

// Package token issues and validates the signed links that bind an entity to
// a verification flow. Tokens are opaque to clients; verification failures of
// any kind yield nil so callers respond with one non-leaking invalid-link
// error.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"op-atlas/internal/identity/models"
	id "op-atlas/pkg/domain"
)

// Payload is the decoded content of a verification link token.
type Payload struct {
	EntityKind models.RecordKind
	EntityID   id.EntityID
}

type claims struct {
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	jwt.RegisteredClaims
}

// Codec signs and verifies link tokens. Pure function of inputs, secret key
// and clock; the clock is injectable for boundary tests.
type Codec struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewCodec builds a codec with the given validity window.
func NewCodec(signingKey string, ttl time.Duration) *Codec {
	return &Codec{signingKey: []byte(signingKey), ttl: ttl, now: time.Now}
}

// WithClock overrides the codec clock. Test hook.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Issue produces a signed token embedding the entity reference and issue
// time. No side effects.
func (c *Codec) Issue(kind models.RecordKind, entityID id.EntityID) (string, error) {
	now := c.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		EntityKind: string(kind),
		EntityID:   entityID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			Issuer:    "op-atlas/verification",
		},
	})
	return t.SignedString(c.signingKey)
}

// Verify returns the payload for a valid token, or nil on signature mismatch,
// malformed input, or expiry. Callers must treat nil as "invalid or expired
// link" — the distinction is deliberately not exposed.
func (c *Codec) Verify(tokenString string) *Payload {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return c.signingKey, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil || !parsed.Valid {
		return nil
	}

	cl, ok := parsed.Claims.(*claims)
	if !ok {
		return nil
	}

	entityID, err := id.ParseEntityID(cl.EntityID)
	if err != nil {
		return nil
	}

	kind := models.RecordKind(cl.EntityKind)
	if kind != models.KindIndividual && kind != models.KindLegalEntity {
		return nil
	}

	return &Payload{EntityKind: kind, EntityID: entityID}
}

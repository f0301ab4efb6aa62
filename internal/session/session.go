// Package session resolves signed session claims and enforces the
// impersonation write guard.
//
// An admin may impersonate a user for support. The impersonated claim is part
// of the signed token, so an impersonated session can never shed the flag
// client-side. Engines call Guard.EnsureWritable before any mutation so the
// protection holds for internal procedure callers, not just HTTP routes.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "op-atlas/pkg/domain"
	dErrors "op-atlas/pkg/domain-errors"
	"op-atlas/pkg/requestcontext"
)

// Claims are the JWT claims carried by an Atlas session token.
type Claims struct {
	UserID       string `json:"user_id"`
	Impersonated bool   `json:"impersonated"`
	Admin        bool   `json:"admin"`
	jwt.RegisteredClaims
}

// Session is the resolved, verified session state.
type Session struct {
	UserID       id.UserID
	Impersonated bool
	Admin        bool
}

// Service signs and validates session tokens.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey string) *Service {
	return &Service{signingKey: []byte(signingKey), issuer: "op-atlas"}
}

// Sign produces a session token. Used by the auth layer and by tests.
func (s *Service) Sign(userID id.UserID, impersonated, admin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:       userID.String(),
		Impersonated: impersonated,
		Admin:        admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// Resolve validates a token and returns the session it represents.
func (s *Service) Resolve(tokenString string) (*Session, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session claims")
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session subject")
	}

	return &Session{
		UserID:       userID,
		Impersonated: claims.Impersonated,
		Admin:        claims.Admin,
	}, nil
}

// Inject places the resolved session into the request context.
func Inject(ctx context.Context, sess *Session) context.Context {
	ctx = requestcontext.WithUserID(ctx, sess.UserID)
	ctx = requestcontext.WithImpersonated(ctx, sess.Impersonated)
	ctx = requestcontext.WithAdmin(ctx, sess.Admin)
	return ctx
}

// EnsureWritable rejects mutations from impersonated sessions. The engines
// call this ahead of any state change so impersonated admins can inspect but
// never mutate identity or attestation data.
func EnsureWritable(ctx context.Context) error {
	if requestcontext.Impersonated(ctx) {
		return dErrors.New(dErrors.CodeForbidden, "impersonated sessions are read-only")
	}
	return nil
}

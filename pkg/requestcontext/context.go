// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets values, services read them. Keeping this package free of
// net/http lets engines and batch jobs import only what they need.
//
// Usage in services (read values):
//
//	userID := requestcontext.UserID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithImpersonated(ctx, true)
package requestcontext

import (
	"context"
	"time"

	id "op-atlas/pkg/domain"
)

type (
	userIDKey       struct{}
	requestIDKey    struct{}
	requestTimeKey  struct{}
	impersonatedKey struct{}
	adminKey        struct{}
	deviceNameKey   struct{}
)

// UserID retrieves the authenticated user ID from the context.
// Returns the zero value (nil UUID) if not set.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(userIDKey{}).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

// WithUserID injects a user ID into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Impersonated reports whether the current session is an admin impersonating
// another user. Write paths must treat an impersonated session as read-only.
func Impersonated(ctx context.Context) bool {
	if v, ok := ctx.Value(impersonatedKey{}).(bool); ok {
		return v
	}
	return false
}

// WithImpersonated marks the context as belonging to an impersonated session.
func WithImpersonated(ctx context.Context, impersonated bool) context.Context {
	return context.WithValue(ctx, impersonatedKey{}, impersonated)
}

// Admin reports whether the session carries the platform admin role.
func Admin(ctx context.Context) bool {
	if v, ok := ctx.Value(adminKey{}).(bool); ok {
		return v
	}
	return false
}

// WithAdmin marks the context as an admin session.
func WithAdmin(ctx context.Context, admin bool) context.Context {
	return context.WithValue(ctx, adminKey{}, admin)
}

// DeviceName retrieves the parsed device display name, if middleware set one.
func DeviceName(ctx context.Context) string {
	if v, ok := ctx.Value(deviceNameKey{}).(string); ok {
		return v
	}
	return ""
}

// WithDeviceName injects a device display name into the context.
func WithDeviceName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, deviceNameKey{}, name)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests and for batch jobs that need a consistent time across one run.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

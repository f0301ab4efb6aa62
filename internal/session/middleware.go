package session

import (
	"log/slog"
	"net/http"
	"strings"

	"op-atlas/internal/platform/device"
	dErrors "op-atlas/pkg/domain-errors"
	"op-atlas/pkg/platform/httputil"
	"op-atlas/pkg/requestcontext"
)

// RequireSession validates the bearer token and injects the resolved session
// plus a parsed device display name into the request context.
func RequireSession(svc *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			sess, err := svc.Resolve(token)
			if err != nil {
				logger.WarnContext(ctx, "session rejected",
					"request_id", requestcontext.RequestID(ctx),
					"error", err.Error(),
				)
				httputil.WriteError(w, err)
				return
			}

			ctx = Inject(ctx, sess)
			ctx = requestcontext.WithDeviceName(ctx, device.ParseUserAgent(r.UserAgent()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

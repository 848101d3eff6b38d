package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"payslip/internal/transport/http/api"
)

type PermissionStore interface {
	HasPermission(ctx context.Context, role, permission string) (bool, error)
}

// RequirePermission lets the request through when the caller's role grants
// permission. Denials are logged with the subject and role.
func RequirePermission(permission string, store PermissionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())
			user, ok := GetUser(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
				return
			}

			allowed, err := store.HasPermission(r.Context(), user.Role, permission)
			switch {
			case err != nil:
				slog.Error("permission check failed", "permission", permission, "role", user.Role, "err", err, "requestId", requestID)
				api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", requestID)
			case !allowed:
				slog.Info("permission denied", "permission", permission, "subject", user.Subject, "role", user.Role, "path", r.URL.Path, "requestId", requestID)
				api.Fail(w, http.StatusForbidden, "forbidden", "role "+user.Role+" lacks "+permission, requestID)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

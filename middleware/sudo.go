package middleware

import (
	"context"
	"net/http"
)

// SudoChecker reports whether a user re-verified their password recently.
// *authcore.Engine satisfies it.
type SudoChecker interface {
	RequireRecentVerification(ctx context.Context, userID string) (bool, error)
}

// RequireRecentVerification must run after [RequireSession]. Callers outside
// their sudo window get 403; backend failures get 503.
func RequireRecentVerification(engine SudoChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok || engine == nil {
				unauthorized(w)
				return
			}

			recent, err := engine.RequireRecentVerification(r.Context(), sess.UserID)
			if err != nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			if !recent {
				http.Error(w, "sudo required", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// SessionCookie is the cookie consulted when no Authorization header is sent.
const SessionCookie = "authcore_session"

// SessionLookup resolves an opaque session token. *authcore.Engine
// satisfies it.
type SessionLookup interface {
	LookupSession(ctx context.Context, token string) (*session.Session, error)
}

// AccessTokenParser verifies an access JWT. *authcore.Engine satisfies it.
type AccessTokenParser interface {
	ParseAccessToken(token string) (*jwt.AccessClaims, error)
}

type sessionContextKey struct{}
type claimsContextKey struct{}

func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return s, ok
}

func AccessClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return c, ok
}

// RequireSession rejects requests without a live session with 401 and
// injects the resolved session otherwise.
func RequireSession(engine SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				c, err := r.Cookie(SessionCookie)
				if err != nil || c.Value == "" {
					unauthorized(w)
					return
				}
				token = c.Value
			}

			sess, err := engine.LookupSession(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAccessToken verifies a bearer access JWT. It never touches Redis, so
// a revoked session stays usable until the token expires.
func RequireAccessToken(engine AccessTokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			claims, err := engine.ParseAccessToken(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

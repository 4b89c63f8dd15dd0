package auth

import (
	"errors"
	"net/http"
)

// Middleware authenticates every request with authn before calling next.
// The identity is attached to the request context. A nil authn disables
// authentication and attaches AnonymousIdentity.
//
// Failures answer 401 with a WWW-Authenticate header; internal
// authenticator errors answer 500.
func Middleware(authn Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authn == nil {
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), AnonymousIdentity())))
			return
		}

		result, err := authn.Authenticate(r.Context(), RequestFromHTTP(r))
		if err != nil {
			http.Error(w, "authentication unavailable", http.StatusInternalServerError)
			return
		}
		if !result.Authenticated {
			w.Header().Set("WWW-Authenticate", `Bearer realm="offlinekit"`)
			http.Error(w, failureText(result.Error), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), result.Identity)))
	})
}

func failureText(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "token expired"
	case errors.Is(err, ErrMissingCredentials):
		return "missing credentials"
	default:
		return "invalid credentials"
	}
}

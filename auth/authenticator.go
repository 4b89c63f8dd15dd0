package auth

import (
	"context"
	"net/http"
	"net/url"
)

// Authenticator checks the credentials on a request.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: a rejected credential is a result with Authenticated false
//     and a nil error; a non-nil error means the check itself could not
//     run and Middleware answers 500.
type Authenticator interface {
	Name() string

	// Supports reports whether the request carries a credential this
	// authenticator understands.
	Supports(ctx context.Context, req *AuthRequest) bool

	Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error)
}

// AuthRequest is the part of a request credentials are read from. Query
// matters for WebSocket handshakes, where browsers cannot set headers.
type AuthRequest struct {
	Headers map[string][]string
	Query   url.Values
}

// RequestFromHTTP builds an AuthRequest from r.
func RequestFromHTTP(r *http.Request) *AuthRequest {
	return &AuthRequest{Headers: r.Header, Query: r.URL.Query()}
}

// GetHeader returns the first value of the canonicalized header key.
func (r *AuthRequest) GetHeader(key string) string {
	return http.Header(r.Headers).Get(key)
}

// AuthResult is the outcome of one check. Identity is set on success,
// Error on failure.
type AuthResult struct {
	Authenticated bool
	Identity      *Identity
	Error         error
	Method        string
}

// AuthSuccess wraps an accepted identity.
func AuthSuccess(identity *Identity) *AuthResult {
	return &AuthResult{Authenticated: true, Identity: identity, Method: string(identity.Method)}
}

// AuthFailure wraps a rejection by method.
func AuthFailure(err error, method string) *AuthResult {
	return &AuthResult{Error: err, Method: method}
}

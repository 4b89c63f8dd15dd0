package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
)

// RequestKey derives the tier key for a request.
// Format: "GET <absolute URL>" with any fragment stripped.
//
// Only GET requests are cacheable; any other method returns ErrNotCacheable.
func RequestKey(method string, u *url.URL) (string, error) {
	if !strings.EqualFold(method, http.MethodGet) {
		return "", ErrNotCacheable
	}
	if u == nil || !u.IsAbs() || u.Host == "" {
		return "", ErrInvalidKey
	}

	canonical := *u
	canonical.Fragment = ""
	canonical.RawFragment = ""
	canonical.Scheme = strings.ToLower(canonical.Scheme)
	canonical.Host = strings.ToLower(canonical.Host)
	if canonical.Path == "" {
		canonical.Path = "/"
	}

	key := http.MethodGet + " " + canonical.String()
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// KeyForRequest derives the tier key for r.
func KeyForRequest(r *http.Request) (string, error) {
	if r == nil {
		return "", ErrInvalidKey
	}
	return RequestKey(r.Method, r.URL)
}

// KeyForURL derives the GET tier key for a raw absolute URL.
func KeyForURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidKey
	}
	return RequestKey(http.MethodGet, u)
}

// Digest returns a short, stable fingerprint of a key, suitable for logs
// and span attributes where the full URL (and its query) must not appear.
// Format: first 16 hex characters of SHA-256(key).
func Digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// SameOrigin reports whether a and b share scheme and host (including port).
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

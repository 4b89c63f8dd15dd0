package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// APIKeyConfig configures the API key authenticator.
type APIKeyConfig struct {
	// HeaderName carries the key.
	// Default: "X-API-Key"
	HeaderName string

	// Now reads the clock for expiry checks.
	// Default: time.Now
	Now func() time.Time
}

// APIKeyInfo is one registered key. Only the hash of the key is kept.
type APIKeyInfo struct {
	ID        string
	KeyHash   string // SHA-256, hex
	Principal string

	// ExpiresAt retires the key. Zero never expires.
	ExpiresAt time.Time
}

// APIKeyStore looks keys up by hash.
type APIKeyStore interface {
	// Lookup returns nil, nil for an unknown hash.
	Lookup(ctx context.Context, keyHash string) (*APIKeyInfo, error)
}

// APIKeyAuthenticator accepts platform callers holding a static key.
type APIKeyAuthenticator struct {
	config APIKeyConfig
	store  APIKeyStore
}

// NewAPIKeyAuthenticator creates an APIKeyAuthenticator over store.
func NewAPIKeyAuthenticator(config APIKeyConfig, store APIKeyStore) *APIKeyAuthenticator {
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &APIKeyAuthenticator{config: config, store: store}
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string { return string(AuthMethodAPIKey) }

// Supports reports whether the key header is present.
func (a *APIKeyAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	return req.GetHeader(a.config.HeaderName) != ""
}

// Authenticate checks the presented key against the store.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	key := strings.TrimSpace(req.GetHeader(a.config.HeaderName))
	if key == "" {
		return AuthFailure(ErrMissingCredentials, a.Name()), nil
	}

	info, err := a.store.Lookup(ctx, HashAPIKey(key))
	switch {
	case err != nil:
		return nil, fmt.Errorf("auth: api key lookup: %w", err)
	case info == nil:
		return AuthFailure(ErrInvalidCredentials, a.Name()), nil
	case !info.ExpiresAt.IsZero() && !a.config.Now().Before(info.ExpiresAt):
		return AuthFailure(ErrTokenExpired, a.Name()), nil
	}

	return AuthSuccess(&Identity{
		Principal: info.Principal,
		Method:    AuthMethodAPIKey,
		Claims:    map[string]any{"key_id": info.ID},
		ExpiresAt: info.ExpiresAt,
	}), nil
}

// HashAPIKey returns the hex SHA-256 of key, the form keys are stored in.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// MemoryAPIKeyStore holds the keys configured at startup.
type MemoryAPIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]APIKeyInfo
}

// NewMemoryAPIKeyStore creates an empty store.
func NewMemoryAPIKeyStore() *MemoryAPIKeyStore {
	return &MemoryAPIKeyStore{keys: make(map[string]APIKeyInfo)}
}

// Lookup implements APIKeyStore.
func (s *MemoryAPIKeyStore) Lookup(_ context.Context, keyHash string) (*APIKeyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.keys[keyHash]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// Add registers info. A later key with the same hash replaces it.
func (s *MemoryAPIKeyStore) Add(info APIKeyInfo) error {
	if info.KeyHash == "" {
		return ErrMissingCredentials
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[info.KeyHash] = info
	return nil
}

// AddKey registers a plaintext key for principal under id.
func (s *MemoryAPIKeyStore) AddKey(id, key, principal string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrMissingCredentials
	}
	return s.Add(APIKeyInfo{ID: id, KeyHash: HashAPIKey(key), Principal: principal})
}

// Len returns the number of registered keys.
func (s *MemoryAPIKeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

var (
	_ Authenticator = (*APIKeyAuthenticator)(nil)
	_ APIKeyStore   = (*MemoryAPIKeyStore)(nil)
)

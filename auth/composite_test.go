package auth

import (
	"context"
	"errors"
	"testing"
)

type fixedAuth struct {
	name     string
	supports bool
	result   *AuthResult
	err      error
}

func (f fixedAuth) Name() string { return f.name }

func (f fixedAuth) Supports(context.Context, *AuthRequest) bool { return f.supports }

func (f fixedAuth) Authenticate(context.Context, *AuthRequest) (*AuthResult, error) {
	return f.result, f.err
}

func TestCompositeAuthenticator(t *testing.T) {
	ok := AuthSuccess(&Identity{Principal: "p", Method: AuthMethodAPIKey})
	denied := AuthFailure(ErrInvalidCredentials, "jwt")
	boom := errors.New("backend down")

	tests := []struct {
		name      string
		auths     []Authenticator
		wantAuth  bool
		wantErr   error
		internal  bool
		supported bool
	}{
		{"first success wins", []Authenticator{fixedAuth{"a", true, ok, nil}, fixedAuth{"b", true, denied, nil}}, true, nil, false, true},
		{"falls through failure", []Authenticator{fixedAuth{"a", true, denied, nil}, fixedAuth{"b", true, ok, nil}}, true, nil, false, true},
		{"skips unsupported", []Authenticator{fixedAuth{"a", false, nil, boom}, fixedAuth{"b", true, ok, nil}}, true, nil, false, true},
		{"last failure returned", []Authenticator{fixedAuth{"a", true, denied, nil}}, false, ErrInvalidCredentials, false, true},
		{"internal error stops", []Authenticator{fixedAuth{"a", true, nil, boom}, fixedAuth{"b", true, ok, nil}}, false, nil, true, true},
		{"none supported", []Authenticator{fixedAuth{"a", false, ok, nil}}, false, ErrMissingCredentials, false, false},
		{"nil entries skipped", []Authenticator{nil, fixedAuth{"b", true, ok, nil}}, true, nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompositeAuthenticator(tt.auths...)
			if got := c.Supports(context.Background(), &AuthRequest{}); got != tt.supported {
				t.Errorf("Supports() = %v, want %v", got, tt.supported)
			}
			result, err := c.Authenticate(context.Background(), &AuthRequest{})
			if tt.internal {
				if !errors.Is(err, boom) {
					t.Fatalf("err = %v, want internal error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if result.Authenticated != tt.wantAuth {
				t.Fatalf("Authenticated = %v, want %v", result.Authenticated, tt.wantAuth)
			}
			if tt.wantErr != nil && !errors.Is(result.Error, tt.wantErr) {
				t.Errorf("Error = %v, want %v", result.Error, tt.wantErr)
			}
		})
	}
}

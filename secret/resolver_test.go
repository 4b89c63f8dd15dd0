package secret

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type stubProvider struct {
	name   string
	values map[string]string
	err    error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Resolve(_ context.Context, ref string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.values[ref], nil
}

func TestParseSecretRef(t *testing.T) {
	tests := []struct {
		in       string
		provider string
		ref      string
		ok       bool
	}{
		{"secretref:file:bus.key", "file", "bus.key", true},
		{"secretref:env:A:B", "env", "A:B", true},
		{"secretref:file:", "", "", false},
		{"plain", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			provider, ref, ok := ParseSecretRef(tt.in)
			if provider != tt.provider || ref != tt.ref || ok != tt.ok {
				t.Errorf("ParseSecretRef(%q) = (%q, %q, %v)", tt.in, provider, ref, ok)
			}
		})
	}
}

func TestResolver_ResolveValue(t *testing.T) {
	t.Setenv("PUSH_TOKEN_NAME", "beta")
	boom := errors.New("explode")
	r := NewResolver(true,
		&stubProvider{name: "stub", values: map[string]string{"alpha": "one", "beta": "two", "empty": ""}},
		&stubProvider{name: "broken", err: boom},
	)

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"plain", "hello", "hello", nil},
		{"full ref", "secretref:stub:alpha", "one", nil},
		{"inline ref", "Bearer secretref:stub:alpha", "Bearer one", nil},
		{"env then ref", "secretref:stub:${PUSH_TOKEN_NAME}", "two", nil},
		{"strict empty", "secretref:stub:empty", "", ErrEmptySecret},
		{"unknown provider", "secretref:vault:x", "", ErrUnknownProvider},
		{"provider error", "secretref:broken:x", "", boom},
		{"missing env", "${OFFLINEKIT_NOT_SET_ANYWHERE}", "", ErrMissingEnv},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveValue(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ResolveValue(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolver_NilExpandsOnly(t *testing.T) {
	t.Setenv("X", "y")
	var r *Resolver
	got, err := r.ResolveValue(context.Background(), "${X}-secretref:stub:a")
	if err != nil || got != "y-secretref:stub:a" {
		t.Fatalf("nil resolver = (%q, %v)", got, err)
	}
}

func TestResolver_ResolveSlice(t *testing.T) {
	r := NewResolver(true, &stubProvider{name: "stub", values: map[string]string{"alpha": "one"}})
	got, err := r.ResolveSlice(context.Background(), []string{"a", "secretref:stub:alpha"})
	if err != nil {
		t.Fatalf("ResolveSlice() error = %v", err)
	}
	if got[0] != "a" || got[1] != "one" {
		t.Fatalf("ResolveSlice() = %#v", got)
	}
}

func TestProviders(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bus.key"), []byte("s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OFFLINEKIT_TEST_SECRET", "from-env")

	r := NewResolver(true, EnvProvider{}, FileProvider{Dir: dir})
	ctx := context.Background()

	if got, err := r.ResolveValue(ctx, "secretref:file:bus.key"); err != nil || got != "s3cret" {
		t.Errorf("file ref = (%q, %v)", got, err)
	}
	if got, err := r.ResolveValue(ctx, "secretref:env:OFFLINEKIT_TEST_SECRET"); err != nil || got != "from-env" {
		t.Errorf("env ref = (%q, %v)", got, err)
	}
	if _, err := r.ResolveValue(ctx, "secretref:file:../etc/passwd"); !errors.Is(err, ErrInvalidRef) {
		t.Errorf("escaping ref error = %v, want ErrInvalidRef", err)
	}
	if _, err := r.ResolveValue(ctx, "secretref:env:OFFLINEKIT_UNSET_SECRET"); !errors.Is(err, ErrMissingEnv) {
		t.Errorf("unset env error = %v, want ErrMissingEnv", err)
	}
}

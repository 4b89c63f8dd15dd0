package cache

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
)

func TestRequestKey(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		raw     string
		want    string
		wantErr error
	}{
		{"plain get", http.MethodGet, "https://app.example/index.html", "GET https://app.example/index.html", nil},
		{"lowercase method", "get", "https://app.example/a", "GET https://app.example/a", nil},
		{"fragment stripped", http.MethodGet, "https://app.example/page#section", "GET https://app.example/page", nil},
		{"query kept", http.MethodGet, "https://app.example/api?x=1", "GET https://app.example/api?x=1", nil},
		{"empty path becomes root", http.MethodGet, "https://APP.example", "GET https://app.example/", nil},
		{"post rejected", http.MethodPost, "https://app.example/api", "", ErrNotCacheable},
		{"head rejected", http.MethodHead, "https://app.example/", "", ErrNotCacheable},
		{"relative rejected", http.MethodGet, "/index.html", "", ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			if err != nil {
				t.Fatalf("url.Parse: %v", err)
			}
			got, err := RequestKey(tt.method, u)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RequestKey() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RequestKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyForRequest(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://app.example/x", nil)
	key, err := KeyForRequest(req)
	if err != nil || key != "GET https://app.example/x" {
		t.Errorf("KeyForRequest() = (%q, %v)", key, err)
	}
	if _, err := KeyForRequest(nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("KeyForRequest(nil) = %v, want ErrInvalidKey", err)
	}
}

func TestDigest_Deterministic(t *testing.T) {
	a := Digest("GET https://app.example/a")
	b := Digest("GET https://app.example/a")
	c := Digest("GET https://app.example/b")

	if a != b {
		t.Errorf("Digest not deterministic: %q != %q", a, b)
	}
	if a == c {
		t.Error("different keys should produce different digests")
	}
	if len(a) != 16 {
		t.Errorf("Digest length = %d, want 16", len(a))
	}
}

func TestSameOrigin(t *testing.T) {
	origin, _ := url.Parse("https://app.example")
	tests := []struct {
		raw  string
		want bool
	}{
		{"https://app.example/a/b", true},
		{"HTTPS://APP.example/", true},
		{"http://app.example/", false},
		{"https://app.example:8443/", false},
		{"https://cdn.example/lib.js", false},
	}
	for _, tt := range tests {
		u, _ := url.Parse(tt.raw)
		if got := SameOrigin(origin, u); got != tt.want {
			t.Errorf("SameOrigin(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
	if SameOrigin(origin, nil) {
		t.Error("nil URL is never same origin")
	}
}

package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

// TestCacheKey_Validation tests key validation rules.
func TestCacheKey_Validation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"empty key", "", ErrInvalidKey},
		{"valid key", "GET https://app.example/index.html", nil},
		{"too long", "GET " + strings.Repeat("x", MaxKeyLength), ErrKeyTooLong},
		{"contains newline", "GET key\nwith\nnewlines", ErrInvalidKey},
		{"contains carriage return", "GET key\rwith\rreturns", ErrInvalidKey},
		{"whitespace only", "   ", ErrInvalidKey},
		{"no method", "https://app.example/", ErrInvalidKey},
		{"post method", "POST https://app.example/api", ErrNotCacheable},
		{"max length exactly", "GET " + strings.Repeat("x", MaxKeyLength-4), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateKey(%q) = %v, want nil", tt.key, err)
				}
			} else {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateKey(%q) = %v, want %v", tt.key, err, tt.wantErr)
				}
			}
		})
	}
}

func TestValidateTierName(t *testing.T) {
	for _, name := range []string{"v1-static", OfflineFallbackTier, ConversationSnapshotsTier} {
		if err := ValidateTierName(name); err != nil {
			t.Errorf("ValidateTierName(%q) = %v, want nil", name, err)
		}
	}
	for _, name := range []string{"", "  ", "a/b", "x\ny"} {
		if err := ValidateTierName(name); !errors.Is(err, ErrInvalidTier) {
			t.Errorf("ValidateTierName(%q) = %v, want ErrInvalidTier", name, err)
		}
	}
}

// TestSentinelErrors verifies sentinel errors are distinct and have expected messages.
func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrNilStore", ErrNilStore, "cache: store is nil"},
		{"ErrInvalidKey", ErrInvalidKey, "cache: key is invalid"},
		{"ErrKeyTooLong", ErrKeyTooLong, "cache: key exceeds max length"},
		{"ErrNotCacheable", ErrNotCacheable, "cache: request method is not cacheable"},
		{"ErrTierNotFound", ErrTierNotFound, "cache: tier not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("%s.Error() = %q, want %q", tt.name, got, tt.wantMsg)
			}
		})
	}

	for i := range tests {
		for j := i + 1; j < len(tests); j++ {
			if tests[i].err == tests[j].err {
				t.Errorf("%s and %s should be distinct", tests[i].name, tests[j].name)
			}
		}
	}
}

func TestCapture_PreservesBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/html"}},
		Body:       io.NopCloser(strings.NewReader("<html>hi</html>")),
	}

	captured, err := Capture(resp)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if captured.Status != http.StatusOK || string(captured.Body) != "<html>hi</html>" {
		t.Fatalf("Capture() = %+v", captured)
	}

	// The original response must still be readable.
	rest, _ := io.ReadAll(resp.Body)
	if string(rest) != "<html>hi</html>" {
		t.Errorf("resp.Body after Capture = %q", rest)
	}
}

func TestResponse_HTTPResponse(t *testing.T) {
	r := Response{Status: http.StatusNotFound, Body: []byte("gone")}
	req, _ := http.NewRequest(http.MethodGet, "https://app.example/x", nil)

	hr := r.HTTPResponse(req)
	if hr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", hr.StatusCode)
	}
	if hr.Header.Get("Content-Length") != "4" {
		t.Errorf("Content-Length = %q, want 4", hr.Header.Get("Content-Length"))
	}
	body, _ := io.ReadAll(hr.Body)
	if !bytes.Equal(body, r.Body) {
		t.Errorf("body = %q, want %q", body, r.Body)
	}
	if hr.Request != req {
		t.Error("Request should be attached")
	}
}

func TestMatch_OrderAndMissingTiers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := mustKey(t, "https://app.example/app.js")

	fallback, _ := s.Open(ctx, OfflineFallbackTier)
	_ = fallback.Put(ctx, Entry{Key: key, Response: Response{Status: 200, Body: []byte("fallback")}})

	entry, tier, ok := Match(ctx, s, key, "v9-static", OfflineFallbackTier)
	if !ok || tier != OfflineFallbackTier || string(entry.Response.Body) != "fallback" {
		t.Fatalf("Match() = (%q, %q, %v)", entry.Response.Body, tier, ok)
	}

	static, _ := s.Open(ctx, "v9-static")
	_ = static.Put(ctx, Entry{Key: key, Response: Response{Status: 200, Body: []byte("static")}})

	entry, tier, ok = Match(ctx, s, key, "v9-static", OfflineFallbackTier)
	if !ok || tier != "v9-static" || string(entry.Response.Body) != "static" {
		t.Fatalf("Match() = (%q, %q, %v), want static first", entry.Response.Body, tier, ok)
	}

	if _, _, ok := Match(ctx, nil, key, "v9-static"); ok {
		t.Error("Match on nil store should miss")
	}
	if names, _ := s.Names(ctx); len(names) != 2 {
		t.Errorf("Match must not create tiers, names = %v", names)
	}
}

func mustKey(t *testing.T, raw string) string {
	t.Helper()
	key, err := KeyForURL(raw)
	if err != nil {
		t.Fatalf("KeyForURL(%q) error = %v", raw, err)
	}
	return key
}

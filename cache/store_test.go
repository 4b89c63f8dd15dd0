package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

// runStoreContract exercises the Store contract against an implementation.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("GetPutDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		tier, err := s.Open(ctx, "v1-static")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}

		key := mustKey(t, "https://app.example/index.html")
		if _, ok := tier.Get(ctx, key); ok {
			t.Error("Get on empty tier should return ok=false")
		}

		entry := Entry{
			Key: key,
			Response: Response{
				Status: http.StatusOK,
				Header: http.Header{"Content-Type": {"text/html"}},
				Body:   []byte("<html></html>"),
			},
		}
		if err := tier.Put(ctx, entry); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, ok := tier.Get(ctx, key)
		if !ok {
			t.Fatal("Get after Put should return ok=true")
		}
		if !bytes.Equal(got.Response.Body, entry.Response.Body) {
			t.Errorf("Get returned %q, want %q", got.Response.Body, entry.Response.Body)
		}
		if got.Response.Header.Get("Content-Type") != "text/html" {
			t.Errorf("header not preserved: %v", got.Response.Header)
		}
		if got.WrittenAt.IsZero() {
			t.Error("WrittenAt should be set on Put")
		}

		if err := tier.Delete(ctx, key); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, ok := tier.Get(ctx, key); ok {
			t.Error("Get after Delete should return ok=false")
		}
		if err := tier.Delete(ctx, key); err != nil {
			t.Errorf("Delete on missing key should not error, got: %v", err)
		}
	})

	t.Run("LastWriteWins", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		tier, _ := s.Open(ctx, "v1-static")
		key := mustKey(t, "https://app.example/a")

		_ = tier.Put(ctx, Entry{Key: key, Response: Response{Status: 200, Body: []byte("one")}})
		_ = tier.Put(ctx, Entry{Key: key, Response: Response{Status: 200, Body: []byte("two")}})

		got, _ := tier.Get(ctx, key)
		if string(got.Response.Body) != "two" {
			t.Errorf("Get = %q, want %q", got.Response.Body, "two")
		}
		keys, _ := tier.Keys(ctx)
		if len(keys) != 1 {
			t.Errorf("Keys = %v, want one key", keys)
		}
	})

	t.Run("RejectsNonGET", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		tier, _ := s.Open(ctx, "v1-static")

		err := tier.Put(ctx, Entry{Key: "POST https://app.example/api", Response: Response{Status: 200}})
		if !errors.Is(err, ErrNotCacheable) {
			t.Errorf("Put(POST) = %v, want ErrNotCacheable", err)
		}
	})

	t.Run("LargeBodyRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		tier, _ := s.Open(ctx, "v1-static")
		key := mustKey(t, "https://app.example/bundle.js")
		body := []byte(strings.Repeat("console.log('offline');\n", 400))

		_ = tier.Put(ctx, Entry{Key: key, Response: Response{Status: 200, Body: body}, Mode: CaptureOpaque})
		got, ok := tier.Get(ctx, key)
		if !ok || !bytes.Equal(got.Response.Body, body) {
			t.Fatalf("large body did not survive round trip (ok=%v, len=%d)", ok, len(got.Response.Body))
		}
		if got.Mode != CaptureOpaque {
			t.Errorf("Mode = %v, want opaque", got.Mode)
		}
	})

	t.Run("NamesAndDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, name := range []string{"v1-static", "v2-static", OfflineFallbackTier} {
			if _, err := s.Open(ctx, name); err != nil {
				t.Fatalf("Open(%q) failed: %v", name, err)
			}
		}

		names, err := s.Names(ctx)
		if err != nil {
			t.Fatalf("Names failed: %v", err)
		}
		slices.Sort(names)
		want := []string{OfflineFallbackTier, "v1-static", "v2-static"}
		if !slices.Equal(names, want) {
			t.Errorf("Names = %v, want %v", names, want)
		}

		existed, err := s.Delete(ctx, "v1-static")
		if err != nil || !existed {
			t.Fatalf("Delete(v1-static) = (%v, %v), want (true, nil)", existed, err)
		}
		existed, err = s.Delete(ctx, "v1-static")
		if err != nil || existed {
			t.Errorf("second Delete = (%v, %v), want (false, nil)", existed, err)
		}
		if _, ok := s.Lookup(ctx, "v1-static"); ok {
			t.Error("Lookup after Delete should miss")
		}
	})

	t.Run("DeletedTierHandleMisses", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		tier, _ := s.Open(ctx, "v1-static")
		key := mustKey(t, "https://app.example/")
		_ = tier.Put(ctx, Entry{Key: key, Response: Response{Status: 200}})

		_, _ = s.Delete(ctx, "v1-static")

		if _, ok := tier.Get(ctx, key); ok {
			t.Error("Get through a deleted tier handle should miss")
		}
		if err := tier.Put(ctx, Entry{Key: key, Response: Response{Status: 200}}); !errors.Is(err, ErrTierNotFound) {
			t.Errorf("Put into deleted tier = %v, want ErrTierNotFound", err)
		}
		if _, ok := s.Lookup(ctx, "v1-static"); ok {
			t.Error("a late write must not recreate a deleted tier")
		}
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		tier, _ := s.Open(ctx, "v1-static")

		const numGoroutines = 10
		const opsPerGoroutine = 30

		var wg sync.WaitGroup
		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func(id int) {
				defer wg.Done()
				for j := 0; j < opsPerGoroutine; j++ {
					key := fmt.Sprintf("GET https://app.example/%d", j%5)
					switch j % 3 {
					case 0:
						_ = tier.Put(ctx, Entry{Key: key, Response: Response{Status: 200, Body: []byte("v")}})
					case 1:
						_, _ = tier.Get(ctx, key)
					case 2:
						_ = tier.Delete(ctx, key)
					}
				}
			}(i)
		}
		wg.Wait()
	})

	t.Run("PreservesWrittenAt", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		tier, _ := s.Open(ctx, OfflineFallbackTier)
		key := mustKey(t, "https://app.example/")
		at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		_ = tier.Put(ctx, Entry{Key: key, Response: Response{Status: 200}, WrittenAt: at})
		got, _ := tier.Get(ctx, key)
		if !got.WrittenAt.Equal(at) {
			t.Errorf("WrittenAt = %v, want %v", got.WrittenAt, at)
		}
	})
}

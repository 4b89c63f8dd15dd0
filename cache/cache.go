package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 8192

// Sentinel errors for cache operations.
var (
	ErrNilStore     = errors.New("cache: store is nil")
	ErrInvalidKey   = errors.New("cache: key is invalid")
	ErrKeyTooLong   = errors.New("cache: key exceeds max length")
	ErrNotCacheable = errors.New("cache: request method is not cacheable")
	ErrInvalidTier  = errors.New("cache: tier name is invalid")
	ErrTierNotFound = errors.New("cache: tier not found")
	ErrStoreClosed  = errors.New("cache: store is closed")
	ErrCorruptEntry = errors.New("cache: entry is corrupt")
)

// CaptureMode records how a response was captured.
type CaptureMode int

const (
	// CaptureValidated marks a same-origin response whose status was checked.
	CaptureValidated CaptureMode = iota
	// CaptureOpaque marks a best-effort cross-origin capture. Opaque entries
	// are served but never used to prove freshness.
	CaptureOpaque
)

// String returns the string representation of the mode.
func (m CaptureMode) String() string {
	switch m {
	case CaptureValidated:
		return "validated"
	case CaptureOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Response is a captured HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Capture reads resp fully and returns the captured form. The original
// body is replaced with an in-memory reader so the caller can still
// forward resp.
func Capture(resp *http.Response) (Response, error) {
	var body []byte
	if resp.Body != nil {
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return Response{}, err
		}
		body = data
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

// Clone returns a deep copy of the response.
func (r Response) Clone() Response {
	out := Response{Status: r.Status, Header: r.Header.Clone()}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

// HTTPResponse materializes the captured response for req.
func (r Response) HTTPResponse(req *http.Request) *http.Response {
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(r.Body)))
	return &http.Response{
		Status:        strconv.Itoa(r.Status) + " " + http.StatusText(r.Status),
		StatusCode:    r.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}

// Entry is a cached response stored under a request key.
type Entry struct {
	Key       string
	Response  Response
	Mode      CaptureMode
	WrittenAt time.Time
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	e.Response = e.Response.Clone()
	return e
}

// Tier is a single named key/value store of captured responses.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Errors: Get should never error; it returns (Entry{}, false) on miss,
//   including when the tier has been deleted underneath the handle.
// - Ownership: entries are copied on Put and Get.
type Tier interface {
	// Name returns the tier name.
	Name() string

	// Get retrieves an entry. Returns (Entry{}, false) on miss.
	Get(ctx context.Context, key string) (Entry, bool)

	// Put stores an entry, replacing any previous value for its key.
	Put(ctx context.Context, entry Entry) error

	// Delete removes an entry. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error

	// Keys lists the keys currently stored in the tier.
	Keys(ctx context.Context) ([]string, error)
}

// Store manages named tiers.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Deletion: Delete removes a tier as a whole; tiers are never mutated by
//   the store itself, so a concurrent reader either completes or misses.
// - Lookup never creates a tier; Open creates it when missing.
type Store interface {
	// Open returns the named tier, creating it if needed.
	Open(ctx context.Context, name string) (Tier, error)

	// Lookup returns the named tier if it exists.
	Lookup(ctx context.Context, name string) (Tier, bool)

	// Names lists all tiers in the store.
	Names(ctx context.Context) ([]string, error)

	// Delete removes the named tier. Reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)

	// Close releases resources held by the store.
	Close() error
}

// Match looks key up in each named tier in order and returns the first hit.
// Tiers that do not exist are skipped.
func Match(ctx context.Context, s Store, key string, tiers ...string) (Entry, string, bool) {
	if s == nil {
		return Entry{}, "", false
	}
	for _, name := range tiers {
		t, ok := s.Lookup(ctx, name)
		if !ok {
			continue
		}
		if entry, ok := t.Get(ctx, key); ok {
			return entry, name, true
		}
	}
	return Entry{}, "", false
}

// ValidateKey checks if a key is valid for caching.
// Keys must carry the GET method prefix produced by RequestKey.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	method, _, ok := strings.Cut(key, " ")
	if !ok {
		return ErrInvalidKey
	}
	if method != http.MethodGet {
		return ErrNotCacheable
	}
	return nil
}

// ValidateTierName checks if name is usable as a tier name.
func ValidateTierName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "\n\r/") {
		return ErrInvalidTier
	}
	return nil
}

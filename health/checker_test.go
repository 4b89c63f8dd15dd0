package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStatus_String(t *testing.T) {
	tests := map[Status]string{
		StatusHealthy:   "healthy",
		StatusDegraded:  "degraded",
		StatusUnhealthy: "unhealthy",
		Status(42):      "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestResultConstructors(t *testing.T) {
	boom := errors.New("disk full")
	tests := []struct {
		name    string
		result  Result
		status  Status
		wantErr error
	}{
		{"healthy", Healthy("ok"), StatusHealthy, nil},
		{"degraded", Degraded("slow"), StatusDegraded, nil},
		{"unhealthy", Unhealthy("down", boom), StatusUnhealthy, boom},
		{"unhealthy without error", Unhealthy("down", nil), StatusUnhealthy, ErrCheckFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.result.Status != tt.status {
				t.Errorf("Status = %v, want %v", tt.result.Status, tt.status)
			}
			if tt.result.Timestamp.IsZero() {
				t.Error("Timestamp should be set")
			}
			if err := tt.result.Err(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Err() = %v, want %v", err, tt.wantErr)
			}
		})
	}

	r := Healthy("ok").WithDetails(map[string]any{"tiers": 3}).WithDuration(time.Second)
	if r.Details["tiers"] != 3 || r.Duration != time.Second {
		t.Errorf("WithDetails/WithDuration = %+v", r)
	}
}

func TestCheckerFunc(t *testing.T) {
	c := NewCheckerFunc("custom", func(ctx context.Context) Result {
		if ctx.Err() != nil {
			return Unhealthy("canceled", ctx.Err())
		}
		return Healthy("fine")
	})
	if c.Name() != "custom" {
		t.Errorf("Name() = %q", c.Name())
	}
	if r := c.Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("Check() = %+v", r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r := c.Check(ctx); r.Status != StatusUnhealthy {
		t.Errorf("Check(canceled) = %+v", r)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingChecker(t *testing.T) {
	boom := errors.New("database is locked")
	tests := []struct {
		name   string
		target Pinger
		want   Status
	}{
		{"reachable", pingFunc(func(context.Context) error { return nil }), StatusHealthy},
		{"failing", pingFunc(func(context.Context) error { return boom }), StatusUnhealthy},
		{"nil target", nil, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPingChecker("records", tt.target)
			if c.Name() != "records" {
				t.Errorf("Name() = %q", c.Name())
			}
			if r := c.Check(context.Background()); r.Status != tt.want {
				t.Errorf("Check() = %+v, want %v", r, tt.want)
			}
		})
	}
}

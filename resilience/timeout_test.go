package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewTimeout_Default(t *testing.T) {
	if got := NewTimeout(TimeoutConfig{}).Config().Timeout; got != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", got)
	}
}

func TestTimeout_Execute(t *testing.T) {
	opErr := errors.New("upstream 500")
	tests := []struct {
		name    string
		op      func(context.Context) error
		wantErr error
	}{
		{"success", func(context.Context) error { return nil }, nil},
		{"op error", func(context.Context) error { return opErr }, opErr},
		{"slow op", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}, ErrTimeout},
		{"op ignores context", func(context.Context) error {
			time.Sleep(200 * time.Millisecond)
			return nil
		}, ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ExecuteWithTimeout(context.Background(), 20*time.Millisecond, tt.op)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Execute() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Execute() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeout_ErrorMatchesDeadlineExceeded(t *testing.T) {
	err := ExecuteWithTimeout(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want ErrTimeout and context.DeadlineExceeded", err)
	}
}

func TestTimeout_ParentCancellationPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := ExecuteWithTimeout(ctx, time.Minute, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want context.Canceled only", err)
	}
}

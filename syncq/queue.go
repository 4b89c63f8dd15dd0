package syncq

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/offlinekit/observe"
	"github.com/jonwraymond/offlinekit/records"
)

// Sentinel errors for the queue.
var (
	ErrMissingStore = errors.New("syncq: task store is required")
	ErrMissingTag   = errors.New("syncq: tag is required")
	ErrUnknownTag   = errors.New("syncq: no handler for tag")
)

// TaskStore persists pending registrations. *records.Store satisfies it.
type TaskStore interface {
	PutTask(ctx context.Context, tag string) (bool, error)
	TakeTasks(ctx context.Context) ([]records.Task, error)
}

// Handler performs the work behind one tag.
type Handler func(ctx context.Context) error

// Config configures a Queue.
type Config struct {
	// Store persists registrations. Required.
	Store TaskStore

	// Middleware records one operation per run.
	Middleware *observe.Middleware
}

// Queue maps tags to handlers and runs them on wake.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Idempotency: registering a pending tag again is a no-op.
//   - Delivery: a tag claimed by Wake runs at most once for that wake;
//     concurrent runs of the same tag share one execution.
type Queue struct {
	config Config
	logger observe.Logger
	flight singleflight.Group

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates a Queue.
func New(config Config) (*Queue, error) {
	if config.Store == nil {
		return nil, ErrMissingStore
	}
	if config.Middleware == nil {
		config.Middleware = observe.NopMiddleware()
	}
	return &Queue{
		config:   config,
		logger:   config.Middleware.Logger().WithOp(observe.OpMeta{Component: "syncq", Name: "wake"}),
		handlers: make(map[string]Handler),
	}, nil
}

// Handle installs h for tag, replacing any previous handler.
func (q *Queue) Handle(tag string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[tag] = h
}

// Tags returns the tags with a handler, sorted.
func (q *Queue) Tags() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	tags := make([]string, 0, len(q.handlers))
	for tag := range q.handlers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Register persists a request to run tag on the next wake. It reports
// whether a new registration was created.
func (q *Queue) Register(ctx context.Context, tag string) (bool, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false, ErrMissingTag
	}
	created, err := q.config.Store.PutTask(ctx, tag)
	if err != nil {
		return false, fmt.Errorf("syncq: register %q: %w", tag, err)
	}
	return created, nil
}

// Wake claims every pending registration and runs its handler. Handler
// failures are logged, not returned. It returns the number of tags run.
func (q *Queue) Wake(ctx context.Context) (int, error) {
	tasks, err := q.config.Store.TakeTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("syncq: take tasks: %w", err)
	}

	ran := 0
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		err := q.Run(ctx, task.Tag)
		switch {
		case errors.Is(err, ErrUnknownTag):
			q.logger.Warn(ctx, "dropping task without handler", observe.Field{Key: "tag", Value: task.Tag})
			continue
		case err != nil:
			q.logger.Warn(ctx, "task failed",
				observe.Field{Key: "tag", Value: task.Tag},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
		ran++
	}
	return ran, nil
}

// Run executes the handler for tag now.
func (q *Queue) Run(ctx context.Context, tag string) error {
	q.mu.RLock()
	h, ok := q.handlers[tag]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}

	_, err, _ := q.flight.Do(tag, func() (any, error) {
		meta := observe.OpMeta{Component: "syncq", Name: "run", Tags: []string{tag}}
		_, err := q.config.Middleware.Run(ctx, meta, func(ctx context.Context) (string, error) {
			if err := h(ctx); err != nil {
				return "failed", err
			}
			return "ok", nil
		})
		return nil, err
	})
	return err
}

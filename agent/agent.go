package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/offlinekit/bus"
	"github.com/jonwraymond/offlinekit/intercept"
	"github.com/jonwraymond/offlinekit/lifecycle"
	"github.com/jonwraymond/offlinekit/observe"
	"github.com/jonwraymond/offlinekit/records"
	"github.com/jonwraymond/offlinekit/syncq"
)

// Sentinel errors for the agent.
var (
	ErrMissingComponent = errors.New("agent: controller, engine, hub, queue and records are required")
	ErrAlreadyRunning   = errors.New("agent: already running")
	ErrStopped          = errors.New("agent: stopped")
)

// Install outcomes broadcast in INSTALL_OUTCOME.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDismissed = "dismissed"
)

// RecordStore persists conversation snapshots. *records.Store satisfies it.
type RecordStore interface {
	Put(ctx context.Context, record records.Record) error
}

// Connectivity reports whether the network is reachable. *syncq.Monitor
// satisfies it.
type Connectivity interface {
	Online() bool
}

// Prompter presents a deferred install prompt and returns its outcome.
type Prompter interface {
	Prompt(ctx context.Context, prompt bus.InstallPrompt) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, prompt bus.InstallPrompt) (string, error)

// Prompt calls f.
func (f PrompterFunc) Prompt(ctx context.Context, prompt bus.InstallPrompt) (string, error) {
	return f(ctx, prompt)
}

// Config configures an Agent.
type Config struct {
	Controller *lifecycle.Controller
	Engine     *intercept.Engine
	Hub        *bus.Hub
	Queue      *syncq.Queue
	Records    RecordStore

	// Connectivity gates prompt sync after a registration. Nil means
	// always online.
	Connectivity Connectivity

	// Prompter replays a held install prompt.
	// Default: accepts every prompt
	Prompter Prompter

	// Notification fixes how push events render.
	Notification NotificationConfig

	// QueueSize is the trigger buffer.
	// Default: 64
	QueueSize int

	// Middleware records one operation per trigger.
	Middleware *observe.Middleware
}

// Agent serializes control work over the lifecycle controller, the sync
// queue and the client bus.
//
// Contract:
//   - Concurrency: every method is safe for concurrent use; triggers are
//     handled one at a time, in arrival order, by Run.
//   - Errors: per-trigger failures are logged; only Deploy returns one.
//   - Lifecycle: Run may be called once. Triggers submitted after Run
//     returns fail with ErrStopped.
type Agent struct {
	config  Config
	logger  observe.Logger
	running atomic.Bool

	triggers chan trigger
	clients  chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// Owned by the Run goroutine.
	prompt   *bus.InstallPrompt
	policies map[string]policy
	applied  string
}

// policy is the request policy a generation ships with. The engine uses it
// only while that generation controls.
type policy struct {
	deny []string
	root string
}

func newPolicy(d Deployment) (policy, error) {
	deny, err := intercept.CleanDeny(d.Deny)
	if err != nil {
		return policy{}, err
	}
	root := d.Root
	if strings.TrimSpace(root) == "" {
		root = "/"
	}
	root, err = intercept.CleanRoot(root)
	if err != nil {
		return policy{}, err
	}
	return policy{deny: deny, root: root}, nil
}

// New creates an Agent. Call Run to start handling triggers.
func New(config Config) (*Agent, error) {
	if config.Controller == nil || config.Engine == nil || config.Hub == nil ||
		config.Queue == nil || config.Records == nil {
		return nil, ErrMissingComponent
	}
	if config.Prompter == nil {
		config.Prompter = PrompterFunc(func(context.Context, bus.InstallPrompt) (string, error) {
			return OutcomeAccepted, nil
		})
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.Middleware == nil {
		config.Middleware = observe.NopMiddleware()
	}
	config.Notification = config.Notification.withDefaults()

	return &Agent{
		config:   config,
		logger:   config.Middleware.Logger().WithOp(observe.OpMeta{Component: "agent", Name: "loop"}),
		triggers: make(chan trigger, config.QueueSize),
		clients:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		policies: make(map[string]policy),
	}, nil
}

// Run handles triggers until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.stopOnce.Do(func() { close(a.done) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-a.triggers:
			a.handle(ctx, t)
		case <-a.clients:
			a.clientsChanged(ctx)
		}
	}
}

// ServeHTTP serves an intercepted request. It does not go through the
// trigger queue.
func (a *Agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.config.Engine.ServeHTTP(w, r)
}

// Deploy installs a generation, waiting for the result. Its deny-list and
// root are validated before anything is installed and take effect when the
// generation takes control.
func (a *Agent) Deploy(ctx context.Context, d Deployment) (lifecycle.Report, error) {
	reply := make(chan deployResult, 1)
	if err := a.enqueue(ctx, deployTrigger{ctx: ctx, deployment: d, reply: reply}); err != nil {
		return lifecycle.Report{}, err
	}
	select {
	case res := <-reply:
		return res.report, res.err
	case <-a.done:
		return lifecycle.Report{}, ErrStopped
	case <-ctx.Done():
		return lifecycle.Report{}, ctx.Err()
	}
}

// HandleMessage queues an inbound bus message. It satisfies bus.Handler.
func (a *Agent) HandleMessage(ctx context.Context, clientID string, msg bus.Message) {
	if err := a.enqueue(ctx, messageTrigger{clientID: clientID, msg: msg}); err != nil {
		a.logger.Debug(ctx, "message not queued",
			observe.Field{Key: "type", Value: string(msg.Type)},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
}

// Wake queues a run of every pending sync registration.
func (a *Agent) Wake(ctx context.Context) error {
	return a.enqueue(ctx, wakeTrigger{})
}

// PushReceived queues a push event; its payload becomes the notification
// body.
func (a *Agent) PushReceived(ctx context.Context, payload []byte) error {
	return a.enqueue(ctx, pushTrigger{payload: payload})
}

// InstallOffered queues a platform install offer. The prompt is held
// until a client asks to show it.
func (a *Agent) InstallOffered(ctx context.Context, prompt bus.InstallPrompt) error {
	return a.enqueue(ctx, installOfferTrigger{prompt: prompt})
}

// ClientsChanged signals that the set of open clients changed. It never
// blocks; pending signals coalesce.
func (a *Agent) ClientsChanged() {
	select {
	case a.clients <- struct{}{}:
	default:
	}
}

// flush waits until every trigger queued before it has been handled.
func (a *Agent) flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := a.enqueue(ctx, flushTrigger{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) enqueue(ctx context.Context, t trigger) error {
	select {
	case <-a.done:
		return ErrStopped
	default:
	}
	select {
	case a.triggers <- t:
		return nil
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) handle(ctx context.Context, t trigger) {
	if f, ok := t.(flushTrigger); ok {
		close(f.done)
		return
	}

	meta := observe.OpMeta{Component: "agent", Name: t.name(), Generation: a.config.Controller.Generation()}
	_, _ = a.config.Middleware.Run(ctx, meta, func(ctx context.Context) (string, error) {
		switch t := t.(type) {
		case deployTrigger:
			report, err := a.deploy(t.ctx, t.deployment)
			t.reply <- deployResult{report: report, err: err}
			if err != nil {
				return "", err
			}
			return "deployed", nil
		case messageTrigger:
			return a.message(ctx, t)
		case wakeTrigger:
			return a.wake(ctx)
		case pushTrigger:
			return a.push(ctx, t.payload)
		case installOfferTrigger:
			held := t.prompt
			a.prompt = &held
			a.config.Hub.Broadcast(bus.InstallPromptAvailable(held))
			return "held", nil
		default:
			return "", fmt.Errorf("agent: unhandled trigger %T", t)
		}
	})
}

func (a *Agent) deploy(ctx context.Context, d Deployment) (lifecycle.Report, error) {
	p, err := newPolicy(d)
	if err != nil {
		return lifecycle.Report{}, err
	}

	// Redeploying the controlling or waiting generation changes nothing,
	// its policy included.
	generation := strings.TrimSpace(d.Generation)
	known := generation == a.config.Controller.Generation() || generation == a.config.Controller.Pending()

	report, err := a.config.Controller.Deploy(ctx, generation, lifecycle.Manifest{
		Precache: d.Precache,
		Root:     p.root,
	})
	if err != nil {
		return report, err
	}
	if !known {
		a.policies[generation] = p
	}
	a.applyPolicy(ctx)
	return report, nil
}

// applyPolicy points the engine at the policy of the controlling
// generation and forgets generations that can no longer activate.
func (a *Agent) applyPolicy(ctx context.Context) {
	current, pending := a.config.Controller.Generation(), a.config.Controller.Pending()
	if current != a.applied {
		if p, ok := a.policies[current]; ok {
			if err := a.config.Engine.SetDeny(p.deny); err != nil {
				a.logger.Error(ctx, "apply deny-list failed", observe.Field{Key: "error", Value: err.Error()})
			}
			if err := a.config.Engine.SetRoot(p.root); err != nil {
				a.logger.Error(ctx, "apply root failed", observe.Field{Key: "error", Value: err.Error()})
			}
		}
		a.applied = current
	}
	for generation := range a.policies {
		if generation != current && generation != pending {
			delete(a.policies, generation)
		}
	}
}

func (a *Agent) message(ctx context.Context, t messageTrigger) (string, error) {
	switch t.msg.Type {
	case bus.TypeForceActivate:
		if a.config.Controller.ForceActivate(ctx) {
			a.applyPolicy(ctx)
			return "activated", nil
		}
		return "ignored", nil

	case bus.TypeCacheConversation:
		if t.msg.Record == nil {
			return "", bus.ErrInvalidMessage
		}
		rec := *t.msg.Record
		if err := a.config.Records.Put(ctx, rec); err != nil {
			return "", fmt.Errorf("store record %q: %w", rec.ID, err)
		}
		return "stored", nil

	case bus.TypeRequestSync:
		created, err := a.config.Queue.Register(ctx, t.msg.Tag)
		if err != nil {
			return "", err
		}
		if a.online() {
			return a.wake(ctx)
		}
		if created {
			return "registered", nil
		}
		return "pending", nil

	case bus.TypeShowInstallPrompt:
		return a.showInstallPrompt(ctx, t.clientID)

	default:
		return "ignored", nil
	}
}

func (a *Agent) showInstallPrompt(ctx context.Context, clientID string) (string, error) {
	if a.prompt == nil {
		a.logger.Debug(ctx, "no install prompt held", observe.Field{Key: "client_id", Value: clientID})
		return "no_prompt", nil
	}
	prompt := *a.prompt
	// A prompt can be shown once.
	a.prompt = nil

	outcome, err := a.config.Prompter.Prompt(ctx, prompt)
	if err != nil {
		outcome = OutcomeDismissed
		a.logger.Warn(ctx, "install prompt failed", observe.Field{Key: "error", Value: err.Error()})
	}
	a.config.Hub.Broadcast(bus.InstallOutcome(outcome))
	return outcome, nil
}

func (a *Agent) wake(ctx context.Context) (string, error) {
	n, err := a.config.Queue.Wake(ctx)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "idle", nil
	}
	return "synced", nil
}

func (a *Agent) push(ctx context.Context, payload []byte) (string, error) {
	n, ok := a.config.Notification.render(payload)
	if !ok {
		a.logger.Warn(ctx, "push payload unusable, using default body")
	}
	a.config.Hub.Broadcast(bus.NotificationMessage(n))
	return "notified", nil
}

func (a *Agent) clientsChanged(ctx context.Context) {
	current := a.config.Controller.Generation()
	if current == "" {
		return
	}
	remaining := a.config.Hub.ControlledBy(current)
	if a.config.Controller.ClientsChanged(ctx, remaining) {
		a.applyPolicy(ctx)
		a.logger.Info(ctx, "waiting generation activated after clients closed",
			observe.Field{Key: "generation", Value: a.config.Controller.Generation()},
		)
	}
}

func (a *Agent) online() bool {
	return a.config.Connectivity == nil || a.config.Connectivity.Online()
}

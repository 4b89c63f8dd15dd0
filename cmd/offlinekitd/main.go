// offlinekitd is the offline caching and sync agent for one device.
//
// It proxies the application origin through the interception policy,
// keeps the cache tiers of the deployed generation, stores conversation
// snapshots, and talks to open clients over a WebSocket bus. The
// deployment manifest is watched; every valid rewrite is a redeploy.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/offlinekit/agent"
	"github.com/jonwraymond/offlinekit/auth"
	"github.com/jonwraymond/offlinekit/bus"
	"github.com/jonwraymond/offlinekit/cache"
	"github.com/jonwraymond/offlinekit/config"
	"github.com/jonwraymond/offlinekit/health"
	"github.com/jonwraymond/offlinekit/intercept"
	"github.com/jonwraymond/offlinekit/lifecycle"
	"github.com/jonwraymond/offlinekit/observe"
	"github.com/jonwraymond/offlinekit/records"
	"github.com/jonwraymond/offlinekit/syncq"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const serviceName = "offlinekitd"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	cfg.BindFlags(flagSet)
	showVersion := flagSet.Bool("version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println(serviceName, version)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Resolve(ctx, cfg.SecretResolver()); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	origin, err := cfg.OriginURL()
	if err != nil {
		return err
	}

	obs, err := observe.NewObserver(ctx, cfg.Observe(serviceName, version))
	if err != nil {
		return fmt.Errorf("observe: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return err
	}
	logger := obs.Logger()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tiers, err := cache.OpenBolt(cfg.CachePath())
	if err != nil {
		return err
	}
	defer tiers.Close()
	recs, err := records.Open(cfg.RecordsPath())
	if err != nil {
		return err
	}
	defer recs.Close()

	// The hub reports client changes to the agent, which is built last.
	var ag *agent.Agent
	hub := bus.NewHub(bus.HubConfig{OnChange: func() { ag.ClientsChanged() }})

	httpClient := &http.Client{}
	controller, err := lifecycle.NewController(lifecycle.ControllerConfig{
		Origin:     origin,
		Store:      tiers,
		Client:     httpClient,
		Clients:    hub,
		Middleware: mw,
		OnStateChange: func(t lifecycle.Transition) {
			logger.Info(ctx, "lifecycle transition",
				observe.Field{Key: "generation", Value: t.Generation},
				observe.Field{Key: "from", Value: t.From.String()},
				observe.Field{Key: "to", Value: t.To.String()},
			)
		},
	})
	if err != nil {
		return err
	}
	engine, err := intercept.New(intercept.Config{
		Origin:         origin,
		Store:          tiers,
		Tiers:          controller,
		Client:         httpClient,
		NetworkTimeout: cfg.NetworkTimeout,
		Middleware:     mw,
	})
	if err != nil {
		return err
	}
	defer engine.Wait()

	queue, err := syncq.New(syncq.Config{Store: recs, Middleware: mw})
	if err != nil {
		return err
	}
	queue.Handle(syncq.ConversationsSyncTag, syncq.ConversationsSync(recs, hub))

	probe := health.NewUpstreamChecker(health.UpstreamCheckerConfig{URL: cfg.ProbeTarget()})
	monitor, err := syncq.NewMonitor(syncq.MonitorConfig{
		Probe:    probe,
		Interval: cfg.ProbeInterval,
		OnOnline: func(ctx context.Context) {
			if err := ag.Wake(ctx); err != nil {
				logger.Warn(ctx, "wake not queued", observe.Field{Key: "error", Value: err.Error()})
			}
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ag, err = agent.New(agent.Config{
		Controller:   controller,
		Engine:       engine,
		Hub:          hub,
		Queue:        queue,
		Records:      recs,
		Connectivity: monitor,
		Notification: agent.NotificationConfig{
			Title:       cfg.NotificationTitle,
			Icon:        cfg.NotificationIcon,
			DefaultBody: cfg.NotificationBody,
		},
		Middleware: mw,
	})
	if err != nil {
		return err
	}

	var busAuth auth.Authenticator
	if cfg.BusSecret != "" {
		jwtAuth, err := auth.NewJWTAuthenticator(auth.JWTConfig{Secret: []byte(cfg.BusSecret)})
		if err != nil {
			return err
		}
		busAuth = jwtAuth
	}
	controlAuth, err := controlAuthenticator(cfg.APIKeys, busAuth)
	if err != nil {
		return err
	}
	busServer, err := bus.NewServer(bus.ServerConfig{
		Hub:           hub,
		Handler:       ag,
		Authenticator: busAuth,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	checks := health.NewAggregator(health.AggregatorConfig{Timeout: 5 * time.Second})
	checks.Register("cache", health.NewPingChecker("cache", tiers))
	checks.Register("records", health.NewPingChecker("records", recs))
	checks.RegisterOptional("upstream", probe)

	mux := http.NewServeMux()
	health.RegisterHandlers(mux, checks)
	if cfg.MetricsExporter == "prometheus" {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.Handle("/_offlinekit/bus", busServer)
	mux.Handle("POST /_offlinekit/push", auth.Middleware(controlAuth, pushHandler(ag)))
	mux.Handle("POST /_offlinekit/install-offer", auth.Middleware(controlAuth, installOfferHandler(ag)))
	mux.Handle("/", ag)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	deploy := func(ctx context.Context, m config.Manifest) {
		report, err := ag.Deploy(ctx, agent.Deployment{
			Generation: m.Generation,
			Precache:   m.Precache,
			Deny:       m.Deny,
			Root:       m.Root,
		})
		if err != nil {
			logger.Error(ctx, "deploy failed",
				observe.Field{Key: "generation", Value: m.Generation},
				observe.Field{Key: "error", Value: err.Error()},
			)
			return
		}
		logger.Info(ctx, "deployed",
			observe.Field{Key: "generation", Value: report.Generation},
			observe.Field{Key: "cached", Value: report.Cached},
			observe.Field{Key: "skipped", Value: report.Skipped},
			observe.Field{Key: "activated", Value: report.Activated},
		)
	}

	watcher, err := config.NewWatcher(config.WatcherConfig{
		Path:     cfg.ManifestPath,
		OnChange: deploy,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(ag.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(monitor.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(watcher.Run(gctx)) })
	g.Go(func() error {
		m, err := config.LoadManifest(cfg.ManifestPath)
		if err != nil {
			// The agent still serves as a plain proxy until a manifest appears.
			logger.Warn(gctx, "no initial deployment", observe.Field{Key: "error", Value: err.Error()})
			return nil
		}
		deploy(gctx, m)
		return nil
	})
	g.Go(func() error {
		logger.Info(gctx, "listening",
			observe.Field{Key: "addr", Value: cfg.Listen},
			observe.Field{Key: "origin", Value: origin.String()},
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Close()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info(context.Background(), "stopped")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

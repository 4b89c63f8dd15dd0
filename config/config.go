package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"

	"github.com/jonwraymond/offlinekit/observe"
	"github.com/jonwraymond/offlinekit/secret"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Config holds the daemon settings.
type Config struct {
	Listen       string `env:"OFFLINEKIT_LISTEN" envDefault:"127.0.0.1:8787"`
	Origin       string `env:"OFFLINEKIT_ORIGIN"`
	DataDir      string `env:"OFFLINEKIT_DATA_DIR" envDefault:"data"`
	ManifestPath string `env:"OFFLINEKIT_MANIFEST" envDefault:"offlinekit.toml"`
	SecretsDir   string `env:"OFFLINEKIT_SECRETS_DIR" envDefault:"/run/secrets"`

	// Instance names this device in telemetry. Empty uses the hostname.
	Instance string `env:"OFFLINEKIT_INSTANCE"`

	// BusSecret signs client tokens. Empty leaves the bus open.
	BusSecret string `env:"OFFLINEKIT_BUS_SECRET"`

	// APIKeys authenticate the push and install-offer routes.
	APIKeys []string `env:"OFFLINEKIT_API_KEYS" envSeparator:","`

	LogLevel        string  `env:"OFFLINEKIT_LOG_LEVEL" envDefault:"info"`
	TraceExporter   string  `env:"OFFLINEKIT_TRACE_EXPORTER" envDefault:"none"`
	TraceSamplePct  float64 `env:"OFFLINEKIT_TRACE_SAMPLE_PCT" envDefault:"1"`
	MetricsExporter string  `env:"OFFLINEKIT_METRICS_EXPORTER" envDefault:"prometheus"`

	// ProbeURL is checked for connectivity. Empty probes the origin.
	ProbeURL      string        `env:"OFFLINEKIT_PROBE_URL"`
	ProbeInterval time.Duration `env:"OFFLINEKIT_PROBE_INTERVAL" envDefault:"30s"`

	NetworkTimeout time.Duration `env:"OFFLINEKIT_NETWORK_TIMEOUT" envDefault:"0s"`

	NotificationTitle string `env:"OFFLINEKIT_NOTIFICATION_TITLE"`
	NotificationIcon  string `env:"OFFLINEKIT_NOTIFICATION_ICON"`
	NotificationBody  string `env:"OFFLINEKIT_NOTIFICATION_BODY"`
}

// Load reads the settings from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

// BindFlags registers a flag for each commonly overridden setting, with
// the current value as default.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Listen, "listen", c.Listen, "address to serve on")
	fs.StringVar(&c.Origin, "origin", c.Origin, "application origin, e.g. https://app.example")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "directory holding the cache and record stores")
	fs.StringVar(&c.ManifestPath, "manifest", c.ManifestPath, "deployment manifest (TOML)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.MetricsExporter, "metrics-exporter", c.MetricsExporter, "otlp, prometheus, stdout or none")
	fs.StringVar(&c.TraceExporter, "trace-exporter", c.TraceExporter, "otlp, stdout or none")
	fs.StringVar(&c.ProbeURL, "probe-url", c.ProbeURL, "connectivity probe URL (default: origin)")
	fs.DurationVar(&c.ProbeInterval, "probe-interval", c.ProbeInterval, "time between connectivity probes")
	fs.DurationVar(&c.NetworkTimeout, "network-timeout", c.NetworkTimeout, "bound on each intercepted network request (0: none)")
}

// Resolve expands environment variables and secret references in the
// secret settings.
func (c *Config) Resolve(ctx context.Context, r *secret.Resolver) error {
	busSecret, err := r.ResolveValue(ctx, c.BusSecret)
	if err != nil {
		return fmt.Errorf("config: bus secret: %w", err)
	}
	keys, err := r.ResolveSlice(ctx, c.APIKeys)
	if err != nil {
		return fmt.Errorf("config: api keys: %w", err)
	}
	c.BusSecret = busSecret
	c.APIKeys = keys
	return nil
}

// SecretResolver returns the resolver for the secret settings: env and
// file references, the latter relative to SecretsDir.
func (c Config) SecretResolver() *secret.Resolver {
	return secret.NewResolver(false, secret.EnvProvider{}, secret.FileProvider{Dir: c.SecretsDir})
}

// Validate checks the settings, reporting every problem at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, fmt.Errorf("%w: listen address is required", ErrInvalid))
	}
	if _, err := c.OriginURL(); err != nil {
		errs = append(errs, err)
	}
	if c.ProbeURL != "" {
		if u, err := url.Parse(c.ProbeURL); err != nil || !u.IsAbs() {
			errs = append(errs, fmt.Errorf("%w: probe url %q must be absolute", ErrInvalid, c.ProbeURL))
		}
	}
	if c.ProbeInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: probe interval must be positive", ErrInvalid))
	}
	if c.NetworkTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: network timeout must not be negative", ErrInvalid))
	}
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, fmt.Errorf("%w: data dir is required", ErrInvalid))
	}
	obs := c.Observe("offlinekit", "dev")
	if err := obs.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	return errors.Join(errs...)
}

// OriginURL parses Origin.
func (c Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(c.Origin))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: origin %q must be an absolute url", ErrInvalid, c.Origin)
	}
	return u, nil
}

// ProbeTarget is the URL the connectivity monitor checks.
func (c Config) ProbeTarget() string {
	if c.ProbeURL != "" {
		return c.ProbeURL
	}
	return strings.TrimSpace(c.Origin)
}

// CachePath is the cache tier database file.
func (c Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// RecordsPath is the record store database file.
func (c Config) RecordsPath() string {
	return filepath.Join(c.DataDir, "records.db")
}

// Observe returns the observability settings.
func (c Config) Observe(service, version string) observe.Config {
	instance := c.Instance
	if instance == "" {
		instance, _ = os.Hostname()
	}
	return observe.Config{
		ServiceName: service,
		Version:     version,
		Instance:    instance,
		Tracing: observe.TracingConfig{
			Enabled:   c.TraceExporter != "" && c.TraceExporter != "none",
			Exporter:  c.TraceExporter,
			SamplePct: c.TraceSamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.MetricsExporter != "" && c.MetricsExporter != "none",
			Exporter: c.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.LogLevel,
		},
	}
}

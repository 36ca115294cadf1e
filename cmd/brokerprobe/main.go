// Command brokerprobe keeps a supervised broker connection open and
// publishes confirmed heartbeats on it. It serves Prometheus metrics on
// /metrics and probes on /healthz and /readyz.
//
// Usage:
//
//	brokerprobe -config brokerprobe.yaml [-env-file .env] [-debug]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/jonwraymond/brokerops/backoff"
	"github.com/jonwraymond/brokerops/broker"
	"github.com/jonwraymond/brokerops/classify"
	"github.com/jonwraymond/brokerops/credentials"
	"github.com/jonwraymond/brokerops/health"
	"github.com/jonwraymond/brokerops/observe"
	"github.com/jonwraymond/brokerops/observe/exporters"
	"github.com/jonwraymond/brokerops/reconnect"
	"github.com/jonwraymond/brokerops/secret"
)

func main() {
	configPath := flag.String("config", "brokerprobe.yaml", "Path to configuration file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *debug || cfg.Observe.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("brokerprobe failed", "error", err)
		os.Exit(1)
	}
	slog.Info("brokerprobe stopped")
}

func run(ctx context.Context, cfg *Config) error {
	logger := observe.NewSlogLogger(slog.Default())

	// Metrics go to a private Prometheus registry; tracing follows cfg.Observe.
	reg := prometheus.NewRegistry()
	reader, err := exporters.NewPrometheusReader(reg)
	if err != nil {
		return err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := observe.NewMetrics(mp.Meter("brokerprobe"))
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	obsCfg := cfg.Observe
	obsCfg.Metrics.Enabled = false
	obsCfg.Logging.Enabled = false
	obs, err := observe.NewObserver(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("create observer: %w", err)
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	inst := observe.NewInstrumentation(observe.NewTracer(obs.Tracer()), metrics, logger)

	resolver, err := newSecretResolver(cfg.Secrets)
	if err != nil {
		return err
	}
	defer func() { _ = resolver.Close() }()

	urlResolver := resolver.ResolveURL
	var rotator *credentials.Rotator
	if cfg.Credentials.JWT != nil {
		src, err := newTokenSource(ctx, resolver, cfg.Credentials.JWT)
		if err != nil {
			return err
		}
		mint := credentials.URLResolver(src)
		urlResolver = func(ctx context.Context, raw string) (string, error) {
			resolved, err := resolver.ResolveURL(ctx, raw)
			if err != nil {
				return "", err
			}
			return mint(ctx, resolved)
		}
		rotator = credentials.NewRotator(src, credentials.RotatorConfig{
			Lead:    cfg.Credentials.JWT.Lead,
			Logger:  logger,
			InPlace: cfg.Credentials.JWT.UpdateInPlace,
		})
		defer rotator.Stop()
	}

	var policy classify.Policy = classify.Fatal()
	if n := cfg.Backoff.MaxConsecutiveFailures; n > 0 {
		policy = classify.Any(classify.Fatal(), classify.MaxConsecutive(n))
	}

	p := newProber(cfg.Publish, slog.Default(), rotator)
	defer p.stop()

	sup := reconnect.Connect(cfg.Broker.URL, p.onConnect,
		reconnect.WithName(cfg.Broker.Name),
		reconnect.WithDialer(broker.NewAMQPDialer(broker.AMQPConfig{
			ConnectionName: cfg.Broker.ConnectionName,
			Heartbeat:      cfg.Broker.Heartbeat,
			DialTimeout:    cfg.Broker.DialTimeout,
		})),
		reconnect.WithURLResolver(urlResolver),
		reconnect.WithClassifier(policy),
		reconnect.WithConfigureBackoff(func(s *backoff.Scheduler) {
			s.SetStrategy(newStrategy(cfg.Backoff))
		}),
		reconnect.WithLogger(logger),
		reconnect.WithInstrumentation(inst),
		reconnect.WithOnError(func(err error) {
			slog.Warn("broker error", "error", err)
		}),
	)
	defer func() {
		if err := sup.Stop(); err != nil {
			slog.Warn("close broker connection", "error", err)
		}
	}()

	agg := health.NewAggregator(health.AggregatorConfig{Timeout: 2 * time.Second})
	agg.Register(sup)

	mux := http.NewServeMux()
	health.RegisterHandlers(mux, agg)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newSecretResolver(cfg SecretsConfig) (*secret.Resolver, error) {
	resolver := secret.NewResolver(true)
	for _, name := range secret.DefaultRegistry.List() {
		provider, err := secret.DefaultRegistry.Create(name, cfg.Providers[name])
		if err != nil {
			return nil, fmt.Errorf("secret provider %s: %w", name, err)
		}
		resolver.Register(provider)
	}
	return resolver, nil
}

func newTokenSource(ctx context.Context, resolver *secret.Resolver, cfg *JWTConfig) (*credentials.HMACTokenSource, error) {
	key, err := resolver.ResolveValue(ctx, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("resolve jwt key: %w", err)
	}
	return credentials.NewHMACTokenSource(credentials.HMACConfig{
		Key:      []byte(key),
		KeyID:    cfg.KeyID,
		Issuer:   cfg.Issuer,
		Subject:  cfg.Subject,
		Audience: cfg.Audience,
		Scopes:   cfg.Scopes,
		TTL:      cfg.TTL,
	})
}

func newStrategy(cfg BackoffConfig) backoff.Strategy {
	switch cfg.Strategy {
	case "jittered":
		return backoff.NewJittered(cfg.InitialDelay, cfg.MaxDelay)
	case "constant":
		d := cfg.InitialDelay
		if d <= 0 {
			d = time.Second
		}
		return backoff.NewConstant(d)
	default:
		return backoff.NewExponential(backoff.ExponentialConfig{
			InitialDelay: cfg.InitialDelay,
			MaxDelay:     cfg.MaxDelay,
			Jitter:       cfg.Jitter,
		})
	}
}

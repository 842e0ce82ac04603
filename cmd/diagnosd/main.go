// Diagnosd is the troubleshooting workflow daemon for industrial equipment
// support.
//
// It exposes an HTTP API to start troubleshooting sessions, process step
// feedback, and inspect session history. Machine context enrichment and
// escalation events ride over NATS when a broker is configured; without
// one, sessions still run and escalations are logged locally.
//
// Configuration is loaded from an optional YAML file and DIAGNOSD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	diagnosd
//
//	# Configure via file and environment
//	DIAGNOSD_PROVIDER_API_KEY=sk-... diagnosd -config /etc/diagnosd/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagnosd/internal/analysis"
	"github.com/fyrsmithlabs/diagnosd/internal/config"
	"github.com/fyrsmithlabs/diagnosd/internal/engine"
	"github.com/fyrsmithlabs/diagnosd/internal/enrichment"
	"github.com/fyrsmithlabs/diagnosd/internal/escalation"
	"github.com/fyrsmithlabs/diagnosd/internal/feedback"
	httpapi "github.com/fyrsmithlabs/diagnosd/internal/http"
	"github.com/fyrsmithlabs/diagnosd/internal/langpack"
	"github.com/fyrsmithlabs/diagnosd/internal/logging"
	"github.com/fyrsmithlabs/diagnosd/internal/provider"
	"github.com/fyrsmithlabs/diagnosd/internal/session"
	"github.com/fyrsmithlabs/diagnosd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  diagnosd           Start the diagnosd daemon\n")
			fmt.Fprintf(os.Stderr, "  diagnosd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("diagnosd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the diagnosd server and blocks until context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting diagnosd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("provider", cfg.Provider.Kind),
		zap.String("default_language", cfg.Engine.DefaultLanguage))

	tel, err := telemetry.New(ctx, cfg.Observability, version, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	pack, err := langpack.Load(cfg.LangPack.Path)
	if err != nil {
		return fmt.Errorf("failed to load language pack: %w", err)
	}
	if err := pack.SetFallback(cfg.Engine.DefaultLanguage); err != nil {
		return fmt.Errorf("invalid engine default_language: %w", err)
	}
	if cfg.LangPack.Watch && cfg.LangPack.Path != "" {
		if err := pack.Watch(ctx, cfg.LangPack.Path, logger); err != nil {
			logger.Warn("language pack watcher failed, reload disabled", zap.Error(err))
		}
	}
	logger.Info("Language pack loaded", zap.Strings("languages", pack.Languages()))

	completer, err := provider.New(cfg.Provider)
	if err != nil {
		return fmt.Errorf("failed to create completion provider: %w", err)
	}

	store, err := session.NewSQLite(cfg.Store.Path, cfg.Store.BusyTimeout.Duration())
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("session store close failed", zap.Error(err))
		}
	}()
	logger.Info("Session store opened", zap.String("path", cfg.Store.Path))

	enricher, notifier, natsConn, err := initNATS(cfg, logger)
	if err != nil {
		return err
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	analyzer, err := analysis.NewAnalyzer(completer, pack, logger)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}
	classifier, err := feedback.NewClassifier(pack, logger)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	eng, err := engine.New(
		analyzer,
		classifier,
		escalation.NewPolicy(cfg.Engine.MaxSteps),
		notifier,
		enricher,
		store,
		pack,
		logger,
		cfg.Engine,
	)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	srv, err := httpapi.NewServer(eng, pack, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// initLogger initializes the structured logger.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging)
}

// initNATS connects the ERP enrichment client and the escalation notifier.
// An empty NATS URL disables both; the engine runs without machine context
// and escalations are logged only.
func initNATS(cfg *config.Config, logger *zap.Logger) (enrichment.Enricher, escalation.Notifier, *nats.Conn, error) {
	if cfg.NATS.URL == "" {
		logger.Info("NATS disabled, running without enrichment and ticketing")
		notifier, err := escalation.NewLogNotifier(logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return nil, notifier, nil, nil
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	logger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))

	enricher, err := enrichment.NewNATSClient(nc, logger, cfg.NATS)
	if err != nil {
		nc.Close()
		return nil, nil, nil, fmt.Errorf("failed to create enrichment client: %w", err)
	}
	notifier, err := escalation.NewNATSNotifier(nc, logger, cfg.NATS)
	if err != nil {
		nc.Close()
		return nil, nil, nil, fmt.Errorf("failed to create escalation notifier: %w", err)
	}
	return enricher, notifier, nc, nil
}

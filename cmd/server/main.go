package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ticketfight/appeal-service/internal/api"
	"github.com/ticketfight/appeal-service/internal/app"
	"github.com/ticketfight/appeal-service/internal/config"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
	"github.com/ticketfight/appeal-service/internal/pkg/ratelimit"
	"github.com/ticketfight/appeal-service/internal/service/pipeline"
	"github.com/ticketfight/appeal-service/internal/service/webhook"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v", addr, err)
	}
	return ln.Close()
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	if _, err := os.Stat("configs/config.yaml"); err == nil {
		return "configs/config.yaml"
	}
	return ""
}

func main() {
	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(os.Stdout, logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Redact())
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := checkPortAvailable(cfg.Server.Addr()); err != nil {
		return fmt.Errorf("pre-flight check failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	// Without a queue the pipeline, the recovery sweep and the tracker run
	// in this process.
	var pub pipeline.Publisher
	if cfg.Queue.Enabled {
		qp, err := a.QueuePublisher(ctx)
		if err != nil {
			return err
		}
		pub = qp
		log.Info("jobs go to SQS", "queue_url", cfg.Queue.QueueURL)
	} else {
		d := a.Dispatcher()
		pub = d
		g.Go(func() error { return d.Run(gctx) })
		g.Go(func() error { return a.Recovery(d).Run(gctx) })
		g.Go(func() error { return a.Tracker().Run(gctx) })
		log.Info("jobs run in-process", "workers", cfg.Pipeline.Workers)
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.Server.UploadRatePerMinute, time.Minute)
	if a.Redis != nil {
		limiter = ratelimit.NewRedisLimiter(a.Redis, "upload", cfg.Server.UploadRatePerMinute, time.Minute)
	}

	handlers := &api.Handlers{
		PaymentVerifier: webhook.NewVerifier(cfg.Webhook.PaymentSecret, cfg.Webhook.Tolerance()),
		CarrierVerifier: webhook.NewVerifier(cfg.Webhook.CarrierSecret, cfg.Webhook.Tolerance()),
		Dedupe:          a.Dedupe,
		Publisher:       pub,
		Deliveries:      a.Orchestrator,
		Intakes:         a.IntakeSvc,
		Cities:          a.Gate,
		Uploads:         a.Uploads,
		UploadLimiter:   limiter,
		Stats:           a.Stats,
		Metrics:         a.Metrics,
		MaxBodyBytes:    cfg.Webhook.MaxBodyBytes,
		Log:             log.With("component", "api"),
	}
	if cfg.Webhook.CarrierSecret == "" {
		log.Warn("carrier webhook secret not set, carrier webhooks will be rejected")
	}

	health := api.NewHealthChecker(a.Metrics.RequestsServed)
	health.AddCheck("postgres", true, 500*time.Millisecond, a.PingDB)
	health.AddCheck("redis", cfg.Dedupe.Backend == "redis", 200*time.Millisecond, a.PingRedis)

	server := api.NewServer(cfg.Server, handlers, health, a.Metrics)
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

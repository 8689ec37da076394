package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ticketfight/appeal-service/internal/app"
	"github.com/ticketfight/appeal-service/internal/config"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
)

// The worker consumes pipeline jobs from SQS and runs the recovery sweep
// and the carrier tracker. It is only needed when queue.enabled is set.
func main() {
	path := os.Getenv("CONFIG_PATH")
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(os.Stdout, logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Redact()).With("process", "worker")
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if !cfg.Queue.Enabled {
		log.Error("worker requires queue.enabled; without a queue the server runs jobs itself")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	consumer, err := a.QueueConsumer(ctx)
	if err != nil {
		log.Error("queue consumer", "error", err)
		os.Exit(1)
	}
	pub, err := a.QueuePublisher(ctx)
	if err != nil {
		log.Error("queue publisher", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return a.Recovery(pub).Run(gctx) })
	g.Go(func() error { return a.Tracker().Run(gctx) })
	log.Info("worker running", "queue_url", cfg.Queue.QueueURL)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}

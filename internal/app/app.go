// Package app assembles the appeal pipeline from configuration. The API
// server, the queue worker and appealctl all build the same graph here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/ticketfight/appeal-service/internal/carrier"
	"github.com/ticketfight/appeal-service/internal/config"
	"github.com/ticketfight/appeal-service/internal/llm"
	"github.com/ticketfight/appeal-service/internal/metrics"
	"github.com/ticketfight/appeal-service/internal/notify"
	"github.com/ticketfight/appeal-service/internal/pkg/distlock"
	"github.com/ticketfight/appeal-service/internal/pkg/httpretry"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
	"github.com/ticketfight/appeal-service/internal/queue"
	"github.com/ticketfight/appeal-service/internal/repository/postgres"
	"github.com/ticketfight/appeal-service/internal/repository/redisstore"
	"github.com/ticketfight/appeal-service/internal/service/dedupe"
	"github.com/ticketfight/appeal-service/internal/service/eligibility"
	"github.com/ticketfight/appeal-service/internal/service/intake"
	"github.com/ticketfight/appeal-service/internal/service/maildispatch"
	"github.com/ticketfight/appeal-service/internal/service/pipeline"
	"github.com/ticketfight/appeal-service/internal/service/refinement"
	"github.com/ticketfight/appeal-service/internal/service/upload"
	"github.com/ticketfight/appeal-service/internal/storage"
)

const recoveryLockKey = "appeal:recovery"

// App is the wired dependency graph.
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	DB      *sql.DB
	Redis   *redis.Client
	Metrics *metrics.Metrics

	Gate         *eligibility.Gate
	Intakes      *postgres.IntakeRepo
	MailResults  *postgres.MailResultRepo
	Stats        *postgres.StatsRepo
	Dedupe       *dedupe.Deduplicator
	IntakeSvc    *intake.Service
	Uploads      *upload.Service
	Mailer       *maildispatch.Service
	Orchestrator *pipeline.Orchestrator

	aws    *aws.Config
	sqs    *sqs.Client
	closed bool
}

// New connects to every backing service and builds the pipeline. Optional
// backends (Redis, S3, SES, SQS, DynamoDB) are only touched when configured.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return err
	}
	a.DB = db
	a.Log.Info("postgres connected")

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			client.Close()
			if cfg.Dedupe.Backend == "redis" {
				return fmt.Errorf("redis: %w", err)
			}
			a.Log.Warn("redis unavailable, falling back to postgres locks", "addr", cfg.Redis.Addr, "error", err)
		} else {
			a.Redis = client
			a.Log.Info("redis connected", "addr", cfg.Redis.Addr)
		}
	}

	a.Intakes = postgres.NewIntakeRepo(db)
	a.MailResults = postgres.NewMailResultRepo(db)
	a.Stats = postgres.NewStatsRepo(db)
	payments := postgres.NewPaymentEventRepo(db)

	var events dedupe.Store = payments
	if cfg.Dedupe.Backend == "redis" {
		events = dedupe.Layered{Gate: redisstore.NewEventStore(a.Redis), Record: payments}
	}
	a.Dedupe = dedupe.New(events, a.Log.With("component", "dedupe"))

	src, err := a.citySource(ctx)
	if err != nil {
		return err
	}
	a.Gate = eligibility.NewGate(src, cfg.Cities.RefreshInterval(), a.Log.With("component", "eligibility"))
	if err := a.Gate.Load(ctx); err != nil {
		return fmt.Errorf("load city registry: %w", err)
	}
	a.IntakeSvc = intake.NewService(a.Intakes, a.Gate)

	photos, err := a.photoStore(ctx)
	if err != nil {
		return err
	}
	a.Uploads = upload.NewService(photos, upload.Config{
		MaxBytes:     cfg.Storage.MaxPhotoBytes,
		AllowedTypes: cfg.Storage.AllowedTypes,
		PresignTTL:   cfg.Storage.PresignTTL(),
	}, a.Log)

	provider, err := llm.FromConfig(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	refiner := refinement.NewService(llm.WithTiming(provider, a.Metrics.LLMCall), refinement.Config{
		MaxAttempts:        cfg.Refinement.MaxAttempts,
		PolicyRetries:      cfg.Refinement.PolicyRetries,
		MaxStatementLength: cfg.Refinement.MaxStatementLength,
		MaxTokens:          cfg.LLM.MaxTokens,
		CallTimeout:        cfg.LLM.Timeout(),
	}, a.Log)

	doer := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Carrier.Timeout()}, cfg.Carrier.MaxRetries)
	lob := carrier.NewLobClient(cfg.Carrier.BaseURL, cfg.Carrier.APIKey, doer)
	a.Mailer, err = maildispatch.NewService(lob, photos, maildispatch.Config{
		MaxPhotoBytes: cfg.Storage.MaxPhotoBytes,
		AllowedTypes:  cfg.Storage.AllowedTypes,
	}, a.Log)
	if err != nil {
		return err
	}

	notifier, err := a.notifier(ctx)
	if err != nil {
		return err
	}

	a.Orchestrator = pipeline.NewOrchestrator(pipeline.Deps{
		Intakes:     a.Intakes,
		Payments:    payments,
		Refinements: postgres.NewRefinementRepo(db),
		Mail:        a.MailResults,
		Refiner:     refiner,
		Mailer:      a.Mailer,
		Cities:      a.Gate,
		Notifier:    notifier,
		Observer:    a.Metrics,
	}, cfg.Pipeline.StageAttempts, a.Log)
	return nil
}

// awsConfig loads the shared AWS configuration once.
func (a *App) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.aws != nil {
		return *a.aws, nil
	}
	st := a.Config.Storage
	cfg, err := storage.LoadAWSConfig(ctx, storage.AWSOptions{
		Region:    st.AWSRegion,
		Profile:   st.GetAWSProfile(),
		AccessKey: st.AccessKeyID,
		SecretKey: st.SecretAccessKey,
	})
	if err != nil {
		return aws.Config{}, err
	}
	a.aws = &cfg
	return cfg, nil
}

func (a *App) citySource(ctx context.Context) (eligibility.Source, error) {
	switch a.Config.Cities.Source {
	case "dynamodb":
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return eligibility.NewDynamoSource(dynamodb.NewFromConfig(awsCfg), a.Config.Cities.DynamoDBTable), nil
	case "file":
		return eligibility.FileSource{Path: a.Config.Cities.File}, nil
	default:
		return nil, fmt.Errorf("unknown cities.source %q", a.Config.Cities.Source)
	}
}

func (a *App) photoStore(ctx context.Context) (storage.PhotoStore, error) {
	if a.Config.Storage.S3Bucket == "" {
		a.Log.Warn("no photo bucket configured, photos are kept in memory")
		return storage.NewMemoryStore(fmt.Sprintf("http://%s/photos", a.Config.Server.Addr())), nil
	}
	awsCfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewS3Store(awsCfg, a.Config.Storage.S3Bucket, a.Config.Storage.Endpoint), nil
}

func (a *App) notifier(ctx context.Context) (*notify.Notifier, error) {
	n := a.Config.Notify
	var sender notify.Sender = notify.NewLogSender(a.Log)
	if n.Enabled {
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) { o.Region = n.Region }), n.FromAddress)
	}
	return notify.NewNotifier(sender, n.OpsAddress, a.Log), nil
}

func (a *App) sqsClient(ctx context.Context) (*sqs.Client, error) {
	if a.sqs != nil {
		return a.sqs, nil
	}
	awsCfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	region := a.Config.Queue.Region
	a.sqs = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) { o.Region = region })
	return a.sqs, nil
}

// QueuePublisher returns the SQS job publisher. It fails when the queue is
// not enabled.
func (a *App) QueuePublisher(ctx context.Context) (*queue.Publisher, error) {
	if !a.Config.Queue.Enabled {
		return nil, errors.New("queue is not enabled")
	}
	client, err := a.sqsClient(ctx)
	if err != nil {
		return nil, err
	}
	return queue.NewPublisher(client, a.Config.Queue.QueueURL), nil
}

// QueueConsumer returns an SQS consumer that runs jobs through the
// orchestrator.
func (a *App) QueueConsumer(ctx context.Context) (*queue.Consumer, error) {
	if !a.Config.Queue.Enabled {
		return nil, errors.New("queue is not enabled")
	}
	client, err := a.sqsClient(ctx)
	if err != nil {
		return nil, err
	}
	q := a.Config.Queue
	return queue.NewConsumer(client, q.QueueURL, a.Orchestrator.Handle, q.WaitTimeSeconds, q.VisibilitySeconds, a.Log), nil
}

// Dispatcher returns the in-process job pool used when no queue is set up.
func (a *App) Dispatcher() *pipeline.Dispatcher {
	return pipeline.NewDispatcher(a.Orchestrator.Handle, a.Config.Pipeline.Workers, 256, a.Log)
}

// Recovery returns the stale-intake sweep. Only one replica sweeps at a
// time.
func (a *App) Recovery(pub pipeline.Publisher) *pipeline.Recovery {
	lock := distlock.NewLock(a.Redis, a.DB, recoveryLockKey, 2*a.Config.Pipeline.RecoveryInterval())
	return pipeline.NewRecovery(a.Intakes, pub, lock, a.Config.Pipeline.StaleAfter(), a.Config.Pipeline.RecoveryInterval(), a.Log)
}

// Tracker returns the carrier status poller.
func (a *App) Tracker() *pipeline.Tracker {
	return pipeline.NewTracker(a.MailResults, a.Mailer, a.Orchestrator, a.Config.Carrier.PollInterval(), a.Log)
}

// PingDB and PingRedis back the readiness checks.
func (a *App) PingDB(ctx context.Context) error { return a.DB.PingContext(ctx) }

func (a *App) PingRedis(ctx context.Context) error {
	if a.Redis == nil {
		return nil
	}
	return a.Redis.Ping(ctx).Err()
}

// Close releases connections. It is safe to call more than once.
func (a *App) Close() {
	if a.closed {
		return
	}
	a.closed = true
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

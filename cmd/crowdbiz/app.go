package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	_ "github.com/lib/pq"

	"github.com/tinusleroux/crowdbiz-graph/config"
	"github.com/tinusleroux/crowdbiz-graph/internal/repositories/importbatch"
	"github.com/tinusleroux/crowdbiz-graph/internal/repositories/jobtitle"
	"github.com/tinusleroux/crowdbiz-graph/internal/repositories/newsitem"
	"github.com/tinusleroux/crowdbiz-graph/internal/repositories/organization"
	"github.com/tinusleroux/crowdbiz-graph/internal/repositories/person"
	"github.com/tinusleroux/crowdbiz-graph/internal/repositories/role"
	"github.com/tinusleroux/crowdbiz-graph/internal/repositories/source"
	"github.com/tinusleroux/crowdbiz-graph/internal/repositories/staging"
	"github.com/tinusleroux/crowdbiz-graph/internal/repositories/transactor"
	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
	"github.com/tinusleroux/crowdbiz-graph/pkg/departments"
	"github.com/tinusleroux/crowdbiz-graph/pkg/events"
	"github.com/tinusleroux/crowdbiz-graph/pkg/graph"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importer"
	"github.com/tinusleroux/crowdbiz-graph/pkg/kafka"
	"github.com/tinusleroux/crowdbiz-graph/pkg/matching"
	"github.com/tinusleroux/crowdbiz-graph/pkg/merging"
	"github.com/tinusleroux/crowdbiz-graph/pkg/metrics"
	"github.com/tinusleroux/crowdbiz-graph/pkg/privacy"
	"github.com/tinusleroux/crowdbiz-graph/pkg/redis"
	stagingloader "github.com/tinusleroux/crowdbiz-graph/pkg/staging"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
	"github.com/tinusleroux/crowdbiz-graph/pkg/validation"
)

// app holds the connections and services shared by every command
type app struct {
	cfg    *config.Config
	logger ectologger.Logger

	db       database.DB
	redis    *redis.Client
	graph    *graph.Client
	producer *kafka.Producer

	departments *departments.Service
	service     *importer.Service

	closers []func(ctx context.Context) error
}

// bootstrap loads the configuration and logger every command starts from
func bootstrap() (*config.Config, ectologger.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, sync, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, sync, nil
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	return &app{cfg: cfg, logger: logger}
}

func (a *app) startTracing(ctx context.Context) error {
	shutdown, err := tracing.Setup(ctx, a.cfg.Tracing())
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	a.closers = append(a.closers, shutdown)
	return nil
}

func (a *app) connectDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, a.cfg.Database(), a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	return nil
}

func (a *app) migrate() error {
	svc := database.NewMigrationService(a.logger, a.cfg.Migration())
	return svc.MigratePostgres(a.db.SQLX(), a.cfg.DatabaseName)
}

func (a *app) connectRedis(ctx context.Context) error {
	if !a.cfg.RedisEnabled {
		return nil
	}
	client, err := redis.NewClient(ctx, a.cfg.Redis(), a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	return nil
}

func (a *app) connectGraph(ctx context.Context) error {
	if !a.cfg.GraphEnabled {
		return nil
	}
	client, err := graph.NewClient(a.cfg.Graph(), a.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("graph database unreachable: %w", err)
	}
	a.graph = client
	a.closers = append(a.closers, client.Close)
	return nil
}

func (a *app) startProducer() {
	if !a.cfg.KafkaEnabled {
		return
	}
	producer := kafka.NewProducer(a.cfg.Kafka(), a.logger)
	a.producer = producer
	a.closers = append(a.closers, func(context.Context) error { return producer.Close() })
}

// connect opens every configured connection
func (a *app) connect(ctx context.Context) error {
	if err := a.startTracing(ctx); err != nil {
		return err
	}
	if err := a.connectDatabase(ctx); err != nil {
		return err
	}
	if err := a.connectRedis(ctx); err != nil {
		return err
	}
	if err := a.connectGraph(ctx); err != nil {
		return err
	}
	a.startProducer()
	return nil
}

// build wires the import pipeline over the open connections
func (a *app) build() {
	batches := importbatch.NewRepository(a.db, a.logger)
	records := staging.NewRepository(a.db, a.logger)
	persons := person.NewRepository(a.db, a.logger)
	organizations := organization.NewRepository(a.db, a.logger)
	roles := role.NewRepository(a.db, a.logger)
	news := newsitem.NewRepository(a.db, a.logger)

	var cache departments.Cache
	var locker importer.Locker
	if a.redis != nil {
		cache = a.redis
		locker = redis.NewLocker(a.redis, "crowdbiz:lock:")
	}
	a.departments = departments.NewService(a.logger, jobtitle.NewRepository(a.db, a.logger), cache, a.cfg.DepartmentCacheTTL)

	resolver := matching.NewResolver(a.logger, matching.Readers{
		Persons:       persons,
		Organizations: organizations,
		Roles:         roles,
		News:          news,
	}, records, a.cfg.Matching())

	hooks := []merging.CommitHook{metrics.CommitRecorder{}}
	if a.producer != nil {
		hooks = append(hooks, events.NewPublisher(a.producer))
	}
	if a.graph != nil {
		hooks = append(hooks, graph.NewProjector(a.graph, a.logger))
	}

	executor := merging.NewExecutor(a.logger, transactor.New(a.db), merging.Stores{
		Staging:       records,
		Batches:       batches,
		Persons:       persons,
		Organizations: organizations,
		Roles:         roles,
		News:          news,
		Sources:       source.NewRepository(a.db, a.logger),
	}, a.departments, resolver, hooks...)

	a.service = importer.NewService(
		a.logger,
		stagingloader.NewLoader(a.logger, batches, privacy.Default()),
		validation.New(),
		resolver,
		executor,
		batches,
		records,
		locker,
		importer.Options{LockTTL: a.cfg.CommitLockTTL, StaleAfter: a.cfg.StaleBatchAfter},
	)
}

// open connects and builds the pipeline in one step, for one-shot commands
func (a *app) open(ctx context.Context) error {
	if err := a.connect(ctx); err != nil {
		a.Close(ctx)
		return err
	}
	a.build()
	return nil
}

// Close releases connections in reverse order of opening
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

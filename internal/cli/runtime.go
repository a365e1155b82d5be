package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"placement-quiz-service/internal/app"
	"placement-quiz-service/internal/config"
	"placement-quiz-service/internal/domain"
	"placement-quiz-service/internal/infra/memory"
	"placement-quiz-service/internal/infra/postgres"
	redisinfra "placement-quiz-service/internal/infra/redis"
	"placement-quiz-service/internal/infra/sqlite"
	"placement-quiz-service/internal/validator"
)

type catalogStore interface {
	app.QuizCatalog
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

type studentStore interface {
	app.StudentDirectory
	PutStudent(ctx context.Context, s domain.Student) error
}

type progressBus interface {
	app.ProgressPublisher
	app.ProgressSubscriber
}

// runtime holds the stores and services selected by the config.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger

	catalog  catalogStore
	quizzes  app.QuizRepository
	attempts app.AttemptStore
	rollups  app.AnalyticsStore
	students studentStore
	progress progressBus

	attemptService   *app.AttemptService
	catalogService   *app.CatalogService
	analyticsService *app.AnalyticsService

	health  []func(ctx context.Context) error
	closers []func() error
}

func loadConfig(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// buildRuntime opens the configured backends. events may be nil.
func buildRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger, events app.EventPublisher) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}
	if err := rt.openStorage(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.openCache()

	v := validator.New()
	rt.attemptService = app.NewAttemptService(app.AttemptDeps{
		Attempts:   rt.attempts,
		Quizzes:    rt.quizzes,
		Aggregator: app.NewAggregator(rt.rollups),
		Progress:   rt.progress,
		Events:     events,
		Validator:  v,
		Logger:     logger,
	})
	rt.catalogService = app.NewCatalogService(rt.catalog, rt.quizzes, app.NewQuestionBank(rt.catalog), v, logger)
	rt.analyticsService = app.NewAnalyticsService(rt.rollups, rt.attempts, rt.students)
	return rt, nil
}

func (rt *runtime) openStorage(ctx context.Context) error {
	log := rt.logger.With(slog.String("driver", rt.cfg.Storage.Driver))
	switch rt.cfg.Storage.Driver {
	case config.StoragePostgres:
		db := postgres.Open(rt.cfg.Postgres.URL)
		rt.closers = append(rt.closers, db.Close)
		if rt.cfg.Postgres.Migrate {
			group, err := postgres.Migrate(ctx, db)
			if err != nil {
				return err
			}
			if group != nil && !group.IsZero() {
				log.InfoContext(ctx, "migrations applied", slog.String("group", group.String()))
			}
		}
		pool, err := pgxpool.Connect(ctx, rt.cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		rt.health = append(rt.health, func(ctx context.Context) error { return db.PingContext(ctx) })

		rt.catalog = postgres.NewQuizCatalog(pool)
		rt.attempts = postgres.NewAttemptStore(db)
		rt.rollups = postgres.NewAnalyticsStore(db)
		rt.students = postgres.NewStudentDirectory(db)
	case config.StorageSQLite:
		db, err := sqlite.Open(ctx, rt.cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		rt.closers = append(rt.closers, db.Close)
		rt.health = append(rt.health, db.PingContext)

		rt.catalog = sqlite.NewQuizCatalog(db)
		rt.attempts = sqlite.NewAttemptStore(db)
		rt.rollups = sqlite.NewAnalyticsStore(db)
		rt.students = sqlite.NewStudentDirectory(db)
	default:
		rt.catalog = memory.NewQuizCatalog()
		rt.attempts = memory.NewAttemptStore()
		rt.rollups = memory.NewAnalyticsStore()
		rt.students = memory.NewStudentDirectory()
	}
	log.InfoContext(ctx, "storage ready")
	return nil
}

func (rt *runtime) openCache() {
	quizTTL := config.TTLDuration(rt.cfg.Quiz.TTL, 10*time.Minute)
	if rt.cfg.Redis.Addr == "" {
		rt.quizzes = memory.NewQuizRepository(rt.catalog, quizTTL)
		rt.progress = app.NewProgressHub()
		return
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rt.cfg.Redis.Addr,
		Password: rt.cfg.Redis.Password,
		DB:       rt.cfg.Redis.DB,
	})
	rt.closers = append(rt.closers, client.Close)
	rt.health = append(rt.health, func(ctx context.Context) error { return client.Ping(ctx).Err() })
	rt.quizzes = redisinfra.NewQuizRepository(client, rt.catalog, quizTTL)
	rt.progress = redisinfra.NewProgressBroker(client, config.TTLDuration(rt.cfg.Redis.TTL, time.Hour))
}

// Health pings every backend that supports it.
func (rt *runtime) Health(ctx context.Context) error {
	for _, check := range rt.health {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

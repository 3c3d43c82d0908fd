// Package environment 是依赖注入的组装点：按配置创建各存储客户端与服务，并负责关闭。
package environment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forumpulse/internal/analytics"
	"github.com/forumpulse/internal/config"
	"github.com/forumpulse/internal/db"
	"github.com/forumpulse/internal/handler"
	"github.com/forumpulse/internal/identity"
	"github.com/forumpulse/internal/service"
	"github.com/forumpulse/internal/store/mongostore"
	"github.com/forumpulse/internal/store/redisstore"
	"github.com/forumpulse/internal/store/sqlstore"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
)

// ErrUnknownBackend 配置了不支持的存储类型
var ErrUnknownBackend = errors.New("unknown storage backend")

// MarkPruner 清理过期的计数标记，仅 sqlite 标记存储需要。
type MarkPruner interface {
	Prune(ctx context.Context, now time.Time) (int64, error)
}

// Environment is used for dependency-injection (package de-coupling)
type Environment struct {
	Config config.AppConfig

	DB      *gorm.DB
	Threads service.ThreadStore
	Counter service.VisitCounter
	Marks   service.MarkStore
	Pruner  MarkPruner

	Gate      *service.VisitGate
	Feed      *service.TrendingFeed
	Metrics   *service.MetricsService
	Refresher *service.TrendingRefresher
	Verifier  *identity.Verifier
	Sink      *analytics.InfluxSink

	mongoClient *mongo.Client
	redisClient *redis.Client
}

// New 按配置连接各后端并组装服务；失败时已建立的连接会被关闭。
func New(ctx context.Context, cfg config.AppConfig) (*Environment, error) {
	gdb, err := db.Init(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	return NewWithDB(ctx, cfg, gdb)
}

// NewWithDB 与 New 相同，但使用调用方提供的 sqlite 连接（需已迁移）。
func NewWithDB(ctx context.Context, cfg config.AppConfig, gdb *gorm.DB) (*Environment, error) {
	env := &Environment{Config: cfg, DB: gdb}
	if err := env.wire(ctx); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *Environment) wire(ctx context.Context) error {
	cfg := e.Config

	switch cfg.Backend {
	case BackendSQLite, "":
		e.Threads = sqlstore.NewThreadStore(e.DB)
	case BackendMongo:
		database, err := e.mongoDatabase(ctx)
		if err != nil {
			return err
		}
		if err := mongostore.EnsureIndexes(ctx, database); err != nil {
			log.Warn().Err(err).Msg("ensure mongo indexes failed, trending will fall back to recent threads")
		}
		e.Threads = mongostore.NewThreadStore(database)
	default:
		return fmt.Errorf("%w: backend %q", ErrUnknownBackend, cfg.Backend)
	}

	switch cfg.CounterStore {
	case BackendSQLite, "":
		e.Counter = sqlstore.NewCounter(e.DB)
	case BackendMongo:
		database, err := e.mongoDatabase(ctx)
		if err != nil {
			return err
		}
		e.Counter = mongostore.NewCounter(e.mongoClient, database)
	case BackendRedis:
		client, err := e.redis(ctx)
		if err != nil {
			return err
		}
		e.Counter = redisstore.NewCounter(client)
	default:
		return fmt.Errorf("%w: counter store %q", ErrUnknownBackend, cfg.CounterStore)
	}

	switch cfg.MarkStore {
	case BackendSQLite, "":
		marks := sqlstore.NewMarkStore(e.DB)
		e.Marks = marks
		e.Pruner = marks
	case BackendRedis:
		client, err := e.redis(ctx)
		if err != nil {
			return err
		}
		e.Marks = redisstore.NewMarkStore(client)
	default:
		return fmt.Errorf("%w: mark store %q", ErrUnknownBackend, cfg.MarkStore)
	}

	e.Gate = service.NewVisitGate(e.Marks, e.Counter).
		WithExcludedEmails(cfg.ExcludedEmails).
		WithLocation(cfg.Location())
	if cfg.Influx.URL != "" {
		e.Sink = analytics.NewInfluxSink(analytics.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		e.Gate.WithSink(e.Sink)
	}

	e.Feed = service.NewTrendingFeed(e.Threads).
		WithStatus(cfg.TrendingStatus).
		WithPageSize(cfg.TrendingPageSize)
	e.Refresher = service.NewTrendingRefresher(e.Threads, e.Threads)

	metrics, err := service.NewMetricsService(e.Threads, cfg.MetricsCacheTTL)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	e.Metrics = metrics

	if cfg.IdentitySecret != "" {
		verifier, err := identity.NewVerifier(cfg.IdentitySecret, cfg.IdentityIssuer)
		if err != nil {
			return err
		}
		e.Verifier = verifier
	} else {
		log.Warn().Msg("identity secret not configured, visitor sessions are disabled")
	}

	return nil
}

func (e *Environment) mongoDatabase(ctx context.Context) (*mongo.Database, error) {
	if e.mongoClient == nil {
		client, err := mongostore.Connect(ctx, e.Config.Mongo.URI)
		if err != nil {
			return nil, err
		}
		e.mongoClient = client
		log.Info().Str("database", e.Config.Mongo.Database).Msg("connected to mongo")
	}
	return e.mongoClient.Database(e.Config.Mongo.Database), nil
}

func (e *Environment) redis(ctx context.Context) (*redis.Client, error) {
	if e.redisClient == nil {
		client, err := redisstore.NewClient(ctx, redisstore.Options{
			Addr:     e.Config.Redis.Addr,
			Password: e.Config.Redis.Password,
			DB:       e.Config.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		e.redisClient = client
	}
	return e.redisClient, nil
}

// API 构造 HTTP 处理器集合。
func (e *Environment) API() *handler.API {
	deps := handler.Deps{
		DB:          e.DB,
		SiteBaseURL: e.Config.SiteBaseURL,
	}
	if e.Threads != nil {
		deps.Views = e.Threads
	}
	if e.Gate != nil {
		deps.Gate = e.Gate
	}
	if e.Counter != nil {
		deps.Visits = e.Counter
	}
	if e.Feed != nil {
		deps.Trending = e.Feed
	}
	if e.Metrics != nil {
		deps.Metrics = e.Metrics
	}
	if e.Verifier != nil {
		deps.Verifier = e.Verifier
	}
	return handler.NewAPI(deps)
}

// Close 释放所有连接，可重复调用。
func (e *Environment) Close() error {
	var errs []error
	if e.Metrics != nil {
		e.Metrics.Close()
		e.Metrics = nil
	}
	if e.Sink != nil {
		e.Sink.Close()
		e.Sink = nil
	}
	if e.redisClient != nil {
		errs = append(errs, e.redisClient.Close())
		e.redisClient = nil
	}
	if e.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, e.mongoClient.Disconnect(ctx))
		cancel()
		e.mongoClient = nil
	}
	if e.DB != nil {
		if sqlDB, err := e.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
		e.DB = nil
	}
	return errors.Join(errs...)
}

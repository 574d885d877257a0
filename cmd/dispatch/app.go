package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/dispatch"
	"github.com/aretw0/dispatch/internal/config"
	"github.com/aretw0/dispatch/pkg/adapters/amqp"
	"github.com/aretw0/dispatch/pkg/adapters/classifier"
	"github.com/aretw0/dispatch/pkg/adapters/file"
	"github.com/aretw0/dispatch/pkg/adapters/memory"
	redisstore "github.com/aretw0/dispatch/pkg/adapters/redis"
	"github.com/aretw0/dispatch/pkg/adapters/sqlstore"
	"github.com/aretw0/dispatch/pkg/observability"
	"github.com/aretw0/dispatch/pkg/persistence/middleware"
	"github.com/aretw0/dispatch/pkg/ports"
	goredis "github.com/redis/go-redis/v9"
)

// app is the engine wired from configuration, with what must be closed.
type app struct {
	engine  *dispatch.Engine
	metrics *observability.Metrics

	checks  []func(context.Context) error
	closers []func() error
	dbs     map[string]*sqlstore.DB
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{metrics: observability.NewMetrics(), dbs: make(map[string]*sqlstore.DB)}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	opts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithLifecycleHooks(a.metrics.Hooks().Merge(observability.LoggingHooks(logger))),
		dispatch.WithSessionLifetimes(cfg.Sessions.TTL, cfg.Sessions.Retention, cfg.Sessions.LockTTL),
		dispatch.WithThreshold(cfg.Classifier.Threshold),
		dispatch.WithPatternExtraction(cfg.Classifier.PatternExtraction),
		dispatch.WithSeatCapacity(cfg.Engine.SeatCapacity),
		dispatch.WithMaxSteps(cfg.Engine.MaxSteps),
		dispatch.WithStrictEdges(cfg.Engine.StrictEdges),
	}

	store, locker, err := a.sessionStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if store, err = secure(store, cfg.Store); err != nil {
		return nil, err
	}
	opts = append(opts, dispatch.WithSessionStore(store))
	if locker != nil {
		opts = append(opts, dispatch.WithLocker(locker))
	}

	dir, handlers, err := a.fleet(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, dispatch.WithFleet(dir, handlers))

	intents, err := newClassifier(cfg.Classifier, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, dispatch.WithClassifier(intents))

	if cfg.Events.URL != "" {
		pub, err := amqp.NewPublisher(amqp.Config{URL: cfg.Events.URL, Exchange: cfg.Events.Exchange})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		opts = append(opts, dispatch.WithPublisher(pub))
		logger.Info("publishing action events", "exchange", cfg.Events.Exchange)
	}

	if a.engine, err = dispatch.New(opts...); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) sessionStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.SessionStore, ports.DistributedLocker, error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		store := redisstore.NewFromClient(client,
			redisstore.WithPrefix(cfg.Store.RedisPrefix),
			redisstore.WithRetention(cfg.Sessions.Retention),
		)
		a.closers = append(a.closers, store.Close)
		a.checks = append(a.checks, store.Ping)
		if err := store.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Store.RedisAddr, err)
		}
		logger.Info("session store ready", "driver", "redis", "address", cfg.Store.RedisAddr)
		return store, redisstore.NewLocker(client, cfg.Store.RedisPrefix), nil
	case config.DriverMySQL, config.DriverSQLite:
		db, err := a.openDB(ctx, cfg.Store.Driver, cfg.Store.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("session store ready", "driver", cfg.Store.Driver)
		return db.Sessions(), nil, nil
	case config.DriverFile:
		store := file.New(cfg.Store.DSN)
		logger.Info("session store ready", "driver", "file", "path", store.BasePath)
		return store, nil, nil
	}
	return memory.NewStore(), nil, nil
}

func (a *app) fleet(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.Directory, map[string]ports.ActionHandler, error) {
	if cfg.Fleet.Driver == config.DriverMemory {
		fleet := memory.NewFleet()
		if cfg.Fleet.Seed {
			fleet = memory.SeedFleet()
		}
		return fleet, fleet.Handlers(), nil
	}
	db, err := a.openDB(ctx, cfg.Fleet.Driver, cfg.Fleet.DSN, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Fleet.Seed {
		if err := db.Seed(ctx); err != nil {
			return nil, nil, err
		}
	}
	logger.Info("fleet ready", "driver", cfg.Fleet.Driver)
	return db.Directory(), db.Handlers(), nil
}

// openDB shares one pool between the store and the fleet when they point at
// the same database.
func (a *app) openDB(ctx context.Context, dialect, dsn string, logger *slog.Logger) (*sqlstore.DB, error) {
	key := dialect + "|" + dsn
	if db, ok := a.dbs[key]; ok {
		return db, nil
	}
	db, err := sqlstore.Open(ctx, sqlstore.Config{Dialect: dialect, DSN: dsn, Logger: logger})
	if err != nil {
		return nil, err
	}
	a.dbs[key] = db
	a.closers = append(a.closers, db.Close)
	a.checks = append(a.checks, db.Ping)
	return db, nil
}

// secure wraps the store with result redaction and payload encryption.
func secure(store ports.SessionStore, cfg config.StoreConfig) (ports.SessionStore, error) {
	var mws []middleware.Middleware
	if len(cfg.RedactResults) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.RedactResults)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		active, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
		var fallback [][]byte
		for i, k := range cfg.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return nil, fmt.Errorf("invalid fallback key %d: %w", i, err)
			}
			fallback = append(fallback, key)
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}

func newClassifier(cfg config.ClassifierConfig, logger *slog.Logger) (ports.IntentClassifier, error) {
	keyword := classifier.NewKeyword()
	if cfg.Provider != config.ProviderLLM {
		return keyword, nil
	}
	model, err := classifier.OpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return classifier.NewLLM(model,
		classifier.WithFallback(keyword),
		classifier.WithTimeout(cfg.Timeout),
		classifier.WithLogger(logger),
	), nil
}

// Health checks every backend the engine depends on.
func (a *app) Health(ctx context.Context) error {
	var errs []error
	for _, check := range a.checks {
		errs = append(errs, check(ctx))
	}
	return errors.Join(errs...)
}

// Close releases backends in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/audit/rabbitmq"
	"github.com/MrEthical07/goIdentity/internal/appconfig"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/MrEthical07/goIdentity/store/postgres"
	"github.com/MrEthical07/goIdentity/store/redisstore"
	"github.com/redis/go-redis/v9"
)

// app is one command's engine plus everything that must be closed with it.
type app struct {
	engine  *goIdentity.Engine
	closers []func() error
}

func openApp(ctx context.Context, opts *rootOptions, auditOut io.Writer) (*app, error) {
	a := &app{}

	store, err := a.openStore(ctx, opts.cfg.Store)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	builder := goIdentity.New().
		WithConfig(opts.cfg.Engine()).
		WithStore(store).
		WithLogger(opts.logger).
		WithMetricsEnabled(true)

	sink, err := a.openSink(opts.cfg.Audit, opts.logger, auditOut)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.engine = engine
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg appconfig.StoreConfig) (goIdentity.IdentityStore, error) {
	switch cfg.Driver {
	case appconfig.DriverRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return redisstore.New(client, cfg.RedisPrefix), nil
	case appconfig.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return postgres.New(db), nil
	default:
		return memory.New(), nil
	}
}

func (a *app) openSink(cfg appconfig.AuditConfig, logger *slog.Logger, out io.Writer) (goIdentity.AuditSink, error) {
	switch cfg.Sink {
	case appconfig.SinkLog:
		return goIdentity.NewSlogSink(logger), nil
	case appconfig.SinkJSON:
		return goIdentity.NewJSONLinesSink(out), nil
	case appconfig.SinkRabbitMQ:
		sink, err := rabbitmq.Dial(rabbitmq.Config{URL: cfg.RabbitMQURL, Queue: cfg.Queue, QueueDurable: true}, logger)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		a.closers = append(a.closers, sink.Close)
		return sink, nil
	default:
		return nil, nil
	}
}

// Close stops the engine first so queued audit events reach their sink.
func (a *app) Close() error {
	if a.engine != nil {
		a.engine.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

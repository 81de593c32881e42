package infrastructure

import (
	"context"
	"os"

	"github.com/manu030/geoconsole-credits/internal/config"
	"github.com/manu030/geoconsole-credits/internal/logging"
	"github.com/manu030/geoconsole-credits/internal/metrics"
	"github.com/manu030/geoconsole-credits/internal/repository"
	"github.com/manu030/geoconsole-credits/internal/service"
	transportHTTP "github.com/manu030/geoconsole-credits/internal/transport/http"
	transportNATS "github.com/manu030/geoconsole-credits/internal/transport/nats"
	"github.com/manu030/geoconsole-credits/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	m := metrics.New()
	logger := logging.New(os.Stdout, cfg.Development(),
		logging.WithSensitiveHook(m.RecordSensitiveError))

	db, err := connectPostgres(cfg)
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, db.Close)

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	if rdb != nil {
		cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })
	}

	repo := repository.New(db, rdb, logger, m, repository.Options{
		CreditOpTimeout:    cfg.CreditOpTimeout,
		QueryTimeout:       cfg.QueryTimeout,
		SlowQueryThreshold: cfg.SlowQueryThreshold,
	})

	var bus service.Publisher
	var servers []Server

	nc, err := connectNats(cfg.NatsAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	if nc != nil {
		bus = transportNATS.NewBus(nc)
		cleanupFns = append(cleanupFns, nc.Close)
		servers = append(servers, worker.NewAuditWorker(repo, nc, logger))
	}

	svc := service.New(repo, bus, logger, service.RetryPolicy{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
	})

	handler := transportHTTP.NewHandler(svc, m.Handler())
	servers = append(servers, transportHTTP.NewServer(cfg.ApiAddr(), handler))

	return NewApp(servers, logger), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}

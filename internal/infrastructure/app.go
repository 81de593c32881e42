package infrastructure

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/manu030/geoconsole-credits/internal/logging"
)

// Server is anything with a blocking Start and a graceful Stop: the HTTP
// server and the audit worker.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type App struct {
	servers []Server
	logger  *logging.Logger
}

func NewApp(servers []Server, logger *logging.Logger) *App {
	return &App{servers: servers, logger: logger}
}

// Run starts every server and blocks until ctx is cancelled, then stops them
// with a bounded grace period.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range a.servers {
		s := srv
		g.Go(func() error {
			return s.Start(ctx)
		})
	}

	a.logger.Info("credit service started", logging.Fields{"servers": len(a.servers)})
	<-ctx.Done()
	a.logger.Info("shutting down", nil)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range a.servers {
		if err := srv.Stop(stopCtx); err != nil {
			a.logger.Warn("server stop failed", logging.Fields{"error": err})
		}
	}

	return g.Wait()
}

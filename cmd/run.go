package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/keiba/internal/adapters/http/api"
	"github.com/okian/keiba/internal/adapters/http/swagger"
	"github.com/okian/keiba/internal/adapters/mq/worker"
	app "github.com/okian/keiba/internal/app"
	"github.com/okian/keiba/pkg/logger"
	"github.com/okian/keiba/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// runFunc performs one collection run on svc.
type runFunc func(ctx context.Context, svc *app.Service, date string) (worker.Summary, error)

func runRaces(ctx context.Context, svc *app.Service, date string) (worker.Summary, error) {
	return svc.CollectRaces(ctx, date)
}

func runPredictions(ctx context.Context, svc *app.Service, date string) (worker.Summary, error) {
	return svc.CollectPredictions(ctx, date)
}

func runImages(ctx context.Context, svc *app.Service, _ string) (worker.Summary, error) {
	return svc.ReadImages(ctx)
}

// run executes one collection run, exposing the HTTP surface alongside when
// http_addr is set. The surface stops when the run ends.
func (c *cli) run(ctx context.Context, fn runFunc, date string, withVision bool) error {
	comp, err := build(ctx, c.cfg, withVision)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := comp.close(); cerr != nil {
			c.log.Warn(ctx, "failed to release resources", logger.Error(cerr))
		}
	}()

	return c.withSurface(ctx, comp.svc, func(ctx context.Context) error {
		sum, err := fn(ctx, comp.svc, date)
		c.log.Info(ctx, "run summary",
			logger.String("run_id", sum.RunID),
			logger.String("kind", sum.Kind),
			logger.Int("ok", sum.OK()),
			logger.Int("skipped", sum.Skipped()),
		)
		if err != nil {
			return fmt.Errorf("%s run failed: %w", sum.Kind, err)
		}
		return nil
	})
}

// serve exposes the persisted records until ctx is cancelled.
func (c *cli) serve(ctx context.Context) error {
	if c.cfg.HTTPAddr == "" {
		return errors.New("serve needs http_addr (KEIBA_HTTP_ADDR)")
	}
	comp, err := build(ctx, c.cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = comp.close() }()

	return c.withSurface(ctx, comp.svc, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
}

// withSurface runs fn while the HTTP surface and the system metrics sampler
// run beside it. The first error stops the group.
func (c *cli) withSurface(ctx context.Context, svc *app.Service, fn func(ctx context.Context) error) error {
	if c.cfg.HTTPAddr == "" {
		return fn(ctx)
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc.Store()).Register(ctx, mux)
	srv := &http.Server{
		Addr:              c.cfg.HTTPAddr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	done, finish := context.WithCancel(gctx)
	defer finish()

	g.Go(func() error {
		metrics.RunSystemCollector(done)
		return nil
	})
	g.Go(func() error {
		c.log.Info(ctx, "starting HTTP server", logger.String("addr", c.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-done.Done()
		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			c.log.Error(ctx, "server shutdown failed", logger.Error(err))
		}
		c.log.Info(ctx, "server stopped")
		return nil
	})
	g.Go(func() error {
		defer finish()
		return fn(gctx)
	})
	return g.Wait()
}

package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	dig_container "github.com/liamAduDonkor/adesua-sub000/apps/api/di/dig"
	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/scheduler"
	logsvc "github.com/liamAduDonkor/adesua-sub000/services/logger"
	metricsvc "github.com/liamAduDonkor/adesua-sub000/services/metrics"
)

// The worker generates queued reports and submits scheduled ones.
// Any number of workers may run against the same database.
func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		zl *logsvc.ZapLogger,
		logger core.Logger,
		db *sqlx.DB,
		svc *report.Service,
		pool *report.Pool,
		driver *scheduler.Driver,
		metrics *metricsvc.Collector,
	) error {
		defer func() { _ = zl.Sync() }()

		logger.Info(fmt.Sprintf("Worker initializing : version %q", conf.Build))
		defer logger.Info("Worker stopped")

		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close", err)
			}
		}()

		if err := core.ParseEmailTemplates(conf); err != nil {
			logger.Error("Failed to initialize", err)
			return err
		}

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof, /debug/vars and /metrics, as on the API.

		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		http.Handle("/metrics", metrics.Handler())

		debug := &http.Server{Addr: conf.Server.DebugHost, Handler: http.DefaultServeMux}
		go func() {
			if err := debug.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start Workers

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return pool.Run(gctx) })
		g.Go(func() error { return driver.Run(gctx) })

		if err := g.Wait(); err != nil {
			logger.Error(fmt.Sprintf("worker error: %v", err), err)
		}

		// =========================================================================
		// Shutdown

		logger.Info("Start shutdown...")
		svc.Wait() // pending notifications

		sctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		if err := debug.Shutdown(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop debug server gracefully: %v", err), err)
		}
		return nil
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

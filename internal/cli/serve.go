package cli

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/trogers1052/asset-allocation/internal/api"
	"github.com/trogers1052/asset-allocation/internal/kafka"
	"github.com/trogers1052/asset-allocation/internal/scheduler"
)

type serveCmd struct {
	app    *App
	atomic bool
	noCron bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API, scheduled jobs and the holdings consumer" }
func (*serveCmd) Usage() string {
	return `assetalloc serve [-atomic] [-no-cron]

  Serves the HTTP API. Gains are calculated on GAINS_SCHEDULE and cached prices
  are pruned daily. With KAFKA_ENABLED, holdings snapshots are consumed from
  KAFKA_HOLDINGS_TOPIC.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.atomic, "atomic", false, "Allocate each consumed snapshot in one transaction")
	f.BoolVar(&c.noCron, "no-cron", false, "Do not schedule background jobs")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := c.app.Config
	log := c.app.Log

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := c.app.services()
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	if !c.noCron {
		sched := scheduler.New(ctx, log)
		if err := sched.AddJob(cfg.Gains.Schedule, scheduler.NewGainsJob(c.app.calculator(s.db))); err != nil {
			return fail(err)
		}
		if err := sched.AddJob("@daily", scheduler.NewPricePruneJob(s.db, cfg.Ledger.RetentionDays, log)); err != nil {
			return fail(err)
		}
		sched.Start()
		defer sched.Stop()
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewHoldingsConsumer(cfg.Kafka.Brokers, cfg.Kafka.HoldingsTopic, cfg.Kafka.GroupID, s.runner, c.atomic, log)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Holdings consumer stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.SetupRoutes(api.NewHandler(s.db, s.engine, s.retention, log)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fail(err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return subcommands.ExitFailure
	}
	log.Info().Msg("Server stopped")
	return subcommands.ExitSuccess
}

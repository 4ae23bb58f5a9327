package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jvanheule/webhook-poller/internal/backoff"
	"github.com/jvanheule/webhook-poller/internal/config"
	"github.com/jvanheule/webhook-poller/internal/db"
	"github.com/jvanheule/webhook-poller/internal/gateway"
	"github.com/jvanheule/webhook-poller/internal/logger"
	"github.com/jvanheule/webhook-poller/internal/metrics"
	"github.com/jvanheule/webhook-poller/internal/repository"
	"github.com/jvanheule/webhook-poller/internal/router"
	"github.com/jvanheule/webhook-poller/internal/worker"
)

var pollerCmd = &cobra.Command{
	Use:   "poller",
	Short: "Run the webhook events poller",
	RunE:  runPoller,
}

func runPoller(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(cfg.Log.Level)
	log := logger.Log.Named("poller")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// sanity on gateway settings
	if cfg.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway base_url is required")
	}
	if cfg.Gateway.AuthToken == "" {
		return fmt.Errorf("gateway auth_token is required")
	}

	// 2) DB connection (Postgres)
	pgDB, err := db.NewPostgresConnection(cfg.Postgres.DSN, db.PostgresOpts{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
		PingTimeout:     cfg.Postgres.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	defer pgDB.Close()

	// 3) repository
	eventsRepo := repository.NewEventsRepository(pgDB, cfg.Poller.MaxAttempts)

	// 4) routing table (fails fast on a malformed mapping)
	rt, err := router.New(cfg.Router.BucketApplicationMap)
	if err != nil {
		return err
	}

	// 5) gateway client + backoff policy
	gw := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.AuthToken, cfg.Gateway.Timeout)
	bo := backoff.New(cfg.Poller.BackoffCap)

	p := worker.NewPoller(pgDB, eventsRepo, gw, rt, bo, log)

	// tune knobs
	if cfg.Poller.BatchLimit > 0 {
		p.BatchLimit = cfg.Poller.BatchLimit
	}
	if cfg.Poller.IdleSleep > 0 {
		p.IdleSleep = cfg.Poller.IdleSleep
	}
	if cfg.Poller.FaultSleep > 0 {
		p.FaultSleep = cfg.Poller.FaultSleep
	}

	// 6) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return p.Run(ctx)
}

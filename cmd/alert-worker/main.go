package main

import (
	"context"
	"os"
	"time"

	"budgetledger/internal/amqp"
	"budgetledger/internal/backend"
	"budgetledger/internal/cache"
	"budgetledger/internal/cli"
	"budgetledger/internal/core"
	"budgetledger/internal/ledger"
	applog "budgetledger/internal/log"
	"budgetledger/internal/notify"
	"budgetledger/internal/services"
	"budgetledger/internal/worker"
)

var version = "dev"

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger.Logger)
	flushSentry := cli.InitSentry(logger.Logger, cfg.SentryDSN, cfg.SentryEnvironment, version)
	defer flushSentry()

	logger.Info("Starting alert worker", "version", version)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the alert worker")
		os.Exit(1)
	}

	channels := cli.DeliveryChannels(context.Background(), cfg, logger.Logger)
	if len(channels) == 0 {
		logger.Warn("No delivery channels configured, alerts will only be logged")
	}
	channels = append(channels, notify.NewLog(logger.Logger.With(applog.FieldComponent, applog.ComponentNotify)))
	fanout := notify.NewMulti(channels...)

	// Owner contact details are refreshed from the store when one is
	// reachable; otherwise the details carried by each message are used.
	var owners ledger.OwnerReader
	closeStore := func() error { return nil }
	var janitor *cache.Janitor
	var ownerCache *cache.LRU[core.Owner]
	backendCfg, err := backend.ConfigFrom(cfg)
	if err == nil && backendCfg.Kind != backend.Memory {
		res, err := backend.NewFactory(logger.Logger).Open(context.Background(), backendCfg)
		if err != nil {
			logger.Warn("Owner store unavailable, using message contact details",
				applog.FieldError, err, "backend", cfg.DataBackend)
		} else {
			owners, closeStore = res.Backend, res.Close
			if cfg.OwnerCacheTTL > 0 {
				ownerCache = cache.NewLRU[core.Owner](1024, cfg.OwnerCacheTTL)
				owners = cache.NewOwnerReader(res.Backend, ownerCache)
				janitor = cache.NewJanitor(ownerCache)
				janitor.Start(cfg.OwnerCacheTTL)
			}
		}
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	w := worker.NewAlertWorker(owners, fanout, cfg.CurrencySymbol).WithReporter(services.ReportToSentry)

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if janitor != nil {
			janitor.Stop()
			st := ownerCache.Stats()
			logger.Info("Owner cache stats", "size", st.Size, "hits", st.Hits, "misses", st.Misses)
		}
		if err := client.Close(); err != nil {
			logger.Error("AMQP close error", applog.FieldError, err)
		}
		if err := closeStore(); err != nil {
			logger.Error("Backend close error", applog.FieldError, err)
		}
	})

	logger.Info("Consuming budget alerts",
		"queue", cfg.AMQPQueue,
		"channels", fanout.Channels())
	if err := w.Run(ctx, client); err != nil {
		logger.Error("Alert consumption failed", applog.FieldError, err)
		flushSentry()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Alert worker stopped")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetledger/internal/amqp"
	"budgetledger/internal/backend"
	"budgetledger/internal/cli"
	apphttp "budgetledger/internal/http"
	"budgetledger/internal/limits"
	applog "budgetledger/internal/log"
	"budgetledger/internal/notify"
	"budgetledger/internal/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger.Logger)
	flushSentry := cli.InitSentry(logger.Logger, cfg.SentryDSN, cfg.SentryEnvironment, version)

	table := limits.Default()
	if cfg.LimitsFile != "" {
		t, err := limits.LoadFile(cfg.LimitsFile)
		if err != nil {
			logger.Error("Failed to load limits file", applog.FieldError, err, "path", cfg.LimitsFile)
			os.Exit(1)
		}
		table = t
	}
	logger.Info("Limit table loaded", "categories", table.Len())

	backendCfg, err := backend.ConfigFrom(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger.Logger).Open(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize storage backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// With a broker the API only queues alerts and the alert worker delivers
	// them; without one the configured channels are called in process.
	channels := []notify.Channel{notify.NewLog(logger.Logger.With(applog.FieldComponent, applog.ComponentNotify))}
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		channels = append(channels, notify.NewQueue(amqpClient))
		logger.Info("Budget alerts will be queued", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		channels = append(channels, cli.DeliveryChannels(context.Background(), cfg, logger.Logger)...)
	}
	fanout := notify.NewMulti(channels...)
	logger.Info("Notification channels ready", "channels", fanout.Channels())

	dispatcher := services.NewDispatcher(
		notify.NewChannelNotifier(fanout, cfg.CurrencySymbol),
		cfg.NotifyMaxInFlight,
		cfg.NotifyTimeout,
	).WithReporter(services.ReportToSentry)

	svc := services.NewTransactionService(store.Backend, table, dispatcher, cfg.CurrencySymbol)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		Currency:           cfg.CurrencySymbol,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, svc, table, store.Backend, logger)

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := dispatcher.Shutdown(ctx); err != nil {
			logger.Warn("Pending notifications abandoned", applog.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", applog.FieldError, err)
			}
		}
		if err := store.Close(); err != nil {
			logger.Error("Backend close error", applog.FieldError, err)
		}
		flushSentry()
	})

	logger.Info("Starting ledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"version", version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		flushSentry()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

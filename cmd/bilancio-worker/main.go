package main

import (
	"os"

	"bilancio/internal/backend"
	"bilancio/internal/cli"
	applog "bilancio/internal/log"
	"bilancio/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger = logger.WithComponent(applog.ComponentWorker)

	logger.Info("Starting bilancio-worker", applog.FieldOperation, applog.OpStartup, applog.FieldBackend, cfg.EventsBackend)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err, applog.FieldErrorType, applog.ErrorTypeConfiguration)
		os.Exit(1)
	}
	if backendCfg.Events == backend.NoEvents {
		logger.Error("The worker needs an event transport; set EVENTS_BACKEND to amqp or nats",
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	eventsResult, err := backend.NewFactory(logger).CreateEvents(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize events backend", applog.FieldError, err, applog.FieldBackend, cfg.EventsBackend)
		os.Exit(1)
	}

	audit := worker.NewAuditWorker(eventsResult.Consumer, logger)
	runErr := audit.Run(ctx, cfg.AuditReportInterval)

	s := audit.Snapshot()
	logger.Info("Worker stopped",
		applog.FieldOperation, applog.OpShutdown,
		applog.FieldBalance, s.Balance.StringFixed(2),
		applog.FieldCount, s.Count,
		"processed", s.Processed)

	if eventsResult.Cleanup != nil {
		if err := eventsResult.Cleanup(); err != nil {
			logger.Warn("Failed to close events backend", applog.FieldError, err)
		}
	}
	if runErr != nil {
		logger.Error("Event consumption failed", applog.FieldError, runErr)
		os.Exit(1)
	}
}

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/backend"
	"bilancio/internal/cache"
	"bilancio/internal/cli"
	"bilancio/internal/completion"
	"bilancio/internal/config"
	"bilancio/internal/core"
	apphttp "bilancio/internal/http"
	applog "bilancio/internal/log"
	"bilancio/internal/ports"
	"bilancio/internal/services"
	"bilancio/internal/store/memory"
)

const (
	shutdownTimeout = 30 * time.Second
	cacheSweep      = time.Minute
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger = logger.WithComponent(applog.ComponentApp)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// run returns instead of exiting so deferred cleanups always run.
func run(cfg *config.Config, logger *applog.Logger) error {
	var fallback []core.Transaction
	if cfg.SeedDemo {
		fallback = core.DemoTransactions()
	}
	store, err := memory.NewFromFile(cfg.SeedFile, fallback)
	if err != nil {
		return fmt.Errorf("failed to seed transaction store: %w", err)
	}
	logger.WithComponent(applog.ComponentStore).Info("Transaction store ready", applog.FieldCount, store.Len(), "seed_file", cfg.SeedFile)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid backend configuration: %w", err)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	factory := backend.NewFactory(logger)
	users, err := factory.CreateUsers(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize users backend: %w", err)
	}
	defer runCleanup(logger, "users", users.Cleanup)

	eventsResult, err := factory.CreateEvents(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize events backend: %w", err)
	}
	defer runCleanup(logger, "events", eventsResult.Cleanup)

	completer, err := newCompleter(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize completion client: %w", err)
	}

	svc := services.NewTransactionService(store, logger, services.WithPublisher(eventsResult.Publisher))

	caches := map[string]apphttp.StatsSource{}
	manager := cache.NewManager(logger)
	if users.Cached != nil {
		caches["users"] = users.Cached.Cache()
		manager.Register(users.Cached.Cache())
	}

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		DefaultPrompt:      cfg.DefaultPrompt,
	}, apphttp.Deps{
		Transactions: svc,
		Users:        users.Users,
		Completer:    completer,
		UsersReady:   users.Ready,
		Caches:       caches,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build HTTP server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting bilancio server",
			applog.FieldOperation, applog.OpStartup,
			"port", cfg.Port,
			"users_backend", cfg.UsersBackend,
			"events_backend", cfg.EventsBackend,
			"completion_provider", cfg.CompletionProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return srv.RunMaintenance(gctx) })
	g.Go(func() error { return manager.Run(gctx, cacheSweep) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := cli.ShutdownContext(shutdownTimeout)
		defer shutdownCancel()
		logger.Info("Shutting down server", applog.FieldOperation, applog.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newCompleter(cfg *config.Config, logger *applog.Logger) (ports.Completer, error) {
	if cfg.CompletionProvider == "none" {
		logger.Info("Text completion disabled")
		return completion.Disabled{}, nil
	}
	return completion.New(completion.Config{
		Provider:    cfg.CompletionProvider,
		APIKey:      cfg.CompletionAPIKey,
		BaseURL:     cfg.CompletionBaseURL,
		Model:       cfg.CompletionModel,
		Temperature: cfg.CompletionTemperature,
		TopP:        cfg.CompletionTopP,
		MaxTokens:   cfg.CompletionMaxTokens,
		Timeout:     cfg.CompletionTimeout,
	}, logger)
}

func runCleanup(logger *applog.Logger, name string, fn backend.CleanupFunc) {
	if fn == nil {
		return
	}
	if err := fn(); err != nil {
		logger.Warn("Cleanup failed", "resource", name, applog.FieldError, err)
	}
}

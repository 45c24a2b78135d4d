package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"predictionclub/internal/auth"
	"predictionclub/internal/bot"
	"predictionclub/internal/config"
	"predictionclub/internal/gateway"
	"predictionclub/internal/gateway/supabase"
	"predictionclub/internal/handlers"
	"predictionclub/internal/logger"
	"predictionclub/internal/metrics"
	"predictionclub/internal/registry"
	"predictionclub/internal/service"
	"predictionclub/internal/storage"
	"predictionclub/internal/store"
	"predictionclub/internal/suggest"
)

const shutdownTimeout = 10 * time.Second

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// gatewayFactory returns one backend connection per client session
func gatewayFactory(cfg *config.Config) (registry.GatewayFactory, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		logger.Info("", "backend_sqlite", cfg.DatabasePath)
		db, err := storage.Open(cfg.DatabasePath, cfg.JWTSecret)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if _, err := db.Seed(context.Background()); err != nil {
			db.Close()
			return nil, nil, err
		}
		factory := func(string) (gateway.Gateway, error) {
			return db.NewGateway(), nil
		}
		return factory, func() { db.Close() }, nil
	default:
		logger.Info("", "backend_supabase", cfg.SupabaseURL)
		factory := func(string) (gateway.Gateway, error) {
			return supabase.New(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseAnonKey}), nil
		}
		return factory, func() {}, nil
	}
}

func newSuggester(ctx context.Context, cfg *config.Config, m *metrics.Metrics) *suggest.Service {
	gemini, err := suggest.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		logger.Error("", "suggestions_disabled", err)
	}
	return suggest.New(gemini.AsGenerator(), suggest.WithRateLimit(cfg.SuggestionsPerMinute), suggest.WithMetrics(m))
}

func serve(_ *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rewards, err := cfg.Rewards()
	if err != nil {
		return err
	}

	factory, closeBackend, err := gatewayFactory(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	m := metrics.New()
	suggester := newSuggester(ctx, cfg, m)
	broadcaster := service.NewBroadcaster(nil, cfg.ChannelID)

	storeOpts := []store.Option{
		store.WithNotificationTTL(cfg.NotificationTTL),
		store.WithStrictWagers(cfg.StrictWagers),
		store.WithRewards(rewards),
		store.WithMetrics(m),
		store.WithTopicListener(broadcaster.Listener()),
	}
	if cfg.Backend == config.BackendSupabase {
		storeOpts = append(storeOpts, store.WithLiveTopics())
	}
	sessions := registry.New(ctx, factory, registry.WithMetrics(m), registry.WithStoreOptions(storeOpts...))
	defer sessions.Close()

	// Start bot if configured
	if cfg.TelegramBotToken != "" {
		b, err := bot.New(cfg.TelegramBotToken, sessions, suggester, cfg.WebAppURL)
		if err != nil {
			logger.Error("", "bot_disabled", err)
		} else {
			broadcaster.SetSender(b.Telebot())
			go b.Start()
			defer b.Stop()
		}
	} else {
		logger.Warn("", "bot_disabled", "TELEGRAM_BOT_TOKEN not set")
	}

	worker, err := service.NewSessionWorker(sessions, cfg.ReconcileInterval, cfg.SessionIdleTimeout)
	if err != nil {
		return err
	}
	if err := worker.Start(); err != nil {
		return err
	}
	defer worker.Stop()

	h := handlers.New(sessions, suggester, m)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.Router(h, auth.NewManager(cfg.SessionSecret, cfg.TelegramBotToken), m, cfg.Origins(), cfg.StaticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("", "server_starting", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("", "server_stopping", "")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	broadcaster.Wait()
	return nil
}

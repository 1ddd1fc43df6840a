package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anonrelay-bot/internal/common/config"
	"anonrelay-bot/internal/common/logger"
	"anonrelay-bot/internal/gateway/telegram"
	"anonrelay-bot/internal/health"
	"anonrelay-bot/internal/repository"
	filerepo "anonrelay-bot/internal/repository/file"
	redisrepo "anonrelay-bot/internal/repository/redis"
	"anonrelay-bot/internal/service/conversation"
	"anonrelay-bot/internal/service/dispatch"
	"anonrelay-bot/internal/service/identity"
	"anonrelay-bot/internal/service/moderation"
	"anonrelay-bot/internal/service/perms"
	"anonrelay-bot/internal/state"
)

func main() {
	cfg := config.Load()

	logSink := logger.Init("anonrelay-bot", cfg.Debug, cfg.LogFile)
	if logSink != nil {
		defer logSink.Close()
	}

	logger.Info().
		Str("store_backend", cfg.Store.Backend).
		Bool("debug", cfg.Debug).
		Msg("Starting anonrelay bot")

	ctx := context.Background()

	// Хранилище: файл по умолчанию, Redis по конфигурации
	var repo repository.StoreRepository
	switch cfg.Store.Backend {
	case "redis":
		client, err := redisrepo.Open(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer client.Close()
		repo = redisrepo.NewStoreRepository(client, cfg.Store.RedisKey)
	default:
		repo = filerepo.NewStoreRepository(cfg.Store.File)
	}

	doc, err := repo.Load(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load store")
	}
	engine := state.NewEngine(doc, repo)

	identitySvc := identity.NewService(engine, cfg.Anon.Min, cfg.Anon.Max)
	permsSvc := perms.NewService(engine, cfg.Telegram.BootstrapAdmin)
	moderationSvc := moderation.NewService(engine)
	tracker := conversation.NewTracker()

	if err := permsSvc.EnsureBootstrap(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed bootstrap admin")
	}
	logger.Info().Str("handle", cfg.Telegram.BootstrapAdmin).Msg("Bootstrap admin ensured")

	bot, err := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.PollTimeout, cfg.Telegram.SendTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Telegram")
	}

	dispatcher := dispatch.New(engine, identitySvc, permsSvc, moderationSvc, tracker, bot, dispatch.Options{
		SendTimeout: cfg.Telegram.SendTimeout,
		LogsURL:     cfg.LogsURL,
		DonateURL:   cfg.DonateURL,
	})
	bot.Bind(dispatcher)

	server := health.NewServer(cfg)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Health endpoint listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Health endpoint failed")
		}
	}()

	go bot.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down...")
	bot.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Health endpoint forced to shutdown")
	}

	logger.Info().Msg("Bot exited")
}

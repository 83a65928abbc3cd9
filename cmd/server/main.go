package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/silano08/tokingtoking/internal/config"
	"github.com/silano08/tokingtoking/internal/database"
	"github.com/silano08/tokingtoking/internal/handlers"
	"github.com/silano08/tokingtoking/internal/metrics"
	"github.com/silano08/tokingtoking/internal/middleware"
	"github.com/silano08/tokingtoking/internal/repository"
	"github.com/silano08/tokingtoking/internal/router"
	"github.com/silano08/tokingtoking/internal/services"
	"github.com/silano08/tokingtoking/migrations"
	"github.com/silano08/tokingtoking/pkg/logger"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer log.Sync()
	log.Info("Starting TokingToking backend", zap.String("env", cfg.Env))

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("PostgreSQL connection failed", zap.Error(err))
	}
	defer pool.Close()
	log.Info("PostgreSQL connected")

	// ──── Step 3: Initialize Redis Client ────
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatal("Redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Redis connected")

	// ──── Step 4: Run Database Migrations ────
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = database.RunMigrations(migrateCtx, pool, migrations.FS, log)
	cancelMigrate()
	if err != nil {
		log.Fatal("Database migration failed", zap.Error(err))
	}
	log.Info("Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	vocabRepo := repository.NewVocabRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	subscriptionRepo := repository.NewSubscriptionRepo(pool)
	levelTestRepo := repository.NewLevelTestRepo(pool)
	historyRepo := repository.NewHistoryRepo(pool)

	m := metrics.New()

	// ──── Step 5: Initialize LLM and Speech Providers ────
	prompts, err := services.LoadPromptBook()
	if err != nil {
		log.Fatal("Prompt templates failed to load", zap.Error(err))
	}

	var (
		llm    services.ChatGateway
		gemini *services.GeminiGateway
	)
	switch cfg.LLMProvider {
	case "gemini":
		gemini, err = services.NewGeminiGateway(context.Background(), cfg.GeminiAPIKey, cfg.GeminiChatModel, cfg.GeminiSpeakingModel, m)
		if err != nil {
			log.Fatal("Gemini client initialization failed", zap.Error(err))
		}
		defer gemini.Close()
		llm = gemini
	default:
		llm = services.NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.OpenAISpeakingModel, m)
	}
	log.Info("LLM provider initialized", zap.String("provider", cfg.LLMProvider))

	var stt services.SpeechToText
	switch {
	case cfg.GroqAPIKey != "":
		stt = services.NewWhisperTranscriber(cfg.GroqAPIKey, cfg.GroqBaseURL, m)
	case gemini != nil:
		stt = gemini
		log.Warn("GROQ_API_KEY not set, transcribing audio with Gemini")
	default:
		stt = services.NewWhisperTranscriber("", cfg.GroqBaseURL, m)
		log.Warn("GROQ_API_KEY not set, speech transcription will fail")
	}

	tossClient, err := services.NewTossClient(cfg.TossAPIURL, cfg.TossMTLSCertPath, cfg.TossMTLSKeyPath, m)
	if err != nil {
		log.Fatal("Toss client initialization failed", zap.Error(err))
	}

	// ──── Initialize Services ────
	loc := cfg.Location()
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	revocations := services.NewRedisRevocationList(redisClient)

	authService := services.NewAuthService(userRepo, tossClient, jwtAuth, revocations, log)
	entitlementService := services.NewEntitlementService(userRepo, log)
	statsUpdater := services.NewStatsUpdater(userRepo, loc)
	sessionService := services.NewSessionService(
		sessionRepo,
		vocabRepo,
		userRepo,
		llm,
		prompts,
		statsUpdater,
		entitlementService,
		services.SessionOptions{DailyLimit: cfg.FreeDailySessionLimit, Location: loc},
		m,
		log,
	)
	transcriptionService := services.NewTranscriptionService(stt, llm, prompts, log)
	vocabService := services.NewVocabService(vocabRepo, sessionRepo, userRepo)
	levelTestService := services.NewLevelTestService(levelTestRepo, userRepo, log)
	iapService := services.NewIAPService(userRepo, subscriptionRepo, tossClient, log)
	historyService := services.NewHistoryService(historyRepo, userRepo, loc)

	// ──── Initialize Handlers ────
	h := router.Handlers{
		Auth:      handlers.NewAuthHandler(authService),
		LevelTest: handlers.NewLevelTestHandler(levelTestService),
		Vocab:     handlers.NewVocabHandler(vocabService),
		Chat:      handlers.NewChatHandler(sessionService),
		Speaking:  handlers.NewSpeakingHandler(sessionService, transcriptionService),
		IAP:       handlers.NewIAPHandler(iapService),
		History:   handlers.NewHistoryHandler(historyService),
	}

	// ──── Step 6: Start HTTP Server ────
	r := router.New(jwtAuth, h, entitlementService, m, log, router.Options{
		CORSOrigins:      cfg.CORSOrigins,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
	})

	// Speaking-model turns can take well over 15s.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("Graceful shutdown failed", zap.Error(err))
		}
	}()

	log.Info("TokingToking backend ready",
		zap.String("api", fmt.Sprintf("http://localhost:%s/api", cfg.Port)),
		zap.String("metrics", fmt.Sprintf("http://localhost:%s/metrics", cfg.Port)),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("Server error", zap.Error(err))
	}
}

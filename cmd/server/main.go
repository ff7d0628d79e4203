package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"reading-platform/internal/ai"
	"reading-platform/internal/config"
	"reading-platform/internal/database"
	"reading-platform/internal/generation"
	"reading-platform/internal/handler"
	"reading-platform/internal/interfaces"
	"reading-platform/internal/logger"
	"reading-platform/internal/messaging"
	"reading-platform/internal/safety"
	"reading-platform/internal/service"

	"github.com/avast/retry-go/v4"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

const (
	connectAttempts = 10
	connectDelay    = 3 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: could not load .env file: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
		Service:  "reading-platform",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Хранилища ---
	pool, err := database.NewPool(rootCtx, cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	if err := database.ApplyMigrations(pool); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}
	log.Info("Database migrations applied")

	redisClient, err := setupRedis(rootCtx, cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	cache, err := database.NewTieredCache(redisClient, cfg.LocalCacheSize, log)
	if err != nil {
		log.Fatal("Failed to create cache", zap.Error(err))
	}

	txManager := database.NewTxManager(pool, log)
	userRepo := database.NewPgUserRepository(log)
	childRepo := database.NewPgChildRepository(log)
	storyRepo := database.NewPgStoryRepository(log)
	chapterRepo := database.NewPgChapterRepository(log)
	sessionRepo := database.NewPgSessionRepository(log)
	analyticsRepo := database.NewPgAnalyticsRepository(log)

	// --- AI и конвейер генерации ---
	backend, err := ai.NewBackend(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize AI backend", zap.Error(err))
	}
	builder := generation.NewContextBuilder(ai.NewTokenCounter(backend.Client.ModelName()), cfg.PromptTokenBudget, log)
	generator, err := generation.NewGenerator(backend.Client, backend.Structured, builder, generation.GeneratorConfig{
		Temperature: cfg.AITemperature,
		MaxTokens:   cfg.AIMaxTokens,
		Timeout:     cfg.AITimeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to create chapter generator", zap.Error(err))
	}
	evaluator := safety.NewEvaluator(safety.Config{
		Threshold: cfg.ContentSafetyThreshold,
		Timeout:   cfg.AITimeout,
	}, backend.Moderator, backend.Client, log)
	enhancer := generation.NewEnhancer(backend.Client, cfg.AITimeout, log)
	orchestrator := generation.NewOrchestrator(generator, evaluator, enhancer, generation.OrchestratorConfig{
		MaxRegenerations: cfg.MaxRegenerations,
	}, log)

	// --- События ---
	analyticsHandler := messaging.NewAnalyticsHandler(pool, childRepo, cache, log)
	var (
		publisher  interfaces.EventPublisher
		consumerWG sync.WaitGroup
	)
	if cfg.RabbitMQURL != "" {
		conn, err := connectRabbitMQ(rootCtx, cfg.RabbitMQURL, log)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer conn.Close()

		rmqPublisher, err := messaging.NewRabbitMQPublisher(conn, cfg.EventsExchange, log)
		if err != nil {
			log.Fatal("Failed to create event publisher", zap.Error(err))
		}
		defer rmqPublisher.Close()
		publisher = rmqPublisher

		consumer := messaging.NewConsumer(conn, cfg.EventsExchange, cfg.AnalyticsQueue, analyticsHandler, log)
		consumerWG.Add(1)
		go func() {
			defer consumerWG.Done()
			if err := consumer.Start(rootCtx); err != nil {
				log.Error("Analytics consumer stopped with error", zap.Error(err))
			}
		}()
	} else {
		publisher = messaging.NewInProcessPublisher(analyticsHandler, log)
	}

	// --- Сервисы ---
	storyService := service.NewStoryService(pool, txManager, childRepo, storyRepo, chapterRepo, orchestrator, evaluator, cache, publisher,
		service.StoryServiceConfig{
			DefaultTotalChapters: cfg.DefaultTotalChapters,
			RecommendationsTTL:   cfg.RecommendationsCacheTTL,
		}, log)
	services := handler.Services{
		Auth:      service.NewAuthService(pool, userRepo, cfg.JWTSecret, cfg.JWTAccessTokenTTL, log),
		Children:  service.NewChildService(pool, childRepo, sessionRepo, analyticsRepo, cache, log),
		Stories:   storyService,
		Sessions:  service.NewSessionService(pool, txManager, childRepo, storyRepo, chapterRepo, sessionRepo, orchestrator, publisher, log),
		Analytics: service.NewAnalyticsService(pool, childRepo, analyticsRepo, cache, cfg.CacheTTL, log),
	}

	// --- HTTP ---
	router := handler.NewRouter(cfg.CORSOrigins, log)
	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)
	handler.NewHandler(services, cfg.StreamHeartbeat, log).RegisterRoutes(router)

	// WriteTimeout не задан: потоковая генерация держит соединение дольше любого разумного лимита.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	consumerWG.Wait()

	log.Info("Server exiting")
}

// setupRedis подключается к Redis, повторяя ping до connectAttempts раз.
func setupRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	err := retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return client.Ping(pingCtx).Err()
		},
		retry.Context(ctx),
		retry.Attempts(connectAttempts),
		retry.Delay(connectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("Redis ping failed, retrying...", zap.Uint("attempt", n+1), zap.String("address", cfg.RedisAddr), zap.Error(err))
		}),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.RedisAddr, err)
	}
	log.Info("Connected to Redis", zap.String("address", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	return client, nil
}

func connectRabbitMQ(ctx context.Context, url string, log *zap.Logger) (*amqp.Connection, error) {
	conn, err := retry.DoWithData(
		func() (*amqp.Connection, error) { return amqp.Dial(url) },
		retry.Context(ctx),
		retry.Attempts(connectAttempts),
		retry.Delay(connectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("Failed to connect to RabbitMQ, retrying...", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	log.Info("Connected to RabbitMQ")
	return conn, nil
}

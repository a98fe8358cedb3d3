package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"story-engine/internal/config"
	"story-engine/internal/database"
	"story-engine/internal/handler"
	"story-engine/internal/logger"
	"story-engine/internal/messaging"
	"story-engine/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	// .env нужен только для локальной разработки, в контейнере его нет
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading configuration from environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL ---
	pool, err := database.NewPool(ctx, database.Config{
		DSN:         cfg.GetDSN(),
		MaxConns:    cfg.DBMaxConns,
		IdleTimeout: cfg.DBIdleTimeout,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	if err := database.NewMigrator(pool, zapLogger).Up(); err != nil {
		zapLogger.Fatal("Failed to apply database migrations", zap.Error(err))
	}

	// --- Redis (кеш графов историй) ---
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	// --- RabbitMQ (пополнения баланса от платежной подсистемы) ---
	amqpConn, err := amqp091.Dial(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer func() { _ = amqpConn.Close() }()

	// --- Репозитории ---
	storyRepo := database.NewPgStoryRepository(pool, zapLogger)
	progressRepo := database.NewPgProgressRepository(pool, zapLogger)
	ledgerRepo := database.NewPgLedgerRepository(pool, zapLogger)
	graphCache := database.NewRedisGraphCache(redisClient, cfg.GraphCacheTTL, zapLogger)
	txManager := database.NewTransactionHelper(pool, zapLogger)

	// --- Сервисы ---
	graphService := service.NewStoryGraphService(storyRepo, graphCache, zapLogger)
	progressService := service.NewProgressService(progressRepo, graphService, zapLogger)
	engineService := service.NewEngineService(graphService, progressRepo, ledgerRepo, txManager, zapLogger)
	ledgerService := service.NewLedgerService(ledgerRepo, zapLogger)

	// --- Консьюмер пополнений ---
	creditConsumer, err := messaging.NewCreditConsumer(
		amqpConn, ledgerService, cfg.TopUpQueue, cfg.ConsumerName, cfg.PrefetchCount, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create credit consumer", zap.Error(err))
	}
	go func() {
		if err := creditConsumer.StartConsuming(); err != nil {
			zapLogger.Error("Credit consumer stopped with error", zap.Error(err))
			stop()
		}
	}()

	// --- HTTP ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.ZapLoggingMiddleware(zapLogger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	prom := ginprometheus.NewPrometheus("story_engine")
	prom.Use(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := handler.NewHandler(graphService, engineService, progressService, ledgerService,
		zapLogger, cfg.JWTSecret, cfg.InterServiceSecret)
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: cfg.ReadTimeout,
	}

	go func() {
		zapLogger.Info("Story engine listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Error("HTTP server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := creditConsumer.Stop(); err != nil {
		zapLogger.Error("Failed to stop credit consumer", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown error", zap.Error(err))
	}

	zapLogger.Info("Story engine stopped")
}

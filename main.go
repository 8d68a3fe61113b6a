package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/mocktest-service/internal/config"
	"github.com/SAP-F-2025/mocktest-service/internal/events"
	"github.com/SAP-F-2025/mocktest-service/internal/handlers"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/mocktest-service/internal/services"
	"github.com/SAP-F-2025/mocktest-service/internal/timer"
	"github.com/SAP-F-2025/mocktest-service/internal/utils"
	"github.com/SAP-F-2025/mocktest-service/internal/validator"
	"github.com/SAP-F-2025/mocktest-service/internal/workers"
	"github.com/SAP-F-2025/mocktest-service/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogLogger := utils.NewJSONLogger(os.Stdout, cfg.LogLevel)
	logger := utils.NewSlogLogger(slogLogger)

	if cfg.AutoMigrate {
		if err := pkg.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		logger.Info("Migrations applied", "path", cfg.MigrationsPath)
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Redis is optional; without it every read goes to Postgres
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, running without cache", "error", err)
		}
	}

	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:            db,
		RedisClient:   redisClient,
		CasdoorConfig: cfg.Casdoor,
	})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}
	repo := repoManager.GetRepository()

	pubSub, err := events.NewPubSub(events.PubSubConfig{
		KafkaBrokers:  cfg.KafkaBrokers,
		ConsumerGroup: cfg.KafkaConsumerGroup,
	}, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize pub/sub: %v", err)
	}
	publisher := events.NewWatermillPublisher(pubSub.Publisher, slogLogger)

	serviceManager := services.NewServiceManager(repo, slogLogger, validator.New(), services.ServiceManagerConfig{
		GracePeriod:    cfg.AnswerGracePeriod,
		Clock:          timer.SystemClock(),
		Entitlement:    services.NewEnrollmentEntitlementChecker(repo),
		Publisher:      publisher,
		DefaultTimeout: 5 * time.Second,
	})
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	consumerConfig := events.DefaultConsumerConfig()
	consumerConfig.MaxRetries = cfg.RankRetryMax
	rankConsumer, err := events.NewRankConsumer(pubSub.Subscriber, serviceManager.Rank(), consumerConfig, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize rank consumer: %v", err)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rankConsumer.Run(workerCtx); err != nil {
			logger.Error("Rank consumer stopped", "error", err)
		}
	}()

	// gochannel drops messages published before the subscription exists
	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = rankConsumer.WaitRunning(startCtx)
	startCancel()
	if err != nil {
		log.Fatalf("Failed to start rank consumer: %v", err)
	}

	if cfg.ExpirySweepInterval > 0 {
		sweeper := workers.NewExpirySweeper(
			workers.ExpirySweeperConfig{Interval: cfg.ExpirySweepInterval, Grace: cfg.AnswerGracePeriod},
			repo.Attempt(),
			serviceManager.Attempt(),
			timer.SystemClock(),
			slogLogger,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sweeper.Run(workerCtx); err != nil {
				logger.Error("Expiry sweeper stopped", "error", err)
			}
		}()
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlers.NewHandlerManager(serviceManager, handlers.NewCasdoorVerifier(cfg.Casdoor), logger).SetupRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment, "transport", pubSub.Transport)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// drain the consumer before the database goes away
	stopWorkers()
	if err := rankConsumer.Close(); err != nil {
		logger.Error("Failed to close rank consumer", "error", err)
	}
	wg.Wait()

	if err := publisher.Close(); err != nil {
		logger.Error("Failed to close publisher", "error", err)
	}
	if err := pubSub.Close(); err != nil {
		logger.Error("Failed to close pub/sub", "error", err)
	}

	if err := serviceManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown services", "error", err)
	}

	logger.Info("Server exited")
}

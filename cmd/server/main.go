package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acadex/grading-service/internal/cache"
	"github.com/acadex/grading-service/internal/config"
	"github.com/acadex/grading-service/internal/events"
	"github.com/acadex/grading-service/internal/grader"
	"github.com/acadex/grading-service/internal/handlers"
	"github.com/acadex/grading-service/internal/models"
	"github.com/acadex/grading-service/internal/repositories/postgres"
	"github.com/acadex/grading-service/internal/services"
	"github.com/acadex/grading-service/internal/utils"
	"github.com/gin-gonic/gin"

	"github.com/acadex/grading-service/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	var logger utils.Logger
	if cfg.Environment == "production" {
		logger = utils.NewDefaultLogger()
	} else {
		logger = utils.NewDevelopmentLogger()
	}
	slogLogger := utils.ToSlogLogger(logger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(
		&models.Course{},
		&models.Exam{},
		&models.Question{},
		&models.Choice{},
		&models.Submission{},
		&models.SubmissionAnswer{},
	); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	publisher, err := events.NewKafkaEventPublisher(events.PublisherConfig{
		KafkaBrokers: cfg.KafkaBrokers,
		TopicName:    cfg.GradingEventTopic,
		Logger:       slogLogger,
	})
	if err != nil {
		logger.Error("Failed to create event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	provider, err := grader.NewOpenAIProvider(grader.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.ProviderTimeout,
		Logger:  slogLogger,
	})
	if err != nil {
		logger.Error("Failed to create grading provider", "error", err)
		os.Exit(1)
	}

	repo := postgres.NewRepository(db)
	validator := utils.NewValidator()

	serviceManager := services.NewServiceManager(services.ManagerConfig{
		Repo:      repo,
		Provider:  provider,
		Publisher: publisher,
		Cache:     cache.NewRedisCache(redisClient, slogLogger),
		Logger:    slogLogger,
		Validator: validator,
		Retry: services.RetryPolicy{
			MaxAttempts: cfg.ProviderMaxAttempts,
			BackoffBase: cfg.ProviderBackoffBase,
		},
	})

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))
	router.Use(utils.ContextLogger(logger))

	handlerManager := handlers.NewHandlerManager(serviceManager, validator, logger)
	handlerManager.SetupRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Starting grading service", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", "error", err)
	}
	logger.Info("Server stopped")
}

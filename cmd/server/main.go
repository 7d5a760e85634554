package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"pixtools/internal/broker"
	"pixtools/internal/config"
	"pixtools/internal/database"
	"pixtools/internal/handlers"
	"pixtools/internal/idempotency"
	"pixtools/internal/jobstore"
	"pixtools/internal/logger"
	"pixtools/internal/objectstore"
	"pixtools/internal/observability"
)

func main() {
	cfg := config.Load()

	logger.Init("pixtools-server", cfg.Environment, logger.ParseLevelFromEnv())

	shutdownOTel, err := observability.InitOTel(context.Background(), "pixtools-server")
	if err != nil {
		log.Printf("warning: failed to initialize OpenTelemetry: %v", err)
	} else {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				log.Printf("error shutting down OpenTelemetry: %v", err)
			}
		}()
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	store := jobstore.NewPostgresStore(db)

	objects, err := objectstore.NewS3Gateway(context.Background(), objectstore.Config{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Bucket:          cfg.S3Bucket,
		RetentionDays:   int32(cfg.S3RetentionDays),
	})
	if err != nil {
		log.Fatalf("failed to initialize object store: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	idemp := idempotency.New(rdb, time.Duration(cfg.IdempotencyTTLSeconds)*time.Second)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()
	dispatcher := broker.NewAsynqDispatcher(asynqClient, cfg.StandardTaskTimeout, cfg.MLTaskTimeout)

	urlExpiry := time.Duration(cfg.PresignedURLExpirySeconds) * time.Second

	router := &handlers.Router{
		Submit: handlers.NewSubmitHandler(store, objects, dispatcher, idemp, cfg),
		Status: handlers.NewStatusHandler(store, objects, urlExpiry),
		Health: handlers.NewHealthHandler(db, rdb, objects),
	}
	engine := router.Setup(cfg)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	go func() {
		log.Printf("pixtools server starting on port %s (env=%s)", cfg.Port, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Println("server exited")
}

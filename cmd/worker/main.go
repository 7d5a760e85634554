package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"pixtools/internal/broker"
	"pixtools/internal/config"
	"pixtools/internal/database"
	"pixtools/internal/jobstore"
	"pixtools/internal/logger"
	"pixtools/internal/objectstore"
	"pixtools/internal/webhook"
	"pixtools/internal/worker"
)

func main() {
	cfg := config.Load()

	logger.Init("pixtools-worker", cfg.Environment, logger.ParseLevelFromEnv())

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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()
	dispatcher := broker.NewAsynqDispatcher(asynqClient, cfg.StandardTaskTimeout, cfg.MLTaskTimeout)

	deliverer := webhook.New(5*time.Second, cfg.WebhookCBFailThreshold, cfg.WebhookCBResetTimeout)

	srv := worker.NewServer(worker.Config{
		RedisAddr:                cfg.RedisAddr,
		StandardQueueConcurrency: cfg.StandardQueueConcurrency,
		MLQueueConcurrency:       cfg.MLQueueConcurrency,
		PresignedURLExpiry:       time.Duration(cfg.PresignedURLExpirySeconds) * time.Second,
	}, dispatcher, store, objects, deliverer)

	go func() {
		log.Println("pixtools worker starting")
		if err := srv.Run(); err != nil {
			log.Fatalf("worker server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down worker...")
	srv.Shutdown()
	log.Println("worker exited")
}

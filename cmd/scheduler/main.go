package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pixtools/internal/config"
	"pixtools/internal/database"
	"pixtools/internal/jobstore"
	"pixtools/internal/logger"
	"pixtools/internal/maintenance"
	"pixtools/internal/objectstore"
)

func main() {
	cfg := config.Load()

	logger.Init("pixtools-scheduler", cfg.Environment, logger.ParseLevelFromEnv())

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

	retention := time.Duration(cfg.JobRetentionHours) * time.Hour
	scheduler := maintenance.New(store, objects, cfg.MaintenanceInterval, retention)

	spec := fmt.Sprintf("@every %s", cfg.MaintenanceInterval)
	if err := scheduler.Start(spec); err != nil {
		log.Fatalf("failed to start maintenance scheduler: %v", err)
	}
	log.Printf("pixtools scheduler running: pruning jobs older than %s every %s", retention, cfg.MaintenanceInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down scheduler...")
	scheduler.Stop()
	log.Println("scheduler exited")
}

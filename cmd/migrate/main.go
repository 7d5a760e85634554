package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"pixtools/internal/config"
)

func main() {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	fmt.Printf("running goose %s...\n", command)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	if err := goose.Run(command, db, "migrations"); err != nil {
		log.Fatalf("goose %s failed: %v", command, err)
	}

	fmt.Printf("goose %s completed successfully\n", command)
}

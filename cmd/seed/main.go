package main

import (
	"context"
	"log"
	"os"

	"chowfast/internal/config"
	"chowfast/internal/db"
	"chowfast/internal/migrate"
	"chowfast/internal/seed"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[seed] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString, cfg.Pool("chowfast-seed"))
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := migrate.Apply(ctx, pool); err != nil {
		logger.Fatalf("apply migrations: %v", err)
	}
	if err := seed.Apply(ctx, pool); err != nil {
		logger.Fatalf("seed apply: %v", err)
	}

	logger.Printf("seeded %d categories and %d packages", len(seed.Categories()), len(seed.Products()))
}

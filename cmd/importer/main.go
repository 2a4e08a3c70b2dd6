package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"chowfast/internal/config"
	"chowfast/internal/db"
	"chowfast/internal/importer"
	"chowfast/internal/repository/category"
	"chowfast/internal/repository/product"
	"chowfast/internal/service/catalog"
)

func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "Path to package bundle CSV")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[importer] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DBConnString, cfg.Pool("chowfast-importer"))
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	f, err := os.Open(filePath)
	if err != nil {
		logger.Fatalf("open file: %v", err)
	}
	defer f.Close()

	svc := catalog.New(product.NewPostgres(pool, logger), category.NewPostgres(pool))
	imp := importer.NewCSVImporter(f, svc, svc)

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		logger.Fatalf("import failed: %v", err)
	}

	fmt.Printf("Imported %d packages in %s\n", count, time.Since(start).Truncate(time.Millisecond))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"rapport/internal/config"
	"rapport/internal/database"
	"rapport/internal/embeddings"
	"rapport/internal/openai"
)

func main() {
	customerID := flag.Int("customer", 0, "customer id to backfill (required)")
	flag.Parse()

	if *customerID == 0 {
		log.Fatal("usage: backfill-embeddings -customer <id>")
	}

	fmt.Println("=== EMBEDDING BACKFILL ===")
	fmt.Printf("Starting at: %s\n", time.Now().Format(time.RFC3339))

	// Load configuration
	cfg := config.Load()
	logger := cfg.SetupLogger()

	// Initialize database connection
	fmt.Println("Connecting to database...")
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	// Remote embeddings are optional; the local model covers the rest
	var client *openai.Client
	if c, err := openai.NewClient(cfg); err != nil {
		fmt.Println("Remote embeddings unavailable, using local model:", err)
	} else {
		client = c
	}

	svc := embeddings.NewService(client, db, logger)

	fmt.Printf("Backfilling embeddings for customer %d...\n", *customerID)
	start := time.Now()

	result, err := svc.BackfillEmailEmbeddings(context.Background(), *customerID)
	if err != nil {
		log.Fatal("Backfill failed:", err)
	}

	fmt.Printf("Processed %d of %d emails (%d skipped, %d errors) in %v\n",
		result.Processed, result.Total, result.Skipped, result.Errors, time.Since(start))
	fmt.Printf("Completed at: %s\n", time.Now().Format(time.RFC3339))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"rapport/internal/classifier"
	"rapport/internal/config"
	"rapport/internal/database"
	"rapport/internal/embeddings"
	"rapport/internal/openai"
	"rapport/internal/topics"
)

func main() {
	customerID := flag.Int("customer", 0, "customer id to classify (required)")
	limit := flag.Int("limit", 0, "maximum emails to process (0 = service default)")
	force := flag.Bool("force", false, "re-classify emails that already have topics")
	flag.Parse()

	if *customerID == 0 {
		log.Fatal("usage: classify-backlog -customer <id> [-limit n] [-force]")
	}

	fmt.Println("=== CLASSIFICATION BACKLOG RUN ===")
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

	var client *openai.Client
	if c, err := openai.NewClient(cfg); err != nil {
		fmt.Println("Remote embeddings unavailable, using local model:", err)
	} else {
		client = c
	}

	store := topics.NewStore(db, cfg, logger)
	embedder := embeddings.NewService(client, db, logger)
	cls := classifier.New(db, store, embedder, cfg.InternalDomains, logger)

	fmt.Printf("Classifying emails for customer %d...\n", *customerID)
	start := time.Now()

	result, err := cls.ClassifyBatch(context.Background(), *customerID, *limit, *force)
	if err != nil {
		log.Fatal("Batch classification failed:", err)
	}

	fmt.Printf("Processed %d emails: %d classified, %d skipped in %v\n",
		result.Processed, result.Classified, result.Skipped, time.Since(start))
	for _, msg := range result.Errors {
		fmt.Println("  error:", msg)
	}
	if result.Message != "" {
		fmt.Println(result.Message)
	}
	fmt.Printf("Completed at: %s\n", time.Now().Format(time.RFC3339))
}

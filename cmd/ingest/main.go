// Package main provides the ingest CLI for ticket indexing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/combot/ticketsearch/internal/chunker"
	"github.com/combot/ticketsearch/internal/embedding"
	"github.com/combot/ticketsearch/internal/ingest"
	"github.com/combot/ticketsearch/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "ticket-ingest",
	Short: "Support ticket indexing tool",
	Long:  "CLI tool for building the ticket search index in Qdrant from exported ticket files",
}

var runCmd = &cobra.Command{
	Use:   "run <export-dir>",
	Short: "Index all ticket exports from a directory",
	Long: `Reads ticket export files, chunks and embeds them, and publishes a new
ingestion version.

This command:
1. Connects to Qdrant and verifies health
2. Ensures the ticket collection and payload indexes exist
3. Parses every .json and .txt export under <export-dir>
4. Chunks each ticket and generates embeddings
5. Upserts chunks stamped with a fresh ingestion version
6. Publishes the version manifest so the server starts serving it

Environment variables:
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION  Collection name (default: ticket_chunks)
  OPENAI_API_KEY     OpenAI API key for embeddings (required)`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()
	dir := args[0]

	fmt.Println("Starting ingestion...")
	fmt.Println()

	// Get environment configuration
	qdrantHost := getEnv("QDRANT_HOST", "localhost")
	qdrantPort := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnv("QDRANT_COLLECTION", storage.DefaultCollectionName)

	// 1. Connect to Qdrant
	fmt.Printf("Connecting to Qdrant at %s:%d...\n", qdrantHost, qdrantPort)
	store, err := storage.NewQdrantStore(qdrantHost, qdrantPort, collection)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer store.Close()

	// 2. Check health
	if err := store.Health(ctx); err != nil {
		return fmt.Errorf("Qdrant health check failed: %w", err)
	}
	fmt.Println("Qdrant healthy")

	// 3. Initialize embedding client
	embeddingClient, err := embedding.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, 0) // Use default batch size

	// 4. Initialize chunker and pipeline
	ch := chunker.New(chunker.Config{ChunkOverlap: chunker.DefaultChunkOverlap})
	pipeline := ingest.NewPipeline(ch, embedder, store, storage.DefaultVectorDimension, slog.Default())

	// 5. Run ingestion
	fmt.Println()
	fmt.Printf("Indexing ticket exports from %s...\n", dir)
	result, err := pipeline.Run(ctx, dir)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	// 6. Print results
	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Files: %d\n", result.FilesProcessed)
	fmt.Printf("  Tickets: %d/%d\n", result.SuccessfulRecords, result.TotalRecords)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Version: %s (published: %v)\n", result.IngestionVersion, result.Published)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))

	// 7. Print failed records if any
	if len(result.FailedRecords) > 0 {
		fmt.Println()
		fmt.Println("Failed tickets:")
		for _, failed := range result.FailedRecords {
			fmt.Printf("  - %s (%s): %s\n", failed.Key, failed.File, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))

	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

/*
Copyright © 2025 loresmith
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loresmith/loresmith-be/config"
	"github.com/loresmith/loresmith-be/logger"
)

// batchIngestCmd represents the batch-ingest command
var batchIngestCmd = &cobra.Command{
	Use:   "batch-ingest",
	Short: "Ingest every document in a directory",
	Long: `Walks a directory (non-recursively) and ingests each file into the
given collection. Files that fail are reported and skipped; the rest of the
batch continues.`,
	Run: func(cmd *cobra.Command, args []string) {
		directory, _ := cmd.Flags().GetString("directory")
		collectionRaw, _ := cmd.Flags().GetString("collection")
		tags, _ := cmd.Flags().GetStringArray("tags")

		collectionID, err := uuid.Parse(collectionRaw)
		if err != nil {
			log.Fatalf("Invalid collection id: %v", err)
		}

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		logg := logger.New(logger.ParseLevel(cfg.LogLevel))

		pipe, err := buildPipeline(cfg, logg)
		if err != nil {
			log.Fatalf("Failed to build ingestion pipeline: %v", err)
		}
		defer pipe.Close()

		entries, err := os.ReadDir(directory)
		if err != nil {
			log.Fatalf("Failed to read directory: %v", err)
		}

		ctx := context.Background()
		failed := 0
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			filePath := filepath.Join(directory, entry.Name())
			resource, err := ingestFile(ctx, pipe, filePath, collectionID, tags)
			if err != nil {
				logg.Error("failed to ingest document", "file", filePath, "error", err)
				failed++
				continue
			}
			fmt.Printf("Ingested %s: resource %s, status %s\n", filePath, resource.ID, resource.Status)
		}
		if failed > 0 {
			fmt.Printf("%d document(s) failed\n", failed)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(batchIngestCmd)

	batchIngestCmd.Flags().String("directory", "", "Path to the directory to ingest")
	batchIngestCmd.Flags().StringP("collection", "c", "", "Collection (campaign) id")
	batchIngestCmd.Flags().StringArrayP("tags", "g", []string{}, "Tags for the documents")
	batchIngestCmd.MarkFlagRequired("directory")
	batchIngestCmd.MarkFlagRequired("collection")
}

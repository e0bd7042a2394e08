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
	"github.com/loresmith/loresmith-be/types"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a single document from the command line",
	Long: `Stores a local document in the upload directory, registers it in the
given collection and runs the full pipeline synchronously: extraction,
chunking, persistence and embedding.`,
	Run: func(cmd *cobra.Command, args []string) {
		filePath, _ := cmd.Flags().GetString("file")
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

		resource, err := ingestFile(context.Background(), pipe, filePath, collectionID, tags)
		if err != nil {
			log.Fatalf("Failed to ingest %s: %v", filePath, err)
		}
		fmt.Printf("Ingested %s: resource %s, status %s\n", filePath, resource.ID, resource.Status)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringP("file", "f", "", "Path to the document to ingest")
	ingestCmd.Flags().StringP("collection", "c", "", "Collection (campaign) id")
	ingestCmd.Flags().StringArrayP("tags", "g", []string{}, "Tags for the document")
	ingestCmd.MarkFlagRequired("file")
	ingestCmd.MarkFlagRequired("collection")
}

// ingestFile runs the whole pipeline for one local file and returns the
// resource in its terminal state.
func ingestFile(ctx context.Context, pipe *pipeline, filePath string, collectionID uuid.UUID, tags []string) (*types.Resource, error) {
	src, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	storedPath, err := pipe.files.SaveReader(src, filepath.Base(filePath))
	src.Close()
	if err != nil {
		return nil, err
	}

	resource := &types.Resource{
		ID:           uuid.New(),
		CollectionID: collectionID,
		Filename:     filepath.Base(filePath),
		Status:       types.ResourceStatusPending,
		Metadata:     types.ResourceMetadata{"stored_path": storedPath},
	}
	if len(tags) > 0 {
		resource.Metadata["tags"] = tags
	}
	if err := pipe.resources.CreateResource(ctx, resource); err != nil {
		return nil, err
	}

	job := types.IngestJob{
		ResourceID:   resource.ID,
		CollectionID: collectionID,
		FilePath:     storedPath,
	}
	if err := pipe.ingest.ProcessResource(ctx, job); err != nil {
		return nil, err
	}
	return pipe.resources.GetResource(ctx, resource.ID)
}

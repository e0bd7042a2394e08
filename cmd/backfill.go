/*
Copyright © 2025 loresmith
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loresmith/loresmith-be/config"
	"github.com/loresmith/loresmith-be/logger"
	"github.com/loresmith/loresmith-be/types"
)

// backfillCmd represents the backfill command
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed chunks that are missing embeddings",
	Long: `Re-runs embedding for resources whose chunks were persisted without
vectors, typically ones left in completed_no_embeddings after the provider
gave out. Takes a single resource id, or a collection id to sweep every
resource in it that is still missing embeddings. Chunks that already have
embeddings are untouched, so running it twice is harmless.`,
	Run: func(cmd *cobra.Command, args []string) {
		resourceRaw, _ := cmd.Flags().GetString("resource")
		collectionRaw, _ := cmd.Flags().GetString("collection")
		if (resourceRaw == "") == (collectionRaw == "") {
			log.Fatal("Exactly one of --resource or --collection is required")
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

		ctx := context.Background()
		if resourceRaw != "" {
			resourceID, err := uuid.Parse(resourceRaw)
			if err != nil {
				log.Fatalf("Invalid resource id: %v", err)
			}
			usage, embedded, err := pipe.ingest.Backfill(ctx, resourceID)
			if err != nil {
				log.Fatalf("Backfill failed: %v", err)
			}
			fmt.Printf("Embedded %d chunk(s) in %d batch(es), ~%d billable tokens, $%.6f estimated\n",
				embedded, usage.BatchCount, usage.ApproxBillableTokens, usage.CostUSD)
			return
		}

		collectionID, err := uuid.Parse(collectionRaw)
		if err != nil {
			log.Fatalf("Invalid collection id: %v", err)
		}
		resources, err := pipe.resources.ListResources(ctx, collectionID)
		if err != nil {
			log.Fatalf("Failed to list resources: %v", err)
		}

		backfilled, failed := 0, 0
		for _, resource := range resources {
			if resource.Status != types.ResourceStatusCompletedNoEmbeddings {
				continue
			}
			usage, embedded, err := pipe.ingest.Backfill(ctx, resource.ID)
			if err != nil {
				logg.Error("backfill failed", "resource_id", resource.ID.String(), "error", err)
				failed++
				continue
			}
			backfilled++
			fmt.Printf("Backfilled %s (%s): %d chunk(s) in %d batch(es), ~%d billable tokens, $%.6f estimated\n",
				resource.Filename, resource.ID, embedded, usage.BatchCount, usage.ApproxBillableTokens, usage.CostUSD)
		}
		if backfilled == 0 && failed == 0 {
			fmt.Println("No resources awaiting embeddings")
		}
		if failed > 0 {
			fmt.Printf("%d resource(s) failed\n", failed)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().StringP("resource", "r", "", "Resource id to backfill")
	backfillCmd.Flags().StringP("collection", "c", "", "Backfill every resource in this collection that is missing embeddings")
}

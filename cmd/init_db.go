/*
Copyright © 2025 loresmith
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loresmith/loresmith-be/config"
	"github.com/loresmith/loresmith-be/database"
)

// initDBCmd applies the relational schema. The server does this on startup
// too; the explicit command exists for provisioning pipelines.
var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the pgvector extension, tables and indexes",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			fmt.Println("Failed to load config:", err)
			os.Exit(1)
		}
		pg, err := database.NewPostgres(cfg.PostgresURL, cfg.EmbeddingDimension)
		if err != nil {
			fmt.Println("Failed to initialize database:", err)
			os.Exit(1)
		}
		defer pg.Close()
		fmt.Println("Schema applied for embedding dimension", cfg.EmbeddingDimension)
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}

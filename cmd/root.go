/*
Copyright © 2025 loresmith
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "loresmith-be",
	Short: "Campaign knowledge assistant backend",
	Long: `loresmith-be ingests tabletop campaign documents (rulebooks, session
notes, homebrew supplements), indexes them for hybrid retrieval and answers
questions grounded in the retrieved passages.

Run "loresmith-be start" to serve the HTTP API, or use the ingest commands
to load documents from the command line.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yaml", "config file")
}

/*
Copyright © 2025 loresmith
*/
package main

import (
	"github.com/joho/godotenv"
	"github.com/loresmith/loresmith-be/cmd"
)

func main() {
	// .env is optional; real deployments set environment variables directly.
	godotenv.Load()
	cmd.Execute()
}

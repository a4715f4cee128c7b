package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/re-cinq/patchwash/internal/cli"
)

func main() {
	// Load .env if present (agent backend API keys, GraphRAG server URL);
	// absence is not an error — most CI environments set these directly.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

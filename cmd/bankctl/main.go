package main

import (
	"os"

	"github.com/joho/godotenv"

	"usalli/internal/cli"
)

func main() {
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/cli"
)

func main() {
	// Optional .env for local runs; real deployments set the environment.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

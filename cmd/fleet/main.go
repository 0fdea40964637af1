// Package main is the entry point for the fleet CLI.
package main

import (
	"os"

	"go-agent-fleet/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

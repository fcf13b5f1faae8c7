// Package main is the entry point of the autoppa CLI.
//
// Usage:
//
//	autoppa [flags] <command> [args]
//
// Commands:
//
//	agent   - Run the optimization loop on a task
//	bench   - Evaluate a baseline design
//	sim     - Simulate a design against a task testbench
//	synth   - Synthesize a design and report its area
//	power   - Estimate the power of a simulated and synthesized design
//	runs    - Inspect journaled agent runs
//	config  - Manage contexts
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/haivivi/autoppa/cmd/autoppa/commands"
)

func main() {
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

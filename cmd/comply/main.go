// Package main is the entry point for the Comply compliance server CLI.
// Comply maintains a per-organization compliance ledger: it reconciles manual
// control updates, policy lifecycle changes, and external scanner findings
// into one control-status view per adopted framework.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/complyhq/comply/cmd/ingest"
	"github.com/complyhq/comply/cmd/seed"
	"github.com/complyhq/comply/cmd/serve"
	"github.com/complyhq/comply/pkg/logger"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Global flags
	var (
		debug       bool
		logFormat   string
		showVersion bool
	)

	globalFlags := flag.NewFlagSet("comply", flag.ExitOnError)
	globalFlags.BoolVar(&debug, "debug", false, "Enable debug logging")
	globalFlags.StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	globalFlags.BoolVar(&showVersion, "version", false, "Show version information")

	if err := globalFlags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if showVersion {
		fmt.Printf("comply version %s (built %s)\n", version, buildTime) //nolint:forbidigo
		os.Exit(0)
	}

	logger.SetupLogger(debug, logFormat)

	args := globalFlags.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "serve":
		if err := serve.Run(commandArgs); err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case "seed":
		if err := seed.Run(commandArgs); err != nil {
			logger.Error("seeding failed", "error", err)
			os.Exit(1)
		}
	case "ingest":
		if err := ingest.Run(commandArgs); err != nil {
			logger.Error("ingestion failed", "error", err)
			os.Exit(1)
		}
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	//nolint:forbidigo
	fmt.Println(`Comply Compliance Server

Usage:
  comply [global flags] <command> [command flags]

Commands:
  serve    Run the HTTP API server
  seed     Load a framework catalog into the database
  ingest   Ingest scanner output for an organization
  help     Show this help message

Global Flags:
  --debug         Enable debug logging
  --log-format    Log format (text or json) (default: text)
  --version       Show version information

Examples:
  comply serve --config comply.yaml
  comply seed --db comply.db --catalog catalogs/soc2.yaml
  comply ingest --db comply.db --org <org-id> --source cloud_posture --file checks.json

Use "comply <command> --help" for more information about a command.`)
}

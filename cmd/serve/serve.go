// Package serve implements the comply serve command.
package serve

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/complyhq/comply/internal/config"
	"github.com/complyhq/comply/internal/database"
	"github.com/complyhq/comply/internal/ingest"
	"github.com/complyhq/comply/internal/reconcile"
	"github.com/complyhq/comply/internal/rulemap"
	"github.com/complyhq/comply/internal/server"
	"github.com/complyhq/comply/pkg/logger"
)

// Options represents serve command options.
type Options struct {
	ConfigFile string
	Addr       string
}

// Run executes the serve command.
func Run(args []string) error {
	opts := &Options{}

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.StringVar(&opts.ConfigFile, "config", "", "Configuration file path")
	fs.StringVar(&opts.Addr, "addr", "", "Listen address (overrides config)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: comply serve [options]

Run the HTTP API server.

Options:`)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, `
Examples:
  comply serve --config comply.yaml
  comply serve --addr :9090`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if opts.ConfigFile != "" {
		loaded, err := config.LoadConfig(opts.ConfigFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	db, err := database.New(cfg.Database.Path, database.WithMaxConnections(cfg.Database.MaxConns))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	rules, err := loadRules(cfg.RuleMapPath)
	if err != nil {
		return fmt.Errorf("loading rule map: %w", err)
	}

	logger.Info("starting server",
		"addr", cfg.Server.Addr,
		"database", cfg.Database.Path,
		"rule_map_version", rules.Version(),
	)

	engine := reconcile.New(db)
	ingestor := ingest.New(db, rules)
	srv := server.New(db, engine, ingestor, logger.GetGlobalLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

func loadRules(path string) (*rulemap.Map, error) {
	if path != "" {
		return rulemap.FromFile(path)
	}
	return rulemap.Load()
}

// consoom-mcp is a standalone MCP server for Consoom. It opens the Consoom
// database directly and serves sync and progress tools over JSON-RPC stdio
// for one user.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matthewjhunter/consoom"
	"github.com/matthewjhunter/consoom/internal/config"
	"github.com/matthewjhunter/consoom/internal/logging"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path (.yaml or .toml)")
	userID := flag.String("user", "", "user id the tools act for")
	poll := flag.Duration("poll", 0, "run a background sync on this interval (0 disables)")
	flag.Parse()

	if err := run(*configPath, *userID, *poll); err != nil {
		fmt.Fprintf(os.Stderr, "consoom-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, userID string, poll time.Duration) error {
	if userID == "" {
		return fmt.Errorf("-user is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs always go to stderr as JSON.
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: "json", Output: os.Stderr})

	engine, err := consoom.NewEngine(consoom.EngineConfig{
		DBPath:          cfg.Database.Path,
		UserAgent:       cfg.Sync.UserAgent,
		FetchTimeout:    time.Duration(cfg.Sync.FetchTimeout),
		BreakerFailures: cfg.Sync.BreakerFailures,
		BreakerCooldown: time.Duration(cfg.Sync.BreakerCooldown),
		MovieGoal:       cfg.Goals.MovieTarget,
		BookGoal:        cfg.Goals.BookTarget,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer engine.Close()

	srv := newServer(engine, userID)
	if poll > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		srv.poller = newPoller(engine, poll)
		srv.poller.start(ctx)
		defer srv.poller.stop()
	}
	return srv.run(os.Stdin, os.Stdout)
}

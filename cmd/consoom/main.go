package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matthewjhunter/consoom"
	"github.com/matthewjhunter/consoom/internal/config"
	"github.com/matthewjhunter/consoom/internal/logging"
	"github.com/matthewjhunter/consoom/internal/output"
)

var (
	configPath   string
	cfg          *config.Config
	outputFormat string
	userID       string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "consoom",
		Short:         "Track the films and books you consume from Letterboxd and Goodreads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config/config.yaml", "config file path (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "human", "output format: json, text, human")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id to act as")

	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(unlinkCmd())
	rootCmd.AddCommand(accountsCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(mediaCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = c
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return nil
}

func engineConfig(c *config.Config) consoom.EngineConfig {
	return consoom.EngineConfig{
		DBPath:          c.Database.Path,
		UserAgent:       c.Sync.UserAgent,
		FetchTimeout:    time.Duration(c.Sync.FetchTimeout),
		BreakerFailures: c.Sync.BreakerFailures,
		BreakerCooldown: time.Duration(c.Sync.BreakerCooldown),
		MovieGoal:       c.Goals.MovieTarget,
		BookGoal:        c.Goals.BookTarget,
	}
}

func openEngine() (*consoom.Engine, error) {
	engine, err := consoom.NewEngine(engineConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func newFormatter() (*output.Formatter, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(format), nil
}

func requireUser() error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}

func parseProvider(s string) (consoom.Provider, error) {
	p := consoom.Provider(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q (want letterboxd or goodreads)", consoom.ErrInvalidProvider, s)
	}
	return p, nil
}

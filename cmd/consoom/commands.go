package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/matthewjhunter/consoom"
	"github.com/matthewjhunter/consoom/internal/auth"
	"github.com/matthewjhunter/consoom/internal/config"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull every linked account's feed once (only --user's accounts when set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			formatter, err := newFormatter()
			if err != nil {
				return err
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			var report *consoom.SyncReport
			if userID != "" {
				report, err = engine.SyncUser(ctx, userID)
			} else {
				report, err = engine.SyncAll(ctx)
			}
			if err != nil {
				return err
			}
			return formatter.OutputSyncReport(report)
		},
	}
}

func importCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a Letterboxd diary.csv, a Goodreads library export, or a JSON import request",
		Long: `Import history from a file. CSV files need --type; JSON files follow the
import request shape {"type": "...", "items": [{"title", "externalId", "consumedAt", "rating"}]}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			ctx := context.Background()
			formatter, err := newFormatter()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer f.Close()

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			var result *consoom.ImportResult
			if strings.EqualFold(filepath.Ext(args[0]), ".json") {
				var req consoom.ImportRequest
				if err := json.NewDecoder(f).Decode(&req); err != nil {
					return fmt.Errorf("failed to parse import file: %w", err)
				}
				if provider != "" {
					req.Type = consoom.Provider(provider)
				}
				result, err = engine.ImportBatch(ctx, userID, req)
			} else {
				p, perr := parseProvider(provider)
				if perr != nil {
					return perr
				}
				result, err = engine.ImportCSV(ctx, userID, p, f)
			}
			if err != nil {
				if result != nil && result.Imported > 0 {
					formatter.Warning("import stopped after %d rows", result.Imported)
				}
				return err
			}
			if result.Skipped > 0 {
				formatter.Warning("skipped %d rows", result.Skipped)
			}
			return formatter.OutputImportResult(result)
		},
	}
	cmd.Flags().StringVarP(&provider, "type", "t", "", "source of the export: letterboxd or goodreads")
	return cmd
}

func linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <letterboxd|goodreads> <username>",
		Short: "Link a Letterboxd username or Goodreads user id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			p, err := parseProvider(args[0])
			if err != nil {
				return err
			}
			formatter, err := newFormatter()
			if err != nil {
				return err
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			acct, err := engine.LinkAccount(context.Background(), userID, p, args[1])
			if err != nil {
				return err
			}
			return formatter.OutputAccounts([]consoom.LinkedAccount{*acct})
		},
	}
}

func unlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <letterboxd|goodreads>",
		Short: "Remove a linked account (logged media is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			p, err := parseProvider(args[0])
			if err != nil {
				return err
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.UnlinkAccount(context.Background(), userID, p); err != nil {
				if consoom.IsNotFound(err) {
					return fmt.Errorf("no %s account linked", p)
				}
				return err
			}
			fmt.Printf("Unlinked %s\n", p)
			return nil
		},
	}
}

func accountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List linked accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			formatter, err := newFormatter()
			if err != nil {
				return err
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			accounts, err := engine.GetLinkedAccounts(context.Background(), userID)
			if err != nil {
				return err
			}
			return formatter.OutputAccounts(accounts)
		},
	}
}

func goalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goal",
		Short: "Manage yearly goals",
	}

	var year int
	set := &cobra.Command{
		Use:   "set <movie|book> <target>",
		Short: "Set the target count for a media type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			target, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid target: %w", err)
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			goal, err := engine.SetYearlyGoal(context.Background(), userID, year, consoom.MediaType(args[0]), target)
			if err != nil {
				return err
			}
			fmt.Printf("Goal for %d: %d %ss\n", goal.Year, goal.Target, goal.MediaType)
			return nil
		},
	}
	set.Flags().IntVarP(&year, "year", "y", time.Now().Year(), "goal year")
	cmd.AddCommand(set)
	return cmd
}

func progressCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show progress toward the year's goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			formatter, err := newFormatter()
			if err != nil {
				return err
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			progress, err := engine.GetYearProgress(context.Background(), userID, year)
			if err != nil {
				return err
			}
			return formatter.OutputYearProgress(progress)
		},
	}
	cmd.Flags().IntVarP(&year, "year", "y", time.Now().Year(), "year to report")
	return cmd
}

func mediaCmd() *cobra.Command {
	var (
		year      int
		mediaType string
		recent    int
	)
	cmd := &cobra.Command{
		Use:   "media",
		Short: "List logged films and books for a year, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			formatter, err := newFormatter()
			if err != nil {
				return err
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := context.Background()
			var entries []consoom.MediaEntry
			if recent > 0 {
				entries, err = engine.GetRecentMedia(ctx, userID, recent)
			} else {
				entries, err = engine.GetMediaForYear(ctx, userID, year, consoom.MediaType(mediaType))
			}
			if err != nil {
				return err
			}
			return formatter.OutputMediaList(entries)
		},
	}
	cmd.Flags().IntVarP(&year, "year", "y", time.Now().Year(), "year to list")
	cmd.Flags().StringVarP(&mediaType, "type", "t", "", "movie or book (default: both)")
	cmd.Flags().IntVarP(&recent, "recent", "r", 0, "list the N most recent entries across all years instead")
	return cmd
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the web API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			a, err := auth.New(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL))
			if err != nil {
				return err
			}
			token, err := a.Issue(userID)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Write(configPath, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Printf("Created default config at %s\n", configPath)
			return nil
		},
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/matthewjhunter/consoom/internal/logging"
)

func daemonCmd() *cobra.Command {
	var (
		interval time.Duration
		lockPath string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run sync in a loop with configurable interval",
		Long: `Continuously sync every linked account on a timer.
Only one daemon may run against a database; a lock file next to it enforces that.
Handles SIGINT/SIGTERM for graceful shutdown (finishes the current cycle).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = time.Duration(cfg.Sync.Interval)
			}
			if lockPath == "" {
				lockPath = cfg.Database.Path + ".lock"
			}

			lock := flock.New(lockPath)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another daemon holds %s", lockPath)
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					logging.Warn().Err(err).Str("lock", lockPath).Msg("failed to release daemon lock")
				}
			}()

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)

			log := logging.With("daemon")
			log.Info().Dur("interval", interval).Str("lock", lockPath).Msg("starting")

			cycle := 1
			for {
				start := time.Now()
				report, err := engine.SyncAll(context.Background())
				if err != nil {
					log.Error().Err(err).Int("cycle", cycle).Msg("cycle failed")
				} else {
					log.Info().Int("cycle", cycle).
						Int("total", report.Total).Int("success", report.Success).Int("failed", report.Failed).
						Dur("elapsed", time.Since(start).Round(time.Millisecond)).
						Msg("cycle completed")
				}

				cycle++

				timer := time.NewTimer(interval)
				select {
				case <-sig:
					timer.Stop()
					log.Info().Msg("received shutdown signal, exiting")
					return nil
				case <-timer.C:
				}
			}
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "duration between sync cycles (default: sync.interval from config)")
	cmd.Flags().StringVar(&lockPath, "lock", "", "lock file path (default: <database>.lock)")
	return cmd
}

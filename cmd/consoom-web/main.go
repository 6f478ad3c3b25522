package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matthewjhunter/consoom"
	"github.com/matthewjhunter/consoom/internal/auth"
	"github.com/matthewjhunter/consoom/internal/config"
	"github.com/matthewjhunter/consoom/internal/logging"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path (.yaml or .toml)")
	addr := flag.String("addr", "", "listen address (default: server.addr from config)")
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "consoom-web: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if addr == "" {
		addr = cfg.Server.Addr
	}

	a, err := auth.New(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL))
	if err != nil {
		return fmt.Errorf("auth: %w (set auth.jwt_secret or CONSOOM_JWT_SECRET)", err)
	}

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
		return err
	}
	defer engine.Close()

	scfg := serverConfig{CronSecret: cfg.Cron.Secret, ImportRatePerMinute: cfg.Server.ImportRatePerMinute}
	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(newServer(engine, a, scfg), scfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // a cron sync walks every account
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-done:
	}
	logging.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logging.Info().Msg("stopped")
	return nil
}

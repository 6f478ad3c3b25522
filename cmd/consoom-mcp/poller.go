package main

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthewjhunter/consoom"
	"github.com/matthewjhunter/consoom/internal/logging"
)

// poller runs a background sync loop over every linked account.
type poller struct {
	engine   *consoom.Engine
	interval time.Duration
	log      zerolog.Logger

	mu   sync.Mutex
	done chan struct{}
}

func newPoller(engine *consoom.Engine, interval time.Duration) *poller {
	return &poller{
		engine:   engine,
		interval: interval,
		log:      logging.With("poller"),
		done:     make(chan struct{}),
	}
}

// start launches the background poll loop. It polls immediately, then on
// each tick of the configured interval.
func (p *poller) start(ctx context.Context) {
	go p.loop(ctx)
	p.log.Info().Dur("interval", p.interval).Msg("started")
}

// stop signals the poll loop to exit.
func (p *poller) stop() {
	close(p.done)
	p.log.Info().Msg("stopped")
}

// poll runs a single sync cycle. Cycles never overlap; sync_now waits for a
// running tick to finish.
func (p *poller) poll(ctx context.Context) (*consoom.SyncReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report, err := p.engine.SyncAll(ctx)
	if err != nil {
		return nil, err
	}

	inserted := 0
	for _, a := range report.Accounts {
		inserted += a.Inserted
	}
	p.log.Info().Int("total", report.Total).Int("success", report.Success).Int("failed", report.Failed).
		Int("inserted", inserted).Msg("poll complete")
	return report, nil
}

func (p *poller) loop(ctx context.Context) {
	if _, err := p.poll(ctx); err != nil {
		p.log.Error().Err(err).Msg("initial poll")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.poll(ctx); err != nil {
				p.log.Error().Err(err).Msg("poll")
			}
		}
	}
}

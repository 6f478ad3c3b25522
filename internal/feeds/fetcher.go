package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/matthewjhunter/consoom/internal/logging"
	"github.com/matthewjhunter/consoom/internal/metrics"
)

// maxFeedBytes caps how much of a response body is read.
const maxFeedBytes = 10 << 20

// FetcherConfig tunes the HTTP client and per-host circuit breakers.
type FetcherConfig struct {
	UserAgent string
	// BreakerFailures is the number of consecutive failures against one host
	// that opens its breaker. Zero disables breaking.
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Client          *http.Client
}

// StatusError reports a feed that answered with a non-200 status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed %s returned status %d", e.URL, e.StatusCode)
}

// Fetcher retrieves raw feed bodies. Timeouts come from the caller's context.
type Fetcher struct {
	client    *http.Client
	userAgent string
	failures  uint32
	cooldown  time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[string]
}

// NewFetcher creates a new feed fetcher
func NewFetcher(cfg FetcherConfig) *Fetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "Consoom/1.0"
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 2 * time.Minute
	}
	return &Fetcher{
		client:    client,
		userAgent: ua,
		failures:  cfg.BreakerFailures,
		cooldown:  cooldown,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[string]),
	}
}

// FetchFeed returns the body of feedURL. Any non-200 status is an error.
// When a host has failed repeatedly its breaker rejects calls until the
// cooldown passes, so one dead provider does not stall every account. Only
// transport errors, 5xx and 429 count against the host; a 404 for one
// account's feed says nothing about the others.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string) (string, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return "", fmt.Errorf("invalid feed url %s: %w", feedURL, err)
	}
	host := u.Host

	start := time.Now()
	var body string
	if cb := f.breaker(host); cb != nil {
		body, err = cb.Execute(func() (string, error) { return f.get(ctx, feedURL) })
	} else {
		body, err = f.get(ctx, feedURL)
	}
	metrics.FeedFetchDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.FeedFetches.WithLabelValues(host, "rejected").Inc()
		return "", fmt.Errorf("feed host %s unavailable: %w", host, err)
	case err != nil:
		metrics.FeedFetches.WithLabelValues(host, "error").Inc()
		return "", err
	}
	metrics.FeedFetches.WithLabelValues(host, "ok").Inc()
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, feedURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", feedURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: feedURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read feed %s: %w", feedURL, err)
	}
	return string(data), nil
}

func (f *Fetcher) breaker(host string) *gobreaker.CircuitBreaker[string] {
	if f.failures == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[host]; ok {
		return cb
	}
	threshold := f.failures
	metrics.CircuitBreakerState.WithLabelValues(host).Set(0)
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     f.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: hostHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("host", name).Str("from", from.String()).Str("to", to.String()).
				Msg("feed circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	f.breakers[host] = cb
	return cb
}

// hostHealthy reports whether err leaves the host's breaker alone. The error
// is still returned to the caller.
func hostHealthy(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

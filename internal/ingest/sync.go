package ingest

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthewjhunter/consoom/internal/feeds"
	"github.com/matthewjhunter/consoom/internal/identity"
	"github.com/matthewjhunter/consoom/internal/logging"
	"github.com/matthewjhunter/consoom/internal/metrics"
	"github.com/matthewjhunter/consoom/internal/storage"
)

// FeedFetcher returns the raw body of a feed URL.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, feedURL string) (string, error)
}

// SyncerConfig tunes a Syncer. Zero values pick defaults.
type SyncerConfig struct {
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Syncer pulls every linked account's feed into the catalog and log.
type Syncer struct {
	store        Store
	fetcher      FeedFetcher
	reconciler   *Reconciler
	writer       *Writer
	fetchTimeout time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

func NewSyncer(store Store, fetcher FeedFetcher, cfg SyncerConfig) *Syncer {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Syncer{
		store:        store,
		fetcher:      fetcher,
		reconciler:   NewReconciler(store),
		writer:       NewWriter(store),
		fetchTimeout: cfg.FetchTimeout,
		now:          cfg.Now,
		log:          logging.With("sync"),
	}
}

// AccountResult is the outcome of syncing one account.
type AccountResult struct {
	AccountID string           `json:"account_id"`
	UserID    string           `json:"user_id"`
	Provider  storage.Provider `json:"provider"`
	Username  string           `json:"username"`
	Entries   int              `json:"entries"`
	Inserted  int              `json:"inserted"`
	OK        bool             `json:"ok"`
	Error     string           `json:"error,omitempty"`
}

// SyncReport tallies a sync run. Success and Failed always add up to Total.
type SyncReport struct {
	Total    int             `json:"total"`
	Success  int             `json:"success"`
	Failed   int             `json:"failed"`
	Accounts []AccountResult `json:"accounts"`
}

// SyncAll syncs every linked account in order. A failing account is logged
// and counted; it never stops the run. The only error returned is
// ErrStorageUnavailable, before any account is touched.
func (s *Syncer) SyncAll(ctx context.Context) (*SyncReport, error) {
	if err := s.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	accounts, err := s.store.ListLinkedAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return s.syncAccounts(ctx, accounts), nil
}

// SyncUser is SyncAll restricted to one user's accounts.
func (s *Syncer) SyncUser(ctx context.Context, userID string) (*SyncReport, error) {
	if err := s.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	accounts, err := s.store.ListUserLinkedAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return s.syncAccounts(ctx, accounts), nil
}

func (s *Syncer) syncAccounts(ctx context.Context, accounts []storage.LinkedAccount) *SyncReport {
	report := &SyncReport{Total: len(accounts), Accounts: make([]AccountResult, 0, len(accounts))}
	for _, acct := range accounts {
		res := s.SyncAccount(ctx, acct)
		if res.OK {
			report.Success++
			metrics.AccountSyncs.WithLabelValues(string(acct.Provider), "success").Inc()
		} else {
			report.Failed++
			metrics.AccountSyncs.WithLabelValues(string(acct.Provider), "failure").Inc()
		}
		report.Accounts = append(report.Accounts, res)
	}
	s.log.Info().Int("total", report.Total).Int("success", report.Success).Int("failed", report.Failed).
		Msg("sync finished")
	return report
}

// SyncAccount fetches, parses, and records one account's feed, then stamps
// its watermark. Rows written before a failure are kept; the watermark is
// only advanced when the whole account succeeded.
func (s *Syncer) SyncAccount(ctx context.Context, acct storage.LinkedAccount) AccountResult {
	res := AccountResult{
		AccountID: acct.ID,
		UserID:    acct.UserID,
		Provider:  acct.Provider,
		Username:  acct.Username,
	}
	log := s.log.With().Str("account_id", acct.ID).Str("user_id", acct.UserID).
		Str("provider", string(acct.Provider)).Logger()

	entries, inserted, err := s.ingestAccount(ctx, acct)
	res.Entries = entries
	res.Inserted = inserted
	if err == nil {
		err = s.store.MarkAccountSynced(ctx, acct.ID, s.now())
		if err != nil {
			err = fmt.Errorf("mark synced: %w", err)
		}
	}
	if err != nil {
		log.Error().Err(err).Int("inserted", inserted).Msg("account sync failed")
		res.Error = err.Error()
		return res
	}

	res.OK = true
	log.Debug().Int("entries", entries).Int("inserted", inserted).Msg("account synced")
	return res
}

func (s *Syncer) ingestAccount(ctx context.Context, acct storage.LinkedAccount) (entries, inserted int, err error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	body, err := s.fetcher.FetchFeed(fetchCtx, acct.FeedURL)
	cancel()
	if err != nil {
		return 0, 0, err
	}

	parsed := feeds.ParseEntries(body)
	// Dateless entries are pinned to when the account was linked so that a
	// re-sync of the same feed dedups instead of logging them again.
	fallbackAt := acct.CreatedAt.UTC()
	for _, e := range parsed {
		// The link carries the identity; without it there is nothing stable
		// to key the catalog item on.
		if e.Link == "" {
			s.log.Debug().Str("account_id", acct.ID).Str("title", e.Title).Msg("skipping entry without link")
			continue
		}
		entries++

		title := e.Title
		if title == "" {
			title = e.Link
		}
		consumedAt, ok := feeds.ParsePubDate(e.PubDate)
		if !ok {
			s.log.Debug().Str("account_id", acct.ID).Str("link", e.Link).Str("pub_date", e.PubDate).
				Msg("entry has no usable date, using account link time")
			consumedAt = fallbackAt
		}

		item, err := s.reconciler.Reconcile(ctx, storage.CatalogItem{
			MediaType:  acct.Provider.MediaType(),
			ExternalID: identity.FromLink(acct.Provider, e.Link),
			Source:     acct.Provider,
			Title:      title,
		})
		if err != nil {
			return entries, inserted, err
		}
		ok, err = s.writer.Record(ctx, acct.UserID, item, consumedAt, feedRating(acct.Provider, e.Rating))
		if err != nil {
			return entries, inserted, err
		}
		if ok {
			inserted++
		}
	}
	return entries, inserted, nil
}

// feedRating converts a feed rating onto the 0-10 scale used for Letterboxd
// and the 1-5 scale used for Goodreads. Empty or zero means unrated.
func feedRating(provider storage.Provider, raw string) *int {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return nil
	}
	if provider == storage.ProviderLetterboxd {
		v *= 2
	}
	r := int(math.Round(v))
	return &r
}

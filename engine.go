package consoom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/matthewjhunter/consoom/internal/csvimport"
	"github.com/matthewjhunter/consoom/internal/feeds"
	"github.com/matthewjhunter/consoom/internal/identity"
	"github.com/matthewjhunter/consoom/internal/ingest"
	"github.com/matthewjhunter/consoom/internal/logging"
	"github.com/matthewjhunter/consoom/internal/storage"
)

const defaultRecentLimit = 10

// Engine is the public API for consoom's ingestion pipeline. It wraps the
// SQLite store, the feed fetcher, and the sync and import orchestrators.
type Engine struct {
	store    *storage.SQLiteStore
	syncer   *ingest.Syncer
	importer *ingest.Importer
	validate *validator.Validate
	cfg      EngineConfig
}

// NewEngine opens the database at cfg.DBPath and wires the pipeline.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = "./consoom.db"
	}
	if cfg.MovieGoal == 0 {
		cfg.MovieGoal = 52
	}
	if cfg.BookGoal == 0 {
		cfg.BookGoal = 24
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	fetcher := feeds.NewFetcher(feeds.FetcherConfig{
		UserAgent:       cfg.UserAgent,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	})

	return &Engine{
		store: store,
		syncer: ingest.NewSyncer(store, fetcher, ingest.SyncerConfig{
			FetchTimeout: cfg.FetchTimeout,
			Now:          cfg.Now,
		}),
		importer: ingest.NewImporter(store),
		validate: newValidator(),
		cfg:      cfg,
	}, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("consumed_date", func(fl validator.FieldLevel) bool {
		_, ok := parseConsumedAt(fl.Field().String())
		return ok
	})
	return v
}

var consumedAtLayouts = []string{"2006-01-02", time.RFC3339, "2006/01/02"}

func parseConsumedAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range consumedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Close releases the database.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Ping reports whether the database is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// SyncAll pulls every linked account's feed. Individual account failures are
// reported in the result, never as an error.
func (e *Engine) SyncAll(ctx context.Context) (*SyncReport, error) {
	return e.syncer.SyncAll(ctx)
}

// SyncUser syncs only userID's accounts.
func (e *Engine) SyncUser(ctx context.Context, userID string) (*SyncReport, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return e.syncer.SyncUser(ctx, userID)
}

// LinkAccount connects a provider account, replacing the username if the
// user already linked that provider.
func (e *Engine) LinkAccount(ctx context.Context, userID string, provider Provider, username string) (*LinkedAccount, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if !provider.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProvider, provider)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}

	acct := &storage.LinkedAccount{
		UserID:   userID,
		Provider: provider,
		Username: username,
		FeedURL:  identity.FeedURL(provider, username),
	}
	if err := e.store.UpsertLinkedAccount(ctx, acct); err != nil {
		return nil, err
	}
	logging.Info().Str("user_id", userID).Str("provider", string(provider)).Str("username", username).
		Msg("account linked")
	a := accountFromInternal(*acct)
	return &a, nil
}

// UnlinkAccount removes a provider link. Logged media is kept.
func (e *Engine) UnlinkAccount(ctx context.Context, userID string, provider Provider) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if !provider.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidProvider, provider)
	}
	return e.store.DeleteLinkedAccount(ctx, userID, provider)
}

// GetLinkedAccounts returns the user's linked accounts.
func (e *Engine) GetLinkedAccounts(ctx context.Context, userID string) ([]LinkedAccount, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	accts, err := e.store.ListUserLinkedAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]LinkedAccount, len(accts))
	for i, a := range accts {
		out[i] = accountFromInternal(a)
	}
	return out, nil
}

// ImportBatch imports pre-mapped rows. Items that fail validation are
// skipped and counted; the first storage error aborts the rest of the batch.
func (e *Engine) ImportBatch(ctx context.Context, userID string, req ImportRequest) (*ImportResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if err := e.validate.Struct(req); err != nil {
		if !req.Type.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProvider, req.Type)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	items := make([]ingest.ImportItem, 0, len(req.Items))
	skipped := 0
	for _, it := range req.Items {
		// Validate the trimmed title so whitespace cannot satisfy required.
		it.Title = strings.TrimSpace(it.Title)
		if err := e.validate.Struct(it); err != nil {
			skipped++
			continue
		}
		consumedAt, _ := parseConsumedAt(it.ConsumedAt)
		items = append(items, ingest.ImportItem{
			Title:      it.Title,
			ExternalID: it.ExternalID,
			ConsumedAt: consumedAt,
			Rating:     it.Rating,
		})
	}
	return e.importItems(ctx, userID, req.Type, items, skipped)
}

// ImportCSV maps a Letterboxd diary or Goodreads library export and imports
// it through the same path as ImportBatch.
func (e *Engine) ImportCSV(ctx context.Context, userID string, provider Provider, r io.Reader) (*ImportResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if !provider.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProvider, provider)
	}
	parsed, err := csvimport.Parse(r, provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return e.importItems(ctx, userID, provider, parsed.Items, parsed.Skipped)
}

func (e *Engine) importItems(ctx context.Context, userID string, provider Provider, items []ingest.ImportItem, skipped int) (*ImportResult, error) {
	if err := e.Ping(ctx); err != nil {
		return nil, err
	}
	res, err := e.importer.ImportBatch(ctx, userID, provider, items)
	out := &ImportResult{Skipped: skipped}
	if res != nil {
		out.Imported = res.Imported
		out.Inserted = res.Inserted
		out.Skipped += res.Skipped
	}
	if err != nil {
		logging.Error().Err(err).Str("user_id", userID).Int("imported", out.Imported).Msg("import aborted")
		return out, err
	}
	out.Success = true
	logging.Info().Str("user_id", userID).Str("provider", string(provider)).
		Int("imported", out.Imported).Int("inserted", out.Inserted).Int("skipped", out.Skipped).
		Msg("import finished")
	return out, nil
}

// SetYearlyGoal sets the user's target for a media type in a year.
func (e *Engine) SetYearlyGoal(ctx context.Context, userID string, year int, mediaType MediaType, target int) (*YearlyGoal, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if !mediaType.Valid() {
		return nil, fmt.Errorf("%w: media type %q", ErrInvalidRequest, mediaType)
	}
	if target < 0 {
		return nil, fmt.Errorf("%w: target must not be negative", ErrInvalidRequest)
	}
	goal := &storage.YearlyGoal{UserID: userID, Year: year, MediaType: mediaType, Target: target}
	if err := e.store.UpsertYearlyGoal(ctx, goal); err != nil {
		return nil, err
	}
	g := goalFromInternal(*goal)
	return &g, nil
}

// GetYearlyGoals returns the user's explicit goals for a year.
func (e *Engine) GetYearlyGoals(ctx context.Context, userID string, year int) ([]YearlyGoal, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	goals, err := e.store.ListYearlyGoals(ctx, userID, year)
	if err != nil {
		return nil, err
	}
	out := make([]YearlyGoal, len(goals))
	for i, g := range goals {
		out[i] = goalFromInternal(g)
	}
	return out, nil
}

// GetYearProgress compares the year's log counts with the user's goals,
// falling back to the configured defaults.
func (e *Engine) GetYearProgress(ctx context.Context, userID string, year int) (*YearProgress, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	counts, err := e.store.CountConsumptionByType(ctx, userID, year)
	if err != nil {
		return nil, err
	}
	goals, err := e.store.ListYearlyGoals(ctx, userID, year)
	if err != nil {
		return nil, err
	}
	targets := map[MediaType]int{MediaMovie: e.cfg.MovieGoal, MediaBook: e.cfg.BookGoal}
	for _, g := range goals {
		targets[g.MediaType] = g.Target
	}
	return &YearProgress{
		Year:   year,
		Movies: newGoalProgress(MediaMovie, counts[MediaMovie], targets[MediaMovie]),
		Books:  newGoalProgress(MediaBook, counts[MediaBook], targets[MediaBook]),
	}, nil
}

func newGoalProgress(mt MediaType, current, target int) GoalProgress {
	p := GoalProgress{MediaType: mt, Current: current, Target: target}
	if target > 0 {
		p.Percent = math.Min(float64(current)/float64(target)*100, 100)
	}
	return p
}

// GetMediaForYear returns the user's log for a year, newest first. An empty
// mediaType returns both movies and books.
func (e *Engine) GetMediaForYear(ctx context.Context, userID string, year int, mediaType MediaType) ([]MediaEntry, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if mediaType != "" && !mediaType.Valid() {
		return nil, fmt.Errorf("%w: media type %q", ErrInvalidRequest, mediaType)
	}
	entries, err := e.store.ListConsumptionForYear(ctx, userID, year, mediaType)
	if err != nil {
		return nil, err
	}
	return entriesFromInternal(entries), nil
}

// GetRecentMedia returns the user's latest log rows. A non-positive limit
// means 10.
func (e *Engine) GetRecentMedia(ctx context.Context, userID string, limit int) ([]MediaEntry, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	entries, err := e.store.ListRecentConsumption(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return entriesFromInternal(entries), nil
}

// GetShareSummary returns the counts and items for a year-in-review page.
func (e *Engine) GetShareSummary(ctx context.Context, userID string, year int, mediaType MediaType) (*ShareSummary, error) {
	entries, err := e.GetMediaForYear(ctx, userID, year, mediaType)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ConsumedAt.Before(entries[j].ConsumedAt)
	})

	s := &ShareSummary{UserID: userID, Year: year, MediaType: mediaType, Items: entries}
	for _, m := range entries {
		switch m.MediaType {
		case MediaMovie:
			s.MovieCount++
		case MediaBook:
			s.BookCount++
		}
	}
	return s, nil
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

func accountFromInternal(a storage.LinkedAccount) LinkedAccount {
	return LinkedAccount{
		ID:           a.ID,
		UserID:       a.UserID,
		Provider:     a.Provider,
		Username:     a.Username,
		FeedURL:      a.FeedURL,
		LastSyncedAt: a.LastSyncedAt,
		CreatedAt:    a.CreatedAt,
	}
}

func goalFromInternal(g storage.YearlyGoal) YearlyGoal {
	return YearlyGoal{ID: g.ID, Year: g.Year, MediaType: g.MediaType, Target: g.Target}
}

func entriesFromInternal(entries []storage.MediaEntry) []MediaEntry {
	out := make([]MediaEntry, len(entries))
	for i, m := range entries {
		out[i] = MediaEntry{
			ID:           m.ID,
			CatalogID:    m.CatalogItemID,
			Title:        m.Item.Title,
			MediaType:    m.Item.MediaType,
			Source:       m.Item.Source,
			ExternalID:   m.Item.ExternalID,
			PosterURL:    m.Item.PosterURL,
			Author:       m.Item.Author,
			ReleaseYear:  m.Item.ReleaseYear,
			ConsumedAt:   m.ConsumedAt,
			YearConsumed: m.YearConsumed,
			Rating:       m.Rating,
		}
	}
	return out
}

package consoom

import (
	"errors"
	"time"

	"github.com/matthewjhunter/consoom/internal/ingest"
	"github.com/matthewjhunter/consoom/internal/storage"
)

var (
	// ErrUnauthenticated is returned before any storage access when no user
	// id is supplied.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrStorageUnavailable means the database could not be reached.
	ErrStorageUnavailable = ingest.ErrStorageUnavailable
	ErrInvalidProvider    = errors.New("invalid provider")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNotFound           = storage.ErrNotFound
)

type Provider = storage.Provider

const (
	ProviderLetterboxd = storage.ProviderLetterboxd
	ProviderGoodreads  = storage.ProviderGoodreads
)

type MediaType = storage.MediaType

const (
	MediaMovie = storage.MediaMovie
	MediaBook  = storage.MediaBook
)

// EngineConfig configures the Consoom ingestion engine.
type EngineConfig struct {
	DBPath          string
	UserAgent       string
	FetchTimeout    time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	MovieGoal       int // default target when a user has no movie goal
	BookGoal        int // default target when a user has no book goal
	Now             func() time.Time
}

// LinkedAccount is a user's connection to Letterboxd or Goodreads.
type LinkedAccount struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Provider     Provider   `json:"type"`
	Username     string     `json:"username"`
	FeedURL      string     `json:"rss_url"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// MediaEntry is one consumption log row with its catalog item.
type MediaEntry struct {
	ID           string    `json:"id"`
	CatalogID    string    `json:"media_item_id"`
	Title        string    `json:"title"`
	MediaType    MediaType `json:"type"`
	Source       Provider  `json:"source"`
	ExternalID   string    `json:"external_id"`
	PosterURL    *string   `json:"poster_url,omitempty"`
	Author       *string   `json:"author,omitempty"`
	ReleaseYear  *int      `json:"release_year,omitempty"`
	ConsumedAt   time.Time `json:"consumed_at"`
	YearConsumed int       `json:"year_consumed"`
	Rating       *int      `json:"rating,omitempty"`
}

// YearlyGoal is a user's target count for one media type in one year.
type YearlyGoal struct {
	ID        string    `json:"id"`
	Year      int       `json:"year"`
	MediaType MediaType `json:"type"`
	Target    int       `json:"target"`
}

// GoalProgress is progress toward one media type's goal.
type GoalProgress struct {
	MediaType MediaType `json:"type"`
	Current   int       `json:"current"`
	Target    int       `json:"target"`
	Percent   float64   `json:"percent"`
}

// YearProgress summarizes a user's year.
type YearProgress struct {
	Year   int          `json:"year"`
	Movies GoalProgress `json:"movies"`
	Books  GoalProgress `json:"books"`
}

// ShareSummary backs the public year-in-review page. Items are oldest first.
type ShareSummary struct {
	UserID     string       `json:"user_id"`
	Year       int          `json:"year"`
	MediaType  MediaType    `json:"type,omitempty"`
	MovieCount int          `json:"movie_count"`
	BookCount  int          `json:"book_count"`
	Items      []MediaEntry `json:"items"`
}

// AccountSyncResult is the outcome of syncing one account.
type AccountSyncResult = ingest.AccountResult

// SyncReport tallies a sync run.
type SyncReport = ingest.SyncReport

// ImportItem is one row of a JSON import request. ConsumedAt accepts a date
// (2006-01-02) or an RFC 3339 timestamp.
type ImportItem struct {
	Title      string `json:"title" validate:"required,max=500"`
	ExternalID string `json:"externalId" validate:"max=500"`
	ConsumedAt string `json:"consumedAt" validate:"required,consumed_date"`
	Rating     *int   `json:"rating,omitempty" validate:"omitempty,min=0,max=10"`
}

// ImportRequest is the JSON import contract.
type ImportRequest struct {
	Type  Provider     `json:"type" validate:"required,oneof=letterboxd goodreads"`
	Items []ImportItem `json:"items" validate:"required"`
}

// ImportResult reports a batch import. Imported counts every row that
// reached the log writer, including rows that were already logged.
type ImportResult struct {
	Success  bool `json:"success"`
	Imported int  `json:"imported"`
	Inserted int  `json:"inserted"`
	Skipped  int  `json:"skipped"`
}

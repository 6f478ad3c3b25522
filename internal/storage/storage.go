package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Provider identifies an external tracking service. It doubles as the
// catalog source for items first seen through that service.
type Provider string

const (
	ProviderLetterboxd Provider = "letterboxd"
	ProviderGoodreads  Provider = "goodreads"
)

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	return p == ProviderLetterboxd || p == ProviderGoodreads
}

// MediaType returns the kind of media a provider tracks.
func (p Provider) MediaType() MediaType {
	if p == ProviderGoodreads {
		return MediaBook
	}
	return MediaMovie
}

type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaBook  MediaType = "book"
)

func (m MediaType) Valid() bool {
	return m == MediaMovie || m == MediaBook
}

type SQLiteStore struct {
	db *sql.DB
}

type LinkedAccount struct {
	ID           string
	UserID       string
	Provider     Provider
	Username     string
	FeedURL      string
	LastSyncedAt *time.Time
	CreatedAt    time.Time
}

type CatalogItem struct {
	ID          string
	MediaType   MediaType
	ExternalID  string
	Source      Provider
	Title       string
	PosterURL   *string
	Author      *string
	ReleaseYear *int
	CreatedAt   time.Time
}

type ConsumptionLog struct {
	ID            string
	UserID        string
	CatalogItemID string
	ConsumedAt    time.Time
	YearConsumed  int
	Rating        *int
	CreatedAt     time.Time
}

// MediaEntry is a consumption log row joined with its catalog item.
type MediaEntry struct {
	ConsumptionLog
	Item CatalogItem
}

type YearlyGoal struct {
	ID        string
	UserID    string
	Year      int
	MediaType MediaType
	Target    int
	CreatedAt time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath and initializes the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance queries.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullableInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// Package ingest turns provider entries into catalog items and consumption
// log rows. Both the feed sync and the batch import paths go through the same
// reconciler and writer, so their dedup rules are identical.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/matthewjhunter/consoom/internal/storage"
)

var ErrStorageUnavailable = errors.New("storage unavailable")

// CatalogStore is the catalog half of the storage layer.
type CatalogStore interface {
	InsertCatalogItem(ctx context.Context, item *storage.CatalogItem) error
	GetCatalogItemByKey(ctx context.Context, source storage.Provider, externalID string) (*storage.CatalogItem, error)
}

// LogStore persists consumption rows.
type LogStore interface {
	InsertConsumption(ctx context.Context, entry *storage.ConsumptionLog) error
}

// AccountStore lists accounts and records their sync watermark.
type AccountStore interface {
	Ping(ctx context.Context) error
	ListLinkedAccounts(ctx context.Context) ([]storage.LinkedAccount, error)
	ListUserLinkedAccounts(ctx context.Context, userID string) ([]storage.LinkedAccount, error)
	MarkAccountSynced(ctx context.Context, accountID string, at time.Time) error
}

// Store is everything the sync and import paths need.
type Store interface {
	CatalogStore
	LogStore
	AccountStore
}

var _ Store = (*storage.SQLiteStore)(nil)

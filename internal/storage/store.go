package storage

import (
	"context"
	"time"
)

// Store defines the storage interface for consoom's data layer.
type Store interface {
	Close() error
	Ping(ctx context.Context) error

	// Linked accounts
	UpsertLinkedAccount(ctx context.Context, account *LinkedAccount) error
	GetLinkedAccount(ctx context.Context, userID string, provider Provider) (*LinkedAccount, error)
	ListLinkedAccounts(ctx context.Context) ([]LinkedAccount, error)
	ListUserLinkedAccounts(ctx context.Context, userID string) ([]LinkedAccount, error)
	MarkAccountSynced(ctx context.Context, accountID string, at time.Time) error
	DeleteLinkedAccount(ctx context.Context, userID string, provider Provider) error

	// Catalog
	InsertCatalogItem(ctx context.Context, item *CatalogItem) error
	GetCatalogItemByKey(ctx context.Context, source Provider, externalID string) (*CatalogItem, error)
	CountCatalogItems(ctx context.Context) (int, error)

	// Consumption log
	InsertConsumption(ctx context.Context, entry *ConsumptionLog) error
	ListConsumptionForYear(ctx context.Context, userID string, year int, mediaType MediaType) ([]MediaEntry, error)
	ListRecentConsumption(ctx context.Context, userID string, limit int) ([]MediaEntry, error)
	CountConsumption(ctx context.Context, userID string) (int, error)
	CountConsumptionByType(ctx context.Context, userID string, year int) (map[MediaType]int, error)

	// Goals
	UpsertYearlyGoal(ctx context.Context, goal *YearlyGoal) error
	ListYearlyGoals(ctx context.Context, userID string, year int) ([]YearlyGoal, error)
}

var _ Store = (*SQLiteStore)(nil)

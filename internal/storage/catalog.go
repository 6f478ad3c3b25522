package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const catalogColumns = "id, media_type, external_id, source, title, poster_url, author, release_year, created_at"

// InsertCatalogItem inserts a new catalog row. It returns ErrAlreadyExists
// when an item with the same (source, external_id) is already present; the
// existing row is left untouched.
func (s *SQLiteStore) InsertCatalogItem(ctx context.Context, item *CatalogItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_items (id, media_type, external_id, source, title, poster_url, author, release_year)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.MediaType), item.ExternalID, string(item.Source), item.Title,
		item.PosterURL, item.Author, item.ReleaseYear,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert catalog item: %w", err)
	}
	return nil
}

// GetCatalogItemByKey looks up an item by its dedup key.
func (s *SQLiteStore) GetCatalogItemByKey(ctx context.Context, source Provider, externalID string) (*CatalogItem, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+catalogColumns+" FROM catalog_items WHERE source = ? AND external_id = ?",
		string(source), externalID,
	)
	item, err := scanCatalogItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog item: %w", err)
	}
	return item, nil
}

// CountCatalogItems returns the number of distinct catalog items.
func (s *SQLiteStore) CountCatalogItems(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_items").Scan(&n); err != nil {
		return 0, fmt.Errorf("count catalog items: %w", err)
	}
	return n, nil
}

func scanCatalogItem(row rowScanner) (*CatalogItem, error) {
	var item CatalogItem
	var mediaType, source string
	var poster, author sql.NullString
	var year sql.NullInt64
	if err := row.Scan(&item.ID, &mediaType, &item.ExternalID, &source, &item.Title, &poster, &author, &year, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.MediaType = MediaType(mediaType)
	item.Source = Provider(source)
	item.PosterURL = nullableString(poster)
	item.Author = nullableString(author)
	item.ReleaseYear = nullableInt(year)
	return &item, nil
}

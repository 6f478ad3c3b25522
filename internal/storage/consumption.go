package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const mediaEntryQuery = `
	SELECT l.id, l.user_id, l.catalog_item_id, l.consumed_at, l.year_consumed, l.rating, l.created_at,
	       c.id, c.media_type, c.external_id, c.source, c.title, c.poster_url, c.author, c.release_year, c.created_at
	FROM consumption_log l
	JOIN catalog_items c ON c.id = l.catalog_item_id`

// InsertConsumption appends a log row. YearConsumed is derived from the UTC
// consumption time. A row with the same (user_id, catalog_item_id,
// consumed_at) yields ErrAlreadyExists and the stored row is not modified.
func (s *SQLiteStore) InsertConsumption(ctx context.Context, entry *ConsumptionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.ConsumedAt = entry.ConsumedAt.UTC()
	entry.YearConsumed = entry.ConsumedAt.Year()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consumption_log (id, user_id, catalog_item_id, consumed_at, year_consumed, rating)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.CatalogItemID, entry.ConsumedAt, entry.YearConsumed, entry.Rating,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert consumption: %w", err)
	}
	return nil
}

// ListConsumptionForYear returns a user's log for one year, newest first.
// An empty mediaType returns every type.
func (s *SQLiteStore) ListConsumptionForYear(ctx context.Context, userID string, year int, mediaType MediaType) ([]MediaEntry, error) {
	query := mediaEntryQuery + " WHERE l.user_id = ? AND l.year_consumed = ?"
	args := []any{userID, year}
	if mediaType != "" {
		query += " AND c.media_type = ?"
		args = append(args, string(mediaType))
	}
	query += " ORDER BY l.consumed_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consumption for year: %w", err)
	}
	return collectMediaEntries(rows)
}

// ListRecentConsumption returns the user's most recent log rows.
func (s *SQLiteStore) ListRecentConsumption(ctx context.Context, userID string, limit int) ([]MediaEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		mediaEntryQuery+" WHERE l.user_id = ? ORDER BY l.consumed_at DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent consumption: %w", err)
	}
	return collectMediaEntries(rows)
}

// CountConsumption returns how many log rows a user has.
func (s *SQLiteStore) CountConsumption(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM consumption_log WHERE user_id = ?", userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count consumption: %w", err)
	}
	return n, nil
}

// CountConsumptionByType returns per-media-type log counts for one year.
func (s *SQLiteStore) CountConsumptionByType(ctx context.Context, userID string, year int) (map[MediaType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.media_type, COUNT(*)
		 FROM consumption_log l
		 JOIN catalog_items c ON c.id = l.catalog_item_id
		 WHERE l.user_id = ? AND l.year_consumed = ?
		 GROUP BY c.media_type`,
		userID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("count consumption by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[MediaType]int)
	for rows.Next() {
		var mt string
		var n int
		if err := rows.Scan(&mt, &n); err != nil {
			return nil, fmt.Errorf("scan consumption count: %w", err)
		}
		counts[MediaType(mt)] = n
	}
	return counts, rows.Err()
}

func collectMediaEntries(rows *sql.Rows) ([]MediaEntry, error) {
	defer rows.Close()

	var entries []MediaEntry
	for rows.Next() {
		var e MediaEntry
		var rating sql.NullInt64
		var mediaType, source string
		var poster, author sql.NullString
		var year sql.NullInt64
		err := rows.Scan(
			&e.ID, &e.UserID, &e.CatalogItemID, &e.ConsumedAt, &e.YearConsumed, &rating, &e.CreatedAt,
			&e.Item.ID, &mediaType, &e.Item.ExternalID, &source, &e.Item.Title, &poster, &author, &year, &e.Item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan media entry: %w", err)
		}
		e.Rating = nullableInt(rating)
		e.Item.MediaType = MediaType(mediaType)
		e.Item.Source = Provider(source)
		e.Item.PosterURL = nullableString(poster)
		e.Item.Author = nullableString(author)
		e.Item.ReleaseYear = nullableInt(year)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

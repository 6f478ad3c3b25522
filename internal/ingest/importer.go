package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matthewjhunter/consoom/internal/identity"
	"github.com/matthewjhunter/consoom/internal/metrics"
	"github.com/matthewjhunter/consoom/internal/storage"
)

// ImportItem is one already-mapped row of a batch import.
type ImportItem struct {
	Title      string
	ExternalID string
	ConsumedAt time.Time
	Rating     *int
	Author     *string
}

// ImportResult reports a batch. Imported counts every row that reached the
// log writer, duplicates included; Inserted counts only new log rows.
// Skipped counts rows with a blank title.
type ImportResult struct {
	Imported int `json:"imported"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Importer writes pre-mapped export rows for a single user.
type Importer struct {
	reconciler *Reconciler
	writer     *Writer
}

func NewImporter(store Store) *Importer {
	return &Importer{
		reconciler: NewReconciler(store),
		writer:     NewWriter(store),
	}
}

// ImportBatch reconciles and records items in order. A storage error stops
// the batch; rows already written stay and the partial result is returned
// alongside the error.
func (im *Importer) ImportBatch(ctx context.Context, userID string, provider storage.Provider, items []ImportItem) (*ImportResult, error) {
	res := &ImportResult{}
	mediaType := provider.MediaType()
	for i, it := range items {
		it.Title = strings.TrimSpace(it.Title)
		if it.Title == "" {
			res.Skipped++
			continue
		}
		externalID := strings.TrimSpace(it.ExternalID)
		if externalID == "" {
			externalID = identity.Slugify(it.Title)
		}
		if externalID == "" {
			externalID = it.Title
		}

		item, err := im.reconciler.Reconcile(ctx, storage.CatalogItem{
			MediaType:  mediaType,
			ExternalID: externalID,
			Source:     provider,
			Title:      it.Title,
			Author:     it.Author,
		})
		if err != nil {
			return res, fmt.Errorf("import row %d: %w", i+1, err)
		}
		inserted, err := im.writer.Record(ctx, userID, item, it.ConsumedAt, it.Rating)
		if err != nil {
			return res, fmt.Errorf("import row %d: %w", i+1, err)
		}
		res.Imported++
		if inserted {
			res.Inserted++
		}
		metrics.ImportRows.WithLabelValues(string(mediaType)).Inc()
	}
	return res, nil
}

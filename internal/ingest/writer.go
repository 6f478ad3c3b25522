package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matthewjhunter/consoom/internal/metrics"
	"github.com/matthewjhunter/consoom/internal/storage"
)

// Writer appends consumption log rows, skipping ones already recorded.
type Writer struct {
	store LogStore
}

func NewWriter(store LogStore) *Writer {
	return &Writer{store: store}
}

// Record logs that userID consumed item at consumedAt. It reports false when
// the same (user, item, time) row already exists; that row is left as is,
// rating included.
func (w *Writer) Record(ctx context.Context, userID string, item *storage.CatalogItem, consumedAt time.Time, rating *int) (bool, error) {
	entry := &storage.ConsumptionLog{
		UserID:        userID,
		CatalogItemID: item.ID,
		ConsumedAt:    consumedAt,
		Rating:        rating,
	}
	err := w.store.InsertConsumption(ctx, entry)
	if errors.Is(err, storage.ErrAlreadyExists) {
		metrics.ConsumptionWrites.WithLabelValues(string(item.MediaType), "duplicate").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record consumption of %s: %w", item.ID, err)
	}
	metrics.ConsumptionWrites.WithLabelValues(string(item.MediaType), "inserted").Inc()
	return true, nil
}

package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/matthewjhunter/consoom/internal/metrics"
	"github.com/matthewjhunter/consoom/internal/storage"
)

// Reconciler maps an externally identified item onto exactly one catalog row.
type Reconciler struct {
	store CatalogStore
}

func NewReconciler(store CatalogStore) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile inserts candidate, or returns the row that already holds its
// (Source, ExternalID) key. An existing row is returned unchanged: the title
// of the first writer wins. The unique index is the only guard, so
// concurrent callers racing on one key all end up with the same row.
func (r *Reconciler) Reconcile(ctx context.Context, candidate storage.CatalogItem) (*storage.CatalogItem, error) {
	item := candidate
	item.ID = ""
	err := r.store.InsertCatalogItem(ctx, &item)
	if err == nil {
		metrics.CatalogInserts.WithLabelValues(string(item.Source), "created").Inc()
		return &item, nil
	}
	if !errors.Is(err, storage.ErrAlreadyExists) {
		return nil, fmt.Errorf("reconcile %s/%s: %w", candidate.Source, candidate.ExternalID, err)
	}

	existing, err := r.store.GetCatalogItemByKey(ctx, candidate.Source, candidate.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s/%s: lookup after conflict: %w", candidate.Source, candidate.ExternalID, err)
	}
	metrics.CatalogInserts.WithLabelValues(string(item.Source), "existing").Inc()
	return existing, nil
}

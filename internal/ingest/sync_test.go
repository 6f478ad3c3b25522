package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matthewjhunter/consoom/internal/feeds"
	"github.com/matthewjhunter/consoom/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// stubFetcher serves canned bodies keyed by URL.
type stubFetcher struct {
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func (f *stubFetcher) FetchFeed(ctx context.Context, feedURL string) (string, error) {
	f.calls = append(f.calls, feedURL)
	if err, ok := f.errs[feedURL]; ok {
		return "", err
	}
	return f.bodies[feedURL], nil
}

// steppingClock returns a strictly increasing time on each call.
type steppingClock struct {
	t time.Time
}

func (c *steppingClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func linkAccount(t *testing.T, store *storage.SQLiteStore, userID string, provider storage.Provider, username, feedURL string) *storage.LinkedAccount {
	t.Helper()
	acct := &storage.LinkedAccount{UserID: userID, Provider: provider, Username: username, FeedURL: feedURL}
	if err := store.UpsertLinkedAccount(context.Background(), acct); err != nil {
		t.Fatalf("UpsertLinkedAccount failed: %v", err)
	}
	return acct
}

func rssFeed(items ...string) string {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>`
	for _, it := range items {
		body += it
	}
	return body + `</channel></rss>`
}

func letterboxdItem(slug, title, pubDate string) string {
	return fmt.Sprintf(`<item><title><![CDATA[%s]]></title><link>https://letterboxd.com/alice/film/%s/</link><pubDate>%s</pubDate></item>`,
		title, slug, pubDate)
}

func goodreadsItem(id, title, pubDate string) string {
	return fmt.Sprintf(`<item><title>%s</title><link>https://www.goodreads.com/review/show/%s?utm_medium=api</link><pubDate>%s</pubDate><user_rating>4</user_rating></item>`,
		title, id, pubDate)
}

func TestSyncAllIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	acct := linkAccount(t, store, "u1", storage.ProviderLetterboxd, "alice", "lb")

	fetcher := &stubFetcher{bodies: map[string]string{
		"lb": rssFeed(
			letterboxdItem("the-matrix", "The Matrix, 1999", "Sat, 02 Mar 2024 10:00:00 +0000"),
			letterboxdItem("heat", "Heat, 1995", "Fri, 01 Mar 2024 10:00:00 +0000"),
		),
	}}
	clock := &steppingClock{t: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)}
	syncer := NewSyncer(store, fetcher, SyncerConfig{Now: clock.Now})

	report, err := syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if report.Total != 1 || report.Success != 1 || report.Failed != 0 {
		t.Fatalf("report = %+v, want 1/1/0", report)
	}
	if report.Accounts[0].Inserted != 2 {
		t.Errorf("first run inserted = %d, want 2", report.Accounts[0].Inserted)
	}

	first, err := store.GetLinkedAccount(ctx, "u1", storage.ProviderLetterboxd)
	if err != nil {
		t.Fatalf("GetLinkedAccount failed: %v", err)
	}
	if first.LastSyncedAt == nil {
		t.Fatal("LastSyncedAt not stamped")
	}

	report, err = syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("second SyncAll failed: %v", err)
	}
	if report.Accounts[0].Inserted != 0 {
		t.Errorf("second run inserted = %d, want 0", report.Accounts[0].Inserted)
	}

	n, err := store.CountConsumption(ctx, "u1")
	if err != nil {
		t.Fatalf("CountConsumption failed: %v", err)
	}
	if n != 2 {
		t.Errorf("consumption rows = %d, want 2", n)
	}

	second, err := store.GetLinkedAccount(ctx, "u1", storage.ProviderLetterboxd)
	if err != nil {
		t.Fatalf("GetLinkedAccount failed: %v", err)
	}
	if !second.LastSyncedAt.After(*first.LastSyncedAt) {
		t.Errorf("LastSyncedAt did not advance: %v then %v", first.LastSyncedAt, second.LastSyncedAt)
	}
	if acct.ID != second.ID {
		t.Errorf("account id changed")
	}
}

func TestSyncAllPartialFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	linkAccount(t, store, "u1", storage.ProviderLetterboxd, "alice", "one")
	linkAccount(t, store, "u2", storage.ProviderLetterboxd, "bob", "two")
	linkAccount(t, store, "u3", storage.ProviderGoodreads, "333", "three")

	fetcher := &stubFetcher{
		bodies: map[string]string{
			"one":   rssFeed(letterboxdItem("alien", "Alien", "Mon, 01 Jan 2024 12:00:00 +0000")),
			"three": rssFeed(goodreadsItem("987", "Dune", "Tue, 02 Jan 2024 12:00:00 +0000")),
		},
		errs: map[string]error{"two": errors.New("connection refused")},
	}
	syncer := NewSyncer(store, fetcher, SyncerConfig{})

	report, err := syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if report.Total != 3 || report.Success != 2 || report.Failed != 1 {
		t.Fatalf("report = %d/%d/%d, want 3/2/1", report.Total, report.Success, report.Failed)
	}
	if len(fetcher.calls) != 3 {
		t.Errorf("fetch calls = %v, want all three accounts", fetcher.calls)
	}

	for _, user := range []string{"u1", "u3"} {
		n, err := store.CountConsumption(ctx, user)
		if err != nil {
			t.Fatalf("CountConsumption failed: %v", err)
		}
		if n != 1 {
			t.Errorf("%s consumption rows = %d, want 1", user, n)
		}
	}

	failed, err := store.GetLinkedAccount(ctx, "u2", storage.ProviderLetterboxd)
	if err != nil {
		t.Fatalf("GetLinkedAccount failed: %v", err)
	}
	if failed.LastSyncedAt != nil {
		t.Errorf("failed account should keep nil watermark, got %v", failed.LastSyncedAt)
	}

	var failedResult *AccountResult
	for i := range report.Accounts {
		if !report.Accounts[i].OK {
			failedResult = &report.Accounts[i]
		}
	}
	if failedResult == nil || failedResult.Username != "bob" || failedResult.Error == "" {
		t.Errorf("failed account result = %+v", failedResult)
	}

	book, err := store.GetCatalogItemByKey(ctx, storage.ProviderGoodreads, "987")
	if err != nil {
		t.Fatalf("GetCatalogItemByKey failed: %v", err)
	}
	if book.MediaType != storage.MediaBook {
		t.Errorf("media type = %s, want book", book.MediaType)
	}
	entries, err := store.ListConsumptionForYear(ctx, "u3", 2024, storage.MediaBook)
	if err != nil {
		t.Fatalf("ListConsumptionForYear failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Rating == nil || *entries[0].Rating != 4 {
		t.Errorf("goodreads entry = %+v, want rating 4", entries)
	}
}

func TestSyncAllSharedCatalogItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	linkAccount(t, store, "u1", storage.ProviderLetterboxd, "alice", "a")
	linkAccount(t, store, "u2", storage.ProviderLetterboxd, "bob", "b")

	fetcher := &stubFetcher{bodies: map[string]string{
		"a": rssFeed(letterboxdItem("heat", "Heat", "Mon, 01 Jan 2024 12:00:00 +0000")),
		"b": rssFeed(letterboxdItem("heat", "Heat (1995)", "Wed, 03 Jan 2024 12:00:00 +0000")),
	}}
	if _, err := NewSyncer(store, fetcher, SyncerConfig{}).SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	n, err := store.CountCatalogItems(ctx)
	if err != nil {
		t.Fatalf("CountCatalogItems failed: %v", err)
	}
	if n != 1 {
		t.Errorf("catalog items = %d, want 1", n)
	}
	item, err := store.GetCatalogItemByKey(ctx, storage.ProviderLetterboxd, "heat")
	if err != nil {
		t.Fatalf("GetCatalogItemByKey failed: %v", err)
	}
	if item.Title != "Heat" {
		t.Errorf("title = %q, first writer should win", item.Title)
	}
}

func TestSyncAccountFallbacks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	acct := linkAccount(t, store, "u1", storage.ProviderLetterboxd, "alice", "lb")

	fetcher := &stubFetcher{bodies: map[string]string{
		"lb": rssFeed(
			`<item><link>https://letterboxd.com/alice/list/favourites/</link></item>`,
			`<item><title>No link here</title></item>`,
		),
	}}
	clock := &steppingClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	syncer := NewSyncer(store, fetcher, SyncerConfig{Now: clock.Now})
	report, err := syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if report.Accounts[0].Entries != 1 {
		t.Errorf("entries = %d, want 1 (linkless item skipped)", report.Accounts[0].Entries)
	}

	link := "https://letterboxd.com/alice/list/favourites/"
	item, err := store.GetCatalogItemByKey(ctx, storage.ProviderLetterboxd, link)
	if err != nil {
		t.Fatalf("raw link should be the identifier: %v", err)
	}
	if item.Title != link {
		t.Errorf("title = %q, want link", item.Title)
	}

	linkedAt := acct.CreatedAt.UTC()
	entries, err := store.ListConsumptionForYear(ctx, "u1", linkedAt.Year(), "")
	if err != nil {
		t.Fatalf("ListConsumptionForYear failed: %v", err)
	}
	if len(entries) != 1 || !entries[0].ConsumedAt.Equal(linkedAt) {
		t.Errorf("entries = %+v, want consumed at account link time %v", entries, linkedAt)
	}
}

func TestSyncAllDatelessEntryIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	linkAccount(t, store, "u1", storage.ProviderGoodreads, "42", "gr")

	fetcher := &stubFetcher{bodies: map[string]string{
		"gr": rssFeed(`<item><title>Dune</title><link>https://www.goodreads.com/review/show/555</link></item>`),
	}}
	clock := &steppingClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	syncer := NewSyncer(store, fetcher, SyncerConfig{Now: clock.Now})

	for i := 0; i < 2; i++ {
		report, err := syncer.SyncAll(ctx)
		if err != nil {
			t.Fatalf("SyncAll %d failed: %v", i, err)
		}
		want := 1
		if i > 0 {
			want = 0
		}
		if got := report.Accounts[0].Inserted; got != want {
			t.Errorf("run %d inserted = %d, want %d", i, got, want)
		}
	}

	n, err := store.CountConsumption(ctx, "u1")
	if err != nil {
		t.Fatalf("CountConsumption failed: %v", err)
	}
	if n != 1 {
		t.Errorf("consumption rows = %d, want 1", n)
	}
}

func TestSyncAllMissingFeedsDoNotTripHealthyAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	healthy := rssFeed(letterboxdItem("heat", "Heat, 1995", "Mon, 01 Jan 2024 12:00:00 +0000"))
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/carol/rss/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, healthy)
	}))
	defer ts.Close()

	// Missing accounts link first so their 404s land before the healthy fetch.
	for i := 1; i <= 5; i++ {
		user := fmt.Sprintf("gone%d", i)
		linkAccount(t, store, user, storage.ProviderLetterboxd, user, ts.URL+"/"+user+"/rss/")
	}
	linkAccount(t, store, "carol", storage.ProviderLetterboxd, "carol", ts.URL+"/carol/rss/")

	fetcher := feeds.NewFetcher(feeds.FetcherConfig{BreakerFailures: 5, BreakerCooldown: time.Hour})
	report, err := NewSyncer(store, fetcher, SyncerConfig{}).SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if report.Total != 6 || report.Success != 1 || report.Failed != 5 {
		t.Fatalf("report = %d/%d/%d, want 6/1/5", report.Total, report.Success, report.Failed)
	}
	n, err := store.CountConsumption(ctx, "carol")
	if err != nil {
		t.Fatalf("CountConsumption failed: %v", err)
	}
	if n != 1 {
		t.Errorf("healthy account rows = %d, want 1", n)
	}
}

func TestSyncAllEmptyFeed(t *testing.T) {
	store := newTestStore(t)
	linkAccount(t, store, "u1", storage.ProviderGoodreads, "1", "gr")

	fetcher := &stubFetcher{bodies: map[string]string{"gr": rssFeed()}}
	report, err := NewSyncer(store, fetcher, SyncerConfig{}).SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if report.Success != 1 {
		t.Errorf("empty feed should succeed, report = %+v", report)
	}
}

func TestSyncAllStorageUnavailable(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	store.Close()

	fetcher := &stubFetcher{}
	_, err = NewSyncer(store, fetcher, SyncerConfig{}).SyncAll(context.Background())
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("SyncAll = %v, want ErrStorageUnavailable", err)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("no fetch should happen, got %v", fetcher.calls)
	}
}

func TestSyncUser(t *testing.T) {
	store := newTestStore(t)
	linkAccount(t, store, "u1", storage.ProviderLetterboxd, "alice", "a")
	linkAccount(t, store, "u2", storage.ProviderLetterboxd, "bob", "b")

	fetcher := &stubFetcher{bodies: map[string]string{"a": rssFeed(), "b": rssFeed()}}
	report, err := NewSyncer(store, fetcher, SyncerConfig{}).SyncUser(context.Background(), "u2")
	if err != nil {
		t.Fatalf("SyncUser failed: %v", err)
	}
	if report.Total != 1 || len(fetcher.calls) != 1 || fetcher.calls[0] != "b" {
		t.Errorf("SyncUser touched %v, want only b", fetcher.calls)
	}
}

func TestReconcileConcurrent(t *testing.T) {
	store := newTestStore(t)
	r := NewReconciler(store)

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item, err := r.Reconcile(context.Background(), storage.CatalogItem{
				MediaType:  storage.MediaBook,
				ExternalID: "42",
				Source:     storage.ProviderGoodreads,
				Title:      fmt.Sprintf("Title %d", i),
			})
			errs[i] = err
			if item != nil {
				ids[i] = item.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("worker %d got id %s, want %s", i, ids[i], ids[0])
		}
	}
}

func TestFeedRating(t *testing.T) {
	tests := []struct {
		provider storage.Provider
		raw      string
		want     int
		ok       bool
	}{
		{storage.ProviderLetterboxd, "4.5", 9, true},
		{storage.ProviderLetterboxd, "0.5", 1, true},
		{storage.ProviderGoodreads, "3", 3, true},
		{storage.ProviderGoodreads, "0", 0, false},
		{storage.ProviderLetterboxd, "", 0, false},
		{storage.ProviderLetterboxd, "n/a", 0, false},
	}
	for _, tt := range tests {
		got := feedRating(tt.provider, tt.raw)
		if (got != nil) != tt.ok {
			t.Errorf("feedRating(%s, %q) = %v, want ok=%v", tt.provider, tt.raw, got, tt.ok)
			continue
		}
		if got != nil && *got != tt.want {
			t.Errorf("feedRating(%s, %q) = %d, want %d", tt.provider, tt.raw, *got, tt.want)
		}
	}
}

package csvimport

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matthewjhunter/consoom/internal/ingest"
	"github.com/matthewjhunter/consoom/internal/storage"
)

const diaryCSV = `Date,Name,Year,Letterboxd URI,Rating,Rewatch,Tags,Watched Date
2024-01-06,The Matrix,1999,https://boxd.it/abc1,4.5,,,2024-01-05
2024-02-10,"Crouching Tiger, Hidden Dragon",2000,,3,Yes,"wuxia, favourites",2024-02-09
2024-03-01,Heat,1995,https://boxd.it/xyz9,,,,
`

const goodreadsCSV = "\ufeff" + `Book Id,Title,Author,My Rating,Date Read,Exclusive Shelf
12345,"Dune (Dune, #1)",Frank Herbert,5,2024/03/02,read
67890,Piranesi,Susanna Clarke,0,2024/04/10,read
11111,The Overstory,Richard Powers,0,,to-read
,"Ancillary Justice",Ann Leckie,4,2023/12/31,read
22222,Project Hail Mary,Andy Weir,5,2024/05/01,currently-reading
`

func TestParseLetterboxd(t *testing.T) {
	res, err := ParseLetterboxd(strings.NewReader(diaryCSV))
	if err != nil {
		t.Fatalf("ParseLetterboxd failed: %v", err)
	}
	if res.Rows != 3 || res.Skipped != 1 {
		t.Errorf("rows=%d skipped=%d, want 3/1", res.Rows, res.Skipped)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}

	matrix := res.Items[0]
	if matrix.ExternalID != "abc1" {
		t.Errorf("external id = %q, want abc1", matrix.ExternalID)
	}
	if matrix.Rating == nil || *matrix.Rating != 9 {
		t.Errorf("rating = %v, want 9", matrix.Rating)
	}
	if !matrix.ConsumedAt.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("consumed at = %v", matrix.ConsumedAt)
	}

	tiger := res.Items[1]
	if tiger.Title != "Crouching Tiger, Hidden Dragon" {
		t.Errorf("quoted title = %q", tiger.Title)
	}
	if tiger.ExternalID != "crouching-tiger-hidden-dragon" {
		t.Errorf("slug fallback = %q", tiger.ExternalID)
	}
	if tiger.Rating == nil || *tiger.Rating != 6 {
		t.Errorf("rating = %v, want 6", tiger.Rating)
	}
}

func TestParseGoodreads(t *testing.T) {
	res, err := ParseGoodreads(strings.NewReader(goodreadsCSV))
	if err != nil {
		t.Fatalf("ParseGoodreads failed: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("expected 3 items, got %d: %+v", len(res.Items), res.Items)
	}
	if res.Skipped != 2 {
		t.Errorf("skipped = %d, want 2 (to-read and currently-reading)", res.Skipped)
	}

	dune := res.Items[0]
	if dune.ExternalID != "12345" || dune.Title != "Dune (Dune, #1)" {
		t.Errorf("dune = %+v", dune)
	}
	if dune.Rating == nil || *dune.Rating != 5 {
		t.Errorf("rating = %v, want 5", dune.Rating)
	}
	if dune.Author == nil || *dune.Author != "Frank Herbert" {
		t.Errorf("author = %v", dune.Author)
	}
	if !dune.ConsumedAt.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("consumed at = %v", dune.ConsumedAt)
	}

	if res.Items[1].Rating != nil {
		t.Errorf("zero rating should be unrated, got %d", *res.Items[1].Rating)
	}
	if res.Items[2].ExternalID != "ancillary-justice" {
		t.Errorf("slug fallback = %q", res.Items[2].ExternalID)
	}
}

func TestParseGoodreadsToReadExcluded(t *testing.T) {
	csv := "Book Id,Title,My Rating,Date Read,Exclusive Shelf\n" +
		"1,Complete Row,5,2024/01/01,to-read\n"
	res, err := ParseGoodreads(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseGoodreads failed: %v", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("to-read row imported: %+v", res.Items)
	}
}

func TestParseMissingColumn(t *testing.T) {
	_, err := ParseLetterboxd(strings.NewReader("Name,Date\nHeat,2024-01-01\n"))
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("err = %v, want ErrMissingColumn", err)
	}
	_, err = ParseGoodreads(strings.NewReader(""))
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("empty file err = %v, want ErrMissingColumn", err)
	}
	if _, err := Parse(strings.NewReader(diaryCSV), storage.Provider("imdb")); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestLetterboxdRoundTrip(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	im := ingest.NewImporter(store)

	for run := 0; run < 2; run++ {
		res, err := Parse(strings.NewReader(diaryCSV), storage.ProviderLetterboxd)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		out, err := im.ImportBatch(ctx, "u1", storage.ProviderLetterboxd, res.Items)
		if err != nil {
			t.Fatalf("ImportBatch failed: %v", err)
		}
		if out.Imported != 2 {
			t.Errorf("run %d imported = %d, want 2", run, out.Imported)
		}

		n, err := store.CountConsumption(ctx, "u1")
		if err != nil {
			t.Fatalf("CountConsumption failed: %v", err)
		}
		if n != 2 {
			t.Errorf("run %d consumption rows = %d, want 2", run, n)
		}
	}
}

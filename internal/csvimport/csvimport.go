// Package csvimport maps Letterboxd diary and Goodreads library exports onto
// import items. Rows missing required fields, or filtered by shelf, are
// counted as skipped rather than failing the file.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/matthewjhunter/consoom/internal/identity"
	"github.com/matthewjhunter/consoom/internal/ingest"
	"github.com/matthewjhunter/consoom/internal/storage"
)

// Column names as they appear in the provider exports.
const (
	LetterboxdName   = "Name"
	LetterboxdDate   = "Watched Date"
	LetterboxdURI    = "Letterboxd URI"
	LetterboxdRating = "Rating"

	GoodreadsTitle  = "Title"
	GoodreadsDate   = "Date Read"
	GoodreadsBookID = "Book Id"
	GoodreadsRating = "My Rating"
	GoodreadsShelf  = "Exclusive Shelf"
	GoodreadsAuthor = "Author"
)

var ErrMissingColumn = errors.New("missing required column")

// Result is the outcome of mapping one export file.
type Result struct {
	Items   []ingest.ImportItem
	Rows    int
	Skipped int
}

// Parse reads an export for provider.
func Parse(r io.Reader, provider storage.Provider) (*Result, error) {
	switch provider {
	case storage.ProviderLetterboxd:
		return ParseLetterboxd(r)
	case storage.ProviderGoodreads:
		return ParseGoodreads(r)
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

// ParseLetterboxd maps diary.csv rows. Ratings use a 0-5 half-star scale in
// the export and are doubled onto 0-10.
func ParseLetterboxd(r io.Reader) (*Result, error) {
	return parse(r, []string{LetterboxdName, LetterboxdDate}, func(row record) (ingest.ImportItem, bool) {
		name := row.get(LetterboxdName)
		consumed, ok := parseDate(row.get(LetterboxdDate))
		if name == "" || !ok {
			return ingest.ImportItem{}, false
		}
		item := ingest.ImportItem{
			Title:      name,
			ExternalID: identity.LetterboxdURIID(row.get(LetterboxdURI), name),
			ConsumedAt: consumed,
		}
		if v, err := strconv.ParseFloat(row.get(LetterboxdRating), 64); err == nil {
			rating := int(math.Round(v * 2))
			item.Rating = &rating
		}
		return item, true
	})
}

// ParseGoodreads maps goodreads_library_export.csv rows. Only books on the
// "read" shelf are kept. A rating of 0 means unrated.
func ParseGoodreads(r io.Reader) (*Result, error) {
	return parse(r, []string{GoodreadsTitle, GoodreadsDate}, func(row record) (ingest.ImportItem, bool) {
		if row.get(GoodreadsShelf) != "read" {
			return ingest.ImportItem{}, false
		}
		title := row.get(GoodreadsTitle)
		consumed, ok := parseDate(row.get(GoodreadsDate))
		if title == "" || !ok {
			return ingest.ImportItem{}, false
		}
		item := ingest.ImportItem{
			Title:      title,
			ExternalID: identity.GoodreadsBookID(row.get(GoodreadsBookID), title),
			ConsumedAt: consumed,
		}
		if author := row.get(GoodreadsAuthor); author != "" {
			item.Author = &author
		}
		if v, err := strconv.Atoi(row.get(GoodreadsRating)); err == nil && v > 0 {
			item.Rating = &v
		}
		return item, true
	})
}

type record struct {
	header map[string]int
	fields []string
}

func (r record) get(col string) string {
	i, ok := r.header[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func parse(r io.Reader, required []string, mapRow func(record) (ingest.ImportItem, bool)) (*Result, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	header := make(map[string]int, len(head))
	for i, name := range head {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		header[strings.TrimSpace(name)] = i
	}
	for _, col := range required {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}

	res := &Result{Items: []ingest.ImportItem{}}
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", res.Rows+2, err)
		}
		if isBlank(fields) {
			continue
		}
		res.Rows++
		item, ok := mapRow(record{header: header, fields: fields})
		if !ok {
			res.Skipped++
			continue
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", time.RFC3339}

// parseDate accepts the export date formats. Dates without a time are
// midnight UTC.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

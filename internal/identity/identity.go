// Package identity derives stable external identifiers for catalog items
// from provider permalinks and CSV export fields. Resolution never fails: when
// a known shape is absent the input itself (or a slug of it) is used.
package identity

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/matthewjhunter/consoom/internal/storage"
)

var (
	letterboxdFilmRe   = regexp.MustCompile(`/film/([^/?#]+)`)
	goodreadsReviewRe  = regexp.MustCompile(`/show/(\d+)`)
	slugSeparatorRunRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// LetterboxdFilmID returns the slug after /film/ in a Letterboxd permalink,
// or the link itself.
func LetterboxdFilmID(link string) string {
	if m := letterboxdFilmRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return link
}

// GoodreadsReviewID returns the digits after /show/ in a Goodreads permalink,
// or the link itself.
func GoodreadsReviewID(link string) string {
	if m := goodreadsReviewRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return link
}

// FromLink resolves a feed permalink for provider.
func FromLink(provider storage.Provider, link string) string {
	if provider == storage.ProviderGoodreads {
		return GoodreadsReviewID(link)
	}
	return LetterboxdFilmID(link)
}

// LetterboxdURIID resolves a diary export row: the last path segment of the
// Letterboxd URI, else a slug of the film name.
func LetterboxdURIID(uri, name string) string {
	uri = strings.TrimRight(strings.TrimSpace(uri), "/")
	if uri != "" {
		if i := strings.LastIndex(uri, "/"); i >= 0 && i < len(uri)-1 {
			return uri[i+1:]
		}
		return uri
	}
	return slugOrRaw(name)
}

// GoodreadsBookID resolves a library export row: the Book Id, else a slug of
// the title.
func GoodreadsBookID(bookID, title string) string {
	if id := strings.TrimSpace(bookID); id != "" {
		return id
	}
	return slugOrRaw(title)
}

// slugOrRaw falls back to the trimmed input when it has no slug-able
// characters, so a non-empty input never maps to an empty identifier.
func slugOrRaw(s string) string {
	if slug := Slugify(s); slug != "" {
		return slug
	}
	return strings.TrimSpace(s)
}

// Slugify lowercases s, folds accents to ASCII, and joins alphanumeric runs
// with single hyphens.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	return strings.Trim(slugSeparatorRunRe.ReplaceAllString(folded, "-"), "-")
}

// FeedURL returns the RSS feed for a provider account. For Letterboxd the
// identifier is the username; for Goodreads it is the numeric user id.
func FeedURL(provider storage.Provider, username string) string {
	name := url.PathEscape(strings.TrimSpace(username))
	if provider == storage.ProviderGoodreads {
		return "https://www.goodreads.com/review/list_rss/" + name + "?shelf=read"
	}
	return "https://letterboxd.com/" + name + "/rss/"
}

package feeds

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

// Entry is one item pulled out of a feed. Fields hold trimmed text and may
// be empty when the item omitted them.
type Entry struct {
	Title   string
	Link    string
	PubDate string
	// Rating is the provider's raw rating text: a 0.5-5 star value for
	// Letterboxd, a 0-5 integer for Goodreads.
	Rating string
}

// Extraction is deliberately regex based: the provider feeds are not always
// well-formed and a strict XML decoder rejects the whole document on the
// first error. Each item is matched independently so one broken block only
// loses that block.
var (
	itemRe       = regexp.MustCompile(`(?is)<item\b[^>]*>(.*?)</item>`)
	cdataTitleRe = regexp.MustCompile(`(?is)<title\b[^>]*>\s*<!\[CDATA\[(.*?)\]\]>\s*</title>`)
	titleRe      = regexp.MustCompile(`(?is)<title\b[^>]*>(.*?)</title>`)
	linkRe       = regexp.MustCompile(`(?is)<link\b[^>/]*>\s*(?:<!\[CDATA\[)?(.*?)(?:\]\]>)?\s*</link>`)
	pubDateRe    = regexp.MustCompile(`(?is)<pubDate\b[^>]*>(.*?)</pubDate>`)
	ratingRe     = regexp.MustCompile(`(?is)<(?:letterboxd:memberRating|user_rating)\b[^>]*>(.*?)</`)
	atomFeedRe   = regexp.MustCompile(`(?i)<feed\b`)
)

var stripTags = bluemonday.StrictPolicy()

// ParseEntries extracts entries in document order. A title wrapped in CDATA
// wins over a plain one. Items with neither a title nor a link are dropped.
// A feed with no items yields an empty slice, not an error.
//
// Documents with no <item> blocks that look like Atom are handed to gofeed
// as a fallback.
func ParseEntries(body string) []Entry {
	blocks := itemRe.FindAllStringSubmatch(body, -1)
	if len(blocks) == 0 {
		if atomFeedRe.MatchString(body) {
			return parseAtom(body)
		}
		return []Entry{}
	}

	entries := make([]Entry, 0, len(blocks))
	for _, block := range blocks {
		inner := block[1]
		e := Entry{
			Title:   extractTitle(inner),
			Link:    strings.TrimSpace(html.UnescapeString(firstGroup(linkRe, inner))),
			PubDate: strings.TrimSpace(firstGroup(pubDateRe, inner)),
			Rating:  strings.TrimSpace(firstGroup(ratingRe, inner)),
		}
		if e.Title == "" && e.Link == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func extractTitle(item string) string {
	if m := cdataTitleRe.FindStringSubmatch(item); m != nil {
		return cleanText(m[1])
	}
	return cleanText(firstGroup(titleRe, item))
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// cleanText strips markup and decodes entities. The policy escapes its
// output, so unescaping happens last.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripTags.Sanitize(s)))
}

func parseAtom(body string) []Entry {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return []Entry{}
	}
	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		e := Entry{
			Title: cleanText(item.Title),
			Link:  strings.TrimSpace(item.Link),
		}
		switch {
		case item.PublishedParsed != nil:
			e.PubDate = item.PublishedParsed.UTC().Format(time.RFC1123Z)
		case item.UpdatedParsed != nil:
			e.PubDate = item.UpdatedParsed.UTC().Format(time.RFC1123Z)
		}
		if e.Title == "" && e.Link == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
	"2006-01-02",
}

// ParsePubDate parses the date formats seen in provider feeds. The result is
// in UTC.
func ParsePubDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

package feeds

import (
	"testing"
	"time"
)

const letterboxdFeed = `<?xml version='1.0' encoding='utf-8'?>
<rss version="2.0" xmlns:letterboxd="https://letterboxd.com">
  <channel>
    <title>Letterboxd - alice</title>
    <link>https://letterboxd.com/alice/</link>
    <item>
      <title><![CDATA[The Matrix, 1999 - ★★★★½]]></title>
      <link>https://letterboxd.com/alice/film/the-matrix/</link>
      <pubDate>Sat, 2 Mar 2024 10:15:00 +1300</pubDate>
      <letterboxd:memberRating>4.5</letterboxd:memberRating>
    </item>
    <item>
      <title>Dune: Part Two, 2024</title>
      <link>https://letterboxd.com/alice/film/dune-part-two/</link>
      <pubDate>Fri, 01 Mar 2024 20:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func TestParseEntriesLetterboxd(t *testing.T) {
	entries := ParseEntries(letterboxdFeed)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if entries[0].Title != "The Matrix, 1999 - ★★★★½" {
		t.Errorf("CDATA title = %q", entries[0].Title)
	}
	if entries[0].Link != "https://letterboxd.com/alice/film/the-matrix/" {
		t.Errorf("link = %q", entries[0].Link)
	}
	if entries[0].Rating != "4.5" {
		t.Errorf("rating = %q, want 4.5", entries[0].Rating)
	}
	if entries[1].Rating != "" {
		t.Errorf("unrated entry rating = %q", entries[1].Rating)
	}
	if entries[1].Title != "Dune: Part Two, 2024" {
		t.Errorf("plain title = %q", entries[1].Title)
	}
	if entries[1].PubDate != "Fri, 01 Mar 2024 20:00:00 +0000" {
		t.Errorf("pubDate = %q", entries[1].PubDate)
	}
}

func TestParseEntriesTolerant(t *testing.T) {
	// Unclosed channel and a bare ampersand. The second item has neither a
	// title nor a link.
	body := `<rss><channel>
<item><title>Tom &amp; Jerry &amp Co</title><link>https://www.goodreads.com/review/show/123?utm=a&amp;b=c</link></item>
<item><pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate></item>
<item><title><b>Bold</b> Title</title></item>
<item><link><![CDATA[https://www.goodreads.com/review/show/456]]></link></item>`

	entries := ParseEntries(body)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Title != "Tom & Jerry & Co" {
		t.Errorf("title = %q", entries[0].Title)
	}
	if entries[0].Link != "https://www.goodreads.com/review/show/123?utm=a&b=c" {
		t.Errorf("link = %q", entries[0].Link)
	}
	if entries[1].Title != "Bold Title" {
		t.Errorf("markup not stripped: %q", entries[1].Title)
	}
	if entries[1].Link != "" {
		t.Errorf("link = %q, want empty", entries[1].Link)
	}
	if entries[2].Link != "https://www.goodreads.com/review/show/456" {
		t.Errorf("CDATA link = %q", entries[2].Link)
	}
}

func TestParseEntriesEmpty(t *testing.T) {
	for _, body := range []string{
		"",
		"<rss><channel><title>nothing here</title></channel></rss>",
		"not xml at all",
	} {
		entries := ParseEntries(body)
		if entries == nil {
			t.Errorf("ParseEntries(%q) returned nil, want empty slice", body)
		}
		if len(entries) != 0 {
			t.Errorf("ParseEntries(%q) = %d entries, want 0", body, len(entries))
		}
	}
}

func TestParseEntriesAtomFallback(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Reading</title>
  <entry>
    <title>Piranesi</title>
    <link href="https://www.goodreads.com/review/show/789"/>
    <id>urn:789</id>
    <updated>2024-05-01T12:00:00Z</updated>
  </entry>
</feed>`

	entries := ParseEntries(body)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Title != "Piranesi" {
		t.Errorf("title = %q", entries[0].Title)
	}
	if entries[0].Link != "https://www.goodreads.com/review/show/789" {
		t.Errorf("link = %q", entries[0].Link)
	}
	got, ok := ParsePubDate(entries[0].PubDate)
	if !ok || !got.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("pubDate = %q (%v, %v)", entries[0].PubDate, got, ok)
	}
}

func TestParsePubDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"Sat, 02 Mar 2024 10:15:00 +1300", time.Date(2024, 3, 1, 21, 15, 0, 0, time.UTC), true},
		{"Sat, 2 Mar 2024 10:15:00 +0000", time.Date(2024, 3, 2, 10, 15, 0, 0, time.UTC), true},
		{"2024-03-02T10:15:00Z", time.Date(2024, 3, 2, 10, 15, 0, 0, time.UTC), true},
		{"2024-03-02", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParsePubDate(tt.in)
		if ok != tt.ok {
			t.Errorf("ParsePubDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("ParsePubDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if ok && got.Location() != time.UTC {
			t.Errorf("ParsePubDate(%q) location = %v, want UTC", tt.in, got.Location())
		}
	}
}

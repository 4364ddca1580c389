package pipeline

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func entry(link, title string, published *string) FeedEntry {
	return FeedEntry{UID: EntryUID(link, title), Title: title, Link: link, Published: published}
}

func titles(entries []FeedEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Title)
	}
	return out
}

func TestDedupeKeepsFirst(t *testing.T) {
	a := entry("https://x/a", "A", strPtr("2026-01-05T10:00:00Z"))
	dup := a
	dup.Source = "https://other/feed"
	b := entry("https://x/b", "B", nil)

	got := Dedupe([]FeedEntry{a, b, dup})
	assert.Equal(t, 2, len(got))
	assert.Equal(t, "", got[0].Source)
}

func TestRankOrdersNewestFirst(t *testing.T) {
	entries := []FeedEntry{
		entry("https://x/1", "no date", nil),
		entry("https://x/2", "old", strPtr("2026-01-04T08:00:00Z")),
		entry("https://x/3", "new", strPtr("2026-01-05T09:00:00Z")),
		entry("https://x/4", "tie-a", strPtr("2026-01-05T08:00:00Z")),
		entry("https://x/5", "tie-b", strPtr("2026-01-05T08:00:00Z")),
		entry("https://x/3", "new", strPtr("2026-01-05T09:00:00Z")),
	}

	got := Rank(entries)
	assert.Equal(t, []string{"new", "tie-a", "tie-b", "old", "no date"}, titles(got))
}

func TestTopN(t *testing.T) {
	ranked := []FeedEntry{entry("a", "a", nil), entry("b", "b", nil)}
	assert.Equal(t, 1, len(TopN(ranked, 1)))
	assert.Equal(t, 2, len(TopN(ranked, 10)))
	assert.Equal(t, 0, len(TopN(ranked, 0)))
}

func TestEntryUID(t *testing.T) {
	// sha1("https://example.com/aTitle")
	assert.Equal(t, 40, len(EntryUID("https://example.com/a", "Title")))
	assert.Equal(t, EntryUID("l", "t"), EntryUID("l", "t"))
	assert.NotEqual(t, EntryUID("l", "t"), EntryUID("l", "t2"))
	// plain concatenation: ("ab","c") and ("a","bc") collide
	assert.Equal(t, EntryUID("ab", "c"), EntryUID("a", "bc"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "", truncateRunes("abc", 0))
	assert.Equal(t, "a b c", normalizeWhitespace("  a\n\tb   c "))
}

package pipeline

import "sort"

// Dedupe drops entries whose UID was already seen. The first occurrence in
// input order is kept.
func Dedupe(entries []FeedEntry) []FeedEntry {
	seen := map[string]bool{}
	out := make([]FeedEntry, 0, len(entries))
	for _, e := range entries {
		if seen[e.UID] {
			continue
		}
		seen[e.UID] = true
		out = append(out, e)
	}
	return out
}

// Rank dedupes entries and orders them by Published, newest first. Missing
// dates compare as "" and therefore land at the end. The sort is stable, so
// ties keep their dedup order.
func Rank(entries []FeedEntry) []FeedEntry {
	out := Dedupe(entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedOrEmpty() > out[j].PublishedOrEmpty()
	})
	return out
}

// TopN returns at most n leading entries.
func TopN(ranked []FeedEntry, n int) []FeedEntry {
	if n < 0 {
		n = 0
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

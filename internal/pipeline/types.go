// =============================================================================
// types.go - data structures
// =============================================================================
//
// Types shared by every stage of the news pipeline.
//
// 【Types defined here】
//   - FeedSource:    one configured RSS/Atom feed
//   - FeedEntry:     one normalized feed item (pre-dedup, never persisted)
//   - SummaryResult: one finalized output record (persisted as a JSONL line)
//
// =============================================================================
package pipeline

// -----------------------------------------------------------------------------
// FeedSource - configured feed
// -----------------------------------------------------------------------------
//
// Name is only used for logging and the /rss/list endpoint; URL is what gets
// fetched and what ends up in FeedEntry.Source.
type FeedSource struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// -----------------------------------------------------------------------------
// FeedEntry - normalized feed item
// -----------------------------------------------------------------------------
//
// 【Fields】
//   UID:       sha1(link + title), hex encoded. Assigned once by the fetcher.
//   Title:     trimmed item title
//   Summary:   trimmed feed-provided description (may be empty)
//   Link:      item link, or its GUID when the link is missing
//   Published: RFC3339 timestamp, the raw feed string when unparsable,
//              nil when the item carries no date at all
//   Source:    URL of the feed the item came from
//
// Two entries with the same (Link, Title) share a UID regardless of Source.
type FeedEntry struct {
	UID       string  `json:"uid"`
	Title     string  `json:"title"`
	Summary   string  `json:"summary"`
	Link      string  `json:"link"`
	Published *string `json:"published"`
	Source    string  `json:"_source"`
}

// PublishedOrEmpty returns Published, treating nil as "".
func (e FeedEntry) PublishedOrEmpty() string {
	if e.Published == nil {
		return ""
	}
	return *e.Published
}

// -----------------------------------------------------------------------------
// SummaryResult - output record
// -----------------------------------------------------------------------------
//
// Summary is never empty: a failed fetch or summarization is written in-band
// as an "ERROR ..." string so one run always yields one record per candidate.
type SummaryResult struct {
	Title     string  `json:"title"`
	Link      string  `json:"link"`
	Published *string `json:"published"`
	Summary   string  `json:"summary"`
}

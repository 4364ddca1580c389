// =============================================================================
// feeds.go - RSS/Atom feed collection
// =============================================================================
//
// Fetches every configured feed with the shared HTTP client, parses it with
// gofeed and normalizes each item into a FeedEntry.
//
// 【Normalization】
//   link      = item.Link, else item.GUID, else ""
//   title     = trimmed item.Title
//   summary   = trimmed item.Description (RSS description / Atom summary)
//   published = first present of published (RSS pubDate) and updated,
//               RFC3339 when gofeed could parse it, raw string otherwise,
//               nil when neither is present
//   uid       = sha1(link + title)
//
// 【Failure handling】
//   A feed that cannot be fetched or parsed is logged and skipped. The other
//   feeds are still collected.
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

// FeedFetcher collects entries from RSS/Atom sources.
type FeedFetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter // spaces out consecutive feed requests
	logger    *log.Logger
}

// NewFeedFetcher builds a fetcher. pause is the minimum gap between two feed
// requests; zero disables pacing.
func NewFeedFetcher(client *http.Client, userAgent string, pause time.Duration, logger *log.Logger) *FeedFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &FeedFetcher{
		client:    client,
		userAgent: userAgent,
		limiter:   newPacer(pause),
		logger:    logger,
	}
}

// FetchAll fetches sources in order and returns the flattened entries.
// No cross-feed dedup happens here.
func (f *FeedFetcher) FetchAll(ctx context.Context, sources []FeedSource) []FeedEntry {
	var all []FeedEntry
	for _, src := range sources {
		if err := f.limiter.Wait(ctx); err != nil {
			f.logger.Warn("fetch_rss.cancelled", "feed", src.URL, "err", err)
			break
		}

		f.logger.Info("fetch_rss.start", "feed", src.URL)
		entries, err := f.Fetch(ctx, src)
		if err != nil {
			f.logger.Error("fetch_rss.error", "feed", src.URL, "err", err)
			continue
		}
		f.logger.Info("fetch_rss.done", "feed", src.URL, "entries", len(entries))
		all = append(all, entries...)
	}
	return all
}

// Fetch retrieves and normalizes a single feed.
func (f *FeedFetcher) Fetch(ctx context.Context, src FeedSource) ([]FeedEntry, error) {
	feed, err := f.fetchRSSFeed(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	out := make([]FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		out = append(out, normalizeItem(item, src.URL))
	}
	return out, nil
}

// fetchRSSFeed downloads feedURL and parses it with gofeed.
func (f *FeedFetcher) fetchRSSFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: feedURL}
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("RSS parse failed: %w", err)
	}
	return feed, nil
}

// normalizeItem converts a gofeed item into a FeedEntry.
func normalizeItem(item *gofeed.Item, source string) FeedEntry {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)

	return FeedEntry{
		UID:       EntryUID(link, title),
		Title:     title,
		Summary:   strings.TrimSpace(item.Description),
		Link:      link,
		Published: publishedValue(item),
		Source:    source,
	}
}

// publishedValue picks the first date field the item carries. Only the first
// present field is considered; a later field is not tried when the first one
// fails to parse.
func publishedValue(item *gofeed.Item) *string {
	switch {
	case strings.TrimSpace(item.Published) != "":
		return formatFeedDate(item.Published, item.PublishedParsed)
	case strings.TrimSpace(item.Updated) != "":
		return formatFeedDate(item.Updated, item.UpdatedParsed)
	}
	return nil
}

func formatFeedDate(raw string, parsed *time.Time) *string {
	if parsed != nil {
		return strPtr(parsed.Format(time.RFC3339))
	}
	return strPtr(strings.TrimSpace(raw))
}

// newPacer returns a limiter that lets one call through immediately and then
// one per pause.
func newPacer(pause time.Duration) *rate.Limiter {
	if pause <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(pause), 1)
}

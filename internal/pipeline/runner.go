// =============================================================================
// runner.go - end-to-end pipeline run
// =============================================================================
//
// 【Run stages】
//
//   collecting -> ranking -> enriching -> persisting -> done
//                               |
//                               +-- per candidate:
//                                   fetch-body -> summarize -> accumulate
//
// 【Guarantees】
//   - exactly min(topN, ranked) results, in rank order
//   - a candidate whose body download fails is summarized from its feed
//     summary instead; a failed summarization is kept as an error string
//   - the sink receives the full result slice exactly once per run
//   - no retries at this level; the Retrier inside the extractor and the
//     summarizer is the only retry policy
//
// 【Pacing】
//   Summarization calls never overlap, even with Concurrency > 1, and at
//   least CandidatePause of idle time separates the end of one call from the
//   start of the next. Concurrency only parallelizes body downloads.
//
// =============================================================================
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoFeeds is returned when a run is started without any feed source.
var ErrNoFeeds = errors.New("no feed sources configured")

// EntryCollector fetches raw entries for a list of sources.
type EntryCollector interface {
	FetchAll(ctx context.Context, sources []FeedSource) []FeedEntry
}

// BodyExtractor returns article text, "" when unavailable.
type BodyExtractor interface {
	Extract(ctx context.Context, url string) string
}

// ArticleSummarizer returns summary text or an in-band error string.
type ArticleSummarizer interface {
	Summarize(ctx context.Context, title, url, body string) string
}

// ResultSink persists one run's results. A false return is logged by the
// runner and never aborts the run.
type ResultSink interface {
	Upload(ctx context.Context, results []SummaryResult, runID string) bool
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Feeds      []FeedSource
	Collector  EntryCollector
	Extractor  BodyExtractor
	Summarizer ArticleSummarizer
	Sink       ResultSink
	Logger     *log.Logger

	// CandidatePause is the minimum idle gap between two summarization
	// calls. Zero disables pacing.
	CandidatePause time.Duration

	// Concurrency bounds parallel enrichment. Values below 2 run candidates
	// one at a time.
	Concurrency int

	// NewRunID overrides run id generation (tests).
	NewRunID func() string
}

// Runner executes pipeline runs. It holds no per-run state, so RunOnce may
// be called repeatedly.
type Runner struct {
	feeds       []FeedSource
	collector   EntryCollector
	extractor   BodyExtractor
	summarizer  ArticleSummarizer
	sink        ResultSink
	logger      *log.Logger
	gate        *callGate
	concurrency int
	newRunID    func() string
}

// NewRunner validates deps and returns a Runner.
func NewRunner(d Deps) (*Runner, error) {
	switch {
	case d.Collector == nil:
		return nil, fmt.Errorf("runner: collector is required")
	case d.Extractor == nil:
		return nil, fmt.Errorf("runner: extractor is required")
	case d.Summarizer == nil:
		return nil, fmt.Errorf("runner: summarizer is required")
	case d.Sink == nil:
		return nil, fmt.Errorf("runner: sink is required")
	}
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	if d.NewRunID == nil {
		d.NewRunID = NewRunID
	}
	return &Runner{
		feeds:       append([]FeedSource(nil), d.Feeds...),
		collector:   d.Collector,
		extractor:   d.Extractor,
		summarizer:  d.Summarizer,
		sink:        d.Sink,
		logger:      d.Logger,
		gate:        &callGate{pause: d.CandidatePause},
		concurrency: d.Concurrency,
		newRunID:    d.NewRunID,
	}, nil
}

// Feeds returns a copy of the configured sources.
func (r *Runner) Feeds() []FeedSource {
	return append([]FeedSource(nil), r.feeds...)
}

// RunOnce performs one full run and returns its results in rank order.
//
// Only run-level failures are returned: topN < 1, no feeds configured, or a
// cancelled context. Per-feed and per-candidate failures degrade the output
// instead.
func (r *Runner) RunOnce(ctx context.Context, topN int) ([]SummaryResult, error) {
	if topN < 1 {
		return nil, fmt.Errorf("top_n must be positive, got %d", topN)
	}
	if len(r.feeds) == 0 {
		return nil, ErrNoFeeds
	}

	r.logger.Info("run_once.start", "top_n", topN, "feeds", len(r.feeds))

	// collecting
	entries := r.collector.FetchAll(ctx, r.feeds)

	// ranking
	ranked := Rank(entries)
	top := TopN(ranked, topN)
	r.logger.Info("run_once.ranked", "raw", len(entries), "unique", len(ranked), "selected", len(top))

	// enriching
	results := r.enrich(ctx, top)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}
	r.logger.Info("run_once.done", "n_results", len(results))

	// persisting
	runID := r.newRunID()
	if !r.sink.Upload(ctx, results, runID) {
		r.logger.Error("run_once.persist_failed", "run_id", runID, "n_results", len(results))
	}
	return results, nil
}

// enrich fills one result slot per candidate. Slots are pre-indexed, so
// ordering holds regardless of concurrency.
func (r *Runner) enrich(ctx context.Context, top []FeedEntry) []SummaryResult {
	results := make([]SummaryResult, len(top))

	var g errgroup.Group
	if r.concurrency > 1 {
		g.SetLimit(r.concurrency)
	} else {
		g.SetLimit(1)
	}

	for i, e := range top {
		if err := ctx.Err(); err != nil {
			// Cancelled: remaining slots still get a record.
			for j := i; j < len(top); j++ {
				results[j] = errorResult(top[j], "ERROR: run cancelled")
			}
			break
		}
		i, e := i, e
		g.Go(func() error {
			results[i] = r.processCandidate(ctx, e)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// processCandidate runs fetch-body and summarize for one entry. A panic in a
// collaborator is contained to this candidate.
func (r *Runner) processCandidate(ctx context.Context, e FeedEntry) (res SummaryResult) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("summarize.panic", "uid", e.UID, "panic", fmt.Sprint(p))
			res = errorResult(e, ErrSummaryRequest)
		}
	}()

	r.logger.Info("summarize.start", "uid", e.UID, "title", truncateRunes(e.Title, 80), "link", e.Link)

	body := r.extractor.Extract(ctx, e.Link)
	if body == "" {
		body = e.Summary
	}
	var summary string
	if err := r.gate.Do(ctx, func() {
		summary = r.summarizer.Summarize(ctx, e.Title, e.Link, body)
	}); err != nil {
		return errorResult(e, "ERROR: run cancelled")
	}
	if strings.TrimSpace(summary) == "" {
		summary = ErrSummaryRequest
	}

	r.logger.Info("summarize.done", "uid", e.UID, "summary_len", len(summary))
	return SummaryResult{
		Title:     e.Title,
		Link:      e.Link,
		Published: e.Published,
		Summary:   summary,
	}
}

// callGate serializes calls and keeps at least pause of idle time between
// the end of one call and the start of the next.
type callGate struct {
	mu    sync.Mutex
	pause time.Duration
	last  time.Time // end of the previous call
}

// Do waits for the gate, then runs call. It returns ctx's error without
// running call when cancelled while waiting.
func (g *callGate) Do(ctx context.Context, call func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pause > 0 && !g.last.IsZero() {
		if wait := g.pause - time.Since(g.last); wait > 0 {
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}
	}
	defer func() { g.last = time.Now() }()
	call()
	return nil
}

func errorResult(e FeedEntry, msg string) SummaryResult {
	return SummaryResult{Title: e.Title, Link: e.Link, Published: e.Published, Summary: msg}
}

// NewRunID returns a fresh 32 character hex token.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

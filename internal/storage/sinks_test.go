package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/jomei/notionapi"

	"finnews-relay/internal/logging"
	"finnews-relay/internal/pipeline"
)

func TestFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "scraped_summaries.jsonl")
	sink := NewFileSink(path, logging.Discard())

	assert.Equal(t, true, sink.Upload(context.Background(), sampleResults(), "r1"))
	assert.Equal(t, true, sink.Upload(context.Background(), sampleResults()[:1], "r2"))

	f, err := os.Open(path)
	assert.Equal(t, err, nil)
	defer f.Close()

	got, err := DecodeJSONL(f, nil)
	assert.Equal(t, err, nil)
	assert.Equal(t, 3, len(got))
}

type stubSink struct {
	ok    bool
	calls int
}

func (s *stubSink) Upload(ctx context.Context, results []pipeline.SummaryResult, runID string) bool {
	s.calls++
	return s.ok
}

func TestMultiSink(t *testing.T) {
	a, b := &stubSink{ok: false}, &stubSink{ok: true}
	m := MultiSink{a, b}

	assert.Equal(t, false, m.Upload(context.Background(), nil, "r"))
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	a.ok = true
	assert.Equal(t, true, m.Upload(context.Background(), nil, "r"))
	assert.Equal(t, false, MultiSink{}.Upload(context.Background(), nil, "r"))
}

type fakePages struct {
	reqs []*notionapi.PageCreateRequest
	fail map[string]bool
}

func (f *fakePages) Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.reqs = append(f.reqs, req)
	title := req.Properties["Title"].(notionapi.TitleProperty).Title[0].Text.Content
	if f.fail[title] {
		return nil, errors.New("validation_error")
	}
	return &notionapi.Page{}, nil
}

func TestNotionSink(t *testing.T) {
	pages := &fakePages{fail: map[string]bool{}}
	sink := newNotionSink(pages, "db123", logging.Discard())

	assert.Equal(t, true, sink.Upload(context.Background(), sampleResults(), "run1"))
	assert.Equal(t, 2, len(pages.reqs))

	first := pages.reqs[0]
	assert.Equal(t, notionapi.DatabaseID("db123"), first.Parent.DatabaseID)
	assert.Equal(t, "https://x/1", first.Properties["URL"].(notionapi.URLProperty).URL)
	_, hasPublished := pages.reqs[1].Properties["Published"]
	assert.Equal(t, false, hasPublished)

	pages.fail["Fed holds"] = true
	assert.Equal(t, false, sink.Upload(context.Background(), sampleResults(), "run2"))
	assert.Equal(t, 4, len(pages.reqs))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "abc", truncateText("abc", 5))
	assert.Equal(t, "ab...", truncateText("abcdefgh", 5))
	assert.Equal(t, "日本...", truncateText("日本語テキスト", 5))
}

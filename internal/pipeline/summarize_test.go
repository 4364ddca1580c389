package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-playground/assert/v2"

	"finnews-relay/internal/logging"
)

type staticKey string

func (k staticKey) APIKey(ctx context.Context) (string, error) { return string(k), nil }

type failingKey struct{}

func (failingKey) APIKey(ctx context.Context) (string, error) { return "", errors.New("denied") }

// fakeOpenAI answers with the scripted status codes in order, then 200.
type fakeOpenAI struct {
	statuses []int
	content  string
	calls    atomic.Int32
	last     atomic.Value // chatRequest
	auth     atomic.Value // string
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(f.calls.Add(1))
	f.auth.Store(r.Header.Get("Authorization"))

	b, _ := io.ReadAll(r.Body)
	var req chatRequest
	_ = json.Unmarshal(b, &req)
	f.last.Store(req)

	if n <= len(f.statuses) {
		w.WriteHeader(f.statuses[n-1])
		fmt.Fprintf(w, `{"error":{"message":"status %d"}}`, f.statuses[n-1])
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if f.content == "" {
		fmt.Fprint(w, `{"id": "x", "choices": []}`)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": f.content}}},
	})
}

func newTestSummarizer(url string, creds CredentialProvider) *Summarizer {
	return NewSummarizer(http.DefaultClient, newTestRetrier(nil), creds, SummarizerConfig{
		Endpoint:    url,
		Temperature: 0.2,
	}, logging.Discard())
}

const goodSummary = "Summary: The Fed held rates.\nTopics: rates, fed, inflation\nTickers: SPY"

func TestSummarizeSuccess(t *testing.T) {
	api := &fakeOpenAI{content: goodSummary}
	srv := httptest.NewServer(api)
	defer srv.Close()

	body := strings.Repeat("x", 7000)
	got := newTestSummarizer(srv.URL, staticKey("sk-test")).Summarize(context.Background(), "Fed holds", "https://x/fed", body)
	assert.Equal(t, goodSummary, got)
	assert.Equal(t, "Bearer sk-test", api.auth.Load())

	req := api.last.Load().(chatRequest)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, 800, req.MaxTokens)
	assert.Equal(t, 2, len(req.Messages))
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, true, strings.Contains(req.Messages[1].Content, "Title: Fed holds\nURL: https://x/fed"))
	// body capped at 6000 characters
	assert.Equal(t, true, strings.HasSuffix(req.Messages[1].Content, "\n"+strings.Repeat("x", 6000)))
}

func TestSummarizeWithoutCredential(t *testing.T) {
	api := &fakeOpenAI{content: goodSummary}
	srv := httptest.NewServer(api)
	defer srv.Close()

	for _, creds := range []CredentialProvider{nil, staticKey(""), staticKey("   "), failingKey{}} {
		got := newTestSummarizer(srv.URL, creds).Summarize(context.Background(), "t", "u", "b")
		assert.Equal(t, ErrMissingAPIKey, got)
	}
	assert.Equal(t, int32(0), api.calls.Load())
}

func TestSummarizeRetriesRateLimit(t *testing.T) {
	api := &fakeOpenAI{statuses: []int{429, 500}, content: goodSummary}
	srv := httptest.NewServer(api)
	defer srv.Close()

	got := newTestSummarizer(srv.URL, staticKey("k")).Summarize(context.Background(), "t", "u", "b")
	assert.Equal(t, goodSummary, got)
	assert.Equal(t, int32(3), api.calls.Load())
}

func TestSummarizeTerminalStatus(t *testing.T) {
	tests := []struct {
		status int
		calls  int32
	}{
		{400, 1},
		{401, 1},
		{408, 1},
		{503, 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			api := &fakeOpenAI{statuses: []int{tt.status, tt.status, tt.status, tt.status}}
			srv := httptest.NewServer(api)
			defer srv.Close()

			got := newTestSummarizer(srv.URL, staticKey("k")).Summarize(context.Background(), "t", "u", "b")
			assert.Equal(t, fmt.Sprintf(`ERROR HTTP %d: {"error":{"message":"status %d"}}`, tt.status, tt.status), got)
			assert.Equal(t, tt.calls, api.calls.Load())
		})
	}
}

func TestSummarizeRawFallback(t *testing.T) {
	srv := httptest.NewServer(&fakeOpenAI{})
	defer srv.Close()

	got := newTestSummarizer(srv.URL, staticKey("k")).Summarize(context.Background(), "t", "u", "b")
	assert.Equal(t, `(raw response)`+"\n"+`{"id":"x","choices":[]}`, got)
}

func TestSummarizeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	got := newTestSummarizer(url, staticKey("k")).Summarize(context.Background(), "t", "u", "b")
	assert.Equal(t, ErrSummaryRequest, got)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("Title", "https://x", "body")
	assert.Equal(t, true, strings.Contains(p, "Summary: ...\nTopics: a, b, c\nTickers: ...\n"))
	assert.Equal(t, true, strings.HasSuffix(p, "Title: Title\nURL: https://x\n\nBody:\nbody"))
}

package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestParseFeeds(t *testing.T) {
	feeds, err := ParseFeeds([]byte(`
feeds:
  - name: cnbc
    url: " https://www.cnbc.com/rss "
  - url: https://example.com/feed.xml
`))
	assert.Equal(t, err, nil)
	assert.Equal(t, []FeedSource{
		{Name: "cnbc", URL: "https://www.cnbc.com/rss"},
		{Name: "https://example.com/feed.xml", URL: "https://example.com/feed.xml"},
	}, feeds)

	_, err = ParseFeeds([]byte("feeds: []\n"))
	assert.Equal(t, true, errors.Is(err, ErrNoFeeds))

	_, err = ParseFeeds([]byte("feeds: [oops"))
	assert.NotEqual(t, err, nil)
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"FEEDS_FILE", "FEED_PAUSE", "CANDIDATE_PAUSE", "TOP_N", "CONCURRENCY", "API_PORT", "BUCKET", "PREFIX"} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfig()
	assert.Equal(t, err, nil)
	assert.Equal(t, 3, len(cfg.Feeds.Sources))
	assert.Equal(t, 200*time.Millisecond, cfg.Feeds.Pause)
	assert.Equal(t, 300*time.Millisecond, cfg.Summarize.Pause)
	assert.Equal(t, 5, cfg.TopN)
	assert.Equal(t, "news/", cfg.Storage.Prefix)
	assert.Equal(t, "gpt-4o-mini", cfg.Summarize.Model)
	assert.Equal(t, 800, cfg.Summarize.MaxTokens)
}

func TestLoadConfigFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	if err := os.WriteFile(path, []byte("feeds:\n  - name: one\n    url: https://one.example/rss\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FEEDS_FILE", path)
	t.Setenv("FEED_PAUSE", "0")
	t.Setenv("CANDIDATE_PAUSE", "1.5")
	t.Setenv("TOP_N", "8")
	t.Setenv("CONCURRENCY", "2")
	t.Setenv("BUCKET", "my-bucket")
	t.Setenv("PREFIX", "finance/")
	t.Setenv("API_PORT", "9000")

	cfg, err := LoadConfig()
	assert.Equal(t, err, nil)
	assert.Equal(t, []FeedSource{{Name: "one", URL: "https://one.example/rss"}}, cfg.Feeds.Sources)
	assert.Equal(t, time.Duration(0), cfg.Feeds.Pause)
	assert.Equal(t, 1500*time.Millisecond, cfg.Summarize.Pause)
	assert.Equal(t, 8, cfg.TopN)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "my-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "finance/", cfg.Storage.Prefix)
	assert.Equal(t, "0.0.0.0:9000", cfg.API.Addr())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"TOP_N":       "0",
		"CONCURRENCY": "many",
		"FEED_PAUSE":  "soon",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv("FEEDS_FILE", "")
			t.Setenv(key, val)
			_, err := LoadConfig()
			assert.NotEqual(t, err, nil)
		})
	}
}

func TestEmailConfigEnabled(t *testing.T) {
	assert.Equal(t, false, EmailConfig{From: "a@x"}.Enabled())
	assert.Equal(t, true, EmailConfig{From: "a@x", Password: "p", To: "b@x"}.Enabled())
}

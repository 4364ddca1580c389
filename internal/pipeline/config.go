// =============================================================================
// config.go - pipeline configuration
// =============================================================================
//
// Configuration is read from the environment (after godotenv has loaded an
// optional .env file). CLI flags in cmd/newsrelay override individual fields.
//
// 【Config groups】
//   - FeedsConfig:     feed list and pacing between feeds
//   - FetchConfig:     article download settings
//   - SummarizeConfig: OpenAI request settings and pacing between candidates
//   - StorageConfig:   S3 bucket / prefix, local JSONL mirror, Notion mirror
//   - EmailConfig:     SMTP run report
//   - APIConfig:       HTTP query API
//
// =============================================================================
package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Config structs
// =============================================================================

// PipelineConfig holds every setting of the service.
type PipelineConfig struct {
	Feeds     FeedsConfig
	Fetch     FetchConfig
	Summarize SummarizeConfig
	Storage   StorageConfig
	Email     EmailConfig
	API       APIConfig

	// TopN is the default number of candidates per run.
	TopN int

	// Concurrency bounds parallel candidate enrichment (1 = sequential).
	Concurrency int
}

// FeedsConfig controls feed collection.
type FeedsConfig struct {
	// File is an optional YAML feed list; Sources is used when empty.
	File    string
	Sources []FeedSource

	// Pause is the gap between two feed requests.
	Pause time.Duration

	UserAgent string
	Timeout   time.Duration
}

// FetchConfig controls article downloads.
type FetchConfig struct {
	UserAgent string
	Timeout   time.Duration
	MinChars  int
	MaxChars  int
}

// SummarizeConfig controls the OpenAI requests.
type SummarizeConfig struct {
	Endpoint    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// SecretName is the Secrets Manager id holding OPENAI_API_KEY. When
	// empty the OPENAI_API_KEY environment variable is used.
	SecretName string

	// Pause is the idle gap between two summarization calls.
	Pause time.Duration
}

// StorageConfig controls where run output goes.
type StorageConfig struct {
	Bucket string
	Prefix string
	Region string

	// LocalFile mirrors every run into a local JSONL file when set.
	LocalFile string

	// NotionToken / NotionDatabaseID mirror results into Notion when both set.
	NotionToken      string
	NotionDatabaseID string
}

// EmailConfig holds SMTP settings for the run report.
type EmailConfig struct {
	From     string
	Password string
	To       string
}

// Enabled reports whether all SMTP settings are present.
func (c EmailConfig) Enabled() bool {
	return c.From != "" && c.Password != "" && c.To != ""
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	Host string
	Port int

	// SecretName is the Secrets Manager id holding NEWSCRAPPER-API-KEY.
	SecretName string
}

// Addr returns host:port.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultFeeds is the built-in list of financial market feeds.
var DefaultFeeds = []FeedSource{
	{Name: "cnbc", URL: "https://www.cnbc.com/id/100003114/device/rss/rss.html"},
	{Name: "reuters", URL: "https://www.reuters.com/finance/markets/rss"},
	{Name: "bloomberg", URL: "https://feeds.bloomberg.com/markets/news.rss"},
}

// FeedUserAgent identifies the service to feed hosts.
const FeedUserAgent = "Mozilla/5.0 (compatible; finnews-relay/1.0)"

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *PipelineConfig {
	return &PipelineConfig{
		Feeds: FeedsConfig{
			Sources:   append([]FeedSource(nil), DefaultFeeds...),
			Pause:     200 * time.Millisecond,
			UserAgent: FeedUserAgent,
			Timeout:   30 * time.Second,
		},
		Fetch: FetchConfig{
			UserAgent: BrowserUserAgent,
			Timeout:   25 * time.Second,
			MinChars:  200,
			MaxChars:  8000,
		},
		Summarize: SummarizeConfig{
			Endpoint:    DefaultOpenAIURL,
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   800,
			Timeout:     40 * time.Second,
			Pause:       300 * time.Millisecond,
		},
		Storage: StorageConfig{
			Prefix: "news/",
			Region: "us-east-1",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		TopN:        5,
		Concurrency: 1,
	}
}

// =============================================================================
// Environment loading
// =============================================================================

// LoadConfig builds a PipelineConfig from defaults and environment variables.
//
// 【Environment variables】
//   FEEDS_FILE, FEED_PAUSE, CANDIDATE_PAUSE, TOP_N, CONCURRENCY
//   OPENAI_MODEL, OPENAI_URL, OPENAI_SECRET
//   BUCKET, PREFIX, AWS_REGION, LOCAL_RESULTS_FILE
//   NOTION_TOKEN, NOTION_DATABASE_ID
//   EMAIL_FROM, EMAIL_PASSWORD, EMAIL_TO
//   API_HOST, API_PORT, SECRET_NAME
func LoadConfig() (*PipelineConfig, error) {
	cfg := DefaultConfig()

	cfg.Feeds.File = os.Getenv("FEEDS_FILE")
	if cfg.Feeds.File != "" {
		feeds, err := LoadFeedsFile(cfg.Feeds.File)
		if err != nil {
			return nil, err
		}
		cfg.Feeds.Sources = feeds
	}

	var err error
	if cfg.Feeds.Pause, err = envDuration("FEED_PAUSE", cfg.Feeds.Pause); err != nil {
		return nil, err
	}
	if cfg.Summarize.Pause, err = envDuration("CANDIDATE_PAUSE", cfg.Summarize.Pause); err != nil {
		return nil, err
	}
	if cfg.TopN, err = envInt("TOP_N", cfg.TopN); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = envInt("CONCURRENCY", cfg.Concurrency); err != nil {
		return nil, err
	}
	if cfg.API.Port, err = envInt("API_PORT", cfg.API.Port); err != nil {
		return nil, err
	}

	cfg.Summarize.Model = envString("OPENAI_MODEL", cfg.Summarize.Model)
	cfg.Summarize.Endpoint = envString("OPENAI_URL", cfg.Summarize.Endpoint)
	cfg.Summarize.SecretName = os.Getenv("OPENAI_SECRET")

	cfg.Storage.Bucket = os.Getenv("BUCKET")
	cfg.Storage.Prefix = envString("PREFIX", cfg.Storage.Prefix)
	cfg.Storage.Region = envString("AWS_REGION", cfg.Storage.Region)
	cfg.Storage.LocalFile = os.Getenv("LOCAL_RESULTS_FILE")
	cfg.Storage.NotionToken = os.Getenv("NOTION_TOKEN")
	cfg.Storage.NotionDatabaseID = os.Getenv("NOTION_DATABASE_ID")

	cfg.Email = EmailConfig{
		From:     os.Getenv("EMAIL_FROM"),
		Password: os.Getenv("EMAIL_PASSWORD"),
		To:       os.Getenv("EMAIL_TO"),
	}

	cfg.API.Host = envString("API_HOST", cfg.API.Host)
	cfg.API.SecretName = os.Getenv("SECRET_NAME")

	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *PipelineConfig) Validate() error {
	if c.TopN < 1 {
		return fmt.Errorf("TOP_N must be positive, got %d", c.TopN)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("CONCURRENCY must be positive, got %d", c.Concurrency)
	}
	for i, f := range c.Feeds.Sources {
		if strings.TrimSpace(f.URL) == "" {
			return fmt.Errorf("feed %d (%q) has an empty url", i, f.Name)
		}
	}
	return nil
}

// feedsFile is the YAML layout of FEEDS_FILE.
//
//	feeds:
//	  - name: cnbc
//	    url: https://www.cnbc.com/id/100003114/device/rss/rss.html
type feedsFile struct {
	Feeds []FeedSource `yaml:"feeds"`
}

// LoadFeedsFile reads an ordered feed list from a YAML file.
func LoadFeedsFile(path string) ([]FeedSource, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}
	return ParseFeeds(b)
}

// ParseFeeds decodes the YAML feed list. Order is preserved.
func ParseFeeds(b []byte) ([]FeedSource, error) {
	var ff feedsFile
	if err := yaml.Unmarshal(b, &ff); err != nil {
		return nil, fmt.Errorf("parse feeds file: %w", err)
	}
	if len(ff.Feeds) == 0 {
		return nil, ErrNoFeeds
	}
	for i := range ff.Feeds {
		ff.Feeds[i].URL = strings.TrimSpace(ff.Feeds[i].URL)
		if ff.Feeds[i].Name == "" {
			ff.Feeds[i].Name = ff.Feeds[i].URL
		}
	}
	return ff.Feeds, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// envDuration accepts Go durations ("300ms") and plain seconds ("0.3").
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

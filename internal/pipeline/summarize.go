// =============================================================================
// summarize.go - OpenAI chat completions summarizer
// =============================================================================
//
// Builds a fixed-format prompt for one article and asks the chat completions
// API for a three line answer:
//
//	Summary: <2-3 sentences>
//	Topics: a, b, c
//	Tickers: <comma separated, empty when none apply>
//
// 【Failure handling】
//   Summarize never returns an error. Every failure becomes an in-band string
//   so the run keeps one record per candidate:
//
//     no credential      -> "ERROR: missing OPENAI_API_KEY" (no request made)
//     HTTP error status  -> "ERROR HTTP <status>: <first 400 bytes of body>"
//     anything else      -> "ERROR: summarization request failed"
//
//   429 and 5xx are retried through the shared Retrier; every other non-2xx
//   status is terminal.
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultOpenAIURL is the chat completions endpoint.
const DefaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// Fixed in-band error strings.
const (
	ErrMissingAPIKey  = "ERROR: missing OPENAI_API_KEY"
	ErrSummaryRequest = "ERROR: summarization request failed"
)

const systemPrompt = "You are a financial news analyst. Be concise and factual."

// maxPromptBodyChars caps the article body embedded in the prompt.
const maxPromptBodyChars = 6000

// CredentialProvider supplies the summarization API key. An empty key with a
// nil error means no credential is configured.
type CredentialProvider interface {
	APIKey(ctx context.Context) (string, error)
}

// SummarizerConfig holds the request parameters.
type SummarizerConfig struct {
	Endpoint    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // per attempt
}

// Summarizer produces SummaryResult.Summary text for one article.
type Summarizer struct {
	cfg     SummarizerConfig
	creds   CredentialProvider
	client  *http.Client
	retrier *Retrier
	logger  *log.Logger
}

// NewSummarizer fills config defaults and returns a Summarizer.
func NewSummarizer(client *http.Client, retrier *Retrier, creds CredentialProvider, cfg SummarizerConfig, logger *log.Logger) *Summarizer {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOpenAIURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 40 * time.Second
	}
	return &Summarizer{cfg: cfg, creds: creds, client: client, retrier: retrier, logger: logger}
}

// chatRequest / chatResponse mirror the subset of the API we use.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// BuildPrompt renders the user prompt for one article.
func BuildPrompt(title, url, body string) string {
	return "Summarize in 2-3 sentences, list exactly 3 topics and the stock tickers that apply. Use EXACTLY this format:\n" +
		"Summary: ...\n" +
		"Topics: a, b, c\n" +
		"Tickers: ...\n\n" +
		fmt.Sprintf("Title: %s\nURL: %s\n\nBody:\n%s", title, url, truncateRunes(body, maxPromptBodyChars))
}

// Summarize returns the model's three line summary or an in-band error string.
func (s *Summarizer) Summarize(ctx context.Context, title, url, body string) string {
	key := s.apiKey(ctx)
	if key == "" {
		s.logger.Error("openai.missing_api_key")
		return ErrMissingAPIKey
	}

	payload, err := json.Marshal(chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(title, url, body)},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		s.logger.Error("openai.error", "title", truncateRunes(title, 80), "err", err)
		return ErrSummaryRequest
	}

	start := time.Now()
	var raw []byte
	err = s.retrier.Do(ctx, "openai.post", func(ctx context.Context) error {
		b, err := s.post(ctx, key, payload)
		if err != nil {
			return err
		}
		raw = b
		return nil
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			s.logger.Error("openai.http_error", "status", se.StatusCode, "title", truncateRunes(title, 80))
			return fmt.Sprintf("ERROR HTTP %d: %s", se.StatusCode, se.Body)
		}
		s.logger.Error("openai.error", "title", truncateRunes(title, 80), "err", err)
		return ErrSummaryRequest
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		s.logger.Error("openai.error", "title", truncateRunes(title, 80), "err", err)
		return ErrSummaryRequest
	}

	text := ""
	if len(parsed.Choices) > 0 && parsed.Choices[0].Message != nil {
		text = parsed.Choices[0].Message.Content
	}
	s.logger.Info("openai.ok", "latency_s", time.Since(start).Seconds(), "title", truncateRunes(title, 80))

	if strings.TrimSpace(text) == "" {
		// Best-effort debug output, not a summary.
		return "(raw response)\n" + compactJSON(raw)
	}
	return text
}

// post sends one request with a fresh timeout. 429 and 5xx come back as
// retriable StatusErrors, other non-2xx statuses as permanent ones.
func (s *Summarizer) post(ctx context.Context, key string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{StatusCode: resp.StatusCode, Body: truncateBytes(b, 400), URL: s.cfg.Endpoint}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, se
		}
		return nil, Permanent(se)
	}
	return b, nil
}

func (s *Summarizer) apiKey(ctx context.Context) string {
	if s.creds == nil {
		return ""
	}
	key, err := s.creds.APIKey(ctx)
	if err != nil {
		s.logger.Warn("openai.credential_error", "err", err)
		return ""
	}
	return strings.TrimSpace(key)
}

func compactJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

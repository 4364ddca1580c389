// =============================================================================
// article.go - article body extraction
// =============================================================================
//
// Downloads an article page and pulls out its readable text.
//
// 【Selector priority】
//   1. article
//   2. main
//   3. div#main-content
//   4. div.article__content
//   5. div#content
//
// The first selector whose first match yields at least MinChars characters of
// whitespace-collapsed text wins. When none qualifies the whole page text is
// used instead; that branch is best-effort and may include navigation and
// footer noise.
//
// HTML bodies are decoded to UTF-8 from their declared charset before
// parsing.
//
// PDF responses (press releases, filings) are decoded with ledongthuc/pdf and
// go through the same collapse/truncate path.
//
// 【Failure handling】
//   Download failures and parse failures both return "". Callers treat an
//   empty string as "no body available".
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// BrowserUserAgent is sent with article downloads; several publishers reject
// obvious bot agents.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// contentSelectors is the fixed priority order of main-content containers.
var contentSelectors = []string{
	"article",
	"main",
	"div#main-content",
	"div.article__content",
	"div#content",
}

// maxArticleBytes bounds how much of a response body is read.
const maxArticleBytes = 10 << 20

// ArticleExtractor downloads pages and extracts their main text.
type ArticleExtractor struct {
	client    *http.Client
	retrier   *Retrier
	userAgent string
	timeout   time.Duration // per attempt
	minChars  int
	maxChars  int
	logger    *log.Logger
}

// ExtractorConfig tunes an ArticleExtractor. Zero values take defaults.
type ExtractorConfig struct {
	UserAgent string
	Timeout   time.Duration
	MinChars  int
	MaxChars  int
}

// NewArticleExtractor wires an extractor to the shared client and retrier.
func NewArticleExtractor(client *http.Client, retrier *Retrier, cfg ExtractorConfig, logger *log.Logger) *ArticleExtractor {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = BrowserUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = 200
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 8000
	}
	return &ArticleExtractor{
		client:    client,
		retrier:   retrier,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		minChars:  cfg.MinChars,
		maxChars:  cfg.MaxChars,
		logger:    logger,
	}
}

// Extract returns the article text at url, or "" when nothing usable could
// be retrieved.
func (a *ArticleExtractor) Extract(ctx context.Context, url string) string {
	a.logger.Info("fetch_article.start", "url", url)

	var (
		body        []byte
		contentType string
	)
	err := a.retrier.Do(ctx, "requests.get", func(ctx context.Context) error {
		b, ct, err := a.download(ctx, url)
		if err != nil {
			return err
		}
		body, contentType = b, ct
		return nil
	})
	if err != nil {
		a.logger.Error("fetch_article.request_error", "url", url, "err", err)
		return ""
	}

	text, fallback, err := a.parse(body, contentType)
	if err != nil {
		a.logger.Error("fetch_article.parse_error", "url", url, "err", err)
		return ""
	}

	if fallback {
		a.logger.Info("fetch_article.done_fallback", "url", url, "chars", utf8.RuneCountInString(text))
	} else {
		a.logger.Info("fetch_article.done", "url", url, "chars", utf8.RuneCountInString(text))
	}
	return truncateRunes(text, a.maxChars)
}

// download performs one GET with its own timeout budget.
func (a *ArticleExtractor) download(ctx context.Context, url string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", Permanent(fmt.Errorf("request creation failed: %w", err))
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &StatusError{StatusCode: resp.StatusCode, Body: truncateBytes(b, 400), URL: url}
	}
	return b, resp.Header.Get("Content-Type"), nil
}

// parse turns a downloaded body into collapsed text. fallback is true when
// the whole-page branch was used.
func (a *ArticleExtractor) parse(body []byte, contentType string) (text string, fallback bool, err error) {
	defer func() {
		// ledongthuc/pdf and malformed markup can panic deep inside parsers.
		if r := recover(); r != nil {
			text, fallback, err = "", false, fmt.Errorf("parser panic: %v", r)
		}
	}()

	if isPDF(body, contentType) {
		t, err := extractPDFText(body)
		return t, false, err
	}

	doc, err := goquery.NewDocumentFromReader(decodeHTML(body, contentType))
	if err != nil {
		return "", false, fmt.Errorf("html parse failed: %w", err)
	}
	t, fallback := ExtractMainText(doc, a.minChars)
	return t, fallback, nil
}

// ExtractMainText applies contentSelectors to doc. The boolean result is true
// when no selector qualified and the whole page was used.
func ExtractMainText(doc *goquery.Document, minChars int) (string, bool) {
	for _, sel := range contentSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		txt := selectionText(node)
		if utf8.RuneCountInString(txt) >= minChars {
			return txt, false
		}
	}
	return selectionText(doc.Selection), true
}

// selectionText joins every text node under sel with spaces and collapses
// whitespace. goquery's Text() concatenates adjacent nodes without a
// separator ("<p>a</p><p>b</p>" -> "ab"), which glues sentences together.
func selectionText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return normalizeWhitespace(strings.Join(parts, " "))
}

func collectText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		if s := strings.TrimSpace(n.Data); s != "" {
			*parts = append(*parts, s)
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "template":
			return
		}
	case html.CommentNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// decodeHTML converts body to UTF-8 from its BOM or declared charset
// (Content-Type header first, then <meta>). Undeclared bodies that are not
// valid UTF-8 are read as windows-1252.
func decodeHTML(body []byte, contentType string) io.Reader {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return bytes.NewReader(body)
	}
	return r
}

func isPDF(body []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return bytes.HasPrefix(body, []byte("%PDF-"))
}

// extractPDFText pulls plain text from every page of a PDF document.
func extractPDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString(" ")
	}
	return normalizeWhitespace(sb.String()), nil
}

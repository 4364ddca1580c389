package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"finnews-relay/internal/pipeline"
	"finnews-relay/internal/storage"
)

// ResultReader reads persisted runs.
type ResultReader interface {
	ListDates(ctx context.Context) ([]string, error)
	LatestDate(ctx context.Context) (string, error)
	LatestKeyForDate(ctx context.Context, date string) (string, error)
	ReadJSONL(ctx context.Context, key string) ([]pipeline.SummaryResult, error)
}

// PipelineRunner triggers an on-demand run.
type PipelineRunner interface {
	RunOnce(ctx context.Context, topN int) ([]pipeline.SummaryResult, error)
	Feeds() []pipeline.FeedSource
}

// KeySource supplies the expected X-API-Key value. "" means no key is
// configured, and every protected request is rejected.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// DefaultTopN is used by POST /scrape/run when top_n is not given.
const DefaultTopN = 5

// Handler serves the query API.
type Handler struct {
	store  ResultReader
	runner PipelineRunner
	keys   KeySource
	logger *log.Logger
}

// NewHandler returns a Handler.
func NewHandler(store ResultReader, runner PipelineRunner, keys KeySource, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{store: store, runner: runner, keys: keys, logger: logger}
}

// RequireAPIKey rejects requests whose X-API-Key header does not match.
func (h *Handler) RequireAPIKey(c *gin.Context) {
	want, err := h.keys.APIKey(c.Request.Context())
	if err != nil {
		h.logger.Error("api.key_lookup_failed", "err", err)
	}
	got := c.GetHeader("X-API-Key")
	if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Detail: "Unauthorized"})
		return
	}
	c.Next()
}

func (h *Handler) GetRoot(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:  "ok",
		Message: "finnews-relay API running",
		Version: Version,
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) GetLatest(c *gin.Context) {
	ctx := c.Request.Context()

	date, err := h.store.LatestDate(ctx)
	if err != nil {
		h.storageError(c, err)
		return
	}
	if date == "" {
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: "No dates in storage"})
		return
	}
	h.writeDate(c, date)
}

func (h *Handler) GetByDate(c *gin.Context) {
	date := c.Param("fecha")
	if _, err := time.Parse(storage.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "Invalid date format (use YYYY-MM-DD)"})
		return
	}
	h.writeDate(c, date)
}

func (h *Handler) writeDate(c *gin.Context, date string) {
	ctx := c.Request.Context()

	key, err := h.store.LatestKeyForDate(ctx, date)
	if err != nil {
		h.storageError(c, err)
		return
	}
	if key == "" {
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: "No jsonl file for that date"})
		return
	}
	results, err := h.store.ReadJSONL(ctx, key)
	if err != nil {
		h.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, DateResponse{Date: date, Articles: results})
}

// GetHistory returns every date with the records of its latest run.
func (h *Handler) GetHistory(c *gin.Context) {
	ctx := c.Request.Context()

	dates, err := h.store.ListDates(ctx)
	if err != nil {
		h.storageError(c, err)
		return
	}

	history := map[string][]pipeline.SummaryResult{}
	for _, d := range dates {
		key, err := h.store.LatestKeyForDate(ctx, d)
		if err != nil {
			h.storageError(c, err)
			return
		}
		if key == "" {
			continue
		}
		results, err := h.store.ReadJSONL(ctx, key)
		if err != nil {
			h.storageError(c, err)
			return
		}
		history[d] = results
	}
	c.JSON(http.StatusOK, history)
}

// GetFeeds lists the configured feed URLs in order.
func (h *Handler) GetFeeds(c *gin.Context) {
	feeds := h.runner.Feeds()
	urls := make([]string, 0, len(feeds))
	for _, f := range feeds {
		urls = append(urls, f.URL)
	}
	c.JSON(http.StatusOK, urls)
}

// PostRun runs the pipeline synchronously and returns its results.
func (h *Handler) PostRun(c *gin.Context) {
	topN := DefaultTopN
	if v := c.Query("top_n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "top_n must be a positive integer"})
			return
		}
		topN = n
	}

	results, err := h.runner.RunOnce(c.Request.Context(), topN)
	if err != nil {
		h.logger.Error("api.run_failed", "err", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: err.Error()})
		return
	}
	c.JSON(http.StatusOK, RunResponse{Status: "ok", Processed: len(results), Results: results})
}

func (h *Handler) storageError(c *gin.Context, err error) {
	h.logger.Error("api.storage_error", "path", c.FullPath(), "err", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Storage error"})
}

// =============================================================================
// Lambda: send-report
// =============================================================================
//
// Reads the latest persisted run from S3 and mails it. Scheduled separately
// from run-pipeline so a report can be re-sent without a new run.
//
// Environment:
//   - BUCKET, PREFIX:    where runs are stored (required)
//   - EMAIL_FROM:        sender address (required)
//   - EMAIL_PASSWORD:    Gmail app password (required)
//   - EMAIL_TO:          recipients, comma separated (required)
//
// Event (optional):
//   {"date": "2026-01-05"} sends that day's latest run instead of the newest.
//
// =============================================================================
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"finnews-relay/internal/app"
	"finnews-relay/internal/logging"
	"finnews-relay/internal/pipeline"
	"finnews-relay/internal/storage"
)

// Event selects the date to report.
type Event struct {
	Date string `json:"date"`
}

// Response is the Lambda result.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Fetched    int    `json:"fetched"`
	Sent       bool   `json:"sent"`
}

// Handler is the Lambda entry point.
func Handler(ctx context.Context, event Event) (Response, error) {
	logger := logging.Init()

	cfg, err := pipeline.LoadConfig()
	if err != nil {
		return Response{StatusCode: 400, Message: err.Error()}, err
	}
	if err := validateConfig(cfg); err != nil {
		return Response{StatusCode: 400, Message: err.Error()}, err
	}

	a, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		return Response{StatusCode: 500, Message: err.Error()}, err
	}

	date := event.Date
	if date == "" {
		if date, err = a.Store.LatestDate(ctx); err != nil {
			logger.Error("report.list_failed", "err", err)
			return Response{StatusCode: 500, Message: err.Error()}, err
		}
	} else if _, err := time.Parse(storage.DateLayout, date); err != nil {
		err = fmt.Errorf("invalid date %q (use YYYY-MM-DD)", date)
		return Response{StatusCode: 400, Message: err.Error()}, err
	}
	if date == "" {
		return Response{StatusCode: 200, Message: "No runs stored yet"}, nil
	}

	key, err := a.Store.LatestKeyForDate(ctx, date)
	if err != nil {
		return Response{StatusCode: 500, Message: err.Error()}, err
	}
	if key == "" {
		return Response{StatusCode: 404, Message: fmt.Sprintf("No run stored for %s", date)}, nil
	}

	results, err := a.Store.ReadJSONL(ctx, key)
	if err != nil {
		logger.Error("report.read_failed", "key", key, "err", err)
		return Response{StatusCode: 500, Message: err.Error()}, err
	}
	logger.Info("report.loaded", "key", key, "n_results", len(results))

	if len(results) == 0 {
		return Response{StatusCode: 200, Message: "Run is empty, nothing to send"}, nil
	}
	if err := a.Email.SendRunReport(ctx, results); err != nil {
		logger.Error("report.send_failed", "err", err)
		return Response{StatusCode: 500, Message: err.Error(), Fetched: len(results)}, err
	}

	return Response{
		StatusCode: 200,
		Message:    fmt.Sprintf("Sent %d articles from %s", len(results), key),
		Fetched:    len(results),
		Sent:       true,
	}, nil
}

func validateConfig(cfg *pipeline.PipelineConfig) error {
	if cfg.Storage.Bucket == "" {
		return fmt.Errorf("BUCKET is required")
	}
	if !cfg.Email.Enabled() {
		return fmt.Errorf("EMAIL_FROM, EMAIL_PASSWORD and EMAIL_TO are required")
	}
	return nil
}

func main() {
	lambda.Start(Handler)
}

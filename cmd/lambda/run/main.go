// =============================================================================
// Lambda: run-pipeline
// =============================================================================
//
// Runs one pipeline pass (feeds -> rank -> extract -> summarize -> S3) and
// optionally mails the run report. Triggered by an EventBridge schedule.
//
// Environment:
//   - BUCKET, PREFIX:      S3 destination (required for persistence)
//   - OPENAI_SECRET:       Secrets Manager id with OPENAI_API_KEY (or set OPENAI_API_KEY)
//   - TOP_N:               candidates per run (default: 5)
//   - FEEDS_FILE:          optional YAML feed list bundled with the function
//   - EMAIL_FROM, EMAIL_PASSWORD, EMAIL_TO: run report (optional)
//   - LOG_LEVEL, STAGE:    logging
//
// =============================================================================
package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"

	"finnews-relay/internal/app"
	"finnews-relay/internal/logging"
	"finnews-relay/internal/pipeline"
)

// Event is the optional scheduler payload. {"top_n": 10} overrides TOP_N.
type Event struct {
	TopN int `json:"top_n"`
}

// Response is the Lambda result.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Processed  int    `json:"processed"`
}

// Handler is the Lambda entry point.
func Handler(ctx context.Context, event Event) (Response, error) {
	logger := logging.Init()

	cfg, err := pipeline.LoadConfig()
	if err != nil {
		logger.Error("lambda.config_error", "err", err)
		return Response{StatusCode: 400, Message: err.Error()}, err
	}

	topN := cfg.TopN
	if event.TopN > 0 {
		topN = event.TopN
	}

	a, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("lambda.build_error", "err", err)
		return Response{StatusCode: 500, Message: err.Error()}, err
	}

	results, err := a.RunAndReport(ctx, topN)
	if err != nil {
		logger.Error("lambda.run_error", "err", err)
		return Response{StatusCode: 500, Message: err.Error()}, err
	}

	return Response{
		StatusCode: 200,
		Message:    fmt.Sprintf("Processed %d articles", len(results)),
		Processed:  len(results),
	}, nil
}

func main() {
	lambda.Start(Handler)
}

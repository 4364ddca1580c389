// =============================================================================
// app.go - component wiring
// =============================================================================
//
// Builds every long-lived component from a PipelineConfig. Entry points
// (CLI, Lambda) call Build once and use the returned App.
//
// 【Wiring】
//
//	http.Client ─┬─ FeedFetcher
//	             ├─ ArticleExtractor ─┐
//	             └─ Summarizer ───────┴─ Retrier (shared)
//	                     └─ secrets.Provider (OPENAI_API_KEY)
//
//	Runner ── MultiSink{ S3Sink, FileSink?, NotionSink? }
//	API    ── ResultStore (S3) + Runner + secrets.Provider (NEWSCRAPPER-API-KEY)
//
// =============================================================================
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/charmbracelet/log"

	"finnews-relay/internal/pipeline"
	"finnews-relay/internal/secrets"
	"finnews-relay/internal/storage"
)

// App holds the wired components.
type App struct {
	Config  *pipeline.PipelineConfig
	Runner  *pipeline.Runner
	Store   *storage.ResultStore
	APIKeys *secrets.Provider

	// Email is nil when EMAIL_* is not configured.
	Email *pipeline.EmailSender

	Logger *log.Logger
}

// Options overrides parts of the wiring.
type Options struct {
	// ExtraSinks are appended after the configured sinks (e.g. CLI --out).
	ExtraSinks []pipeline.ResultSink
}

// Build loads AWS configuration and wires every component.
func Build(ctx context.Context, cfg *pipeline.PipelineConfig, logger *log.Logger, opts Options) (*App, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Storage.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	smClient := secretsmanager.NewFromConfig(awsCfg)

	return Wire(cfg, logger, s3Client, smClient, opts)
}

// Wire assembles the App from already-built AWS clients.
func Wire(cfg *pipeline.PipelineConfig, logger *log.Logger, s3Client storage.S3API, smClient secrets.SecretsManagerAPI, opts Options) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}

	feedClient := &http.Client{Timeout: cfg.Feeds.Timeout}
	httpClient := &http.Client{}
	retrier := pipeline.NewRetrier(logger)

	openAIKey := secrets.NewProvider(smClient, cfg.Summarize.SecretName, secrets.FieldOpenAIKey, "OPENAI_API_KEY", logger)
	apiKeys := secrets.NewProvider(smClient, cfg.API.SecretName, secrets.FieldAPIKey, "API_KEY", logger)

	sinks := storage.MultiSink{storage.NewS3Sink(s3Client, cfg.Storage.Bucket, cfg.Storage.Prefix, logger)}
	if cfg.Storage.LocalFile != "" {
		sinks = append(sinks, storage.NewFileSink(cfg.Storage.LocalFile, logger))
	}
	if cfg.Storage.NotionToken != "" && cfg.Storage.NotionDatabaseID != "" {
		ns, err := storage.NewNotionSink(cfg.Storage.NotionToken, cfg.Storage.NotionDatabaseID, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ns)
	}
	sinks = append(sinks, opts.ExtraSinks...)

	runner, err := pipeline.NewRunner(pipeline.Deps{
		Feeds:     cfg.Feeds.Sources,
		Collector: pipeline.NewFeedFetcher(feedClient, cfg.Feeds.UserAgent, cfg.Feeds.Pause, logger),
		Extractor: pipeline.NewArticleExtractor(httpClient, retrier, pipeline.ExtractorConfig{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.Fetch.Timeout,
			MinChars:  cfg.Fetch.MinChars,
			MaxChars:  cfg.Fetch.MaxChars,
		}, logger),
		Summarizer: pipeline.NewSummarizer(httpClient, retrier, openAIKey, pipeline.SummarizerConfig{
			Endpoint:    cfg.Summarize.Endpoint,
			Model:       cfg.Summarize.Model,
			Temperature: cfg.Summarize.Temperature,
			MaxTokens:   cfg.Summarize.MaxTokens,
			Timeout:     cfg.Summarize.Timeout,
		}, logger),
		Sink:           sinks,
		Logger:         logger,
		CandidatePause: cfg.Summarize.Pause,
		Concurrency:    cfg.Concurrency,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Runner:  runner,
		Store:   storage.NewResultStore(s3Client, cfg.Storage.Bucket, cfg.Storage.Prefix, logger),
		APIKeys: apiKeys,
		Logger:  logger,
	}
	if cfg.Email.Enabled() {
		es, err := pipeline.NewEmailSender(cfg.Email, logger)
		if err != nil {
			return nil, err
		}
		a.Email = es
	}
	return a, nil
}

// RunAndReport performs one run and mails the report when email is set up.
// Email failures are logged only.
func (a *App) RunAndReport(ctx context.Context, topN int) ([]pipeline.SummaryResult, error) {
	results, err := a.Runner.RunOnce(ctx, topN)
	if err != nil {
		return nil, err
	}
	if a.Email != nil && len(results) > 0 {
		if err := a.Email.SendRunReport(ctx, results); err != nil {
			a.Logger.Error("email.report_failed", "err", err)
		}
	}
	return results, nil
}

// =============================================================================
// newsrelay - command line entry point
// =============================================================================
//
// 【Commands】
//   newsrelay run   [--top-n 5] [--out data/scraped_summaries.jsonl]
//   newsrelay serve [--addr 0.0.0.0:8000]
//   newsrelay feeds
//
// Settings come from the environment; a .env file in the working directory
// is loaded first when present.
//
// =============================================================================
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"finnews-relay/internal/logging"
	"finnews-relay/internal/pipeline"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	logger := logging.Init()

	root := &cobra.Command{
		Use:           "newsrelay",
		Short:         "newsrelay - financial news summarization pipeline",
		Long:          "Collects market news from RSS feeds, summarizes the newest articles with OpenAI and stores the results as JSONL in S3.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		runCmd(logger),
		serveCmd(logger),
		feedsCmd(),
	)

	if err := root.Execute(); err != nil {
		logger.Error("newsrelay.failed", "err", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies a --feeds override.
func loadConfig(feedsFile string) (*pipeline.PipelineConfig, error) {
	cfg, err := pipeline.LoadConfig()
	if err != nil {
		return nil, err
	}
	if feedsFile != "" {
		feeds, err := pipeline.LoadFeedsFile(feedsFile)
		if err != nil {
			return nil, err
		}
		cfg.Feeds.File = feedsFile
		cfg.Feeds.Sources = feeds
	}
	return cfg, nil
}

func addFeedsFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "feeds", "", "YAML feed list (overrides FEEDS_FILE)")
}

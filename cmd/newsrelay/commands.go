package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"finnews-relay/internal/api"
	"finnews-relay/internal/app"
	"finnews-relay/internal/pipeline"
	"finnews-relay/internal/storage"
)

func runCmd(logger *log.Logger) *cobra.Command {
	var (
		topN      int
		outFile   string
		feedsFile string
		noEmail   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one pipeline pass and print the results as JSONL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(feedsFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("top-n") {
				cfg.TopN = topN
			}
			if noEmail {
				cfg.Email = pipeline.EmailConfig{}
			}

			var opts app.Options
			if outFile != "" {
				opts.ExtraSinks = append(opts.ExtraSinks, storage.NewFileSink(outFile, logger))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, logger, opts)
			if err != nil {
				return err
			}
			results, err := a.RunAndReport(ctx, cfg.TopN)
			if err != nil {
				return err
			}

			b, err := storage.EncodeJSONL(results)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	cmd.Flags().IntVar(&topN, "top-n", 5, "number of newest articles to summarize")
	cmd.Flags().StringVar(&outFile, "out", "", "also append results to this JSONL file")
	cmd.Flags().BoolVar(&noEmail, "no-email", false, "skip the email report even when EMAIL_* is set")
	addFeedsFlag(cmd, &feedsFile)
	return cmd
}

func serveCmd(logger *log.Logger) *cobra.Command {
	var (
		addr      string
		feedsFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(feedsFile)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.API.Addr()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, logger, app.Options{})
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			router := api.NewRouter(api.NewHandler(a.Store, a.Runner, a.APIKeys, logger))
			srv := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("api.listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			logger.Info("api.shutdown")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default API_HOST:API_PORT)")
	addFeedsFlag(cmd, &feedsFile)
	return cmd
}

func feedsCmd() *cobra.Command {
	var feedsFile string

	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Print the configured feed list as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(feedsFile)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string][]pipeline.FeedSource{"feeds": cfg.Feeds.Sources}); err != nil {
				return fmt.Errorf("encode feeds: %w", err)
			}
			return enc.Close()
		},
	}
	addFeedsFlag(cmd, &feedsFile)
	return cmd
}

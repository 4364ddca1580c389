// =============================================================================
// logger.go - structured logging
// =============================================================================
//
// Every component logs event-style messages ("fetch_article.start",
// "openai.ok", "s3.put.ok") with key/value context. Records are JSON lines on
// stdout so CloudWatch / journald can index them.
//
// 【Environment】
//   LOG_LEVEL - debug | info | warn | error (default: info)
//   STAGE     - attached to every record as "stage" (default: prod)
//
// =============================================================================
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Logger is the process logger used by entrypoints. Library code receives a
// *log.Logger explicitly instead of reading this variable.
var Logger = New(os.Stdout, "info", "prod")

// New builds a JSON logger writing to w.
//
// Unknown levels fall back to info.
func New(w io.Writer, level, stage string) *log.Logger {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}

	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           lvl,
		Formatter:       log.JSONFormatter,
	})
	if stage != "" {
		l = l.With("stage", stage)
	}
	return l
}

// Init configures Logger from LOG_LEVEL and STAGE.
func Init() *log.Logger {
	stage := os.Getenv("STAGE")
	if stage == "" {
		stage = "prod"
	}
	Logger = New(os.Stdout, os.Getenv("LOG_LEVEL"), stage)
	log.SetDefault(Logger)
	return Logger
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

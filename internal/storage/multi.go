package storage

import (
	"context"

	"finnews-relay/internal/pipeline"
)

// MultiSink fans one Upload out to every sink in order. All sinks are
// attempted; the result is true only when each one succeeded.
type MultiSink []pipeline.ResultSink

// Upload implements pipeline.ResultSink.
func (m MultiSink) Upload(ctx context.Context, results []pipeline.SummaryResult, runID string) bool {
	ok := len(m) > 0
	for _, s := range m {
		if !s.Upload(ctx, results, runID) {
			ok = false
		}
	}
	return ok
}

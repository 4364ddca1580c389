// =============================================================================
// s3.go - S3 result sink and result store
// =============================================================================
//
// 【Object layout】
//
//	<prefix>dt=YYYY-MM-DD/run=<run_id>.jsonl
//
//	- one JSON object per line: {"title","link","published","summary"}
//	- content type application/json
//	- the date is the UTC date of the upload
//
// S3Sink writes one object per run. ResultStore reads them back for the
// query API: available dates, the latest object of a date, its records.
//
// =============================================================================
package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/charmbracelet/log"

	"finnews-relay/internal/pipeline"
)

// S3API is the subset of the S3 client in use.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// DateLayout is the format of the dt= partition.
const DateLayout = "2006-01-02"

// RunKey returns the object key for one run.
func RunKey(prefix string, day time.Time, runID string) string {
	return fmt.Sprintf("%sdt=%s/run=%s.jsonl", prefix, day.UTC().Format(DateLayout), runID)
}

// EncodeJSONL writes one JSON object per line. Non-ASCII text is kept as is.
func EncodeJSONL(results []pipeline.SummaryResult) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, r := range results {
		// Encode appends the newline.
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("encode result %q: %w", r.Link, err)
		}
	}
	return buf.Bytes(), nil
}

// =============================================================================
// S3Sink
// =============================================================================

// S3Sink uploads run results to S3.
type S3Sink struct {
	client S3API
	bucket string
	prefix string
	now    func() time.Time
	logger *log.Logger
}

// NewS3Sink returns a sink for bucket/prefix. An empty bucket is accepted;
// Upload then reports failure.
func NewS3Sink(client S3API, bucket, prefix string, logger *log.Logger) *S3Sink {
	if logger == nil {
		logger = log.Default()
	}
	return &S3Sink{client: client, bucket: bucket, prefix: prefix, now: time.Now, logger: logger}
}

// Upload writes results as one JSONL object. It returns false on any failure.
func (s *S3Sink) Upload(ctx context.Context, results []pipeline.SummaryResult, runID string) bool {
	if s.bucket == "" || s.client == nil {
		s.logger.Warn("s3.put.skipped", "reason", "BUCKET not set")
		return false
	}

	body, err := EncodeJSONL(results)
	if err != nil {
		s.logger.Error("s3.put.error", "err", err)
		return false
	}

	key := RunKey(s.prefix, s.now(), runID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		s.logger.Error("s3.put.error", "bucket", s.bucket, "key", key, "err", err)
		return false
	}
	s.logger.Info("s3.put.ok", "bucket", s.bucket, "key", key, "n_results", len(results))
	return true
}

// =============================================================================
// ResultStore
// =============================================================================

// ResultStore reads persisted runs.
type ResultStore struct {
	client S3API
	bucket string
	prefix string
	logger *log.Logger
}

// NewResultStore returns a reader for bucket/prefix.
func NewResultStore(client S3API, bucket, prefix string, logger *log.Logger) *ResultStore {
	if logger == nil {
		logger = log.Default()
	}
	return &ResultStore{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// ListDates returns every dt= partition, ascending.
func (r *ResultStore) ListDates(ctx context.Context) ([]string, error) {
	var dates []string
	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Prefix:    aws.String(r.prefix + "dt="),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list dates: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			// "<prefix>dt=2026-01-05/" -> "2026-01-05"
			d := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), r.prefix+"dt="), "/")
			if d != "" {
				dates = append(dates, d)
			}
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// LatestDate returns the newest partition, "" when there is none.
func (r *ResultStore) LatestDate(ctx context.Context) (string, error) {
	dates, err := r.ListDates(ctx)
	if err != nil || len(dates) == 0 {
		return "", err
	}
	return dates[len(dates)-1], nil
}

// LatestKeyForDate returns the lexicographically last .jsonl key of date,
// "" when the partition is empty.
func (r *ResultStore) LatestKeyForDate(ctx context.Context, date string) (string, error) {
	latest := ""
	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(fmt.Sprintf("%sdt=%s/", r.prefix, date)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list runs for %s: %w", date, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, ".jsonl") && key > latest {
				latest = key
			}
		}
	}
	return latest, nil
}

// ReadJSONL loads one object. Lines that do not decode are skipped.
func (r *ResultStore) ReadJSONL(ctx context.Context, key string) ([]pipeline.SummaryResult, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()
	return DecodeJSONL(out.Body, func(line int, err error) {
		r.logger.Warn("s3.read.bad_line", "key", key, "line", line, "err", err)
	})
}

// DecodeJSONL reads records line by line. onBad is called for every line
// that is not a JSON object; those lines are skipped.
func DecodeJSONL(rd io.Reader, onBad func(line int, err error)) ([]pipeline.SummaryResult, error) {
	results := []pipeline.SummaryResult{}
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var res pipeline.SummaryResult
		if err := json.Unmarshal(line, &res); err != nil {
			if onBad != nil {
				onBad(n, err)
			}
			continue
		}
		results = append(results, res)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}
	return results, nil
}

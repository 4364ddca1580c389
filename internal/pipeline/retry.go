// =============================================================================
// retry.go - retry with exponential backoff and jitter
// =============================================================================
//
// Every outbound call that matters (article downloads, summarization requests)
// goes through a single Retrier so the failure policy lives in one place.
//
// 【Policy】
//   attempts: 4
//   wait:     min(cap, base * 2^attempt) * (0.5 + rand[0,1))
//             base = 0.5s, cap = 6s
//
// 【Classification】
//   retriable:     network errors (dial, reset, timeout, EOF), HTTP 408 / 409 /
//                  425 / 429, any 5xx
//   non-retriable: other 4xx, errors wrapped with Permanent, certificate
//                  failures, client-side URL errors (unsupported scheme, no
//                  host), anything that is not a network or HTTP status error
//
// =============================================================================
package pipeline

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
)

// StatusError is returned by HTTP calls that received a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string // first bytes of the response body, for diagnostics
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// permanentError marks an error that must not be retried even if its
// underlying cause would normally qualify.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the Retrier returns it on first occurrence.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retrier executes fallible network calls under the backoff policy above.
type Retrier struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration

	// Sleep and Jitter are swapped out in tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() float64

	Logger *log.Logger
}

// NewRetrier returns a Retrier with the default policy.
func NewRetrier(logger *log.Logger) *Retrier {
	return &Retrier{
		Attempts: 4,
		Base:     500 * time.Millisecond,
		Cap:      6 * time.Second,
		Sleep:    sleepCtx,
		Jitter:   rand.Float64,
		Logger:   logger,
	}
}

// Backoff returns the wait before retrying after the given zero-based attempt.
func (r *Retrier) Backoff(attempt int) time.Duration {
	d := float64(r.Base) * math.Pow(2, float64(attempt))
	if d > float64(r.Cap) {
		d = float64(r.Cap)
	}
	return time.Duration(d * (0.5 + r.Jitter()))
}

// Do runs call until it succeeds, fails with a non-retriable error, or the
// attempt budget is spent. The last error is returned unchanged.
//
// label only shows up in logs ("requests.get", "openai.post").
func (r *Retrier) Do(ctx context.Context, label string, call func(ctx context.Context) error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for i := 0; i < attempts; i++ {
		err := call(ctx)
		if err == nil {
			return nil
		}
		last = err

		if ctx.Err() != nil || !IsRetriable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		wait := r.Backoff(i)
		if r.Logger != nil {
			r.Logger.Warn("http.retry", "label", label, "attempt", i+1, "wait_s", wait.Seconds(), "err", err)
		}
		if err := r.Sleep(ctx, wait); err != nil {
			return last
		}
	}
	return last
}

// IsRetriable reports whether err belongs to the transient class.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return RetriableStatus(se.StatusCode)
	}

	if isCertificateError(err) {
		return false
	}
	// *url.Error itself satisfies net.Error; classify by what it wraps.
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

func isCertificateError(err error) bool {
	var (
		verify    *tls.CertificateVerificationError
		unknownCA x509.UnknownAuthorityError
		hostname  x509.HostnameError
		invalid   x509.CertificateInvalidError
	)
	return errors.As(err, &verify) || errors.As(err, &unknownCA) ||
		errors.As(err, &hostname) || errors.As(err, &invalid)
}

// RetriableStatus classifies an HTTP status code.
func RetriableStatus(code int) bool {
	if code >= 500 {
		return true
	}
	switch code {
	case 408, 409, 425, 429:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

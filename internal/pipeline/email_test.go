package pipeline

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"finnews-relay/internal/logging"
)

func newTestSender(t *testing.T, failures int) (*EmailSender, *[][]byte, *[]time.Duration) {
	t.Helper()
	es, err := NewEmailSender(EmailConfig{
		From:     "relay@example.com",
		Password: "app-password",
		To:       "a@example.com, b@example.com",
	}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}

	var sent [][]byte
	var waits []time.Duration
	es.now = func() time.Time { return time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) }
	es.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	es.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if failures > 0 {
			failures--
			return errors.New("421 try again later")
		}
		assert.Equal(t, "smtp.gmail.com:587", addr)
		assert.Equal(t, []string{"a@example.com", "b@example.com"}, to)
		sent = append(sent, msg)
		return nil
	}
	return es, &sent, &waits
}

func TestSendRunReport(t *testing.T) {
	es, sent, waits := newTestSender(t, 0)

	err := es.SendRunReport(context.Background(), []SummaryResult{
		{Title: "Fed holds", Link: "https://x/fed", Published: strPtr("2026-01-05T10:00:00Z"), Summary: "Summary: held\nTopics: a, b, c\nTickers: "},
		{Title: "Oil slips", Link: "https://x/oil", Summary: ErrMissingAPIKey},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, 1, len(*sent))
	assert.Equal(t, 0, len(*waits))

	msg := string((*sent)[0])
	assert.Equal(t, true, strings.Contains(msg, "Subject: [News Relay] 2 articles - 2026-01-05\r\n"))
	assert.Equal(t, true, strings.Contains(msg, "To: a@example.com, b@example.com\r\n"))
	assert.Equal(t, true, strings.Contains(msg, "\r\n\r\nFinancial News Summary\n"))
	assert.Equal(t, true, strings.Contains(msg, "[1] Fed holds\n    Published: 2026-01-05T10:00:00Z\n"))
	assert.Equal(t, true, strings.Contains(msg, "    Topics: a, b, c\n"))
	assert.Equal(t, true, strings.Contains(msg, "[2] Oil slips\n    URL: https://x/oil\n"))
}

func TestSendRunReportRetries(t *testing.T) {
	es, sent, waits := newTestSender(t, 2)

	err := es.SendRunReport(context.Background(), []SummaryResult{{Title: "t", Summary: "s"}})
	assert.Equal(t, err, nil)
	assert.Equal(t, 1, len(*sent))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *waits)
}

func TestSendRunReportGivesUp(t *testing.T) {
	es, sent, _ := newTestSender(t, 5)

	err := es.SendRunReport(context.Background(), []SummaryResult{{Title: "t", Summary: "s"}})
	assert.NotEqual(t, err, nil)
	assert.Equal(t, 0, len(*sent))

	assert.NotEqual(t, es.SendRunReport(context.Background(), nil), nil)
}

func TestNewEmailSenderValidates(t *testing.T) {
	_, err := NewEmailSender(EmailConfig{From: "a@x", To: "b@x"}, nil)
	assert.NotEqual(t, err, nil)
}

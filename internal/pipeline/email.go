// =============================================================================
// email.go - run report over SMTP
// =============================================================================
//
// Sends a plain-text report of one run's results through Gmail SMTP.
//
// 【Flow】
//   1. render the plain-text body
//   2. build an RFC 5322 message
//   3. send with exponential backoff (2s -> 4s)
//
// 【Environment】
//   EMAIL_FROM     - sender address
//   EMAIL_PASSWORD - Gmail app password (not the account password)
//   EMAIL_TO       - recipients, comma separated
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// smtpSendFunc matches smtp.SendMail.
type smtpSendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender delivers run reports.
type EmailSender struct {
	from     string
	password string
	to       []string
	smtpHost string
	smtpPort string

	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
	sendMail   smtpSendFunc
	now        func() time.Time
	logger     *log.Logger
}

// NewEmailSender validates the settings and returns a sender for Gmail SMTP.
func NewEmailSender(cfg EmailConfig, logger *log.Logger) (*EmailSender, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("EMAIL_PASSWORD is required (use Gmail App Password)")
	}
	if cfg.To == "" {
		return nil, fmt.Errorf("EMAIL_TO is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	var to []string
	for _, addr := range strings.Split(cfg.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}

	return &EmailSender{
		from:       cfg.From,
		password:   cfg.Password,
		to:         to,
		smtpHost:   "smtp.gmail.com",
		smtpPort:   "587",
		maxRetries: 3,
		sleep:      sleepCtx,
		sendMail:   smtp.SendMail,
		now:        time.Now,
		logger:     logger,
	}, nil
}

// SendRunReport mails the results of one run.
func (es *EmailSender) SendRunReport(ctx context.Context, results []SummaryResult) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to send")
	}

	now := es.now().UTC()
	subject := fmt.Sprintf("[News Relay] %d articles - %s", len(results), now.Format("2006-01-02"))
	msg := es.buildEmailMessage(subject, es.generateEmailBody(results, now))
	return es.sendWithRetry(ctx, msg)
}

// generateEmailBody renders:
//
//	Financial News Summary
//	Generated: 2026-01-05 12:00:00 UTC
//
//	[1] Fed holds rates steady
//	    Published: 2026-01-05T11:30:00Z
//	    URL: https://...
//
//	    Summary: ...
//	    Topics: ...
//	    Tickers: ...
func (es *EmailSender) generateEmailBody(results []SummaryResult, now time.Time) string {
	var sb strings.Builder

	sb.WriteString("Financial News Summary\n")
	fmt.Fprintf(&sb, "Generated: %s UTC\n\n", now.Format("2006-01-02 15:04:05"))
	sb.WriteString("========================================\n")
	fmt.Fprintf(&sb, "Total Articles: %d\n", len(results))
	sb.WriteString("========================================\n\n")

	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, r.Title)
		if r.Published != nil {
			fmt.Fprintf(&sb, "    Published: %s\n", *r.Published)
		}
		fmt.Fprintf(&sb, "    URL: %s\n\n", r.Link)
		for _, line := range strings.Split(r.Summary, "\n") {
			if strings.TrimSpace(line) != "" {
				fmt.Fprintf(&sb, "    %s\n", line)
			}
		}
		sb.WriteString("\n----------------------------------------\n\n")
	}

	sb.WriteString("Generated by finnews-relay\n")
	return sb.String()
}

// buildEmailMessage builds an RFC 5322 message. Headers and body are
// separated by an empty CRLF line.
func (es *EmailSender) buildEmailMessage(subject, body string) []byte {
	var msg strings.Builder

	fmt.Fprintf(&msg, "From: %s\r\n", es.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(es.to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return []byte(msg.String())
}

// sendWithRetry waits 2^i seconds before attempt i (i >= 1).
func (es *EmailSender) sendWithRetry(ctx context.Context, msg []byte) error {
	var lastErr error

	for i := 0; i < es.maxRetries; i++ {
		if i > 0 {
			wait := time.Duration(1<<i) * time.Second
			es.logger.Info("email.retry", "attempt", i+1, "wait", wait)
			if err := es.sleep(ctx, wait); err != nil {
				return err
			}
		}

		err := es.send(msg)
		if err == nil {
			es.logger.Info("email.sent", "to", len(es.to))
			return nil
		}

		lastErr = err
		es.logger.Warn("email.send_failed", "attempt", i+1, "max", es.maxRetries, "err", err)
	}

	return fmt.Errorf("failed to send email after %d retries: %w", es.maxRetries, lastErr)
}

func (es *EmailSender) send(msg []byte) error {
	auth := smtp.PlainAuth("", es.from, es.password, es.smtpHost)
	addr := es.smtpHost + ":" + es.smtpPort

	if err := es.sendMail(addr, auth, es.from, es.to, msg); err != nil {
		return fmt.Errorf("SMTP send failed: %w (check EMAIL_PASSWORD is a Gmail App Password)", err)
	}
	return nil
}

// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package email delivers transactional messages for the authentication flows.

It defines the Sender port consumed by the auth service and two adapters:

  - SMTPSender: real delivery via net/smtp for production.
  - LogSender: logs the message body instead of sending, for development and
    tests where a mail relay is not available.

Messages are short-lived and security-sensitive (verification links, one-time
codes); templates are deliberately plain text.
*/
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/taibuivan/gatekeep/internal/platform/constants"
)

// Sender is the outbound email port used by the auth service.
type Sender interface {
	// Send delivers a plain-text message to a single recipient.
	Send(ctx context.Context, to, subject, body string) error
}

// # Production Adapter

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	from string
	addr string
}

// NewSMTPSender creates a sender targeting the given relay address (host:port).
func NewSMTPSender(from, addr string) *SMTPSender {
	return &SMTPSender{from: from, addr: addr}
}

// Send delivers the message, honoring the context deadline via a goroutine
// handoff since net/smtp has no native context support.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	message := buildMessage(s.from, to, subject, body)

	sendCtx, cancel := context.WithTimeout(ctx, constants.EmailTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, nil, s.from, []string{to}, message)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email: smtp delivery failed: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("email: delivery timed out: %w", sendCtx.Err())
	}
}

// # Development Adapter

// LogSender writes messages to the structured log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that logs instead of delivering.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message at INFO level.
func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "email_logged_instead_of_sent",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}

// buildMessage assembles a minimal RFC 5322 plain-text message.
func buildMessage(from, to, subject, body string) []byte {
	var builder strings.Builder
	builder.WriteString("From: " + from + "\r\n")
	builder.WriteString("To: " + to + "\r\n")
	builder.WriteString("Subject: " + subject + "\r\n")
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(body)
	return []byte(builder.String())
}

// Package mailer is the email action executor: it composes one message per
// target and submits it over SMTP submission with STARTTLS and AUTH,
// classifying reply codes for the dispatch loop.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"outreach/internal/contact"
	"outreach/internal/executor"
)

// Composer renders the subject and body for one target. Template field
// substitution is a collaborator concern, outside the dispatch core.
type Composer interface {
	Compose(target contact.Target) (subject, body string, err error)
}

// BasicComposer fills {{name}} and {{playlist}} placeholders in fixed
// subject and body text.
type BasicComposer struct {
	Subject string
	Body    string
}

func (c BasicComposer) Compose(target contact.Target) (string, string, error) {
	name := target.Name
	if name == "" {
		name = "there"
	}
	r := strings.NewReplacer(
		"{{name}}", name,
		"{{playlist}}", target.Playlist,
	)
	return r.Replace(c.Subject), r.Replace(c.Body), nil
}

// Config holds the SMTP submission settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	CC       string
	Timeout  time.Duration
}

// Sender submits one message per target through the configured submission
// endpoint. It never touches the progress store.
type Sender struct {
	cfg      Config
	composer Composer
	logger   *slog.Logger
}

// NewSender creates an email executor.
func NewSender(cfg Config, composer Composer, logger *slog.Logger) *Sender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Sender{cfg: cfg, composer: composer, logger: logger}
}

// Execute composes and submits the message for one target.
func (s *Sender) Execute(ctx context.Context, target contact.Target) (*executor.Result, error) {
	subject, body, err := s.composer.Compose(target)
	if err != nil {
		return nil, &executor.ActionError{
			Kind:   executor.KindPermanent,
			Reason: "compose_failed",
			Err:    err,
		}
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.cfg.Host)
	msg := buildMessage(s.cfg.From, target.ID, s.cfg.CC, subject, body, messageID)

	if err := s.submit(ctx, target.ID, msg); err != nil {
		return nil, err
	}

	s.logger.Info("message submitted",
		"to", target.ID,
		"message_id", messageID,
	)
	return &executor.Result{MessageID: messageID}, nil
}

// submit performs the SMTP conversation: HELO, STARTTLS, AUTH, MAIL, RCPT,
// DATA.
func (s *Sender) submit(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &executor.ActionError{
			Kind:   executor.KindTransient,
			Reason: "connect_failed",
			Err:    err,
		}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return &executor.ActionError{
			Kind:   executor.KindTransient,
			Reason: "connect_failed",
			Err:    err,
		}
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			ServerName: s.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return categorize(err, "starttls_failed")
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			// Submission providers reject bad credentials consistently;
			// retrying within a run only risks a lockout.
			return &executor.ActionError{
				Kind:   executor.KindFatal,
				Reason: "authentication_failed",
				Err:    err,
			}
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return categorize(err, "sender_rejected")
	}
	if err := client.Rcpt(to); err != nil {
		return categorize(err, "recipient_rejected")
	}
	if s.cfg.CC != "" {
		if err := client.Rcpt(s.cfg.CC); err != nil {
			return categorize(err, "cc_rejected")
		}
	}

	wc, err := client.Data()
	if err != nil {
		return categorize(err, "data_rejected")
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return &executor.ActionError{
			Kind:   executor.KindTransient,
			Reason: "send_failed",
			Err:    err,
		}
	}
	if err := wc.Close(); err != nil {
		return categorize(err, "send_failed")
	}

	client.Quit()
	return nil
}

// buildMessage assembles a minimal RFC 5322 plain-text message.
func buildMessage(from, to, cc, subject, body, messageID string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	if cc != "" {
		fmt.Fprintf(&b, "Cc: %s\r\n", cc)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")

	return []byte(b.String())
}

// smtpCodePattern matches SMTP reply codes at word boundaries.
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorize maps an SMTP error to the action error taxonomy: 5xx codes
// are permanent, 4xx temporary, anything else assumed temporary.
func categorize(err error, reason string) *executor.ActionError {
	kind := executor.KindTransient

	if m := smtpCodePattern.FindStringSubmatch(err.Error()); len(m) > 1 {
		if strings.HasPrefix(m[1], "5") {
			kind = executor.KindPermanent
		}
	}

	return &executor.ActionError{
		Kind:   kind,
		Reason: reason,
		Err:    err,
	}
}

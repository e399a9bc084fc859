// Package email sends budget alerts to the owner's registered address.
package email

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"budgetledger/internal/core"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Currency string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	cfg  Config
	send SendFunc
}

func New(cfg Config) *Sender {
	return &Sender{cfg: cfg, send: smtp.SendMail}
}

// WithSendFunc replaces the SMTP transport.
func (s *Sender) WithSendFunc(fn SendFunc) *Sender {
	s.send = fn
	return s
}

func (s *Sender) Name() string { return "email" }

// Deliver renders and sends the alert. Owners without an email address are
// skipped.
func (s *Sender) Deliver(ctx context.Context, alert core.Alert) error {
	if strings.TrimSpace(alert.OwnerEmail) == "" {
		slog.DebugContext(ctx, "Owner has no email address, skipping alert email",
			"owner_id", alert.OwnerID, "alert_kind", alert.Kind)
		return nil
	}

	subject, body, err := Render(alert, s.cfg.Currency)
	if err != nil {
		return err
	}
	msg := buildMessage(s.cfg.From, alert.OwnerEmail, subject, body, time.Now())

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	// net/smtp has no context support; stop waiting when ctx ends.
	done := make(chan error, 1)
	go func() {
		done <- s.send(addr, auth, s.cfg.From, []string{alert.OwnerEmail}, msg)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	}

	slog.InfoContext(ctx, "Alert email sent",
		"owner_id", alert.OwnerID,
		"alert_kind", alert.Kind,
		"category", alert.Category)
	return nil
}

var (
	subjects = map[core.AlertKind]*template.Template{
		core.AlertExceeded: template.Must(template.New("exceeded_subject").Parse(`Budget limit crossed for {{.Category}}`)),
		core.AlertWarning:  template.Must(template.New("warning_subject").Parse(`Budget warning for {{.Category}}`)),
	}
	bodies = map[core.AlertKind]*template.Template{
		core.AlertExceeded: template.Must(template.New("exceeded_body").Parse(`Hi {{.Name}},

You have crossed the monthly limit for {{.Category}}.

Limit: {{.Limit}}
This month spent: {{.Spent}}

Try to control further spending in this category to stay inside your plan.

Expense Management System
`)),
		core.AlertWarning: template.Must(template.New("warning_body").Parse(`Hi {{.Name}},

You are close to reaching your monthly limit for {{.Category}}.

Limit: {{.Limit}}
This month spent so far: {{.Spent}}

Please watch this category to avoid crossing your planned budget.

Expense Management System
`)),
	}
)

type view struct {
	Name     string
	Category string
	Limit    string
	Spent    string
}

// Render returns the subject and plain text body for alert.
func Render(alert core.Alert, currency string) (string, string, error) {
	subjectTmpl, ok := subjects[alert.Kind]
	if !ok {
		return "", "", fmt.Errorf("no email template for alert kind %q", alert.Kind)
	}
	name := strings.TrimSpace(alert.OwnerName)
	if name == "" {
		name = "user"
	}
	v := view{
		Name:     name,
		Category: alert.Category,
		Limit:    core.FormatAmount(currency, alert.Limit),
		Spent:    core.FormatAmount(currency, alert.Spent),
	}

	var subject, body bytes.Buffer
	if err := subjectTmpl.Execute(&subject, v); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := bodies[alert.Kind].Execute(&body, v); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject.String(), body.String(), nil
}

func buildMessage(from, to, subject, body string, at time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", at.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.Bytes()
}

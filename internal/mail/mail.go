// Package mail renders the HTML notification templates and delivers them
// over SMTP.  The queue consumer is its only caller; request handlers never
// send mail synchronously.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/elearning-backend/internal/config"
)

// Template names, one file each under templates/.
const (
	TemplateActivation        = "activation-mail.html"
	TemplateQuestionReply     = "question-reply.html"
	TemplateOrderConfirmation = "order-confirmation.html"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Render executes the named template with data.
func Render(name string, data any) (string, error) {
	if templates.Lookup(name) == nil {
		return "", fmt.Errorf("mail: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Sender delivers a rendered HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// SMTPSender sends through a plain-auth SMTP relay.
type SMTPSender struct {
	cfg  config.SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

// Send builds a MIME message and hands it to the relay.  net/smtp has no
// context support; ctx is only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.From, s.cfg.Password, s.cfg.Host)
	}
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	if err := s.send(addr, auth, s.cfg.From, []string{to}, buildMessage(s.cfg.From, to, subject, html)); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	return nil
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

// Mailer renders a template and sends the result.
type Mailer struct {
	sender Sender
	log    *zap.Logger
}

func NewMailer(sender Sender, log *zap.Logger) *Mailer {
	return &Mailer{sender: sender, log: log}
}

// Deliver renders tmpl with data and sends it to the recipient.
func (m *Mailer) Deliver(ctx context.Context, to, subject, tmpl string, data map[string]any) error {
	html, err := Render(tmpl, data)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, to, subject, html); err != nil {
		return err
	}
	m.log.Info("mail sent", zap.String("to", to), zap.String("template", tmpl))
	return nil
}

// Package notification delivers rendered reports by email and SMS.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/smukkama/gr20-alert/internal/protocol"
	"github.com/smukkama/gr20-alert/pkg/config"
)

var emailTemplate = template.Must(template.New("report").Parse(`{{.Text}}
{{range .Details}}
{{.}}{{end}}

---
GR20 Wetterdienst ({{.Kind}} {{.ID}})
`))

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends email notifications
type EmailNotifier struct {
	config   config.SMTPConfig
	password string
	log      zerolog.Logger
	sendMail sendMailFunc
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg config.SMTPConfig, password string, log zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{config: cfg, password: password, log: log, sendMail: smtp.SendMail}
}

// Notify sends msg to every configured recipient.
func (e *EmailNotifier) Notify(ctx context.Context, msg *protocol.ReportMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := renderEmail(msg)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return e.sendEmail(msg.Subject, body)
}

func renderEmail(msg *protocol.ReportMessage) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, msg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	// Skip sending if SMTP is not configured
	if e.config.Username == "" || e.password == "" || len(e.config.To) == 0 {
		e.log.Warn().Str("subject", subject).Msg("SMTP not configured, skipping email")
		e.log.Info().Msg(body)
		return nil
	}

	var message strings.Builder
	fmt.Fprintf(&message, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&message, "To: %s\r\n", strings.Join(e.config.To, ", "))
	fmt.Fprintf(&message, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&message, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	auth := smtp.PlainAuth("", e.config.Username, e.password, e.config.Host)

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.sendMail(addr, auth, e.config.From, e.config.To, []byte(message.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.log.Info().Str("subject", subject).Int("recipients", len(e.config.To)).Msg("email sent")
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()
	return nil
}

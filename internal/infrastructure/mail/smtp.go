package mail

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"

	"github.com/99minutos/identity-service/internal/pkg/config"
)

type smtpTransport struct {
	addr string
	auth smtp.Auth
	from string
	hdr  string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func newSMTP(cfg config.MailConfig) (*smtpTransport, error) {
	if cfg.SMTPHost == "" {
		return nil, errors.New("mail: SMTP_HOST is required")
	}
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &smtpTransport{
		addr: net.JoinHostPort(cfg.SMTPHost, cfg.SMTPPort),
		auth: auth,
		from: cfg.FromEmail,
		hdr:  fromHeader(cfg),
		send: smtp.SendMail,
	}, nil
}

// deliver runs the blocking SMTP exchange in a goroutine so ctx still
// bounds how long the worker waits for it.
func (t *smtpTransport) deliver(ctx context.Context, m Message) error {
	body := t.compose(m)
	done := make(chan error, 1)
	go func() {
		done <- t.send(t.addr, t.auth, t.from, []string{m.To}, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp: send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp: %w", ctx.Err())
	}
}

func (t *smtpTransport) compose(m Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + t.hdr + "\r\n")
	b.WriteString("To: " + m.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", m.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.Text, "\n", "\r\n"))
	return []byte(b.String())
}

func fromHeader(cfg config.MailConfig) string {
	if cfg.FromName == "" {
		return cfg.FromEmail
	}
	return mime.QEncoding.Encode("utf-8", cfg.FromName) + " <" + cfg.FromEmail + ">"
}

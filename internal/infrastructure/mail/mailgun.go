package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/99minutos/identity-service/internal/pkg/config"
)

type mailgunTransport struct {
	mg   *mailgun.MailgunImpl
	from string
}

func newMailgun(cfg config.MailConfig) (*mailgunTransport, error) {
	if cfg.MailgunDomain == "" || cfg.MailgunKey == "" {
		return nil, errors.New("mail: MAILGUN_DOMAIN and MAILGUN_API_KEY are required")
	}
	mg := mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunKey)
	if cfg.MailgunAPIURL != "" {
		mg.SetAPIBase(cfg.MailgunAPIURL)
	}
	return &mailgunTransport{mg: mg, from: fromHeader(cfg)}, nil
}

func (t *mailgunTransport) deliver(ctx context.Context, m Message) error {
	msg := t.mg.NewMessage(t.from, m.Subject, m.Text)
	if err := msg.AddRecipient(m.To); err != nil {
		return fmt.Errorf("mailgun: recipient: %w", err)
	}
	msg.SetHtml(m.HTML)

	if _, _, err := t.mg.Send(ctx, msg); err != nil {
		return fmt.Errorf("mailgun: send: %w", err)
	}
	return nil
}

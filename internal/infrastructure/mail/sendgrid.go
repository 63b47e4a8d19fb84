package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/99minutos/identity-service/internal/pkg/config"
)

type sendGridTransport struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

func newSendGrid(cfg config.MailConfig) (*sendGridTransport, error) {
	if cfg.SendGridKey == "" {
		return nil, errors.New("mail: SENDGRID_API_KEY is required")
	}
	return &sendGridTransport{
		client: sendgrid.NewSendClient(cfg.SendGridKey),
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
	}, nil
}

func (t *sendGridTransport) deliver(ctx context.Context, m Message) error {
	to := sgmail.NewEmail(m.Name, m.To)
	msg := sgmail.NewSingleEmail(t.from, m.Subject, to, m.Text, m.HTML)

	resp, err := t.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: send: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendgrid: unexpected status %d", resp.StatusCode)
	}
	return nil
}

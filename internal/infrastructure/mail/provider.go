// Package mail sends the identity notifications through the configured
// provider.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
	"github.com/99minutos/identity-service/internal/pkg/config"
)

// transport delivers one rendered message.
type transport interface {
	deliver(ctx context.Context, m Message) error
}

// Mailer renders notifications and hands them to a transport.
type Mailer struct {
	app       string
	transport transport
}

var _ ports.Mailer = (*Mailer)(nil)

// New selects a transport from cfg.Provider: mailgun, sendgrid, smtp or log.
func New(cfg config.MailConfig, app string, log zerolog.Logger) (*Mailer, error) {
	var (
		t   transport
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "mailgun":
		t, err = newMailgun(cfg)
	case "sendgrid":
		t, err = newSendGrid(cfg)
	case "smtp":
		t, err = newSMTP(cfg)
	case "log", "":
		t = newLogTransport(log)
	default:
		return nil, fmt.Errorf("mail: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &Mailer{app: app, transport: t}, nil
}

func (m *Mailer) Send(ctx context.Context, n domain.Notification) error {
	if n.To == "" {
		return errors.New("mail: empty recipient")
	}
	msg, err := Render(m.app, n)
	if err != nil {
		return err
	}
	return m.transport.deliver(ctx, msg)
}

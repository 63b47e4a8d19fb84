package mail

import (
	"context"

	"github.com/rs/zerolog"
)

// logTransport writes messages to the log instead of sending them. Used in
// development and tests where the link is also returned in the response.
type logTransport struct {
	log zerolog.Logger
}

func newLogTransport(log zerolog.Logger) *logTransport {
	return &logTransport{log: log}
}

func (t *logTransport) deliver(_ context.Context, m Message) error {
	t.log.Info().
		Str("to", m.To).
		Str("subject", m.Subject).
		Msg("mail not sent: log provider")
	t.log.Debug().Str("to", m.To).Str("body", m.Text).Msg("mail body")
	return nil
}

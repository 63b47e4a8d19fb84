package ports

import (
	"context"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// Mailer delivers a single message synchronously.
type Mailer interface {
	Send(ctx context.Context, n domain.Notification) error
}

// Notifier accepts a message for asynchronous delivery. Notify never blocks
// the caller and never reports delivery failures.
type Notifier interface {
	Notify(n domain.Notification)
}

// Package observability wires error tracking.
package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/99minutos/identity-service/internal/pkg/config"
)

const flushTimeout = 2 * time.Second

// InitSentry configures the global Sentry client. With no DSN the client is
// left disabled and captures are dropped. The returned func flushes pending
// events and must be called on shutdown.
func InitSentry(cfg config.SentryConfig, env, release string) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      env,
		Release:          release,
		SampleRate:       cfg.SampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	return func() { sentry.Flush(flushTimeout) }, nil
}

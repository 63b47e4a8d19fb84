package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/api/metrics"
	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

const (
	defaultWorkers = 4
	defaultTimeout = 15 * time.Second
	channelBuffer  = 256
)

var _ ports.Notifier = (*MailDispatcher)(nil)

// MailDispatcher delivers notifications off the request path. Messages are
// sharded on the recipient so mail to one address is sent in order.
type MailDispatcher struct {
	workers []chan domain.Notification
	mailer  ports.Mailer
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewMailDispatcher creates a dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewMailDispatcher(numWorkers int, timeout time.Duration, mailer ports.Mailer, log zerolog.Logger) *MailDispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	d := &MailDispatcher{
		workers: make([]chan domain.Notification, numWorkers),
		mailer:  mailer,
		timeout: timeout,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.Notification, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Cancelling ctx abandons queued mail;
// use Stop to drain.
func (d *MailDispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Notify queues n without blocking. When the worker's queue is full the
// message is dropped and counted.
func (d *MailDispatcher) Notify(n domain.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(n, "dispatcher stopped")
		return
	}

	idx := d.shardIndex(n.To)
	select {
	case d.workers[idx] <- n:
		metrics.MailQueueDepth.WithLabelValues(strconv.Itoa(idx)).Inc()
	default:
		d.drop(n, "queue full")
	}
}

// Stop refuses new messages and waits for queued ones to be sent, or for
// ctx to end.
func (d *MailDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shardIndex maps a recipient deterministically to a worker index.
func (d *MailDispatcher) shardIndex(recipient string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(domain.NormalizeEmail(recipient)))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *MailDispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.Notification) {
	defer d.wg.Done()
	depth := metrics.MailQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			depth.Dec()
			d.deliver(ctx, id, n)
		}
	}
}

func (d *MailDispatcher) deliver(ctx context.Context, id int, n domain.Notification) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.mailer.Send(sendCtx, n); err != nil {
		metrics.MailSentTotal.WithLabelValues(string(n.Kind), "failed").Inc()
		d.log.Warn().Err(err).
			Str("kind", string(n.Kind)).
			Str("to", n.To).
			Int("worker_id", id).
			Msg("mail delivery failed")
		return
	}
	metrics.MailSentTotal.WithLabelValues(string(n.Kind), "sent").Inc()
	d.log.Debug().Str("kind", string(n.Kind)).Str("to", n.To).Msg("mail sent")
}

func (d *MailDispatcher) drop(n domain.Notification, reason string) {
	metrics.MailSentTotal.WithLabelValues(string(n.Kind), "dropped").Inc()
	d.log.Warn().Str("kind", string(n.Kind)).Str("to", n.To).Str("reason", reason).Msg("mail dropped")
}

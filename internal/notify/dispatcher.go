package notify

import (
	"context"
	"log/slog"
	"time"

	"adpoints/internal/metrics"
)

// Message is a notification intent emitted by the ledger-side components.
type Message struct {
	Recipient string
	Text      string
}

// Dispatcher delivers notification intents asynchronously. Enqueue never
// blocks and never fails the caller: delivery is best effort, failures are
// logged and counted only. A nil *Dispatcher drops everything silently, which
// keeps notification wiring optional.
type Dispatcher struct {
	sender  Sender
	queue   chan Message
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher creates a dispatcher with the given queue depth.
func NewDispatcher(sender Sender, depth int, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if depth <= 0 {
		depth = 256
	}
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan Message, depth),
		logger:  logger.With("component", "notify"),
		metrics: m,
	}
}

// Start drains the queue until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			d.deliver(msg)
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := d.sender.Send(ctx, msg.Recipient, msg.Text); err != nil {
		d.metrics.NotifyMessages.WithLabelValues("failed").Inc()
		d.logger.Warn("notification delivery failed", "recipient", msg.Recipient, "error", err)
		return
	}
	d.metrics.NotifyMessages.WithLabelValues("sent").Inc()
}

// Enqueue queues a message for delivery. Messages to an empty recipient and
// messages that do not fit the queue are dropped.
func (d *Dispatcher) Enqueue(recipient, text string) {
	if d == nil || recipient == "" {
		return
	}
	select {
	case d.queue <- Message{Recipient: recipient, Text: text}:
	default:
		d.metrics.NotifyMessages.WithLabelValues("dropped").Inc()
		d.logger.Warn("notification queue full, dropping message", "recipient", recipient)
	}
}

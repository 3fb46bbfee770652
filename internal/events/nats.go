package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var _ Bus = (*NATSBus)(nil)

type NATSBus struct {
	nats *nats.Conn
	js   nats.JetStreamContext
	log  *slog.Logger

	// handlerTimeout bounds one delivery; the ack wait is set a little longer
	// so the server does not redeliver a message that is still being handled.
	handlerTimeout time.Duration
	maxAckPending  int
}

// DefaultMaxAckPending is the number of unacknowledged jobs a worker holds per subject.
const DefaultMaxAckPending = 10

type NATSOption func(*NATSBus)

func WithHandlerTimeout(d time.Duration) NATSOption {
	return func(b *NATSBus) { b.handlerTimeout = d }
}

// WithMaxAckPending bounds concurrent deliveries per subject. Non-positive values keep the default.
func WithMaxAckPending(n int) NATSOption {
	return func(b *NATSBus) {
		if n > 0 {
			b.maxAckPending = n
		}
	}
}

func NewNATSBus(addr, name string, logger *slog.Logger, opts ...NATSOption) (*NATSBus, error) {
	natsOpts := []nats.Option{
		nats.Name(name),

		// Resilience: NEVER give up trying to reconnect.
		nats.MaxReconnects(-1),
		nats.ReconnectWait(3 * time.Second),

		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected! Buffering messages...", "error", err)
		}),

		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected successfully!", "url", nc.ConnectedUrl())
		}),

		// If the connection is permanently dead (e.g. auth failure),
		// kill the app so the orchestrator restarts it with fresh config/state.
		nats.ClosedHandler(func(nc *nats.Conn) {
			if nc.LastError() != nil {
				logger.Error("NATS connection closed permanently. Exiting process.", "error", nc.LastError())
				os.Exit(1)
			}
		}),
	}
	nc, err := nats.Connect(addr, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create nats client: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	b := &NATSBus{
		nats:           nc,
		js:             js,
		log:            logger,
		handlerTimeout: 5 * time.Minute,
		maxAckPending:  DefaultMaxAckPending,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// EnsureStream creates the stream capturing subjects unless it exists.
func (b *NATSBus) EnsureStream(name string, subjects []string) error {
	_, err := b.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", name, err)
	}

	b.log.Info("Creating stream", "stream", name, "subjects", subjects)
	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:       name,
		Subjects:   subjects,
		Retention:  nats.WorkQueuePolicy,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	return nil
}

func (b *NATSBus) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	b.log.DebugContext(ctx, "Publishing event", "subject", subject, "data_size", len(data), "msg_id", msgID)

	msg := nats.NewMsg(subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	var opts []nats.PubOpt
	if msgID != "" {
		opts = append(opts, nats.MsgId(msgID))
	}
	opts = append(opts, nats.Context(ctx))

	_, err := b.js.PublishMsg(msg, opts...)
	return err
}

func (b *NATSBus) Subscribe(subject string, group string, handler Handler) (Subscription, error) {
	b.log.Info("Subscribing to subject", "subject", subject, "queue", group)

	opts := []nats.SubOpt{
		// One durable per subject: the group alone would be shared by every subject.
		nats.Durable(durableName(group, subject)),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(b.handlerTimeout + 30*time.Second),
		nats.DeliverAll(),
		nats.MaxAckPending(b.maxAckPending),
	}

	sub, err := b.js.QueueSubscribe(subject, group, func(msg *nats.Msg) {
		// Fresh context per message, carrying the publisher's trace.
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))
		ctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
		defer cancel()

		if err := handler(ctx, msg.Data); err != nil {
			b.log.ErrorContext(ctx, "Handler failed, Nacking message", "subject", subject, "error", err)
			if err := msg.Nak(); err != nil {
				b.log.ErrorContext(ctx, "Failed to Nak message", "subject", subject, "error", err)
			}
			return
		}

		if err := msg.Ack(); err != nil {
			b.log.ErrorContext(ctx, "Failed to Ack message", "subject", subject, "error", err)
		}
	}, opts...)

	if err != nil {
		return Subscription{}, fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	return Subscription{
		Unsubscribe: func() error {
			return sub.Unsubscribe()
		},
	}, nil
}

// durableName derives a consumer name; durable names may not contain dots.
func durableName(group, subject string) string {
	return strings.NewReplacer(".", "_", "*", "all", ">", "rest").Replace(group + "_" + subject)
}

// Connected reports whether the connection to the server is up.
func (b *NATSBus) Connected() bool {
	return b.nats.IsConnected()
}

// Close drains the connection: in-flight handlers finish before it closes.
func (b *NATSBus) Close() error {
	b.log.Info("Draining NATS connection")
	return b.nats.Drain()
}

package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/mail"
	pkgkafka "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/kafka"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/tracing"
)

const tracerName = "upcontacts/event"

// ConsumerGroupID is the consumer group of the notification path.
const ConsumerGroupID = "upcontacts-notifier"

// Link paths rendered into notification emails.
const (
	VerifyEmailPath   = "/auth/verify-email"
	ResetPasswordPath = "/auth/reset-password"
)

// NotificationTopics lists the topics the notification path consumes.
func NotificationTopics() []string {
	return []string{TopicVerificationRequested, TopicPasswordResetRequested}
}

// ConsumerHandler turns auth events into outgoing email.
type ConsumerHandler struct {
	sender  mail.Sender
	baseURL string
	logger  *slog.Logger
}

// NewConsumerHandler creates a new event consumer handler. baseURL prefixes
// the links placed in emails.
func NewConsumerHandler(sender mail.Sender, baseURL string, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{
		sender:  sender,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Handle processes an incoming event based on its event type.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicVerificationRequested:
		return h.handleVerificationRequested(ctx, event)
	case TopicPasswordResetRequested:
		return h.handlePasswordResetRequested(ctx, event)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (h *ConsumerHandler) handleVerificationRequested(ctx context.Context, event *pkgkafka.Event) error {
	var data VerificationRequestedData
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	msg, err := mail.VerificationEmail(data.Email, mail.Link(h.baseURL, VerifyEmailPath, data.Token))
	if err != nil {
		return err
	}

	return h.send(ctx, event, data.UserID, msg)
}

func (h *ConsumerHandler) handlePasswordResetRequested(ctx context.Context, event *pkgkafka.Event) error {
	var data PasswordResetRequestedData
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	ttl := data.ExpiresAt.Sub(event.Timestamp).Round(time.Minute)
	if ttl <= 0 {
		h.logger.InfoContext(ctx, "reset token already expired, email skipped",
			slog.String("event_id", event.EventID),
			slog.Int64("user_id", data.UserID),
		)
		return nil
	}

	msg, err := mail.PasswordResetEmail(data.Email, mail.Link(h.baseURL, ResetPasswordPath, data.Token), ttl.String())
	if err != nil {
		return err
	}

	return h.send(ctx, event, data.UserID, msg)
}

func (h *ConsumerHandler) send(ctx context.Context, event *pkgkafka.Event, userID int64, msg mail.Message) error {
	ctx, span := tracing.Start(ctx, tracerName, "mail.Send",
		attribute.String("event.type", event.EventType),
		attribute.String("mail.sender", h.sender.Name()),
	)
	defer span.End()

	if err := h.sender.Send(ctx, msg); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("send %s email via %s: %w", event.EventType, h.sender.Name(), err)
	}

	h.logger.InfoContext(ctx, "notification email sent",
		slog.String("event_type", event.EventType),
		slog.String("event_id", event.EventID),
		slog.Int64("user_id", userID),
		slog.String("sender", h.sender.Name()),
	)
	return nil
}

// ConsumerOptions configures NewConsumers.
type ConsumerOptions struct {
	Brokers []string
	GroupID string
	// Store deduplicates redelivered events. Nil disables deduplication.
	Store pkgkafka.IdempotencyStore
	// DLQ receives events that exhausted their retries.
	DLQ *pkgkafka.DLQProducer
}

// NewConsumers creates one Kafka consumer per notification topic.
func NewConsumers(opts ConsumerOptions, handler *ConsumerHandler, logger *slog.Logger) []*pkgkafka.Consumer {
	group := opts.GroupID
	if group == "" {
		group = ConsumerGroupID
	}

	handle := pkgkafka.Handler(handler.Handle)
	if opts.Store != nil {
		handle = pkgkafka.IdempotentHandler(opts.Store, group, handle, logger)
	}

	topics := NotificationTopics()
	consumers := make([]*pkgkafka.Consumer, 0, len(topics))

	for _, topic := range topics {
		cfg := pkgkafka.ConsumerConfig{
			Brokers:    opts.Brokers,
			GroupID:    group,
			Topic:      topic,
			MinBytes:   1,
			MaxBytes:   10e6,
			MaxRetries: pkgkafka.DefaultMaxRetries,
			DLQ:        opts.DLQ,
		}

		consumers = append(consumers, pkgkafka.NewConsumer(cfg, handle, logger))
	}

	return consumers
}

// SubscribeLocal wires the handler to the in-process bus for every
// notification topic.
func SubscribeLocal(bus *LocalBus, handler *ConsumerHandler) {
	for _, topic := range NotificationTopics() {
		bus.Subscribe(topic, handler.Handle)
	}
}

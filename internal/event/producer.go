package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
	pkgkafka "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/kafka"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/logger"
)

// Topics for user and contact domain events.
var (
	TopicVerificationRequested  = pkgkafka.Topic("user", "verification_requested")
	TopicPasswordResetRequested = pkgkafka.Topic("user", "password_reset_requested")
	TopicContactCreated         = pkgkafka.Topic("contact", "created")
	TopicContactUpdated         = pkgkafka.Topic("contact", "updated")
	TopicContactDeleted         = pkgkafka.Topic("contact", "deleted")
)

// Aggregate type constants.
const (
	AggregateTypeUser    = "user"
	AggregateTypeContact = "contact"
)

// Source identifies events originating from this service.
const Source = "upcontacts-api"

// VerificationRequestedData is the payload for user.verification_requested.
type VerificationRequestedData struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

// PasswordResetRequestedData is the payload for user.password_reset_requested.
// Token is the raw reset token; only its hash is stored.
type PasswordResetRequestedData struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ContactData is the payload for contact.created and contact.updated.
type ContactData struct {
	ID      int64  `json:"id"`
	UserID  int64  `json:"user_id"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
}

// ContactDeletedData is the payload for contact.deleted.
type ContactDeletedData struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
}

// Publisher delivers an event envelope to a topic. *pkgkafka.Producer and
// *LocalBus both satisfy it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer builds domain events and hands them to a Publisher.
type Producer struct {
	pub    Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(pub Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		pub:    pub,
		logger: logger,
	}
}

// PublishVerificationRequested asks for a verification email to be sent.
func (p *Producer) PublishVerificationRequested(ctx context.Context, u *domain.User, token string) error {
	return p.publish(ctx, TopicVerificationRequested, u.ID, AggregateTypeUser, VerificationRequestedData{
		UserID: u.ID,
		Email:  u.Email,
		Token:  token,
	})
}

// PublishPasswordResetRequested asks for a password reset email to be sent.
func (p *Producer) PublishPasswordResetRequested(ctx context.Context, u *domain.User, token string, expiresAt time.Time) error {
	return p.publish(ctx, TopicPasswordResetRequested, u.ID, AggregateTypeUser, PasswordResetRequestedData{
		UserID:    u.ID,
		Email:     u.Email,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// PublishContactCreated publishes a contact.created event.
func (p *Producer) PublishContactCreated(ctx context.Context, c *domain.Contact) error {
	return p.publish(ctx, TopicContactCreated, c.ID, AggregateTypeContact, contactData(c))
}

// PublishContactUpdated publishes a contact.updated event.
func (p *Producer) PublishContactUpdated(ctx context.Context, c *domain.Contact) error {
	return p.publish(ctx, TopicContactUpdated, c.ID, AggregateTypeContact, contactData(c))
}

// PublishContactDeleted publishes a contact.deleted event.
func (p *Producer) PublishContactDeleted(ctx context.Context, userID, id int64) error {
	return p.publish(ctx, TopicContactDeleted, id, AggregateTypeContact, ContactDeletedData{
		ID:     id,
		UserID: userID,
	})
}

func contactData(c *domain.Contact) ContactData {
	return ContactData{
		ID:      c.ID,
		UserID:  c.UserID,
		Name:    c.Name,
		Surname: c.Surname,
		Email:   c.Email,
	}
}

func (p *Producer) publish(ctx context.Context, topic string, aggregateID int64, aggregateType string, data any) error {
	id := strconv.FormatInt(aggregateID, 10)

	event, err := pkgkafka.NewEvent(topic, id, aggregateType, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if corrID := logger.CorrelationIDFromContext(ctx); corrID != "" {
		event.WithCorrelationID(corrID)
	}

	if err := p.pub.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("event_id", event.EventID),
		slog.String("aggregate_id", id),
	)

	return nil
}

package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/kafka"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/logger"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
)

// Event types published by the identity service.
const (
	TypeRegistered      = "registered"
	TypeLoggedIn        = "logged_in"
	TypeSignedOut       = "signed_out"
	TypeSignOutAll      = "sign_out_all"
	TypePasswordChanged = "password_changed"
	TypeRolesChanged    = "roles_changed"
	TypeDeactivated     = "deactivated"
)

const domainName = "identity"

// AggregateTypePrincipal is the aggregate type of every identity event.
const AggregateTypePrincipal = "principal"

// SourceIdentityService identifies events originating from this service.
const SourceIdentityService = "identity-service"

// Topic returns the Kafka topic for an identity event type.
func Topic(eventType string) string {
	return pkgkafka.Topic(domainName, eventType)
}

// PrincipalData is the payload of registration and role events.
type PrincipalData struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// SessionData is the payload of login and sign-out events.
type SessionData struct {
	PrincipalID string `json:"principal_id"`
	Revoked     int64  `json:"revoked,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Producer publishes identity events to Kafka.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer for the identity service.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishRegistered publishes an identity.registered event.
func (p *Producer) PublishRegistered(ctx context.Context, principal *domain.Principal) error {
	return p.publish(ctx, TypeRegistered, principal.ID, PrincipalData{
		ID:    principal.ID,
		Email: principal.Email,
		Roles: principal.Roles,
	})
}

// PublishRolesChanged publishes an identity.roles_changed event.
func (p *Producer) PublishRolesChanged(ctx context.Context, principal *domain.Principal) error {
	return p.publish(ctx, TypeRolesChanged, principal.ID, PrincipalData{
		ID:    principal.ID,
		Email: principal.Email,
		Roles: principal.Roles,
	})
}

// PublishSession publishes one of the session lifecycle events: logged_in,
// signed_out, sign_out_all, password_changed or deactivated.
func (p *Producer) PublishSession(ctx context.Context, eventType string, data SessionData) error {
	return p.publish(ctx, eventType, data.PrincipalID, data)
}

func (p *Producer) publish(ctx context.Context, eventType, aggregateID string, data any) error {
	topic := Topic(eventType)

	evt, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypePrincipal, SourceIdentityService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	evt.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published identity event",
		slog.String("topic", topic),
		slog.String("principal_id", aggregateID),
	)

	return nil
}

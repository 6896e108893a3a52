// Package events delivers outbox messages to Google Cloud Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// Config selects the project and topic.
type Config struct {
	ProjectID       string
	Topic           string
	CredentialsJSON string
}

// Publisher sends one message and waits for the server id.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) (string, error)
}

// Envelope is the wire format of every published event.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewClient opens a Pub/Sub client. Application Default Credentials are used
// unless CredentialsJSON is set.
func NewClient(ctx context.Context, cfg Config) (*pubsub.Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return client, nil
}

// EnsureTopic returns the topic, creating it when missing. Message ordering is
// enabled so events of one aggregate arrive in commit order.
func EnsureTopic(ctx context.Context, client *pubsub.Client, name string) (*pubsub.Topic, error) {
	if name == "" {
		return nil, errors.New("topic is required")
	}
	t := client.Topic(name)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %q: %w", name, err)
	}
	if !ok {
		if t, err = client.CreateTopic(ctx, name); err != nil {
			return nil, fmt.Errorf("create topic %q: %w", name, err)
		}
	}
	t.EnableMessageOrdering = true
	return t, nil
}

// TopicPublisher adapts a *pubsub.Topic to Publisher.
type TopicPublisher struct {
	topic *pubsub.Topic
}

// NewTopicPublisher wraps topic.
func NewTopicPublisher(topic *pubsub.Topic) *TopicPublisher {
	return &TopicPublisher{topic: topic}
}

// Publish implements Publisher. A failed ordered publish pauses its ordering
// key; it is resumed so the relay's retry can go through.
func (p *TopicPublisher) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	serverID, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		p.topic.ResumePublish(msg.OrderingKey)
	}
	return serverID, err
}

var _ postgres.OutboxHandler = (*OutboxHandler)(nil)

// OutboxHandler publishes outbox rows. The relay retries on error.
type OutboxHandler struct {
	publisher Publisher
	timeout   time.Duration
}

// NewOutboxHandler creates a handler over publisher.
func NewOutboxHandler(publisher Publisher) *OutboxHandler {
	return &OutboxHandler{publisher: publisher, timeout: 30 * time.Second}
}

// Handle implements postgres.OutboxHandler.
func (h *OutboxHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	message, err := toPubSub(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	serverID, err := h.publisher.Publish(ctx, message)
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.EventType, err)
	}
	logger.Debug(ctx, "event published", "event_type", msg.EventType, "message_id", msg.ID, "server_id", serverID)
	return nil
}

func toPubSub(msg *postgres.OutboxMessage) (*pubsub.Message, error) {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	data, err := json.Marshal(Envelope{
		ID:            msg.ID.String(),
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID.String(),
		EventType:     msg.EventType,
		Payload:       payload,
		OccurredAt:    msg.CreatedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type":     msg.EventType,
			"aggregate_type": msg.AggregateType,
			"event_id":       msg.ID.String(),
		},
		OrderingKey: msg.AggregateID.String(),
	}, nil
}

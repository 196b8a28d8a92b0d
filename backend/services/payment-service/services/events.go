package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/caffeinepub/openframe-education/backend/services/payment-service/models"
)

// EventPublisher delivers payment events to the rest of the platform.
type EventPublisher interface {
	Publish(ctx context.Context, event models.PaymentEvent) error
}

type typedPublisher interface {
	PublishWithType(ctx context.Context, topicArn, eventType string, message []byte) error
}

// SNSEventPublisher fans payment events out through an SNS topic, tagging
// each message with its event type so subscriptions can filter.
type SNSEventPublisher struct {
	client   typedPublisher
	topicArn string
}

func NewSNSEventPublisher(client typedPublisher, topicArn string) *SNSEventPublisher {
	return &SNSEventPublisher{client: client, topicArn: topicArn}
}

func (p *SNSEventPublisher) Publish(ctx context.Context, event models.PaymentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	return p.client.PublishWithType(ctx, p.topicArn, event.Type, payload)
}

// NoopPublisher drops events. Used when EVENT_BUS is unset.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.PaymentEvent) error { return nil }

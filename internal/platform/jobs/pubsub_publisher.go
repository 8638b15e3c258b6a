package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/studiopos/api/internal/services"
)

// PubSubEventPublisher publishes finalized transaction events to a Pub/Sub topic.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.EventPublisher = (*PubSubEventPublisher)(nil)

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Publish enqueues the event payload on the configured topic. The event name
// and org id travel as attributes so consumers can filter without decoding.
func (p *PubSubEventPublisher) Publish(ctx context.Context, event services.Event) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	if strings.TrimSpace(event.Name) == "" {
		return errors.New("pubsub event publisher: event name is required")
	}

	data, err := p.marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "event", event.Name)
	setAttr(attrs, "orgId", event.OrgID)
	for key, value := range event.Attributes {
		setAttr(attrs, key, value)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Name, err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

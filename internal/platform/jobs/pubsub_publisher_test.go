package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/studiopos/api/internal/services"
)

func TestPubSubEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "pos-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	event := services.Event{
		Name:  "transaction.finalized",
		OrgID: "org-1",
		Payload: map[string]any{
			"transactionId": "txn_01HYZ",
			"total":         int64(10395),
		},
		Attributes: map[string]string{
			"status": "succeeded",
		},
	}

	if err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload map[string]any
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["transactionId"] != "txn_01HYZ" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["event"]; attr != "transaction.finalized" {
		t.Fatalf("expected event attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["orgId"]; attr != "org-1" {
		t.Fatalf("expected org attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["status"]; attr != "succeeded" {
		t.Fatalf("expected status attribute, got %q", attr)
	}
}

func TestPubSubEventPublisherRequiresName(t *testing.T) {
	publisher := &PubSubEventPublisher{topic: &pubsub.Topic{}, marshal: json.Marshal}
	if err := publisher.Publish(context.Background(), services.Event{}); err == nil {
		t.Fatal("expected error for missing event name")
	}
}

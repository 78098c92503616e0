package eventpublisher

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iho/gobank/internal/domain"
)

func sampleEvent() *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:            "evt-9",
		AggregateID:   "100000000001",
		AggregateType: domain.AggregateTypeAccount,
		EventType:     domain.EventTypeTransactionRecorded,
		Payload:       map[string]any{"amount": "25.00"},
		CreatedAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestLogPublisherWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))

	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"event_id":"evt-9"`) || !strings.Contains(out, `"amount":"25.00"`) {
		t.Fatalf("unexpected log line: %s", out)
	}
}

func TestRedisPublisherSendsToChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "gobank.events")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	p := NewRedisPublisher(client, "gobank.events")
	if err := p.Publish(ctx, sampleEvent()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	var got message
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.ID != "evt-9" || got.AggregateID != "100000000001" || got.Payload["amount"] != "25.00" {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestRedisPublisherServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	if err := NewRedisPublisher(client, "c").Publish(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected error when redis is unavailable")
	}
}

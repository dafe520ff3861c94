//go:build integration

package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/parser"
	"github.com/MikeSquared-Agency/tempo/internal/scheduler"
	"github.com/MikeSquared-Agency/tempo/internal/slots"
	"github.com/MikeSquared-Agency/tempo/internal/split"
	"github.com/MikeSquared-Agency/tempo/internal/store"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_PubSub(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()
	logger := slog.Default()

	client, err := NewClient(ctx, natsURL, os.Getenv("NATS_TOKEN"), logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan map[string]string, 1)

	err = client.Subscribe("tempo.test.>", func(subject string, data []byte) {
		var msg map[string]string
		json.Unmarshal(data, &msg)
		received <- msg
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	err = client.Publish("tempo.test.ping", map[string]string{
		"message": "hello from integration test",
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg["message"] != "hello from integration test" {
			t.Errorf("expected hello message, got %v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestIntegration_ScheduleRequest(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()
	logger := slog.Default()

	client, err := NewClient(ctx, natsURL, os.Getenv("NATS_TOKEN"), logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	finder := slots.NewFinder(slots.DefaultPolicy(), time.UTC)
	svc := scheduler.New(store.NewMemory(), parser.NewRules(time.UTC, nil, time.Hour), finder,
		split.NewSplitter(split.DefaultPolicy(), finder), client, time.Second, logger)

	replies := make(chan scheduler.ScheduleReply, 1)
	if err := client.Subscribe(scheduler.SubjectScheduleCompleted, func(_ string, data []byte) {
		var reply scheduler.ScheduleReply
		json.Unmarshal(data, &reply)
		replies <- reply
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := client.QueueSubscribe(scheduler.SubjectScheduleRequested, svc.HandleScheduleRequest); err != nil {
		t.Fatalf("queue subscribe failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := client.Publish(scheduler.SubjectScheduleRequested, scheduler.ScheduleRequest{
		RequestID: "it-1",
		Text:      "integration check tomorrow at 10am",
	}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case reply := <-replies:
		if reply.RequestID != "it-1" || reply.Event == nil {
			t.Errorf("unexpected reply %+v", reply)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

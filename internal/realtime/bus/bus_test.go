package bus

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Message
	if err := b.Subscribe(ctx, func(m Message) { got = append(got, m) }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Publish(ctx, Message{Type: "file_ingested", Data: json.RawMessage(`{"file_id":"x"}`)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0].Type != "file_ingested" {
		t.Fatalf("unexpected messages: %+v", got)
	}
	if got[0].SentAt.IsZero() {
		t.Fatalf("SentAt should be stamped")
	}

	_ = b.Close()
	if err := b.Publish(ctx, Message{Type: "late"}); err == nil {
		t.Fatalf("publish after close should fail")
	}
}

func TestNewRedisBus_DisabledWithoutAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	b, err := NewRedisBus(logger.Nop())
	if err != nil || b != nil {
		t.Fatalf("want disabled bus, got %v %v", b, err)
	}
}

func TestChannelFor(t *testing.T) {
	if got := channelFor("atlas-ingest", "file_ingested"); got != "atlas-ingest:file_ingested" {
		t.Fatalf("channel: %q", got)
	}
	if got := channelFor("atlas-ingest", " "); got != "atlas-ingest:untyped" {
		t.Fatalf("channel for empty type: %q", got)
	}
}

func TestRedisBus_RoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	b, err := DialRedis(logger.Nop(), RedisOptions{Addr: addr, ChannelPrefix: "atlas-ingest-test"})
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got := make(chan Message, 1)
	if err := b.Subscribe(ctx, func(m Message) { got <- m }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Publish(ctx, Message{Type: "file_ingested"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case m := <-got:
		if m.Type != "file_ingested" {
			t.Fatalf("type: %q", m.Type)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for message")
	}
}

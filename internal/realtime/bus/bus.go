package bus

import (
	"context"
	"encoding/json"
	"time"
)

// Message is one ingestion event as carried on the bus.
type Message struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	SentAt time.Time       `json:"sent_at"`
}

type Bus interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe delivers messages to onMsg until ctx is done.
	Subscribe(ctx context.Context, onMsg func(m Message)) error
	Close() error
}

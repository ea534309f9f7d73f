package app

import (
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/atlas-ingest/internal/platform/logger"
	"github.com/yungbote/atlas-ingest/internal/realtime/bus"
	"github.com/yungbote/atlas-ingest/internal/temporalx"
)

// Clients holds the optional outbound connections. Either may be nil when unconfigured.
type Clients struct {
	Temporal temporalsdkclient.Client
	Events   bus.Bus
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	tc, err := temporalx.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}

	events, err := bus.NewRedisBus(log)
	if err != nil {
		if tc != nil {
			tc.Close()
		}
		return Clients{}, fmt.Errorf("init redis event bus: %w", err)
	}

	return Clients{Temporal: tc, Events: events}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Events != nil {
		_ = c.Events.Close()
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
}

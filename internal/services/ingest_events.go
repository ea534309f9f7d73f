package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/atlas-ingest/internal/domain/aggregates"
	"github.com/yungbote/atlas-ingest/internal/observability"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
	"github.com/yungbote/atlas-ingest/internal/realtime/bus"
)

const EventFileIngested = "file_ingested"

type FileIngestedEvent struct {
	FileID          uuid.UUID  `json:"file_id"`
	AtlasID         uuid.UUID  `json:"atlas_id"`
	ConceptID       uuid.UUID  `json:"concept_id"`
	FileType        string     `json:"file_type"`
	EntityID        *uuid.UUID `json:"entity_id"`
	EntityVersionID *uuid.UUID `json:"entity_version_id"`
	CreatedEntity   bool       `json:"created_entity"`
}

// IngestEventPublisher announces committed file versions. Publishing is best effort.
type IngestEventPublisher interface {
	FileIngested(ctx context.Context, res domainagg.IngestFileResult)
}

type ingestEventPublisher struct {
	log *logger.Logger
	bus bus.Bus
}

// NewIngestEventPublisher returns a publisher on b. A nil bus publishes nothing.
func NewIngestEventPublisher(baseLog *logger.Logger, b bus.Bus) IngestEventPublisher {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &ingestEventPublisher{log: baseLog.With("service", "IngestEventPublisher"), bus: b}
}

func (p *ingestEventPublisher) FileIngested(ctx context.Context, res domainagg.IngestFileResult) {
	if p == nil || p.bus == nil {
		return
	}
	data, err := json.Marshal(FileIngestedEvent{
		FileID:          res.FileID,
		AtlasID:         res.AtlasID,
		ConceptID:       res.ConceptID,
		FileType:        string(res.FileType),
		EntityID:        res.EntityID,
		EntityVersionID: res.EntityVersionID,
		CreatedEntity:   res.CreatedEntity,
	})
	if err != nil {
		p.log.Warn("Failed to encode ingest event", "file_id", res.FileID, "error", err)
		return
	}
	msg := bus.Message{Type: EventFileIngested, Data: data, SentAt: time.Now().UTC()}
	if err := p.bus.Publish(ctx, msg); err != nil {
		observability.Current().IncEventPublished("failed")
		p.log.Warn("Failed to publish ingest event", "file_id", res.FileID, "error", err)
		return
	}
	observability.Current().IncEventPublished("ok")
}

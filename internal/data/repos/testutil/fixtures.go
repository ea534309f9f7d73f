package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	types "github.com/yungbote/atlas-ingest/internal/domain"
)

// SeedAtlas inserts an atlas row with empty entity arrays. Short names are stored as given;
// concept matching lowercases them.
func SeedAtlas(tb testing.TB, ctx context.Context, tx *gorm.DB, network, shortName string, generation, revision int) *types.Atlas {
	tb.Helper()
	a := &types.Atlas{
		ID:               uuid.New(),
		Network:          network,
		ShortName:        shortName,
		Generation:       generation,
		Revision:         revision,
		Status:           types.AtlasStatusDraft,
		SourceDatasets:   pq.StringArray{},
		ComponentAtlases: pq.StringArray{},
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed atlas: %v", err)
	}
	return a
}

// SeedFile inserts a latest file row for the concept, linked to the given entity version when non-nil.
func SeedFile(tb testing.TB, ctx context.Context, tx *gorm.DB, conceptID uuid.UUID, fileType types.FileType, key, messageID string, eventTime time.Time, entityVersionID *uuid.UUID) *types.File {
	tb.Helper()
	f := &types.File{
		ID:               uuid.New(),
		Bucket:           "test-bucket",
		Key:              key,
		ETag:             "etag-" + messageID,
		SizeBytes:        1,
		EventName:        "ObjectCreated:Put",
		EventTime:        eventTime.UTC(),
		SNSMessageID:     messageID,
		IsLatest:         true,
		FileType:         fileType,
		ConceptID:        conceptID,
		ValidationStatus: types.ValidationStatusPending,
		IntegrityStatus:  types.IntegrityStatusPending,
	}
	switch fileType {
	case types.FileTypeSourceDataset:
		f.SourceDatasetID = entityVersionID
	case types.FileTypeIntegratedObject:
		f.ComponentAtlasID = entityVersionID
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed file: %v", err)
	}
	return f
}

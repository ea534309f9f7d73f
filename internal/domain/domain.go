package domain

import "github.com/yungbote/atlas-ingest/internal/domain/atlas"

type (
	Concept        = atlas.Concept
	ConceptKey     = atlas.ConceptKey
	Atlas          = atlas.Atlas
	File           = atlas.File
	ComponentAtlas = atlas.ComponentAtlas
	SourceDataset  = atlas.SourceDataset

	FileType         = atlas.FileType
	ValidationStatus = atlas.ValidationStatus
	IntegrityStatus  = atlas.IntegrityStatus
	AtlasStatus      = atlas.AtlasStatus
)

const (
	FileTypeSourceDataset    = atlas.FileTypeSourceDataset
	FileTypeIntegratedObject = atlas.FileTypeIntegratedObject
	FileTypeIngestManifest   = atlas.FileTypeIngestManifest

	ValidationStatusPending       = atlas.ValidationStatusPending
	ValidationStatusRequested     = atlas.ValidationStatusRequested
	ValidationStatusRequestFailed = atlas.ValidationStatusRequestFailed
	ValidationStatusCompleted     = atlas.ValidationStatusCompleted
	ValidationStatusJobFailed     = atlas.ValidationStatusJobFailed

	IntegrityStatusPending   = atlas.IntegrityStatusPending
	IntegrityStatusRequested = atlas.IntegrityStatusRequested
	IntegrityStatusValid     = atlas.IntegrityStatusValid
	IntegrityStatusInvalid   = atlas.IntegrityStatusInvalid
	IntegrityStatusError     = atlas.IntegrityStatusError

	AtlasStatusDraft    = atlas.AtlasStatusDraft
	AtlasStatusPublic   = atlas.AtlasStatusPublic
	AtlasStatusRevision = atlas.AtlasStatusRevision
)

// AllModels lists every table owned by the ingestion pipeline, in migration order.
func AllModels() []any {
	return []any{
		&atlas.Concept{},
		&atlas.Atlas{},
		&atlas.File{},
		&atlas.ComponentAtlas{},
		&atlas.SourceDataset{},
	}
}

package aggregates

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/yungbote/atlas-ingest/internal/data/repos"
	types "github.com/yungbote/atlas-ingest/internal/domain"
	domainagg "github.com/yungbote/atlas-ingest/internal/domain/aggregates"
	"github.com/yungbote/atlas-ingest/internal/platform/dbctx"
)

// entityVersioner maintains the versioned metadata entity behind one file type.
// File types without an entry (manifests) have no entity.
type entityVersioner interface {
	// link points the file row at the entity version it is about to create.
	link(row *types.File, versionID uuid.UUID)
	create(dbc dbctx.Context, in entityCreateInput) (entityRef, error)
	update(dbc dbctx.Context, in entityUpdateInput) (entityRef, error)
	setSummary(dbc dbctx.Context, versionID uuid.UUID, summary datatypes.JSON) (bool, error)
}

type entityCreateInput struct {
	Op        string
	Atlas     *types.Atlas
	FileID    uuid.UUID
	VersionID uuid.UUID
	Now       time.Time
}

type entityUpdateInput struct {
	Op           string
	Atlas        *types.Atlas
	PreviousFile *types.File
	FileID       uuid.UUID
	VersionID    uuid.UUID
	Now          time.Time
}

type entityRef struct {
	EntityID  uuid.UUID
	VersionID uuid.UUID
	Created   bool
}

func newEntityVersioners(deps FileIngestionAggregateDeps) map[types.FileType]entityVersioner {
	return map[types.FileType]entityVersioner{
		types.FileTypeSourceDataset: &sourceDatasetVersioner{
			atlases:          deps.Atlases,
			sourceDatasets:   deps.SourceDatasets,
			componentAtlases: deps.ComponentAtlases,
		},
		types.FileTypeIntegratedObject: &componentAtlasVersioner{
			atlases:          deps.Atlases,
			componentAtlases: deps.ComponentAtlases,
		},
	}
}

func invariantf(op, format string, args ...interface{}) error {
	return domainagg.Errorf(domainagg.CodeInvariantViolation, op, format, args...)
}

// ---- source datasets ----

type sourceDatasetVersioner struct {
	atlases          repos.AtlasRepo
	sourceDatasets   repos.SourceDatasetRepo
	componentAtlases repos.ComponentAtlasRepo
}

func (v *sourceDatasetVersioner) link(row *types.File, versionID uuid.UUID) {
	row.SourceDatasetID = &versionID
	row.ComponentAtlasID = nil
}

func (v *sourceDatasetVersioner) create(dbc dbctx.Context, in entityCreateInput) (entityRef, error) {
	row := &types.SourceDataset{
		VersionID: in.VersionID,
		ID:        uuid.New(),
		Revision:  1,
		FileID:    in.FileID,
		IsLatest:  true,
		CreatedAt: in.Now,
		UpdatedAt: in.Now,
	}
	if _, err := v.sourceDatasets.Create(dbc, []*types.SourceDataset{row}); err != nil {
		return entityRef{}, err
	}
	appended, err := v.atlases.AppendSourceDataset(dbc, in.Atlas.ID, row.VersionID)
	if err != nil {
		return entityRef{}, err
	}
	if !appended {
		return entityRef{}, invariantf(in.Op, "Atlas %s already links source dataset version %s", in.Atlas.ID, row.VersionID)
	}
	return entityRef{EntityID: row.ID, VersionID: row.VersionID, Created: true}, nil
}

func (v *sourceDatasetVersioner) update(dbc dbctx.Context, in entityUpdateInput) (entityRef, error) {
	if in.PreviousFile.SourceDatasetID == nil {
		return entityRef{}, invariantf(in.Op, "File %s has no source dataset", in.PreviousFile.ID)
	}
	oldVersionID := *in.PreviousFile.SourceDatasetID
	prev, err := v.sourceDatasets.GetByVersionID(dbc, oldVersionID)
	if err != nil {
		return entityRef{}, err
	}
	if prev == nil {
		return entityRef{}, invariantf(in.Op, "Source dataset version %s for file %s not found", oldVersionID, in.PreviousFile.ID)
	}
	cleared, err := v.sourceDatasets.ClearLatest(dbc, oldVersionID)
	if err != nil {
		return entityRef{}, err
	}
	if cleared == 0 {
		return entityRef{}, invariantf(in.Op, "Source dataset version %s is not the latest version of %s", oldVersionID, prev.ID)
	}

	next := &types.SourceDataset{
		VersionID:     in.VersionID,
		ID:            prev.ID,
		Revision:      prev.Revision + 1,
		FileID:        in.FileID,
		IsLatest:      true,
		Title:         prev.Title,
		SourceStudyID: prev.SourceStudyID,
		CapURL:        prev.CapURL,
		CreatedAt:     in.Now,
		UpdatedAt:     in.Now,
	}
	if _, err := v.sourceDatasets.Create(dbc, []*types.SourceDataset{next}); err != nil {
		return entityRef{}, err
	}
	if _, err := v.atlases.ReplaceSourceDatasetVersion(dbc, oldVersionID, next.VersionID); err != nil {
		return entityRef{}, err
	}
	if _, err := v.componentAtlases.ReplaceSourceDatasetVersion(dbc, oldVersionID, next.VersionID); err != nil {
		return entityRef{}, err
	}
	return entityRef{EntityID: next.ID, VersionID: next.VersionID}, nil
}

func (v *sourceDatasetVersioner) setSummary(dbc dbctx.Context, versionID uuid.UUID, summary datatypes.JSON) (bool, error) {
	row, err := v.sourceDatasets.GetByVersionID(dbc, versionID)
	if err != nil || row == nil || !row.IsLatest {
		return false, err
	}
	if err := v.sourceDatasets.UpdateSummary(dbc, versionID, summary); err != nil {
		return false, err
	}
	return true, nil
}

// ---- component atlases ----

type componentAtlasVersioner struct {
	atlases          repos.AtlasRepo
	componentAtlases repos.ComponentAtlasRepo
}

func (v *componentAtlasVersioner) link(row *types.File, versionID uuid.UUID) {
	row.ComponentAtlasID = &versionID
	row.SourceDatasetID = nil
}

func (v *componentAtlasVersioner) create(dbc dbctx.Context, in entityCreateInput) (entityRef, error) {
	row := &types.ComponentAtlas{
		VersionID:      in.VersionID,
		ID:             uuid.New(),
		Revision:       1,
		FileID:         in.FileID,
		IsLatest:       true,
		SourceDatasets: pq.StringArray{},
		CreatedAt:      in.Now,
		UpdatedAt:      in.Now,
	}
	if _, err := v.componentAtlases.Create(dbc, []*types.ComponentAtlas{row}); err != nil {
		return entityRef{}, err
	}
	appended, err := v.atlases.AppendComponentAtlas(dbc, in.Atlas.ID, row.VersionID)
	if err != nil {
		return entityRef{}, err
	}
	if !appended {
		return entityRef{}, invariantf(in.Op, "Atlas %s already links component atlas version %s", in.Atlas.ID, row.VersionID)
	}
	return entityRef{EntityID: row.ID, VersionID: row.VersionID, Created: true}, nil
}

func (v *componentAtlasVersioner) update(dbc dbctx.Context, in entityUpdateInput) (entityRef, error) {
	if in.PreviousFile.ComponentAtlasID == nil {
		return entityRef{}, invariantf(in.Op, "File %s has no component atlas", in.PreviousFile.ID)
	}
	oldVersionID := *in.PreviousFile.ComponentAtlasID
	prev, err := v.componentAtlases.GetByVersionID(dbc, oldVersionID)
	if err != nil {
		return entityRef{}, err
	}
	if prev == nil {
		return entityRef{}, invariantf(in.Op, "Component atlas version %s for file %s not found", oldVersionID, in.PreviousFile.ID)
	}
	cleared, err := v.componentAtlases.ClearLatest(dbc, oldVersionID)
	if err != nil {
		return entityRef{}, err
	}
	if cleared == 0 {
		return entityRef{}, invariantf(in.Op, "Component atlas version %s is not the latest version of %s", oldVersionID, prev.ID)
	}

	next := &types.ComponentAtlas{
		VersionID:      in.VersionID,
		ID:             prev.ID,
		Revision:       prev.Revision + 1,
		FileID:         in.FileID,
		IsLatest:       true,
		Title:          prev.Title,
		Description:    prev.Description,
		CapURL:         prev.CapURL,
		SourceDatasets: append(pq.StringArray{}, prev.SourceDatasets...),
		CreatedAt:      in.Now,
		UpdatedAt:      in.Now,
	}
	if _, err := v.componentAtlases.Create(dbc, []*types.ComponentAtlas{next}); err != nil {
		return entityRef{}, err
	}
	if _, err := v.atlases.ReplaceComponentAtlasVersion(dbc, oldVersionID, next.VersionID); err != nil {
		return entityRef{}, err
	}
	return entityRef{EntityID: next.ID, VersionID: next.VersionID}, nil
}

func (v *componentAtlasVersioner) setSummary(dbc dbctx.Context, versionID uuid.UUID, summary datatypes.JSON) (bool, error) {
	row, err := v.componentAtlases.GetByVersionID(dbc, versionID)
	if err != nil || row == nil || !row.IsLatest {
		return false, err
	}
	if err := v.componentAtlases.UpdateSummary(dbc, versionID, summary); err != nil {
		return false, err
	}
	return true, nil
}

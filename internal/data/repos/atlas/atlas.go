package atlas

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/atlas-ingest/internal/domain"
	"github.com/yungbote/atlas-ingest/internal/platform/dbctx"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

type AtlasRepo interface {
	Create(dbc dbctx.Context, rows []*types.Atlas) ([]*types.Atlas, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Atlas, error)

	// LockMatchingConcept returns every atlas whose network, short name and generation
	// match the concept, locking the rows for the rest of the transaction.
	LockMatchingConcept(dbc dbctx.Context, conceptID uuid.UUID) ([]*types.Atlas, error)

	// AppendSourceDataset appends versionID unless already present; false means it was present.
	AppendSourceDataset(dbc dbctx.Context, atlasID, versionID uuid.UUID) (bool, error)
	AppendComponentAtlas(dbc dbctx.Context, atlasID, versionID uuid.UUID) (bool, error)

	// Replace* rewrite every atlas array holding oldVersionID to hold newVersionID.
	ReplaceSourceDatasetVersion(dbc dbctx.Context, oldVersionID, newVersionID uuid.UUID) (int64, error)
	ReplaceComponentAtlasVersion(dbc dbctx.Context, oldVersionID, newVersionID uuid.UUID) (int64, error)
}

type atlasRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAtlasRepo(db *gorm.DB, baseLog *logger.Logger) AtlasRepo {
	return &atlasRepo{db: db, log: baseLog.With("repo", "AtlasRepo")}
}

func (r *atlasRepo) Create(dbc dbctx.Context, rows []*types.Atlas) ([]*types.Atlas, error) {
	if len(rows) == 0 {
		return []*types.Atlas{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *atlasRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Atlas, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.Atlas
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *atlasRepo) LockMatchingConcept(dbc dbctx.Context, conceptID uuid.UUID) ([]*types.Atlas, error) {
	var out []*types.Atlas
	if conceptID == uuid.Nil {
		return out, nil
	}
	err := dbc.DB(r.db).Raw(`
		SELECT a.*
		FROM atlas a
		JOIN concept c
		  ON c.network = a.network
		 AND c.atlas_short_name = lower(a.short_name)
		 AND c.generation = a.generation
		WHERE c.id = ?
		FOR UPDATE OF a`, conceptID).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *atlasRepo) AppendSourceDataset(dbc dbctx.Context, atlasID, versionID uuid.UUID) (bool, error) {
	return r.appendVersion(dbc, "source_datasets", atlasID, versionID)
}

func (r *atlasRepo) AppendComponentAtlas(dbc dbctx.Context, atlasID, versionID uuid.UUID) (bool, error) {
	return r.appendVersion(dbc, "component_atlases", atlasID, versionID)
}

func (r *atlasRepo) ReplaceSourceDatasetVersion(dbc dbctx.Context, oldVersionID, newVersionID uuid.UUID) (int64, error) {
	return r.replaceVersion(dbc, "source_datasets", oldVersionID, newVersionID)
}

func (r *atlasRepo) ReplaceComponentAtlasVersion(dbc dbctx.Context, oldVersionID, newVersionID uuid.UUID) (int64, error) {
	return r.replaceVersion(dbc, "component_atlases", oldVersionID, newVersionID)
}

// column comes from the wrappers above, never from callers.
func (r *atlasRepo) appendVersion(dbc dbctx.Context, column string, atlasID, versionID uuid.UUID) (bool, error) {
	res := dbc.DB(r.db).Exec(
		`UPDATE atlas SET `+column+` = array_append(`+column+`, ?::uuid), updated_at = now()
		 WHERE id = ? AND NOT (?::uuid = ANY(`+column+`))`,
		versionID, atlasID, versionID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *atlasRepo) replaceVersion(dbc dbctx.Context, column string, oldVersionID, newVersionID uuid.UUID) (int64, error) {
	res := dbc.DB(r.db).Exec(
		`UPDATE atlas SET `+column+` = array_replace(`+column+`, ?::uuid, ?::uuid), updated_at = now()
		 WHERE ?::uuid = ANY(`+column+`)`,
		oldVersionID, newVersionID, oldVersionID,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

package atlas

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/atlas-ingest/internal/domain"
	"github.com/yungbote/atlas-ingest/internal/platform/dbctx"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

type ComponentAtlasRepo interface {
	Create(dbc dbctx.Context, rows []*types.ComponentAtlas) ([]*types.ComponentAtlas, error)
	GetByVersionID(dbc dbctx.Context, versionID uuid.UUID) (*types.ComponentAtlas, error)
	GetLatestByID(dbc dbctx.Context, id uuid.UUID) (*types.ComponentAtlas, error)
	ListVersions(dbc dbctx.Context, id uuid.UUID) ([]*types.ComponentAtlas, error)
	ClearLatest(dbc dbctx.Context, versionID uuid.UUID) (int64, error)
	// ReplaceSourceDatasetVersion swaps a source dataset reference on latest component atlases only.
	ReplaceSourceDatasetVersion(dbc dbctx.Context, oldVersionID, newVersionID uuid.UUID) (int64, error)
	UpdateSummary(dbc dbctx.Context, versionID uuid.UUID, summary []byte) error
}

type componentAtlasRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewComponentAtlasRepo(db *gorm.DB, baseLog *logger.Logger) ComponentAtlasRepo {
	return &componentAtlasRepo{db: db, log: baseLog.With("repo", "ComponentAtlasRepo")}
}

func (r *componentAtlasRepo) Create(dbc dbctx.Context, rows []*types.ComponentAtlas) ([]*types.ComponentAtlas, error) {
	if len(rows) == 0 {
		return []*types.ComponentAtlas{}, nil
	}
	for _, row := range rows {
		if row.SourceDatasets == nil {
			row.SourceDatasets = []string{}
		}
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *componentAtlasRepo) GetByVersionID(dbc dbctx.Context, versionID uuid.UUID) (*types.ComponentAtlas, error) {
	if versionID == uuid.Nil {
		return nil, nil
	}
	var out []*types.ComponentAtlas
	if err := dbc.DB(r.db).Where("version_id = ?", versionID).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *componentAtlasRepo) GetLatestByID(dbc dbctx.Context, id uuid.UUID) (*types.ComponentAtlas, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.ComponentAtlas
	if err := dbc.DB(r.db).Where("id = ? AND is_latest = true", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *componentAtlasRepo) ListVersions(dbc dbctx.Context, id uuid.UUID) ([]*types.ComponentAtlas, error) {
	var out []*types.ComponentAtlas
	if id == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id = ?", id).Order("revision ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *componentAtlasRepo) ClearLatest(dbc dbctx.Context, versionID uuid.UUID) (int64, error) {
	res := dbc.DB(r.db).Model(&types.ComponentAtlas{}).
		Where("version_id = ? AND is_latest = true", versionID).
		Updates(map[string]interface{}{"is_latest": false, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *componentAtlasRepo) ReplaceSourceDatasetVersion(dbc dbctx.Context, oldVersionID, newVersionID uuid.UUID) (int64, error) {
	res := dbc.DB(r.db).Exec(
		`UPDATE component_atlas
		 SET source_datasets = array_replace(source_datasets, ?::uuid, ?::uuid), updated_at = now()
		 WHERE is_latest = true AND ?::uuid = ANY(source_datasets)`,
		oldVersionID, newVersionID, oldVersionID,
	)
	return res.RowsAffected, res.Error
}

func (r *componentAtlasRepo) UpdateSummary(dbc dbctx.Context, versionID uuid.UUID, summary []byte) error {
	return dbc.DB(r.db).Model(&types.ComponentAtlas{}).
		Where("version_id = ?", versionID).
		Updates(map[string]interface{}{"summary": datatypes.JSON(summary), "updated_at": time.Now().UTC()}).Error
}

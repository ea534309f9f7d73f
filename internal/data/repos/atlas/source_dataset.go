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

type SourceDatasetRepo interface {
	Create(dbc dbctx.Context, rows []*types.SourceDataset) ([]*types.SourceDataset, error)
	GetByVersionID(dbc dbctx.Context, versionID uuid.UUID) (*types.SourceDataset, error)
	GetLatestByID(dbc dbctx.Context, id uuid.UUID) (*types.SourceDataset, error)
	ListVersions(dbc dbctx.Context, id uuid.UUID) ([]*types.SourceDataset, error)
	ClearLatest(dbc dbctx.Context, versionID uuid.UUID) (int64, error)
	UpdateSummary(dbc dbctx.Context, versionID uuid.UUID, summary []byte) error
}

type sourceDatasetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceDatasetRepo(db *gorm.DB, baseLog *logger.Logger) SourceDatasetRepo {
	return &sourceDatasetRepo{db: db, log: baseLog.With("repo", "SourceDatasetRepo")}
}

func (r *sourceDatasetRepo) Create(dbc dbctx.Context, rows []*types.SourceDataset) ([]*types.SourceDataset, error) {
	if len(rows) == 0 {
		return []*types.SourceDataset{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *sourceDatasetRepo) GetByVersionID(dbc dbctx.Context, versionID uuid.UUID) (*types.SourceDataset, error) {
	if versionID == uuid.Nil {
		return nil, nil
	}
	var out []*types.SourceDataset
	if err := dbc.DB(r.db).Where("version_id = ?", versionID).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *sourceDatasetRepo) GetLatestByID(dbc dbctx.Context, id uuid.UUID) (*types.SourceDataset, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.SourceDataset
	if err := dbc.DB(r.db).Where("id = ? AND is_latest = true", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *sourceDatasetRepo) ListVersions(dbc dbctx.Context, id uuid.UUID) ([]*types.SourceDataset, error) {
	var out []*types.SourceDataset
	if id == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id = ?", id).Order("revision ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sourceDatasetRepo) ClearLatest(dbc dbctx.Context, versionID uuid.UUID) (int64, error) {
	res := dbc.DB(r.db).Model(&types.SourceDataset{}).
		Where("version_id = ? AND is_latest = true", versionID).
		Updates(map[string]interface{}{"is_latest": false, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *sourceDatasetRepo) UpdateSummary(dbc dbctx.Context, versionID uuid.UUID, summary []byte) error {
	return dbc.DB(r.db).Model(&types.SourceDataset{}).
		Where("version_id = ?", versionID).
		Updates(map[string]interface{}{"summary": datatypes.JSON(summary), "updated_at": time.Now().UTC()}).Error
}

package atlas

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/atlas-ingest/internal/domain"
	"github.com/yungbote/atlas-ingest/internal/platform/dbctx"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

// UpsertResult reports what UpsertByMessageID did.
// Applied is false when a row with the same message id exists under a different ETag.
type UpsertResult struct {
	ID       uuid.UUID
	Inserted bool
	Applied  bool
}

type FileRepo interface {
	Create(dbc dbctx.Context, rows []*types.File) ([]*types.File, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.File, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.File, error)
	GetBySNSMessageID(dbc dbctx.Context, messageID string) (*types.File, error)
	ListByConcept(dbc dbctx.Context, conceptID uuid.UUID) ([]*types.File, error)

	// LockLatestByConcept returns the current latest file for the concept (nil if none)
	// and holds a row lock on it until the transaction ends.
	LockLatestByConcept(dbc dbctx.Context, conceptID uuid.UUID) (*types.File, error)
	ClearLatestByConcept(dbc dbctx.Context, conceptID uuid.UUID) (int64, error)

	// FindETagConflict returns another row with the same versioned object identity
	// but a different ETag. Unversioned objects never conflict here.
	FindETagConflict(dbc dbctx.Context, bucket, key string, versionID *string, etag, messageID string) (*types.File, error)

	// UpsertByMessageID inserts the row or, on a message id collision with a matching
	// ETag, refreshes the mutable notification fields of the existing row.
	UpsertByMessageID(dbc dbctx.Context, row *types.File) (UpsertResult, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsIfValidationStatus applies updates only while validation_status is one of allowed.
	UpdateFieldsIfValidationStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.ValidationStatus, updates map[string]interface{}) (bool, error)
	SetArchived(dbc dbctx.Context, ids []uuid.UUID, archived bool) (int64, error)
	ListLatestByValidationStatus(dbc dbctx.Context, statuses []types.ValidationStatus, includeArchived bool, limit int) ([]*types.File, error)
}

type fileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFileRepo(db *gorm.DB, baseLog *logger.Logger) FileRepo {
	return &fileRepo{db: db, log: baseLog.With("repo", "FileRepo")}
}

func (r *fileRepo) Create(dbc dbctx.Context, rows []*types.File) ([]*types.File, error) {
	if len(rows) == 0 {
		return []*types.File{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *fileRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.File, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.File
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *fileRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.File, error) {
	var out []*types.File
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) GetBySNSMessageID(dbc dbctx.Context, messageID string) (*types.File, error) {
	if messageID == "" {
		return nil, nil
	}
	var out []*types.File
	if err := dbc.DB(r.db).Where("sns_message_id = ?", messageID).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *fileRepo) ListByConcept(dbc dbctx.Context, conceptID uuid.UUID) ([]*types.File, error) {
	var out []*types.File
	if conceptID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("concept_id = ?", conceptID).
		Order("event_time ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) LockLatestByConcept(dbc dbctx.Context, conceptID uuid.UUID) (*types.File, error) {
	if conceptID == uuid.Nil {
		return nil, nil
	}
	var out []*types.File
	if err := dbc.DB(r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("concept_id = ? AND is_latest = true", conceptID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *fileRepo) ClearLatestByConcept(dbc dbctx.Context, conceptID uuid.UUID) (int64, error) {
	res := dbc.DB(r.db).Model(&types.File{}).
		Where("concept_id = ? AND is_latest = true", conceptID).
		Updates(map[string]interface{}{"is_latest": false, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *fileRepo) FindETagConflict(dbc dbctx.Context, bucket, key string, versionID *string, etag, messageID string) (*types.File, error) {
	// Without a storage version id a different ETag is an overwrite, not a corrupted replay.
	if versionID == nil || *versionID == "" {
		return nil, nil
	}
	var out []*types.File
	if err := dbc.DB(r.db).
		Where("bucket = ? AND key = ? AND version_id = ? AND etag <> ? AND sns_message_id <> ?",
			bucket, key, *versionID, etag, messageID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

type upsertRow struct {
	ID       uuid.UUID
	Inserted bool
}

func (r *fileRepo) UpsertByMessageID(dbc dbctx.Context, row *types.File) (UpsertResult, error) {
	if row == nil {
		return UpsertResult{}, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	now := time.Now().UTC()
	if row.ValidationStatus == "" {
		row.ValidationStatus = types.ValidationStatusPending
	}
	if row.IntegrityStatus == "" {
		row.IntegrityStatus = types.IntegrityStatusPending
	}

	var out []upsertRow
	err := dbc.DB(r.db).Raw(`
		INSERT INTO "file" (
			id, bucket, "key", version_id, etag, size_bytes,
			event_name, event_time, sns_message_id, sha256_client,
			is_latest, is_archived, file_type, concept_id,
			source_dataset_id, component_atlas_id,
			validation_status, integrity_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, false, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sns_message_id) DO UPDATE SET
			size_bytes = EXCLUDED.size_bytes,
			event_name = EXCLUDED.event_name,
			event_time = EXCLUDED.event_time,
			is_latest  = EXCLUDED.is_latest,
			updated_at = EXCLUDED.updated_at
		WHERE "file".etag = EXCLUDED.etag
		RETURNING id, (xmax = 0) AS inserted`,
		row.ID, row.Bucket, row.Key, row.VersionID, row.ETag, row.SizeBytes,
		row.EventName, row.EventTime, row.SNSMessageID, row.SHA256Client,
		row.IsLatest, row.FileType, row.ConceptID,
		row.SourceDatasetID, row.ComponentAtlasID,
		row.ValidationStatus, row.IntegrityStatus, now, now,
	).Scan(&out).Error
	if err != nil {
		return UpsertResult{}, err
	}
	if len(out) == 0 {
		return UpsertResult{}, nil
	}
	return UpsertResult{ID: out[0].ID, Inserted: out[0].Inserted, Applied: true}, nil
}

func (r *fileRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).Model(&types.File{}).Where("id = ?", id).Updates(updates).Error
}

func (r *fileRepo) UpdateFieldsIfValidationStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.ValidationStatus, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || len(allowed) == 0 || len(updates) == 0 {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := dbc.DB(r.db).Model(&types.File{}).
		Where("id = ? AND validation_status IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *fileRepo) SetArchived(dbc dbctx.Context, ids []uuid.UUID, archived bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Model(&types.File{}).
		Where("id IN ? AND is_archived <> ?", ids, archived).
		Updates(map[string]interface{}{"is_archived": archived, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *fileRepo) ListLatestByValidationStatus(dbc dbctx.Context, statuses []types.ValidationStatus, includeArchived bool, limit int) ([]*types.File, error) {
	var out []*types.File
	q := dbc.DB(r.db).Where("is_latest = true")
	if len(statuses) > 0 {
		q = q.Where("validation_status IN ?", statuses)
	}
	if !includeArchived {
		q = q.Where("is_archived = false")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

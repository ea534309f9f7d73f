package atlas

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/atlas-ingest/internal/domain"
	"github.com/yungbote/atlas-ingest/internal/platform/dbctx"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

type ConceptRepo interface {
	// GetOrCreateID returns the concept id for key, inserting it on first sighting.
	// Concurrent first sightings resolve to the same row through the unique identity index.
	GetOrCreateID(dbc dbctx.Context, key types.ConceptKey) (uuid.UUID, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Concept, error)
}

type conceptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRepo {
	return &conceptRepo{db: db, log: baseLog.With("repo", "ConceptRepo")}
}

func (r *conceptRepo) GetOrCreateID(dbc dbctx.Context, key types.ConceptKey) (uuid.UUID, error) {
	t := dbc.DB(r.db)
	key.AtlasShortName = strings.ToLower(key.AtlasShortName)

	row := &types.Concept{
		ID:             uuid.New(),
		Network:        key.Network,
		AtlasShortName: key.AtlasShortName,
		Generation:     key.Generation,
		FileType:       key.FileType,
		BaseFilename:   key.BaseFilename,
	}
	if err := t.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "network"},
			{Name: "atlas_short_name"},
			{Name: "generation"},
			{Name: "file_type"},
			{Name: "base_filename"},
		},
		DoNothing: true,
	}).Create(row).Error; err != nil {
		return uuid.Nil, err
	}

	var out types.Concept
	if err := t.
		Where("network = ? AND atlas_short_name = ? AND generation = ? AND file_type = ? AND base_filename = ?",
			key.Network, key.AtlasShortName, key.Generation, key.FileType, key.BaseFilename).
		Take(&out).Error; err != nil {
		return uuid.Nil, err
	}
	return out.ID, nil
}

func (r *conceptRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Concept, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.Concept
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

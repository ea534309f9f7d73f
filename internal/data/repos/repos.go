package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/atlas-ingest/internal/data/repos/atlas"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

type ConceptRepo = atlas.ConceptRepo
type AtlasRepo = atlas.AtlasRepo
type FileRepo = atlas.FileRepo
type ComponentAtlasRepo = atlas.ComponentAtlasRepo
type SourceDatasetRepo = atlas.SourceDatasetRepo

type FileUpsertResult = atlas.UpsertResult

func NewConceptRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRepo {
	return atlas.NewConceptRepo(db, baseLog)
}
func NewAtlasRepo(db *gorm.DB, baseLog *logger.Logger) AtlasRepo {
	return atlas.NewAtlasRepo(db, baseLog)
}
func NewFileRepo(db *gorm.DB, baseLog *logger.Logger) FileRepo { return atlas.NewFileRepo(db, baseLog) }
func NewComponentAtlasRepo(db *gorm.DB, baseLog *logger.Logger) ComponentAtlasRepo {
	return atlas.NewComponentAtlasRepo(db, baseLog)
}
func NewSourceDatasetRepo(db *gorm.DB, baseLog *logger.Logger) SourceDatasetRepo {
	return atlas.NewSourceDatasetRepo(db, baseLog)
}

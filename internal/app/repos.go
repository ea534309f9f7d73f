package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/atlas-ingest/internal/data/repos"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

type Repos struct {
	Concept        repos.ConceptRepo
	Atlas          repos.AtlasRepo
	File           repos.FileRepo
	ComponentAtlas repos.ComponentAtlasRepo
	SourceDataset  repos.SourceDatasetRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Concept:        repos.NewConceptRepo(db, log),
		Atlas:          repos.NewAtlasRepo(db, log),
		File:           repos.NewFileRepo(db, log),
		ComponentAtlas: repos.NewComponentAtlasRepo(db, log),
		SourceDataset:  repos.NewSourceDatasetRepo(db, log),
	}
}

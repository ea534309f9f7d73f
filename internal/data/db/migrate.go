package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/atlas-ingest/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.AllModels()...); err != nil {
		return err
	}
	return EnsureIngestionIndexes(db)
}

// EnsureIngestionIndexes creates the partial indexes and check constraints gorm tags cannot express.
func EnsureIngestionIndexes(db *gorm.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{
			name: "idx_file_concept_latest",
			sql: `CREATE UNIQUE INDEX IF NOT EXISTS idx_file_concept_latest
				ON "file" (concept_id)
				WHERE is_latest;`,
		},
		{
			name: "idx_component_atlas_latest",
			sql: `CREATE UNIQUE INDEX IF NOT EXISTS idx_component_atlas_latest
				ON component_atlas (id)
				WHERE is_latest;`,
		},
		{
			name: "idx_source_dataset_latest",
			sql: `CREATE UNIQUE INDEX IF NOT EXISTS idx_source_dataset_latest
				ON source_dataset (id)
				WHERE is_latest;`,
		},
		{
			name: "idx_atlas_source_datasets_gin",
			sql:  `CREATE INDEX IF NOT EXISTS idx_atlas_source_datasets_gin ON atlas USING GIN (source_datasets);`,
		},
		{
			name: "idx_atlas_component_atlases_gin",
			sql:  `CREATE INDEX IF NOT EXISTS idx_atlas_component_atlases_gin ON atlas USING GIN (component_atlases);`,
		},
		{
			name: "chk_file_entity_link",
			sql: `DO $$
				BEGIN
					IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_file_entity_link') THEN
						ALTER TABLE "file" ADD CONSTRAINT chk_file_entity_link CHECK (
							(source_dataset_id IS NULL OR file_type = 'source_dataset')
							AND (component_atlas_id IS NULL OR file_type = 'integrated_object')
							AND (
								NOT is_latest
								OR file_type = 'ingest_manifest'
								OR source_dataset_id IS NOT NULL
								OR component_atlas_id IS NOT NULL
							)
						);
					END IF;
				END $$;`,
		},
	}
	for _, st := range stmts {
		if err := db.Exec(st.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", st.name, err)
		}
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

package atlas

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// ComponentAtlas is one version of an integrated object. ID is shared by every
// version of the same entity; atlases and siblings reference VersionID.
type ComponentAtlas struct {
	VersionID      uuid.UUID      `gorm:"type:uuid;column:version_id;primaryKey" json:"version_id"`
	ID             uuid.UUID      `gorm:"type:uuid;column:id;not null;index" json:"id"`
	Revision       int            `gorm:"column:revision;not null;default:1" json:"revision"`
	FileID         uuid.UUID      `gorm:"type:uuid;column:file_id;not null;index" json:"file_id"`
	IsLatest       bool           `gorm:"column:is_latest;not null;default:true" json:"is_latest"`
	Title          string         `gorm:"column:title;not null;default:''" json:"title"`
	Description    string         `gorm:"column:description;not null;default:''" json:"description"`
	CapURL         *string        `gorm:"column:cap_url" json:"cap_url,omitempty"`
	SourceDatasets pq.StringArray `gorm:"column:source_datasets;type:uuid[];not null;default:'{}'" json:"source_datasets"`
	Summary        datatypes.JSON `gorm:"column:summary;type:jsonb" json:"summary,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ComponentAtlas) TableName() string { return "component_atlas" }

type SourceDataset struct {
	VersionID     uuid.UUID      `gorm:"type:uuid;column:version_id;primaryKey" json:"version_id"`
	ID            uuid.UUID      `gorm:"type:uuid;column:id;not null;index" json:"id"`
	Revision      int            `gorm:"column:revision;not null;default:1" json:"revision"`
	FileID        uuid.UUID      `gorm:"type:uuid;column:file_id;not null;index" json:"file_id"`
	IsLatest      bool           `gorm:"column:is_latest;not null;default:true" json:"is_latest"`
	Title         string         `gorm:"column:title;not null;default:''" json:"title"`
	SourceStudyID *uuid.UUID     `gorm:"type:uuid;column:source_study_id" json:"source_study_id,omitempty"`
	CapURL        *string        `gorm:"column:cap_url" json:"cap_url,omitempty"`
	Summary       datatypes.JSON `gorm:"column:summary;type:jsonb" json:"summary,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (SourceDataset) TableName() string { return "source_dataset" }

package atlas

import (
	"time"

	"github.com/google/uuid"
)

// Concept is the revision-independent identity of a logical file.
type Concept struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Network        string    `gorm:"column:network;not null;uniqueIndex:idx_concept_identity,priority:1" json:"network"`
	AtlasShortName string    `gorm:"column:atlas_short_name;not null;uniqueIndex:idx_concept_identity,priority:2" json:"atlas_short_name"`
	Generation     int       `gorm:"column:generation;not null;uniqueIndex:idx_concept_identity,priority:3" json:"generation"`
	FileType       FileType  `gorm:"column:file_type;not null;uniqueIndex:idx_concept_identity,priority:4" json:"file_type"`
	BaseFilename   string    `gorm:"column:base_filename;not null;uniqueIndex:idx_concept_identity,priority:5" json:"base_filename"`
	CreatedAt      time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Concept) TableName() string { return "concept" }

// ConceptKey is the natural key of a Concept.
type ConceptKey struct {
	Network        string
	AtlasShortName string
	Generation     int
	FileType       FileType
	BaseFilename   string
}

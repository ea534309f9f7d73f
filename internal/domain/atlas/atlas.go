package atlas

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Atlas struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Network          string         `gorm:"column:network;not null;index:idx_atlas_lookup,priority:1" json:"network"`
	ShortName        string         `gorm:"column:short_name;not null;index:idx_atlas_lookup,priority:2" json:"short_name"`
	Generation       int            `gorm:"column:generation;not null;index:idx_atlas_lookup,priority:3" json:"generation"`
	Revision         int            `gorm:"column:revision;not null;default:0" json:"revision"`
	Status           AtlasStatus    `gorm:"column:status;not null;default:'draft'" json:"status"`
	SourceDatasets   pq.StringArray `gorm:"column:source_datasets;type:uuid[];not null;default:'{}'" json:"source_datasets"`
	ComponentAtlases pq.StringArray `gorm:"column:component_atlases;type:uuid[];not null;default:'{}'" json:"component_atlases"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Atlas) TableName() string { return "atlas" }

// Version renders the atlas version as "generation.revision".
func (a *Atlas) Version() string {
	return fmt.Sprintf("%d.%d", a.Generation, a.Revision)
}

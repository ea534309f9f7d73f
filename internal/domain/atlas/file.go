package atlas

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// File is one physical object version observed through a storage notification.
// Identity fields are immutable once written.
type File struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Bucket    string    `gorm:"column:bucket;not null;index:idx_file_object,priority:1" json:"bucket"`
	Key       string    `gorm:"column:key;not null;index:idx_file_object,priority:2" json:"key"`
	VersionID *string   `gorm:"column:version_id;index:idx_file_object,priority:3" json:"version_id,omitempty"`
	ETag      string    `gorm:"column:etag;not null" json:"etag"`
	SizeBytes int64     `gorm:"column:size_bytes;not null" json:"size_bytes"`

	EventName    string    `gorm:"column:event_name;not null" json:"event_name"`
	EventTime    time.Time `gorm:"column:event_time;not null" json:"event_time"`
	SNSMessageID string    `gorm:"column:sns_message_id;not null;uniqueIndex" json:"sns_message_id"`

	SHA256Client *string `gorm:"column:sha256_client" json:"sha256_client,omitempty"`
	SHA256Server *string `gorm:"column:sha256_server" json:"sha256_server,omitempty"`

	IsLatest   bool      `gorm:"column:is_latest;not null;default:true" json:"is_latest"`
	IsArchived bool      `gorm:"column:is_archived;not null;default:false" json:"is_archived"`
	FileType   FileType  `gorm:"column:file_type;not null" json:"file_type"`
	ConceptID  uuid.UUID `gorm:"type:uuid;column:concept_id;not null;index" json:"concept_id"`

	SourceDatasetID  *uuid.UUID `gorm:"type:uuid;column:source_dataset_id;index" json:"source_dataset_id,omitempty"`
	ComponentAtlasID *uuid.UUID `gorm:"type:uuid;column:component_atlas_id;index" json:"component_atlas_id,omitempty"`

	ValidationStatus   ValidationStatus `gorm:"column:validation_status;not null;default:'pending'" json:"validation_status"`
	IntegrityStatus    IntegrityStatus  `gorm:"column:integrity_status;not null;default:'pending'" json:"integrity_status"`
	ValidationJobID    *string          `gorm:"column:validation_job_id" json:"validation_job_id,omitempty"`
	ValidatedAt        *time.Time       `gorm:"column:validated_at" json:"validated_at,omitempty"`
	IntegrityCheckedAt *time.Time       `gorm:"column:integrity_checked_at" json:"integrity_checked_at,omitempty"`
	DatasetInfo        datatypes.JSON   `gorm:"column:dataset_info;type:jsonb" json:"dataset_info,omitempty"`
	ValidationReports  datatypes.JSON   `gorm:"column:validation_reports;type:jsonb" json:"validation_reports,omitempty"`
	ValidationSummary  datatypes.JSON   `gorm:"column:validation_summary;type:jsonb" json:"validation_summary,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (File) TableName() string { return "file" }

// EntityVersionID returns the linked metadata entity version id, if any.
func (f *File) EntityVersionID() *uuid.UUID {
	switch f.FileType {
	case FileTypeSourceDataset:
		return f.SourceDatasetID
	case FileTypeIntegratedObject:
		return f.ComponentAtlasID
	default:
		return nil
	}
}

package aggregates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/atlas-ingest/internal/domain/atlas"
)

var FileIngestionAggregateContract = Contract{
	Name:      "Atlas.FileIngestionAggregate",
	Tables:    []string{"concept", "atlas", "file", "source_dataset", "component_atlas"},
	LockOrder: []string{"atlas (owning the concept)", "file (latest for the concept)", "entity (latest for its id)"},
}

// FileIngestionAggregate owns the file version ledger and the versioned metadata
// entities hanging off it.
//
// Write method failures return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodeInvariantViolation, CodeRetryable, CodeInternal.
type FileIngestionAggregate interface {
	Aggregate

	// IngestFile records one storage notification. Strictly older notifications are
	// recorded as superseded rows without error; exact redeliveries collapse onto the existing row.
	IngestFile(ctx context.Context, in IngestFileInput) (IngestFileResult, error)

	// MarkValidationRequested records a successful validation job submission.
	MarkValidationRequested(ctx context.Context, fileID uuid.UUID, jobID string) error

	// MarkValidationRequestFailed records a failed validation job submission.
	MarkValidationRequestFailed(ctx context.Context, fileID uuid.UUID) error

	// ApplyValidationResults persists a validation-results callback onto the file.
	ApplyValidationResults(ctx context.Context, in ApplyValidationResultsInput) (ApplyValidationResultsResult, error)

	// SetArchived toggles the archive flag on the given files.
	SetArchived(ctx context.Context, fileIDs []uuid.UUID, archived bool) (int64, error)
}

type IngestFileInput struct {
	Bucket       string
	Key          string
	VersionID    *string
	ETag         string
	SizeBytes    int64
	SHA256Client *string

	EventName string
	EventTime time.Time
	MessageID string

	Network        string
	AtlasShortName string
	Generation     int
	Revision       int
	FileType       atlas.FileType
	BaseFilename   string
}

type IngestOutcome string

const (
	// IngestOutcomeInserted means a new file row was written.
	IngestOutcomeInserted IngestOutcome = "inserted"
	// IngestOutcomeDuplicate means the notification was an exact redelivery.
	IngestOutcomeDuplicate IngestOutcome = "duplicate"
	// IngestOutcomeDiscarded means a newer version is already recorded; the
	// notification is kept only as a superseded file row.
	IngestOutcomeDiscarded IngestOutcome = "discarded"
)

type IngestFileResult struct {
	Outcome   IngestOutcome
	FileID    uuid.UUID
	ConceptID uuid.UUID
	AtlasID   uuid.UUID
	FileType  atlas.FileType

	EntityID        *uuid.UUID
	EntityVersionID *uuid.UUID
	CreatedEntity   bool
	PreviousFileID  *uuid.UUID
}

// Inserted reports whether this call wrote a new file row.
func (r IngestFileResult) Inserted() bool { return r.Outcome == IngestOutcomeInserted }

type ApplyValidationResultsInput struct {
	FileID          uuid.UUID
	BatchJobID      string
	Succeeded       bool
	IntegrityStatus atlas.IntegrityStatus
	SHA256Server    *string
	DatasetInfo     json.RawMessage
	ToolReports     json.RawMessage
	Summary         json.RawMessage
	ErrorMessage    string
	Timestamp       time.Time
}

type ApplyValidationResultsResult struct {
	FileID           uuid.UUID
	ValidationStatus atlas.ValidationStatus
	IntegrityStatus  atlas.IntegrityStatus
	EntityUpdated    bool
}

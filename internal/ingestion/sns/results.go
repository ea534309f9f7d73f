package sns

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/atlas-ingest/internal/domain/atlas"
	"github.com/yungbote/atlas-ingest/internal/platform/apierr"
)

// ValidationResults is the payload the batch validator publishes when a job ends.
type ValidationResults struct {
	BatchJobID       string
	FileID           uuid.UUID
	Succeeded        bool
	IntegrityStatus  atlas.IntegrityStatus
	DownloadedSHA256 *string
	MetadataSummary  json.RawMessage
	ToolReports      json.RawMessage
	ErrorMessage     string
	Timestamp        time.Time
}

type validationResultsWire struct {
	BatchJobID       *string         `json:"batch_job_id"`
	FileID           string          `json:"file_id"`
	Status           string          `json:"status"`
	IntegrityStatus  string          `json:"integrity_status"`
	DownloadedSHA256 *string         `json:"downloaded_sha256"`
	MetadataSummary  json.RawMessage `json:"metadata_summary"`
	ToolReports      json.RawMessage `json:"tool_reports"`
	ErrorMessage     *string         `json:"error_message"`
	Timestamp        *string         `json:"timestamp"`
}

func ParseValidationResults(message string) (*ValidationResults, error) {
	if err := validateJSON(validationResultsSchema, "validation results", []byte(message)); err != nil {
		return nil, err
	}
	var w validationResultsWire
	if err := json.Unmarshal([]byte(message), &w); err != nil {
		return nil, apierr.BadRequest("invalid_json", "Invalid validation results: %v", err)
	}
	fileID, err := uuid.Parse(w.FileID)
	if err != nil {
		return nil, apierr.BadRequest("invalid_file_id", "Invalid validation results: file_id %q", w.FileID)
	}

	out := &ValidationResults{
		FileID:          fileID,
		Succeeded:       w.Status == "success",
		IntegrityStatus: atlas.IntegrityStatus(w.IntegrityStatus),
		MetadataSummary: w.MetadataSummary,
		ToolReports:     w.ToolReports,
	}
	if w.BatchJobID != nil {
		out.BatchJobID = strings.TrimSpace(*w.BatchJobID)
	}
	if w.DownloadedSHA256 != nil && strings.TrimSpace(*w.DownloadedSHA256) != "" {
		sum := strings.ToLower(strings.TrimSpace(*w.DownloadedSHA256))
		out.DownloadedSHA256 = &sum
	}
	if w.ErrorMessage != nil {
		out.ErrorMessage = *w.ErrorMessage
	}
	if w.Timestamp != nil && *w.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, *w.Timestamp)
		if err != nil {
			return nil, apierr.BadRequest("invalid_timestamp", "Invalid validation results: timestamp %q", *w.Timestamp)
		}
		out.Timestamp = ts.UTC()
	}
	return out, nil
}

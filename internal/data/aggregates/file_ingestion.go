package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/atlas-ingest/internal/data/repos"
	types "github.com/yungbote/atlas-ingest/internal/domain"
	domainagg "github.com/yungbote/atlas-ingest/internal/domain/aggregates"
	"github.com/yungbote/atlas-ingest/internal/platform/dbctx"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

type FileIngestionAggregateDeps struct {
	Base BaseDeps

	Concepts         repos.ConceptRepo
	Atlases          repos.AtlasRepo
	Files            repos.FileRepo
	ComponentAtlases repos.ComponentAtlasRepo
	SourceDatasets   repos.SourceDatasetRepo
}

type fileIngestionAggregate struct {
	deps       FileIngestionAggregateDeps
	log        *logger.Logger
	versioners map[types.FileType]entityVersioner
}

func NewFileIngestionAggregate(deps FileIngestionAggregateDeps) domainagg.FileIngestionAggregate {
	deps.Base = deps.Base.withDefaults()
	return &fileIngestionAggregate{
		deps:       deps,
		log:        deps.Base.Log.With("aggregate", "FileIngestionAggregate"),
		versioners: newEntityVersioners(deps),
	}
}

func (a *fileIngestionAggregate) Contract() domainagg.Contract {
	return domainagg.FileIngestionAggregateContract
}

func (a *fileIngestionAggregate) IngestFile(ctx context.Context, in domainagg.IngestFileInput) (domainagg.IngestFileResult, error) {
	const op = "Atlas.FileIngestion.IngestFile"
	var out domainagg.IngestFileResult
	if err := validateIngestInput(in); err != nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, err.Error(), nil)
	}
	eventTime := in.EventTime.UTC().Truncate(time.Microsecond)
	key := types.ConceptKey{
		Network:        in.Network,
		AtlasShortName: strings.ToLower(in.AtlasShortName),
		Generation:     in.Generation,
		FileType:       in.FileType,
		BaseFilename:   in.BaseFilename,
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.IngestFileResult{FileType: in.FileType}

		conceptID, err := a.deps.Concepts.GetOrCreateID(dbc, key)
		if err != nil {
			return err
		}
		out.ConceptID = conceptID

		// The atlas row lock serializes writers for every concept of the atlas.
		owner, err := a.lockOwningAtlas(dbc, op, conceptID, key, in.Revision)
		if err != nil {
			return err
		}
		out.AtlasID = owner.ID

		latest, err := a.deps.Files.LockLatestByConcept(dbc, conceptID)
		if err != nil {
			return err
		}

		// Equal event times never flip latest: a tie with a new message id is discarded.
		isNewVersion := latest == nil || eventTime.After(latest.EventTime)
		isLatestVersion := isNewVersion || latest.SNSMessageID == in.MessageID

		conflict, err := a.deps.Files.FindETagConflict(dbc, in.Bucket, in.Key, in.VersionID, in.ETag, in.MessageID)
		if err != nil {
			return err
		}
		if conflict != nil {
			return etagMismatchError(op, in, conflict.ETag)
		}

		if !isLatestVersion {
			// Stale notifications are kept as superseded history: no entity, no validation.
			res, err := a.upsertFile(dbc, op, in, newFileRow(in, eventTime, conceptID, false))
			if err != nil {
				return err
			}
			out.Outcome = domainagg.IngestOutcomeDiscarded
			out.FileID = res.ID
			a.log.Info("Discarding out-of-order notification",
				"bucket", in.Bucket,
				"key", in.Key,
				"message_id", in.MessageID,
				"event_time", eventTime,
				"latest_event_time", latest.EventTime,
				"latest_file_id", latest.ID,
			)
			return nil
		}

		if isNewVersion && latest != nil {
			if _, err := a.deps.Files.ClearLatestByConcept(dbc, conceptID); err != nil {
				return err
			}
		}

		versioner := a.versioners[in.FileType]
		row := newFileRow(in, eventTime, conceptID, true)
		var versionID uuid.UUID
		if versioner != nil {
			versionID = uuid.New()
			versioner.link(row, versionID)
		}

		res, err := a.upsertFile(dbc, op, in, row)
		if err != nil {
			return err
		}
		out.FileID = res.ID
		if !res.Inserted {
			out.Outcome = domainagg.IngestOutcomeDuplicate
			a.log.Debug("Duplicate notification collapsed onto existing file",
				"message_id", in.MessageID,
				"file_id", res.ID,
			)
			return nil
		}
		out.Outcome = domainagg.IngestOutcomeInserted

		if versioner == nil {
			return nil
		}
		var ref entityRef
		if latest == nil {
			ref, err = versioner.create(dbc, entityCreateInput{
				Op:        op,
				Atlas:     owner,
				FileID:    res.ID,
				VersionID: versionID,
				Now:       a.deps.Base.Now(),
			})
		} else {
			prev := latest.ID
			out.PreviousFileID = &prev
			ref, err = versioner.update(dbc, entityUpdateInput{
				Op:           op,
				Atlas:        owner,
				PreviousFile: latest,
				FileID:       res.ID,
				VersionID:    versionID,
				Now:          a.deps.Base.Now(),
			})
		}
		if err != nil {
			return err
		}
		out.EntityID = &ref.EntityID
		out.EntityVersionID = &ref.VersionID
		out.CreatedEntity = ref.Created
		return nil
	})
	if err != nil {
		return domainagg.IngestFileResult{}, err
	}
	return out, nil
}

func newFileRow(in domainagg.IngestFileInput, eventTime time.Time, conceptID uuid.UUID, isLatest bool) *types.File {
	return &types.File{
		ID:               uuid.New(),
		Bucket:           in.Bucket,
		Key:              in.Key,
		VersionID:        in.VersionID,
		ETag:             in.ETag,
		SizeBytes:        in.SizeBytes,
		EventName:        in.EventName,
		EventTime:        eventTime,
		SNSMessageID:     in.MessageID,
		SHA256Client:     in.SHA256Client,
		IsLatest:         isLatest,
		FileType:         in.FileType,
		ConceptID:        conceptID,
		ValidationStatus: types.ValidationStatusPending,
		IntegrityStatus:  types.IntegrityStatusPending,
	}
}

// upsertFile writes row keyed by message id. A redelivery carrying a different ETag
// than the stored row is rejected.
func (a *fileIngestionAggregate) upsertFile(dbc dbctx.Context, op string, in domainagg.IngestFileInput, row *types.File) (repos.FileUpsertResult, error) {
	res, err := a.deps.Files.UpsertByMessageID(dbc, row)
	if err != nil {
		return res, err
	}
	if res.Applied {
		return res, nil
	}
	existing, err := a.deps.Files.GetBySNSMessageID(dbc, in.MessageID)
	if err != nil {
		return res, err
	}
	existingETag := ""
	if existing != nil {
		existingETag = existing.ETag
	}
	return res, etagMismatchError(op, in, existingETag)
}

// lockOwningAtlas resolves exactly one atlas for the concept and checks its revision.
func (a *fileIngestionAggregate) lockOwningAtlas(dbc dbctx.Context, op string, conceptID uuid.UUID, key types.ConceptKey, revision int) (*types.Atlas, error) {
	atlases, err := a.deps.Atlases.LockMatchingConcept(dbc, conceptID)
	if err != nil {
		return nil, err
	}
	switch len(atlases) {
	case 0:
		return nil, domainagg.Errorf(domainagg.CodeNotFound, op,
			"No atlas found for network=%s short_name=%s generation=%d",
			key.Network, key.AtlasShortName, key.Generation,
		)
	case 1:
	default:
		ids := make([]string, 0, len(atlases))
		for _, at := range atlases {
			ids = append(ids, at.ID.String())
		}
		return nil, domainagg.Errorf(domainagg.CodeInvariantViolation, op,
			"Multiple atlases match network=%s short_name=%s generation=%d: %s",
			key.Network, key.AtlasShortName, key.Generation, strings.Join(ids, ","),
		)
	}
	owner := atlases[0]
	if owner.Revision != revision {
		return nil, domainagg.Errorf(domainagg.CodeInvariantViolation, op,
			"Atlas version mismatch: atlas %s is version %s but the file path targets %d.%d",
			owner.ID, owner.Version(), key.Generation, revision,
		)
	}
	return owner, nil
}

func (a *fileIngestionAggregate) MarkValidationRequested(ctx context.Context, fileID uuid.UUID, jobID string) error {
	const op = "Atlas.FileIngestion.MarkValidationRequested"
	if fileID == uuid.Nil {
		return domainagg.NewError(domainagg.CodeValidation, op, "missing file_id", nil)
	}
	updates := map[string]interface{}{
		"validation_status": types.ValidationStatusRequested,
		"integrity_status":  types.IntegrityStatusRequested,
	}
	if jobID = strings.TrimSpace(jobID); jobID != "" {
		updates["validation_job_id"] = jobID
	}
	return a.transitionValidation(ctx, op, fileID, types.ValidationStatusRequested, updates)
}

func (a *fileIngestionAggregate) MarkValidationRequestFailed(ctx context.Context, fileID uuid.UUID) error {
	const op = "Atlas.FileIngestion.MarkValidationRequestFailed"
	if fileID == uuid.Nil {
		return domainagg.NewError(domainagg.CodeValidation, op, "missing file_id", nil)
	}
	return a.transitionValidation(ctx, op, fileID, types.ValidationStatusRequestFailed, map[string]interface{}{
		"validation_status": types.ValidationStatusRequestFailed,
	})
}

func (a *fileIngestionAggregate) transitionValidation(ctx context.Context, op string, fileID uuid.UUID, to types.ValidationStatus, updates map[string]interface{}) error {
	return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		applied, err := a.deps.Files.UpdateFieldsIfValidationStatus(dbc, fileID, validationSourcesFor(to), updates)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		f, err := a.deps.Files.GetByID(dbc, fileID)
		if err != nil {
			return err
		}
		if f == nil {
			return domainagg.Errorf(domainagg.CodeNotFound, op, "File not found: %s", fileID)
		}
		a.log.Info("Validation status already advanced; leaving it unchanged",
			"file_id", fileID,
			"status", f.ValidationStatus,
			"attempted", to,
		)
		return nil
	})
}

func (a *fileIngestionAggregate) ApplyValidationResults(ctx context.Context, in domainagg.ApplyValidationResultsInput) (domainagg.ApplyValidationResultsResult, error) {
	const op = "Atlas.FileIngestion.ApplyValidationResults"
	var out domainagg.ApplyValidationResultsResult
	if in.FileID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing file_id", nil)
	}
	if !isIntegrityResult(in.IntegrityStatus) {
		return out, domainagg.Errorf(domainagg.CodeValidation, op, "invalid integrity_status %q", in.IntegrityStatus)
	}
	at := in.Timestamp.UTC()
	if in.Timestamp.IsZero() {
		at = a.deps.Base.Now()
	}
	status := types.ValidationStatusJobFailed
	if in.Succeeded {
		status = types.ValidationStatusCompleted
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		f, err := a.deps.Files.GetByID(dbc, in.FileID)
		if err != nil {
			return err
		}
		if f == nil {
			return domainagg.Errorf(domainagg.CodeNotFound, op, "File not found: %s", in.FileID)
		}
		if in.BatchJobID != "" && f.ValidationJobID != nil && *f.ValidationJobID != in.BatchJobID {
			a.log.Warn("Validation results from an unexpected job",
				"file_id", f.ID,
				"expected_job_id", *f.ValidationJobID,
				"batch_job_id", in.BatchJobID,
			)
		}

		updates := map[string]interface{}{
			"validation_status":    status,
			"integrity_status":     in.IntegrityStatus,
			"validated_at":         at,
			"integrity_checked_at": at,
		}
		if in.SHA256Server != nil && strings.TrimSpace(*in.SHA256Server) != "" {
			updates["sha256_server"] = strings.TrimSpace(*in.SHA256Server)
		}
		if j := jsonOrNil(in.DatasetInfo); j != nil {
			updates["dataset_info"] = j
		}
		if j := jsonOrNil(in.ToolReports); j != nil {
			updates["validation_reports"] = j
		}
		if j := jsonOrNil(in.Summary); j != nil {
			updates["validation_summary"] = j
		}
		if err := a.deps.Files.UpdateFields(dbc, f.ID, updates); err != nil {
			return err
		}

		out = domainagg.ApplyValidationResultsResult{
			FileID:           f.ID,
			ValidationStatus: status,
			IntegrityStatus:  in.IntegrityStatus,
		}

		info := jsonOrNil(in.DatasetInfo)
		if info == nil || !f.IsLatest {
			return nil
		}
		versioner := a.versioners[f.FileType]
		versionID := f.EntityVersionID()
		if versioner == nil || versionID == nil {
			return nil
		}
		updated, err := versioner.setSummary(dbc, *versionID, info)
		if err != nil {
			return err
		}
		out.EntityUpdated = updated
		return nil
	})
	if err != nil {
		return domainagg.ApplyValidationResultsResult{}, err
	}
	return out, nil
}

func (a *fileIngestionAggregate) SetArchived(ctx context.Context, fileIDs []uuid.UUID, archived bool) (int64, error) {
	const op = "Atlas.FileIngestion.SetArchived"
	if len(fileIDs) == 0 {
		return 0, domainagg.NewError(domainagg.CodeValidation, op, "missing file_ids", nil)
	}
	for _, id := range fileIDs {
		if id == uuid.Nil {
			return 0, domainagg.NewError(domainagg.CodeValidation, op, "file_ids contains a nil id", nil)
		}
	}
	var n int64
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		found, err := a.deps.Files.GetByIDs(dbc, fileIDs)
		if err != nil {
			return err
		}
		if len(found) != len(uniqueIDs(fileIDs)) {
			return domainagg.NewError(domainagg.CodeNotFound, op, "one or more files not found", nil)
		}
		n, err = a.deps.Files.SetArchived(dbc, fileIDs, archived)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func validateIngestInput(in domainagg.IngestFileInput) error {
	switch {
	case strings.TrimSpace(in.Bucket) == "":
		return fmt.Errorf("missing bucket")
	case strings.TrimSpace(in.Key) == "":
		return fmt.Errorf("missing key")
	case strings.TrimSpace(in.ETag) == "":
		return fmt.Errorf("missing etag")
	case strings.TrimSpace(in.MessageID) == "":
		return fmt.Errorf("missing message id")
	case in.EventTime.IsZero():
		return fmt.Errorf("missing event time")
	case in.SizeBytes < 0:
		return fmt.Errorf("negative size")
	case strings.TrimSpace(in.Network) == "" || strings.TrimSpace(in.AtlasShortName) == "":
		return fmt.Errorf("missing atlas identity")
	case in.Generation < 1 || in.Revision < 0:
		return fmt.Errorf("invalid atlas version %d.%d", in.Generation, in.Revision)
	case strings.TrimSpace(in.BaseFilename) == "":
		return fmt.Errorf("missing base filename")
	}
	switch in.FileType {
	case types.FileTypeSourceDataset, types.FileTypeIntegratedObject, types.FileTypeIngestManifest:
		return nil
	default:
		return fmt.Errorf("unknown file type %q", in.FileType)
	}
}

func etagMismatchError(op string, in domainagg.IngestFileInput, existing string) error {
	version := "null"
	if in.VersionID != nil {
		version = *in.VersionID
	}
	return domainagg.Errorf(domainagg.CodeConflict, op,
		"ETag mismatch for s3://%s/%s (version %s): existing=%s new=%s",
		in.Bucket, in.Key, version, existing, in.ETag,
	)
}

func jsonOrNil(raw json.RawMessage) datatypes.JSON {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return datatypes.JSON(trimmed)
}

func uniqueIDs(ids []uuid.UUID) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainagg "github.com/yungbote/atlas-ingest/internal/domain/aggregates"
	"github.com/yungbote/atlas-ingest/internal/ingestion/access"
	"github.com/yungbote/atlas-ingest/internal/ingestion/s3key"
	"github.com/yungbote/atlas-ingest/internal/ingestion/sns"
	"github.com/yungbote/atlas-ingest/internal/observability"
	"github.com/yungbote/atlas-ingest/internal/platform/apierr"
	"github.com/yungbote/atlas-ingest/internal/platform/ctxutil"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

// NotificationAction says what Handle did with a message that was accepted.
type NotificationAction string

const (
	ActionIngested              NotificationAction = "ingested"
	ActionDuplicate             NotificationAction = "duplicate"
	ActionDiscarded             NotificationAction = "discarded"
	ActionIgnored               NotificationAction = "ignored"
	ActionTestEvent             NotificationAction = "test_event"
	ActionSubscriptionConfirmed NotificationAction = "subscription_confirmed"
	ActionUnsubscribed          NotificationAction = "unsubscribe_acknowledged"
	ActionValidationResults     NotificationAction = "validation_results"
)

type NotificationResult struct {
	Action             NotificationAction `json:"action"`
	FileID             *uuid.UUID         `json:"file_id,omitempty"`
	ValidationDispatch bool               `json:"validation_dispatched"`
}

// NotificationService handles one relay message end to end.
type NotificationService interface {
	Handle(ctx context.Context, body []byte) (NotificationResult, error)
	SetFilesArchived(ctx context.Context, fileIDs []uuid.UUID, archived bool) (int64, error)
}

type NotificationServiceDeps struct {
	Log           *logger.Logger
	Verifier      sns.SignatureVerifier
	Files         domainagg.FileIngestionAggregate
	Dispatcher    ValidationDispatcher
	Subscriptions SubscriptionConfirmer
	Events        IngestEventPublisher
	// Allowlist defaults to access.Current.
	Allowlist func() (*access.Allowlist, error)
}

type notificationService struct {
	log           *logger.Logger
	verifier      sns.SignatureVerifier
	files         domainagg.FileIngestionAggregate
	dispatcher    ValidationDispatcher
	subscriptions SubscriptionConfirmer
	events        IngestEventPublisher
	allowlist     func() (*access.Allowlist, error)
	tracer        trace.Tracer
}

func NewNotificationService(deps NotificationServiceDeps) NotificationService {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	allow := deps.Allowlist
	if allow == nil {
		allow = access.Current
	}
	events := deps.Events
	if events == nil {
		events = NewIngestEventPublisher(log, nil)
	}
	return &notificationService{
		log:           log.With("service", "NotificationService"),
		verifier:      deps.Verifier,
		files:         deps.Files,
		dispatcher:    deps.Dispatcher,
		subscriptions: deps.Subscriptions,
		events:        events,
		allowlist:     allow,
		tracer:        observability.Tracer("services"),
	}
}

func (s *notificationService) Handle(ctx context.Context, body []byte) (out NotificationResult, err error) {
	ctx, span := s.tracer.Start(ctx, "NotificationService.Handle")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("notification.action", string(out.Action)))
		}
		span.End()
	}()

	env, err := sns.ParseEnvelope(body)
	if err != nil {
		return out, err
	}
	span.SetAttributes(
		attribute.String("sns.message_id", env.MessageID),
		attribute.String("sns.type", string(env.Type)),
		attribute.String("sns.topic_arn", env.TopicArn),
	)
	if s.verifier == nil {
		return out, fmt.Errorf("signature verifier not configured")
	}
	if err := s.verifier.Verify(ctx, env); err != nil {
		return out, err
	}
	if env.Message == "" {
		return out, apierr.BadRequest("empty_payload", "SNS message passed signature validation but carried no payload")
	}

	allow, err := s.allowlist()
	if err != nil {
		s.log.Warn("Resource allowlist unavailable", "error", err)
		return out, err
	}
	kind, err := allow.AuthorizeTopic(env.TopicArn)
	if err != nil {
		s.log.Warn("Rejected message from unauthorized topic", "topic_arn", env.TopicArn, "message_id", env.MessageID)
		return out, err
	}

	switch env.Type {
	case sns.TypeSubscriptionConfirmation:
		if s.subscriptions == nil {
			return out, fmt.Errorf("subscription confirmer not configured")
		}
		if err := s.subscriptions.Confirm(ctx, env); err != nil {
			return out, err
		}
		return NotificationResult{Action: ActionSubscriptionConfirmed}, nil
	case sns.TypeUnsubscribeConfirmation:
		s.log.Info("Unsubscribe confirmation received", "topic_arn", env.TopicArn, "message_id", env.MessageID)
		return NotificationResult{Action: ActionUnsubscribed}, nil
	}

	switch kind {
	case access.TopicS3Notification:
		return s.handleObjectEvent(ctx, env, allow)
	case access.TopicValidationResults:
		return s.handleValidationResults(ctx, env)
	default:
		return out, apierr.Forbidden("unauthorized_topic", "Unauthorized SNS topic: %s", env.TopicArn)
	}
}

func (s *notificationService) handleObjectEvent(ctx context.Context, env *sns.Envelope, allow *access.Allowlist) (NotificationResult, error) {
	var out NotificationResult
	ev, err := sns.ParseS3Event(env.Message)
	if errors.Is(err, sns.ErrTestEvent) {
		s.log.Info("Storage test event acknowledged", "message_id", env.MessageID)
		return NotificationResult{Action: ActionTestEvent}, nil
	}
	if err != nil {
		return out, err
	}
	log := s.log.With(ctxutil.LogFields(ctx)...).With("bucket", ev.Bucket, "key", ev.Key, "message_id", env.MessageID)

	// Placeholders are acknowledged from any bucket.
	if s3key.IsKeep(ev.Key) {
		log.Info("Ignoring placeholder object")
		return NotificationResult{Action: ActionIgnored}, nil
	}
	if err := allow.AuthorizeBucket(ev.Bucket); err != nil {
		log.Warn("Rejected notification for unauthorized bucket")
		return out, err
	}
	obj, err := s3key.Parse(ev.Key)
	if err != nil {
		return out, err
	}

	res, err := s.files.IngestFile(ctx, domainagg.IngestFileInput{
		Bucket:         ev.Bucket,
		Key:            ev.Key,
		VersionID:      ev.VersionID,
		ETag:           ev.ETag,
		SizeBytes:      ev.SizeBytes,
		SHA256Client:   ev.SHA256Client,
		EventName:      ev.EventName,
		EventTime:      ev.EventTime,
		MessageID:      env.MessageID,
		Network:        obj.Network,
		AtlasShortName: obj.AtlasShortName,
		Generation:     obj.Version.Generation,
		Revision:       obj.Version.Revision,
		FileType:       obj.FileType,
		BaseFilename:   obj.BaseFilename,
	})
	if err != nil {
		return out, err
	}
	observability.Current().IncIngestOutcome(string(res.Outcome), string(res.FileType))

	fileID := res.FileID
	out.FileID = &fileID
	switch res.Outcome {
	case domainagg.IngestOutcomeDuplicate:
		out.Action = ActionDuplicate
		log.Info("Duplicate notification collapsed", "file_id", res.FileID)
		return out, nil
	case domainagg.IngestOutcomeDiscarded:
		out.Action = ActionDiscarded
		return out, nil
	}

	out.Action = ActionIngested
	s.events.FileIngested(ctx, res)
	if res.FileType.HasEntity() && s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, ValidationTarget{
			FileID:   res.FileID,
			Bucket:   ev.Bucket,
			Key:      ev.Key,
			TopicArn: env.TopicArn,
		})
		out.ValidationDispatch = true
	}
	log.Info("File version recorded",
		"file_id", res.FileID,
		"file_type", res.FileType,
		"created_entity", res.CreatedEntity,
		"validation_dispatched", out.ValidationDispatch,
	)
	return out, nil
}

func (s *notificationService) handleValidationResults(ctx context.Context, env *sns.Envelope) (NotificationResult, error) {
	var out NotificationResult
	r, err := sns.ParseValidationResults(env.Message)
	if err != nil {
		return out, err
	}
	summary, err := validationSummary(r)
	if err != nil {
		return out, err
	}
	res, err := s.files.ApplyValidationResults(ctx, domainagg.ApplyValidationResultsInput{
		FileID:          r.FileID,
		BatchJobID:      r.BatchJobID,
		Succeeded:       r.Succeeded,
		IntegrityStatus: r.IntegrityStatus,
		SHA256Server:    r.DownloadedSHA256,
		DatasetInfo:     r.MetadataSummary,
		ToolReports:     r.ToolReports,
		Summary:         summary,
		ErrorMessage:    r.ErrorMessage,
		Timestamp:       r.Timestamp,
	})
	if err != nil {
		return out, err
	}
	s.log.Info("Validation results applied",
		"file_id", res.FileID,
		"batch_job_id", r.BatchJobID,
		"validation_status", res.ValidationStatus,
		"integrity_status", res.IntegrityStatus,
		"entity_updated", res.EntityUpdated,
	)
	fileID := res.FileID
	return NotificationResult{Action: ActionValidationResults, FileID: &fileID}, nil
}

type validationSummaryDoc struct {
	Status          string   `json:"status"`
	IntegrityStatus string   `json:"integrity_status"`
	ToolsPassed     []string `json:"tools_passed"`
	ToolsFailed     []string `json:"tools_failed"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

// validationSummary condenses per-tool reports into pass/fail lists. Reports are keyed by
// tool name; a tool passes when its report has "valid": true.
func validationSummary(r *sns.ValidationResults) (json.RawMessage, error) {
	doc := validationSummaryDoc{
		Status:          "failure",
		IntegrityStatus: string(r.IntegrityStatus),
		ToolsPassed:     []string{},
		ToolsFailed:     []string{},
		ErrorMessage:    r.ErrorMessage,
	}
	if r.Succeeded {
		doc.Status = "success"
	}
	if len(r.ToolReports) > 0 && string(r.ToolReports) != "null" {
		var reports map[string]json.RawMessage
		if err := json.Unmarshal(r.ToolReports, &reports); err != nil {
			return nil, apierr.BadRequest("invalid_tool_reports", "Invalid validation results: tool_reports: %v", err)
		}
		for name, raw := range reports {
			var rep struct {
				Valid bool `json:"valid"`
			}
			if json.Unmarshal(raw, &rep) == nil && rep.Valid {
				doc.ToolsPassed = append(doc.ToolsPassed, name)
			} else {
				doc.ToolsFailed = append(doc.ToolsFailed, name)
			}
		}
		sort.Strings(doc.ToolsPassed)
		sort.Strings(doc.ToolsFailed)
	}
	return json.Marshal(doc)
}

func (s *notificationService) SetFilesArchived(ctx context.Context, fileIDs []uuid.UUID, archived bool) (int64, error) {
	n, err := s.files.SetArchived(ctx, fileIDs, archived)
	if err != nil {
		return 0, err
	}
	s.log.Info("Archive flag updated", "files", len(fileIDs), "archived", archived, "rows", n)
	return n, nil
}

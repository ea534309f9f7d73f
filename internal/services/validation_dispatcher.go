package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domainagg "github.com/yungbote/atlas-ingest/internal/domain/aggregates"
	"github.com/yungbote/atlas-ingest/internal/ingestion/access"
	"github.com/yungbote/atlas-ingest/internal/observability"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

// ValidationSubmitter submits one file to the downstream batch validator and returns its job id.
type ValidationSubmitter interface {
	Submit(ctx context.Context, fileID uuid.UUID, bucket, key string) (string, error)
}

// ValidationTarget names the file to validate. TopicArn is the relay topic the file
// arrived on and is empty for operator-initiated requests.
type ValidationTarget struct {
	FileID   uuid.UUID
	Bucket   string
	Key      string
	TopicArn string
}

type ValidationDispatcher interface {
	// Dispatch requests validation in the background. Failures are recorded on the file, never returned.
	Dispatch(ctx context.Context, target ValidationTarget)
	// DispatchNow requests validation synchronously and reports the submission error, if any.
	DispatchNow(ctx context.Context, target ValidationTarget) error
	// Drain waits for background dispatches to finish.
	Drain(ctx context.Context) error
}

type ValidationDispatcherDeps struct {
	Log       *logger.Logger
	Files     domainagg.FileIngestionAggregate
	Submitter ValidationSubmitter
	// Allowlist defaults to access.Current.
	Allowlist func() (*access.Allowlist, error)
	Timeout   time.Duration
}

type validationDispatcher struct {
	log       *logger.Logger
	files     domainagg.FileIngestionAggregate
	submitter ValidationSubmitter
	allowlist func() (*access.Allowlist, error)
	timeout   time.Duration

	wg sync.WaitGroup
}

func NewValidationDispatcher(deps ValidationDispatcherDeps) ValidationDispatcher {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	allow := deps.Allowlist
	if allow == nil {
		allow = access.Current
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &validationDispatcher{
		log:       log.With("service", "ValidationDispatcher"),
		files:     deps.Files,
		submitter: deps.Submitter,
		allowlist: allow,
		timeout:   timeout,
	}
}

func (d *validationDispatcher) Dispatch(ctx context.Context, target ValidationTarget) {
	if ctx == nil {
		ctx = context.Background()
	}
	// keep trace values, drop the request deadline
	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("Validation dispatch panicked", "file_id", target.FileID, "panic", r)
			}
		}()
		_ = d.DispatchNow(bg, target)
	}()
}

func (d *validationDispatcher) DispatchNow(ctx context.Context, target ValidationTarget) error {
	ctx, span := observability.Tracer("services").Start(ctx, "ValidationDispatcher.DispatchNow")
	defer span.End()
	span.SetAttributes(attribute.String("file.id", target.FileID.String()))
	span.SetAttributes(observability.ObjectAttributes(target.Bucket, target.Key)...)
	log := d.log.With("file_id", target.FileID, "bucket", target.Bucket, "key", target.Key)

	jobID, err := d.submit(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation submission failed")
		observability.Current().IncValidationDispatch("failed")
		log.Warn("Validation request failed", "error", err)
		if markErr := d.files.MarkValidationRequestFailed(ctx, target.FileID); markErr != nil {
			log.Error("Failed to record validation request failure", "error", markErr)
		}
		return err
	}

	observability.Current().IncValidationDispatch("requested")
	if err := d.files.MarkValidationRequested(ctx, target.FileID, jobID); err != nil {
		// The job is running; its results callback will still land on the file.
		log.Error("Failed to record validation request", "job_id", jobID, "error", err)
		return nil
	}
	log.Info("Validation requested", "job_id", jobID)
	return nil
}

func (d *validationDispatcher) submit(ctx context.Context, target ValidationTarget) (string, error) {
	allow, err := d.allowlist()
	if err != nil {
		return "", err
	}
	if target.TopicArn != "" {
		if _, err := allow.AuthorizeTopic(target.TopicArn); err != nil {
			return "", err
		}
	}
	if err := allow.AuthorizeBucket(target.Bucket); err != nil {
		return "", err
	}
	if d.submitter == nil {
		return "", fmt.Errorf("validation submitter not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.submitter.Submit(ctx, target.FileID, target.Bucket, target.Key)
}

func (d *validationDispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

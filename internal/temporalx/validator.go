package temporalx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

// WorkflowStarter is the subset of the Temporal client used to submit jobs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options temporalsdkclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error)
}

// ValidationRequest is the single workflow argument handed to the batch validator.
type ValidationRequest struct {
	FileID      string    `json:"file_id"`
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// BatchValidator submits content validation jobs as Temporal workflows.
type BatchValidator struct {
	log      *logger.Logger
	starter  WorkflowStarter
	queue    string
	workflow string
}

func NewBatchValidator(log *logger.Logger, starter WorkflowStarter, cfg Config) *BatchValidator {
	if log == nil {
		log = logger.Nop()
	}
	queue := strings.TrimSpace(cfg.TaskQueue)
	if queue == "" {
		queue = defaultTaskQueue
	}
	workflow := strings.TrimSpace(cfg.ValidationWorkflow)
	if workflow == "" {
		workflow = defaultValidationWorkflow
	}
	return &BatchValidator{
		log:      log.With("component", "BatchValidator"),
		starter:  starter,
		queue:    queue,
		workflow: workflow,
	}
}

// WorkflowID is the workflow id used for a file's validation job.
func WorkflowID(fileID uuid.UUID) string {
	return "validate-file-" + fileID.String()
}

// Submit starts the validation workflow for one file and returns its run id as the job id.
func (v *BatchValidator) Submit(ctx context.Context, fileID uuid.UUID, bucket, key string) (string, error) {
	if v == nil || v.starter == nil {
		return "", fmt.Errorf("temporal not configured")
	}
	if fileID == uuid.Nil {
		return "", fmt.Errorf("missing file id")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    WorkflowID(fileID),
		TaskQueue:             v.queue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	req := ValidationRequest{
		FileID:      fileID.String(),
		Bucket:      bucket,
		Key:         key,
		SubmittedAt: time.Now().UTC(),
	}
	run, err := v.starter.ExecuteWorkflow(ctx, opts, v.workflow, req)
	if err != nil {
		return "", fmt.Errorf("start %s workflow: %w", v.workflow, err)
	}
	jobID := run.GetRunID()
	if jobID == "" {
		jobID = run.GetID()
	}
	v.log.Debug("Validation workflow started", "file_id", fileID, "workflow_id", run.GetID(), "run_id", jobID)
	return jobID, nil
}

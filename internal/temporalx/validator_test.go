package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

type recordingStarter struct {
	opts     temporalsdkclient.StartWorkflowOptions
	workflow interface{}
	args     []interface{}
	run      temporalsdkclient.WorkflowRun
	err      error
}

func (s *recordingStarter) ExecuteWorkflow(ctx context.Context, opts temporalsdkclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error) {
	s.opts = opts
	s.workflow = workflow
	s.args = args
	return s.run, s.err
}

func TestBatchValidator_SubmitStartsWorkflow(t *testing.T) {
	fileID := uuid.New()
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return(WorkflowID(fileID))
	run.On("GetRunID").Return("run-123")

	starter := &recordingStarter{run: run}
	v := NewBatchValidator(nil, starter, Config{TaskQueue: "files", ValidationWorkflow: "validate_h5ad"})

	jobID, err := v.Submit(context.Background(), fileID, "hca-atlas-tracker-data", "gut/gut-v1/source-datasets/a.h5ad")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID != "run-123" {
		t.Fatalf("job id: want run-123, got %q", jobID)
	}
	if starter.opts.ID != "validate-file-"+fileID.String() {
		t.Fatalf("workflow id: got %q", starter.opts.ID)
	}
	if starter.opts.TaskQueue != "files" {
		t.Fatalf("task queue: got %q", starter.opts.TaskQueue)
	}
	if starter.opts.WorkflowIDReusePolicy != enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE {
		t.Fatalf("reuse policy: got %v", starter.opts.WorkflowIDReusePolicy)
	}
	if starter.workflow != "validate_h5ad" {
		t.Fatalf("workflow: got %v", starter.workflow)
	}
	if len(starter.args) != 1 {
		t.Fatalf("args: want 1, got %d", len(starter.args))
	}
	req, ok := starter.args[0].(ValidationRequest)
	if !ok {
		t.Fatalf("arg type: %T", starter.args[0])
	}
	if req.FileID != fileID.String() || req.Bucket != "hca-atlas-tracker-data" || req.Key != "gut/gut-v1/source-datasets/a.h5ad" {
		t.Fatalf("request: %+v", req)
	}
	if time.Since(req.SubmittedAt) > time.Minute {
		t.Fatalf("submitted_at not set: %v", req.SubmittedAt)
	}
	run.AssertExpectations(t)
}

func TestBatchValidator_DefaultsAndRunIDFallback(t *testing.T) {
	fileID := uuid.New()
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return(WorkflowID(fileID))
	run.On("GetRunID").Return("")

	starter := &recordingStarter{run: run}
	v := NewBatchValidator(nil, starter, Config{})

	jobID, err := v.Submit(context.Background(), fileID, "b", "k")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID != WorkflowID(fileID) {
		t.Fatalf("job id fallback: got %q", jobID)
	}
	if starter.opts.TaskQueue != defaultTaskQueue || starter.workflow != defaultValidationWorkflow {
		t.Fatalf("defaults: queue=%q workflow=%v", starter.opts.TaskQueue, starter.workflow)
	}
}

func TestBatchValidator_SubmitErrors(t *testing.T) {
	starter := &recordingStarter{err: errors.New("unavailable")}
	v := NewBatchValidator(nil, starter, Config{})
	if _, err := v.Submit(context.Background(), uuid.New(), "b", "k"); err == nil {
		t.Fatalf("expected start error")
	}
	if _, err := v.Submit(context.Background(), uuid.Nil, "b", "k"); err == nil {
		t.Fatalf("expected missing file id error")
	}
	var nilValidator *BatchValidator
	if _, err := nilValidator.Submit(context.Background(), uuid.New(), "b", "k"); err == nil {
		t.Fatalf("expected not configured error")
	}
}

func TestBackoffDelay(t *testing.T) {
	b := backoff{base: 100 * time.Millisecond, max: 500 * time.Millisecond}
	cases := map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 400 * time.Millisecond, 4: 500 * time.Millisecond, 9: 500 * time.Millisecond}
	for attempt, want := range cases {
		if got := b.delay(attempt); got != want {
			t.Fatalf("attempt %d: want %v, got %v", attempt, want, got)
		}
	}
	if got := (backoff{}).delay(1); got != 250*time.Millisecond {
		t.Fatalf("zero base: got %v", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	t.Setenv("TEMPORAL_NAMESPACE", "")
	t.Setenv("TEMPORAL_TASK_QUEUE", "")
	t.Setenv("VALIDATION_WORKFLOW_NAME", "")
	cfg := LoadConfig()
	if cfg.Namespace != "atlas-ingest" || cfg.TaskQueue != "atlas-file-validation" || cfg.ValidationWorkflow != "validate_file" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.mTLS() {
		t.Fatalf("mTLS should be off by default")
	}

	t.Setenv("TEMPORAL_CLIENT_CERT_PATH", "/tmp/cert.pem")
	if !LoadConfig().mTLS() {
		t.Fatalf("mTLS should be on when a cert path is set")
	}
}

func TestNewClient_DisabledWithoutAddress(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	c, err := NewClient(nil)
	if err != nil || c != nil {
		t.Fatalf("want nil client, got %v %v", c, err)
	}
}

package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	domainagg "github.com/yungbote/atlas-ingest/internal/domain/aggregates"
	"github.com/yungbote/atlas-ingest/internal/platform/dbctx"
)

const testOp = "Atlas.FileIngestion.Test"

func TestExecuteWrite_Success(t *testing.T) {
	hooks := &spyHooks{}
	calls := 0
	err := executeWrite(context.Background(), BaseDeps{Runner: spyTxRunner{}, Hooks: hooks}, testOp, func(dbc dbctx.Context) error {
		calls++
		if dbc.Ctx == nil {
			t.Fatalf("tx context missing")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("executeWrite: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fn calls: want=1 got=%d", calls)
	}
	if len(hooks.Operations) != 1 || hooks.Operations[0] != (spyOperation{Name: testOp, Status: "success"}) {
		t.Fatalf("operations: %+v", hooks.Operations)
	}
}

func TestExecuteWrite_ClassifiesFailures(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      domainagg.ErrorCode
		conflicts int
		retries   int
	}{
		{
			name:      "etag conflict",
			err:       domainagg.Errorf(domainagg.CodeConflict, testOp, "existing=%s new=%s", "a", "b"),
			code:      domainagg.CodeConflict,
			conflicts: 1,
		},
		{
			name:    "concurrent first insert",
			err:     &pgconn.PgError{Code: "23505"},
			code:    domainagg.CodeRetryable,
			retries: 1,
		},
		{
			name: "multiple atlases",
			err:  domainagg.Errorf(domainagg.CodeInvariantViolation, testOp, "Multiple atlases match"),
			code: domainagg.CodeInvariantViolation,
		},
		{
			name: "driver failure",
			err:  errors.New("broken pipe"),
			code: domainagg.CodeInternal,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hooks := &spyHooks{}
			err := executeWrite(context.Background(), BaseDeps{Runner: spyTxRunner{}, Hooks: hooks}, testOp, func(dbctx.Context) error {
				return tc.err
			})
			if domainagg.CodeOf(err) != tc.code {
				t.Fatalf("code: want=%s got=%s (%v)", tc.code, domainagg.CodeOf(err), err)
			}
			if len(hooks.Conflicts) != tc.conflicts || len(hooks.Retries) != tc.retries {
				t.Fatalf("counters: conflicts=%v retries=%v", hooks.Conflicts, hooks.Retries)
			}
			if len(hooks.Operations) != 1 || hooks.Operations[0].Status != string(tc.code) {
				t.Fatalf("operations: %+v", hooks.Operations)
			}
		})
	}
}

func TestExecuteWrite_DefaultsOpName(t *testing.T) {
	hooks := &spyHooks{}
	_ = executeWrite(context.Background(), BaseDeps{Runner: spyTxRunner{}, Hooks: hooks}, "  ", func(dbctx.Context) error { return nil })
	if len(hooks.Operations) != 1 || hooks.Operations[0].Name != "aggregate.write" {
		t.Fatalf("operations: %+v", hooks.Operations)
	}
}

func TestOperationStatus(t *testing.T) {
	if got := operationStatus(nil); got != "success" {
		t.Fatalf("nil: got=%s", got)
	}
	if got := operationStatus(context.DeadlineExceeded); got != string(domainagg.CodeRetryable) {
		t.Fatalf("deadline: got=%s", got)
	}
}

type spyTxRunner struct{}

func (spyTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return fn(dbctx.Context{Ctx: ctx})
}

type spyOperation struct {
	Name   string
	Status string
}

type spyHooks struct {
	Operations []spyOperation
	Conflicts  []string
	Retries    []string
}

func (h *spyHooks) ObserveOperation(name, status string, _ time.Duration) {
	h.Operations = append(h.Operations, spyOperation{Name: name, Status: status})
}

func (h *spyHooks) IncConflict(name string) { h.Conflicts = append(h.Conflicts, name) }
func (h *spyHooks) IncRetry(name string)    { h.Retries = append(h.Retries, name) }

package aggregates

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/atlas-ingest/internal/domain/aggregates"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domainagg.ErrorCode
	}{
		{"record not found", gorm.ErrRecordNotFound, domainagg.CodeNotFound},
		{"wrapped not found", fmt.Errorf("load file: %w", gorm.ErrRecordNotFound), domainagg.CodeNotFound},
		{"deadline", context.DeadlineExceeded, domainagg.CodeRetryable},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "idx_file_concept_latest"}, domainagg.CodeRetryable},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, domainagg.CodeRetryable},
		{"serialization", &pgconn.PgError{Code: "40001"}, domainagg.CodeRetryable},
		{"foreign key", &pgconn.PgError{Code: "23503"}, domainagg.CodePreconditionFailed},
		{"link check", &pgconn.PgError{Code: "23514", ConstraintName: "chk_file_entity_link"}, domainagg.CodeInvariantViolation},
		{"duplicate key text", errors.New(`ERROR: duplicate key value violates unique constraint "file_sns_message_id_key"`), domainagg.CodeRetryable},
		{"other", errors.New("boom"), domainagg.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MapError("Atlas.FileIngestion.IngestFile", tc.err)
			if domainagg.CodeOf(got) != tc.want {
				t.Fatalf("want=%s got=%s (%v)", tc.want, domainagg.CodeOf(got), got)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("cause not preserved: %v", got)
			}
		})
	}
}

func TestMapError_KeepsAggregateErrors(t *testing.T) {
	in := domainagg.Errorf(domainagg.CodeConflict, "Atlas.FileIngestion.IngestFile", "existing=%s new=%s", "a", "b")
	if out := MapError("outer", fmt.Errorf("wrapped: %w", in)); domainagg.CodeOf(out) != domainagg.CodeConflict {
		t.Fatalf("code changed: %v", out)
	}
	if MapError("op", nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}

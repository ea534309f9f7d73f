package response

import (
	"errors"
	"net/http"

	domainagg "github.com/yungbote/atlas-ingest/internal/domain/aggregates"
	"github.com/yungbote/atlas-ingest/internal/platform/apierr"
)

// StatusForError maps ingestion and aggregate errors onto an HTTP status and the
// message returned to the caller. Retryable failures map to 503 so the relay redelivers.
func StatusForError(err error) (int, string) {
	if err == nil {
		return http.StatusInternalServerError, "unknown error"
	}

	var apiErr *apierr.Error
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return apiErr.Status, apiErr.Error()
	}

	var aggErr *domainagg.Error
	if errors.As(err, &aggErr) {
		msg := aggErr.Message
		switch aggErr.Code {
		case domainagg.CodeValidation:
			return http.StatusBadRequest, msg
		case domainagg.CodeNotFound:
			return http.StatusNotFound, msg
		case domainagg.CodeConflict:
			return http.StatusConflict, msg
		case domainagg.CodePreconditionFailed:
			return http.StatusPreconditionFailed, msg
		case domainagg.CodeRetryable:
			return http.StatusServiceUnavailable, "Temporary failure, retry later"
		case domainagg.CodeInvariantViolation:
			return http.StatusInternalServerError, msg
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

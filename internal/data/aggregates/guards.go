package aggregates

import (
	types "github.com/yungbote/atlas-ingest/internal/domain"
)

// validationStatusSources lists, per target status, the statuses a file may leave to reach it.
// Result statuses accept any source so a late callback is never dropped; request statuses never
// overwrite a recorded result.
var validationStatusSources = map[types.ValidationStatus][]types.ValidationStatus{
	types.ValidationStatusRequested: {
		types.ValidationStatusPending,
		types.ValidationStatusRequestFailed,
	},
	types.ValidationStatusRequestFailed: {
		types.ValidationStatusPending,
		types.ValidationStatusRequestFailed,
	},
	types.ValidationStatusCompleted: allValidationStatuses,
	types.ValidationStatusJobFailed: allValidationStatuses,
}

var allValidationStatuses = []types.ValidationStatus{
	types.ValidationStatusPending,
	types.ValidationStatusRequested,
	types.ValidationStatusRequestFailed,
	types.ValidationStatusCompleted,
	types.ValidationStatusJobFailed,
}

func validationSourcesFor(to types.ValidationStatus) []types.ValidationStatus {
	return validationStatusSources[to]
}

func isAllowedValidationTransition(from, to types.ValidationStatus) bool {
	for _, s := range validationStatusSources[to] {
		if s == from {
			return true
		}
	}
	return false
}

func isIntegrityResult(s types.IntegrityStatus) bool {
	switch s {
	case types.IntegrityStatusValid, types.IntegrityStatusInvalid, types.IntegrityStatusError:
		return true
	default:
		return false
	}
}

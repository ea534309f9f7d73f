package atlas

type FileType string

const (
	FileTypeSourceDataset    FileType = "source_dataset"
	FileTypeIntegratedObject FileType = "integrated_object"
	FileTypeIngestManifest   FileType = "ingest_manifest"
)

// HasEntity reports whether files of this type are backed by a versioned metadata entity.
func (t FileType) HasEntity() bool {
	return t == FileTypeSourceDataset || t == FileTypeIntegratedObject
}

type ValidationStatus string

const (
	ValidationStatusPending       ValidationStatus = "pending"
	ValidationStatusRequested     ValidationStatus = "requested"
	ValidationStatusRequestFailed ValidationStatus = "request_failed"
	ValidationStatusCompleted     ValidationStatus = "completed"
	ValidationStatusJobFailed     ValidationStatus = "job_failed"
)

type IntegrityStatus string

const (
	IntegrityStatusPending   IntegrityStatus = "pending"
	IntegrityStatusRequested IntegrityStatus = "requested"
	IntegrityStatusValid     IntegrityStatus = "valid"
	IntegrityStatusInvalid   IntegrityStatus = "invalid"
	IntegrityStatusError     IntegrityStatus = "error"
)

type AtlasStatus string

const (
	AtlasStatusDraft    AtlasStatus = "draft"
	AtlasStatusPublic   AtlasStatus = "public"
	AtlasStatusRevision AtlasStatus = "revision"
)

// Networks lists the biological network identifiers accepted as the first key segment.
var Networks = map[string]struct{}{
	"adipose":           {},
	"breast":            {},
	"development":       {},
	"eye":               {},
	"genetic-diversity": {},
	"gut":               {},
	"heart":             {},
	"immune":            {},
	"kidney":            {},
	"liver":             {},
	"lung":              {},
	"musculoskeletal":   {},
	"nervous-system":    {},
	"oral":              {},
	"organoid":          {},
	"pancreas":          {},
	"reproduction":      {},
	"skin":              {},
}

func IsNetwork(s string) bool {
	_, ok := Networks[s]
	return ok
}

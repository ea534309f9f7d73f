package sns

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/yungbote/atlas-ingest/internal/ingestion/s3key"
	"github.com/yungbote/atlas-ingest/internal/platform/apierr"
)

// ErrTestEvent is returned for the test event storage sends when a notification
// configuration is created. It carries no records and must be acknowledged.
var ErrTestEvent = errors.New("s3 test event")

// sha256MetadataKey is the user-metadata entry uploaders set with the client-side digest.
const sha256MetadataKey = "source-sha256"

var sha256Hex = regexp.MustCompile(`^[0-9a-f]{64}$`)

type s3Event struct {
	Event   string          `json:"Event"`
	Records []s3EventRecord `json:"Records"`
}

type s3EventRecord struct {
	EventName string `json:"eventName"`
	EventTime string `json:"eventTime"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key          string            `json:"key"`
			Size         int64             `json:"size"`
			ETag         string            `json:"eTag"`
			VersionID    *string           `json:"versionId"`
			UserMetadata map[string]string `json:"userMetadata"`
		} `json:"object"`
	} `json:"s3"`
}

// ObjectEvent is the single storage record carried by a notification.
type ObjectEvent struct {
	Bucket       string
	Key          string
	VersionID    *string
	ETag         string
	SizeBytes    int64
	SHA256Client *string
	EventName    string
	EventTime    time.Time
}

// ParseS3Event decodes the notification payload. Exactly one record is required.
func ParseS3Event(message string) (*ObjectEvent, error) {
	var head s3Event
	if err := json.Unmarshal([]byte(message), &head); err == nil && head.Event == "s3:TestEvent" {
		return nil, ErrTestEvent
	}
	if err := validateJSON(s3EventSchema, "S3 event", []byte(message)); err != nil {
		return nil, err
	}
	var ev s3Event
	if err := json.Unmarshal([]byte(message), &ev); err != nil {
		return nil, apierr.BadRequest("invalid_json", "Invalid S3 event: %v", err)
	}
	if len(ev.Records) != 1 {
		return nil, apierr.BadRequest("invalid_record_count", "Expected exactly one S3 record, got %d", len(ev.Records))
	}
	rec := ev.Records[0]

	key, err := s3key.DecodeEventKey(rec.S3.Object.Key)
	if err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339Nano, rec.EventTime)
	if err != nil {
		return nil, apierr.BadRequest("invalid_event_time", "Invalid S3 event time %q", rec.EventTime)
	}

	out := &ObjectEvent{
		Bucket:    rec.S3.Bucket.Name,
		Key:       key,
		ETag:      strings.Trim(rec.S3.Object.ETag, `"`),
		SizeBytes: rec.S3.Object.Size,
		EventName: rec.EventName,
		// Storage reports microsecond precision at most; so does timestamptz.
		EventTime: at.UTC().Truncate(time.Microsecond),
	}
	if v := rec.S3.Object.VersionID; v != nil && *v != "" {
		version := *v
		out.VersionID = &version
	}
	if sum := strings.ToLower(strings.TrimSpace(rec.S3.Object.UserMetadata[sha256MetadataKey])); sum != "" {
		if !sha256Hex.MatchString(sum) {
			return nil, apierr.BadRequest("invalid_sha256", "Invalid %s metadata %q", sha256MetadataKey, sum)
		}
		out.SHA256Client = &sum
	}
	return out, nil
}

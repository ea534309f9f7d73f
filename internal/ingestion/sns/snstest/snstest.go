// Package snstest builds relay envelopes and storage events for tests.
package snstest

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/atlas-ingest/internal/ingestion/access"
)

const (
	S3Topic      = "arn:aws:sns:us-east-1:123456789012:hca-atlas-tracker-s3-notifications"
	ResultsTopic = "arn:aws:sns:us-east-1:123456789012:hca-atlas-tracker-validation-results"
	Bucket       = "hca-atlas-tracker-data"
)

// Allowlist authorizes S3Topic, ResultsTopic and Bucket.
func Allowlist() *access.Allowlist {
	a, err := access.New(access.Config{
		S3NotificationTopics:    []string{S3Topic},
		ValidationResultsTopics: []string{ResultsTopic},
		S3Buckets:               []string{Bucket},
	})
	if err != nil {
		panic(err)
	}
	return a
}

type ObjectRecord struct {
	Bucket    string
	Key       string
	ETag      string
	Size      int64
	VersionID string
	EventName string
	EventTime time.Time
	SHA256    string
}

// S3Message encodes records the way storage notifications deliver them, keys included.
func S3Message(recs ...ObjectRecord) string {
	records := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		if r.Bucket == "" {
			r.Bucket = Bucket
		}
		if r.EventName == "" {
			r.EventName = "ObjectCreated:Put"
		}
		if r.EventTime.IsZero() {
			r.EventTime = time.Now().UTC()
		}
		obj := map[string]any{
			"key":  encodeKey(r.Key),
			"size": r.Size,
			"eTag": r.ETag,
		}
		if r.VersionID != "" {
			obj["versionId"] = r.VersionID
		}
		if r.SHA256 != "" {
			obj["userMetadata"] = map[string]string{"source-sha256": r.SHA256}
		}
		records = append(records, map[string]any{
			"eventVersion": "2.1",
			"eventSource":  "aws:s3",
			"eventName":    r.EventName,
			"eventTime":    r.EventTime.UTC().Format("2006-01-02T15:04:05.000Z"),
			"s3": map[string]any{
				"bucket": map[string]any{"name": r.Bucket},
				"object": obj,
			},
		})
	}
	return mustJSON(map[string]any{"Records": records})
}

func encodeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.QueryEscape(p)
	}
	return strings.Join(parts, "/")
}

// Notification wraps message in an unsigned Notification envelope.
func Notification(topicArn, messageID, message string) []byte {
	return []byte(mustJSON(envelope("Notification", topicArn, messageID, message)))
}

// SubscriptionConfirmation builds a confirmation envelope pointing at subscribeURL.
func SubscriptionConfirmation(topicArn, subscribeURL string) []byte {
	env := envelope("SubscriptionConfirmation", topicArn, "sub-confirm-1", "You have chosen to subscribe to the topic.")
	env["Token"] = "token-1"
	env["SubscribeURL"] = subscribeURL
	return []byte(mustJSON(env))
}

func envelope(typ, topicArn, messageID, message string) map[string]any {
	return map[string]any{
		"Type":             typ,
		"MessageId":        messageID,
		"TopicArn":         topicArn,
		"Message":          message,
		"Timestamp":        time.Now().UTC().Format(time.RFC3339),
		"SignatureVersion": "1",
		"Signature":        "dGVzdA==",
		"SigningCertURL":   "https://sns.us-east-1.amazonaws.com/SimpleNotificationService-test.pem",
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

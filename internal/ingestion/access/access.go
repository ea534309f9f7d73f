// Package access holds the allowlist of relay topics and storage buckets the service
// accepts notifications from.
package access

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/atlas-ingest/internal/platform/apierr"
)

// EnvVar names the environment variable holding the allowlist document (JSON or YAML).
const EnvVar = "AWS_RESOURCE_CONFIG"

type TopicKind int

const (
	TopicUnknown TopicKind = iota
	TopicS3Notification
	TopicValidationResults
)

type Config struct {
	S3NotificationTopics    []string `yaml:"s3_notification_topics"`
	ValidationResultsTopics []string `yaml:"validation_results_topics"`
	S3Buckets               []string `yaml:"s3_buckets"`
}

type Allowlist struct {
	topics  map[string]TopicKind
	buckets map[string]struct{}
}

func New(cfg Config) (*Allowlist, error) {
	a := &Allowlist{
		topics:  map[string]TopicKind{},
		buckets: map[string]struct{}{},
	}
	add := func(arns []string, kind TopicKind) error {
		for _, arn := range arns {
			arn = strings.TrimSpace(arn)
			if arn == "" {
				continue
			}
			if prev, ok := a.topics[arn]; ok && prev != kind {
				return fmt.Errorf("topic %s is listed for both notifications and validation results", arn)
			}
			a.topics[arn] = kind
		}
		return nil
	}
	if err := add(cfg.S3NotificationTopics, TopicS3Notification); err != nil {
		return nil, err
	}
	if err := add(cfg.ValidationResultsTopics, TopicValidationResults); err != nil {
		return nil, err
	}
	for _, b := range cfg.S3Buckets {
		if b = strings.TrimSpace(b); b != "" {
			a.buckets[b] = struct{}{}
		}
	}
	return a, nil
}

// Parse reads an allowlist document. JSON documents are accepted as YAML.
func Parse(doc []byte) (*Allowlist, error) {
	var cfg Config
	if err := yaml.Unmarshal(doc, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", EnvVar, err)
	}
	return New(cfg)
}

func (a *Allowlist) TopicKind(arn string) TopicKind {
	if a == nil {
		return TopicUnknown
	}
	return a.topics[arn]
}

func (a *Allowlist) HasBucket(bucket string) bool {
	if a == nil {
		return false
	}
	_, ok := a.buckets[bucket]
	return ok
}

// AuthorizeTopic returns the topic's kind, or a 403 when it is not allowlisted.
func (a *Allowlist) AuthorizeTopic(arn string) (TopicKind, error) {
	kind := a.TopicKind(arn)
	if kind == TopicUnknown {
		return TopicUnknown, apierr.Forbidden("unauthorized_topic", "Unauthorized SNS topic: %s", arn)
	}
	return kind, nil
}

func (a *Allowlist) AuthorizeBucket(bucket string) error {
	if !a.HasBucket(bucket) {
		return apierr.Forbidden("unauthorized_bucket", "Unauthorized S3 bucket: %s", bucket)
	}
	return nil
}

// ---- process-wide allowlist ----

var (
	mu      sync.Mutex
	current *Allowlist
)

// Current returns the process allowlist, loading it from EnvVar on first use. A missing or
// malformed document authorizes nothing and surfaces as a 500 so the relay keeps retrying
// until the deployment is fixed. Failed loads are retried on the next call.
func Current() (*Allowlist, error) {
	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		return current, nil
	}
	raw := strings.TrimSpace(os.Getenv(EnvVar))
	if raw == "" {
		return nil, apierr.Internal("allowlist_unconfigured", "%s is not set", EnvVar)
	}
	a, err := Parse([]byte(raw))
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "allowlist_invalid", err)
	}
	current = a
	return current, nil
}

// Set installs a as the process allowlist.
func Set(a *Allowlist) {
	mu.Lock()
	current = a
	mu.Unlock()
}

// Reset drops the process allowlist so the next Current call reloads it.
func Reset() {
	Set(nil)
}

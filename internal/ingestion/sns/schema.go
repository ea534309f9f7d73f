package sns

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/yungbote/atlas-ingest/internal/platform/apierr"
)

const schemaBaseURL = "https://atlas-ingest.schemas.local/"

const envelopeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["Type", "MessageId", "TopicArn", "Message", "Timestamp", "SignatureVersion", "Signature", "SigningCertURL"],
  "properties": {
    "Type": {"enum": ["Notification", "SubscriptionConfirmation", "UnsubscribeConfirmation"]},
    "MessageId": {"type": "string", "minLength": 1},
    "Token": {"type": "string"},
    "TopicArn": {"type": "string", "pattern": "^arn:aws[a-z-]*:sns:"},
    "Subject": {"type": ["string", "null"]},
    "Message": {"type": "string"},
    "Timestamp": {"type": "string", "minLength": 1},
    "SignatureVersion": {"enum": ["1", "2"]},
    "Signature": {"type": "string", "minLength": 1},
    "SigningCertURL": {"type": "string", "minLength": 1},
    "SubscribeURL": {"type": "string"},
    "UnsubscribeURL": {"type": "string"}
  },
  "if": {"properties": {"Type": {"const": "SubscriptionConfirmation"}}},
  "then": {
    "required": ["SubscribeURL", "Token"],
    "properties": {"SubscribeURL": {"minLength": 1}}
  }
}`

const s3EventSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["Records"],
  "properties": {
    "Records": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["eventName", "eventTime", "s3"],
        "properties": {
          "eventName": {"type": "string", "minLength": 1},
          "eventTime": {"type": "string", "minLength": 1},
          "s3": {
            "type": "object",
            "required": ["bucket", "object"],
            "properties": {
              "bucket": {
                "type": "object",
                "required": ["name"],
                "properties": {"name": {"type": "string", "minLength": 1}}
              },
              "object": {
                "type": "object",
                "required": ["key", "size", "eTag"],
                "properties": {
                  "key": {"type": "string", "minLength": 1},
                  "size": {"type": "integer", "minimum": 0},
                  "eTag": {"type": "string", "minLength": 1},
                  "versionId": {"type": ["string", "null"]},
                  "userMetadata": {"type": "object", "additionalProperties": {"type": "string"}}
                }
              }
            }
          }
        }
      }
    }
  }
}`

const validationResultsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["file_id", "status", "integrity_status"],
  "properties": {
    "batch_job_id": {"type": ["string", "null"]},
    "file_id": {"type": "string", "pattern": "^[0-9a-fA-F-]{36}$"},
    "status": {"enum": ["success", "failure"]},
    "integrity_status": {"enum": ["valid", "invalid", "error"]},
    "downloaded_sha256": {"type": ["string", "null"]},
    "metadata_summary": {"type": ["object", "null"]},
    "tool_reports": {"type": ["object", "null"]},
    "error_message": {"type": ["string", "null"]},
    "timestamp": {"type": ["string", "null"]}
  }
}`

var (
	envelopeSchema          = mustCompile("sns-envelope.json", envelopeSchemaJSON)
	s3EventSchema           = mustCompile("s3-event.json", s3EventSchemaJSON)
	validationResultsSchema = mustCompile("validation-results.json", validationResultsSchemaJSON)
)

func mustCompile(name, src string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("sns: parse schema %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaBaseURL+name, doc); err != nil {
		panic(fmt.Sprintf("sns: add schema %s: %v", name, err))
	}
	return c.MustCompile(schemaBaseURL + name)
}

// validateJSON checks raw against sch and returns a 400 naming what was being parsed.
func validateJSON(sch *jsonschema.Schema, what string, raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return apierr.BadRequest("invalid_json", "Invalid %s: %v", what, err)
	}
	if err := sch.Validate(inst); err != nil {
		return apierr.BadRequest("schema_violation", "Invalid %s: %s", what, firstLine(err.Error()))
	}
	return nil
}

func firstLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := strings.TrimSpace(lines[0])
	if len(lines) > 1 {
		out += ": " + strings.TrimSpace(lines[len(lines)-1])
	}
	return out
}

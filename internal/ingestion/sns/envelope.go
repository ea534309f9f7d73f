// Package sns validates inbound relay envelopes and decodes the payloads they carry.
package sns

import (
	"encoding/json"
	"strings"

	"github.com/yungbote/atlas-ingest/internal/platform/apierr"
)

type MessageType string

const (
	TypeNotification             MessageType = "Notification"
	TypeSubscriptionConfirmation MessageType = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  MessageType = "UnsubscribeConfirmation"
)

// Envelope is the signed outer message posted by the relay.
type Envelope struct {
	Type             MessageType `json:"Type"`
	MessageID        string      `json:"MessageId"`
	Token            string      `json:"Token,omitempty"`
	TopicArn         string      `json:"TopicArn"`
	Subject          *string     `json:"Subject,omitempty"`
	Message          string      `json:"Message"`
	Timestamp        string      `json:"Timestamp"`
	SignatureVersion string      `json:"SignatureVersion"`
	Signature        string      `json:"Signature"`
	SigningCertURL   string      `json:"SigningCertURL"`
	SubscribeURL     string      `json:"SubscribeURL,omitempty"`
	UnsubscribeURL   string      `json:"UnsubscribeURL,omitempty"`
}

// ParseEnvelope validates body against the envelope schema and decodes it.
func ParseEnvelope(body []byte) (*Envelope, error) {
	if err := validateJSON(envelopeSchema, "SNS message", body); err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apierr.BadRequest("invalid_json", "Invalid SNS message: %v", err)
	}
	return &env, nil
}

// StringToSign builds the canonical text the relay signed for this envelope.
func (e *Envelope) StringToSign() string {
	var b strings.Builder
	field := func(name, value string) {
		b.WriteString(name)
		b.WriteByte('\n')
		b.WriteString(value)
		b.WriteByte('\n')
	}
	field("Message", e.Message)
	field("MessageId", e.MessageID)
	if e.Type == TypeNotification {
		if e.Subject != nil {
			field("Subject", *e.Subject)
		}
	} else {
		field("SubscribeURL", e.SubscribeURL)
	}
	field("Timestamp", e.Timestamp)
	if e.Type != TypeNotification {
		field("Token", e.Token)
	}
	field("TopicArn", e.TopicArn)
	field("Type", string(e.Type))
	return b.String()
}

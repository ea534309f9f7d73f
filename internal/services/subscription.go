package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/yungbote/atlas-ingest/internal/ingestion/sns"
	"github.com/yungbote/atlas-ingest/internal/platform/apierr"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

// SubscriptionConfirmer completes the relay's subscription handshake.
type SubscriptionConfirmer interface {
	Confirm(ctx context.Context, env *sns.Envelope) error
}

type httpSubscriptionConfirmer struct {
	log         *logger.Logger
	client      *http.Client
	hostPattern *regexp.Regexp
}

// NewSubscriptionConfirmer visits SubscribeURL. Callback hosts must match hostPattern
// (sns.DefaultCertHostPattern when empty) and use HTTPS.
func NewSubscriptionConfirmer(baseLog *logger.Logger, client *http.Client, hostPattern string) (SubscriptionConfirmer, error) {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if hostPattern == "" {
		hostPattern = sns.DefaultCertHostPattern
	}
	re, err := regexp.Compile(hostPattern)
	if err != nil {
		return nil, fmt.Errorf("subscribe host pattern: %w", err)
	}
	return &httpSubscriptionConfirmer{
		log:         baseLog.With("service", "SubscriptionConfirmer"),
		client:      client,
		hostPattern: re,
	}, nil
}

func (c *httpSubscriptionConfirmer) Confirm(ctx context.Context, env *sns.Envelope) error {
	if env == nil || env.SubscribeURL == "" {
		return apierr.BadRequest("missing_subscribe_url", "SubscribeURL is required to confirm a subscription")
	}
	u, err := url.Parse(env.SubscribeURL)
	if err != nil || u.Scheme != "https" || !c.hostPattern.MatchString(u.Hostname()) {
		return apierr.BadRequest("invalid_subscribe_url", "Untrusted SubscribeURL: %s", env.SubscribeURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("confirm subscription: status %d", resp.StatusCode)
	}
	c.log.Info("Subscription confirmed", "topic_arn", env.TopicArn, "message_id", env.MessageID)
	return nil
}

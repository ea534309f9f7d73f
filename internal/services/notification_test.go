package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/atlas-ingest/internal/data/aggregates"
	repotest "github.com/yungbote/atlas-ingest/internal/data/repos/testutil"
	types "github.com/yungbote/atlas-ingest/internal/domain"
	"github.com/yungbote/atlas-ingest/internal/ingestion/access"
	"github.com/yungbote/atlas-ingest/internal/ingestion/sns"
	"github.com/yungbote/atlas-ingest/internal/ingestion/sns/snstest"
	"github.com/yungbote/atlas-ingest/internal/platform/apierr"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
	"github.com/yungbote/atlas-ingest/internal/realtime/bus"
)

const emptyETag = "d41d8cd98f00b204e9800998ecf8427e"

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []ValidationTarget
	jobID string
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, fileID uuid.UUID, bucket, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ValidationTarget{FileID: fileID, Bucket: bucket, Key: key})
	if f.err != nil {
		return "", f.err
	}
	return f.jobID, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeVerifier struct{ err error }

func (v fakeVerifier) Verify(context.Context, *sns.Envelope) error { return v.err }

type notificationFixture struct {
	store      *repotest.MemStore
	atlas      *types.Atlas
	submitter  *fakeSubmitter
	dispatcher ValidationDispatcher
	events     []bus.Message
	svc        NotificationService
}

type fixtureOption func(*NotificationServiceDeps)

func newNotificationFixture(t *testing.T, opts ...fixtureOption) *notificationFixture {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	store := repotest.NewMemStore()
	agg := aggregates.NewFileIngestionAggregate(aggregates.FileIngestionAggregateDeps{
		Base:             aggregates.BaseDeps{Runner: store, Log: log},
		Concepts:         store.Concepts(),
		Atlases:          store.Atlases(),
		Files:            store.Files(),
		ComponentAtlases: store.ComponentAtlases(),
		SourceDatasets:   store.SourceDatasets(),
	})
	allow := func() (*access.Allowlist, error) { return snstest.Allowlist(), nil }

	f := &notificationFixture{
		store:     store,
		atlas:     store.SeedAtlas("gut", "gut", 1, 0),
		submitter: &fakeSubmitter{jobID: "job-1"},
	}
	f.dispatcher = NewValidationDispatcher(ValidationDispatcherDeps{
		Log:       log,
		Files:     agg,
		Submitter: f.submitter,
		Allowlist: allow,
	})

	mem := bus.NewMemoryBus()
	var mu sync.Mutex
	if err := mem.Subscribe(context.Background(), func(m bus.Message) {
		mu.Lock()
		f.events = append(f.events, m)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	deps := NotificationServiceDeps{
		Log:        log,
		Verifier:   sns.NopVerifier{},
		Files:      agg,
		Dispatcher: f.dispatcher,
		Events:     NewIngestEventPublisher(log, mem),
		Allowlist:  allow,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.svc = NewNotificationService(deps)
	return f
}

func (f *notificationFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.dispatcher.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func objectNotification(messageID string, rec snstest.ObjectRecord) []byte {
	return snstest.Notification(snstest.S3Topic, messageID, snstest.S3Message(rec))
}

func sourceDatasetRecord(filename string, at time.Time) snstest.ObjectRecord {
	return snstest.ObjectRecord{
		Key:       "gut/gut-v1/source-datasets/" + filename,
		ETag:      emptyETag,
		Size:      1024000,
		EventTime: at,
	}
}

func TestHandle_NewSourceDatasetRequestsValidation(t *testing.T) {
	f := newNotificationFixture(t)

	res, err := f.svc.Handle(context.Background(), objectNotification("msg-1", sourceDatasetRecord("test-file.h5ad", t0)))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Action != ActionIngested || !res.ValidationDispatch || res.FileID == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	f.drain(t)

	files := f.store.AllFiles()
	if len(files) != 1 {
		t.Fatalf("files: want=1 got=%d", len(files))
	}
	file := files[0]
	if file.ValidationStatus != types.ValidationStatusRequested || file.IntegrityStatus != types.IntegrityStatusRequested {
		t.Fatalf("statuses: validation=%s integrity=%s", file.ValidationStatus, file.IntegrityStatus)
	}
	if file.ValidationJobID == nil || *file.ValidationJobID != "job-1" {
		t.Fatalf("job id: %v", file.ValidationJobID)
	}
	if file.SHA256Client != nil {
		t.Fatalf("sha256_client should be nil, got %q", *file.SHA256Client)
	}
	if file.FileType != types.FileTypeSourceDataset {
		t.Fatalf("file type: %s", file.FileType)
	}
	if f.submitter.count() != 1 || f.submitter.calls[0].Key != "gut/gut-v1/source-datasets/test-file.h5ad" {
		t.Fatalf("submissions: %+v", f.submitter.calls)
	}

	a := f.store.Atlas(f.atlas.ID)
	if file.SourceDatasetID == nil || len(a.SourceDatasets) != 1 {
		t.Fatalf("atlas source datasets: %v", a.SourceDatasets)
	}
	sds := f.store.AllSourceDatasets()
	if len(sds) != 1 || a.SourceDatasets[0] != sds[0].VersionID.String() {
		t.Fatalf("atlas should reference the new version: %v vs %+v", a.SourceDatasets, sds)
	}

	if len(f.events) != 1 || f.events[0].Type != EventFileIngested {
		t.Fatalf("events: %+v", f.events)
	}
	var ev FileIngestedEvent
	if err := json.Unmarshal(f.events[0].Data, &ev); err != nil {
		t.Fatalf("event payload: %v", err)
	}
	if ev.FileID != file.ID || !ev.CreatedEntity || ev.FileType != string(types.FileTypeSourceDataset) {
		t.Fatalf("event: %+v", ev)
	}
}

func TestHandle_RedeliveryDoesNotRedispatch(t *testing.T) {
	f := newNotificationFixture(t)
	body := objectNotification("msg-1", sourceDatasetRecord("a.h5ad", t0))

	for i := 0; i < 3; i++ {
		res, err := f.svc.Handle(context.Background(), body)
		if err != nil {
			t.Fatalf("Handle #%d: %v", i, err)
		}
		if i > 0 && res.Action != ActionDuplicate {
			t.Fatalf("redelivery #%d action: %s", i, res.Action)
		}
	}
	f.drain(t)

	if n := len(f.store.AllFiles()); n != 1 {
		t.Fatalf("files: want=1 got=%d", n)
	}
	if f.submitter.count() != 1 {
		t.Fatalf("submissions: want=1 got=%d", f.submitter.count())
	}
	if len(f.events) != 1 {
		t.Fatalf("events: want=1 got=%d", len(f.events))
	}
}

func TestHandle_ETagMismatchOnRedelivery(t *testing.T) {
	f := newNotificationFixture(t)
	if _, err := f.svc.Handle(context.Background(), objectNotification("msg-1", sourceDatasetRecord("a.h5ad", t0))); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	rec := sourceDatasetRecord("a.h5ad", t0)
	rec.ETag = "ffffffffffffffffffffffffffffffff"
	_, err := f.svc.Handle(context.Background(), objectNotification("msg-1", rec))
	if err == nil {
		t.Fatalf("expected conflict")
	}
	if !strings.Contains(err.Error(), "existing="+emptyETag) || !strings.Contains(err.Error(), "new="+rec.ETag) {
		t.Fatalf("conflict message should name both etags: %v", err)
	}
}

func TestHandle_OutOfOrderNotificationIsNotDispatched(t *testing.T) {
	f := newNotificationFixture(t)
	t1, t2 := t0, t0.Add(time.Hour)

	rec2 := sourceDatasetRecord("a-r2.h5ad", t2)
	rec2.ETag = "22222222222222222222222222222222"
	if _, err := f.svc.Handle(context.Background(), objectNotification("msg-2", rec2)); err != nil {
		t.Fatalf("Handle T2: %v", err)
	}
	res, err := f.svc.Handle(context.Background(), objectNotification("msg-1", sourceDatasetRecord("a-r1.h5ad", t1)))
	if err != nil {
		t.Fatalf("Handle T1: %v", err)
	}
	if res.Action != ActionDiscarded || res.ValidationDispatch {
		t.Fatalf("late arrival: %+v", res)
	}
	f.drain(t)

	files := f.store.AllFiles()
	if len(files) != 2 {
		t.Fatalf("files: want=2 got=%d", len(files))
	}
	for _, file := range files {
		wantLatest := file.SNSMessageID == "msg-2"
		if file.IsLatest != wantLatest {
			t.Fatalf("file %s is_latest=%v", file.SNSMessageID, file.IsLatest)
		}
	}
	if f.submitter.count() != 1 {
		t.Fatalf("submissions: want=1 got=%d", f.submitter.count())
	}
}

func TestHandle_SubmissionFailureStillSucceeds(t *testing.T) {
	f := newNotificationFixture(t)
	f.submitter.err = errors.New("validator unavailable")

	res, err := f.svc.Handle(context.Background(), objectNotification("msg-1", sourceDatasetRecord("a.h5ad", t0)))
	if err != nil {
		t.Fatalf("Handle should not surface dispatch failures: %v", err)
	}
	f.drain(t)

	file := f.store.AllFiles()[0]
	if file.ID != *res.FileID || file.ValidationStatus != types.ValidationStatusRequestFailed {
		t.Fatalf("validation status: %s", file.ValidationStatus)
	}
	if file.IntegrityStatus != types.IntegrityStatusPending {
		t.Fatalf("integrity status: %s", file.IntegrityStatus)
	}
}

func TestHandle_ManifestIsNotValidated(t *testing.T) {
	f := newNotificationFixture(t)
	rec := snstest.ObjectRecord{Key: "gut/gut-v1/manifests/ingest.json", ETag: "abc", Size: 10, EventTime: t0}

	res, err := f.svc.Handle(context.Background(), objectNotification("msg-1", rec))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.drain(t)
	if res.Action != ActionIngested || res.ValidationDispatch {
		t.Fatalf("manifest result: %+v", res)
	}
	if f.submitter.count() != 0 {
		t.Fatalf("manifests must not be validated")
	}
}

func TestHandle_IgnoredAndAcknowledged(t *testing.T) {
	f := newNotificationFixture(t)

	keep := snstest.ObjectRecord{Key: "gut/gut-v1/source-datasets/.keep", ETag: emptyETag, EventTime: t0}
	res, err := f.svc.Handle(context.Background(), objectNotification("msg-keep", keep))
	if err != nil || res.Action != ActionIgnored {
		t.Fatalf(".keep: %+v %v", res, err)
	}

	foreignKeep := snstest.ObjectRecord{Bucket: "other-bucket", Key: "gut/gut-v1/source-datasets/.keep", ETag: emptyETag, EventTime: t0}
	res, err = f.svc.Handle(context.Background(), objectNotification("msg-foreign-keep", foreignKeep))
	if err != nil || res.Action != ActionIgnored {
		t.Fatalf(".keep in another bucket: %+v %v", res, err)
	}

	testEvent := `{"Service":"Amazon S3","Event":"s3:TestEvent","Time":"2025-03-01T12:00:00.000Z","Bucket":"hca-atlas-tracker-data"}`
	res, err = f.svc.Handle(context.Background(), snstest.Notification(snstest.S3Topic, "msg-test", testEvent))
	if err != nil || res.Action != ActionTestEvent {
		t.Fatalf("test event: %+v %v", res, err)
	}

	unsub := snstest.Notification(snstest.S3Topic, "msg-unsub", "unsubscribed")
	var env map[string]any
	_ = json.Unmarshal(unsub, &env)
	env["Type"] = "UnsubscribeConfirmation"
	unsub, _ = json.Marshal(env)
	res, err = f.svc.Handle(context.Background(), unsub)
	if err != nil || res.Action != ActionUnsubscribed {
		t.Fatalf("unsubscribe: %+v %v", res, err)
	}

	if n := len(f.store.AllFiles()); n != 0 {
		t.Fatalf("no rows expected, got %d", n)
	}
}

func TestHandle_ErrorStatuses(t *testing.T) {
	cases := []struct {
		name    string
		body    []byte
		opts    []fixtureOption
		status  int
		message string
	}{
		{
			name:   "malformed envelope",
			body:   []byte(`{"Type":"Notification"}`),
			status: http.StatusBadRequest,
		},
		{
			name:   "bad signature",
			body:   objectNotification("m", sourceDatasetRecord("a.h5ad", t0)),
			opts:   []fixtureOption{func(d *NotificationServiceDeps) { d.Verifier = fakeVerifier{err: apierr.Unauthorized("invalid_signature", "bad")} }},
			status: http.StatusUnauthorized,
		},
		{
			name:    "unauthorized topic",
			body:    snstest.Notification("arn:aws:sns:us-east-1:1:other", "m", snstest.S3Message(sourceDatasetRecord("a.h5ad", t0))),
			status:  http.StatusForbidden,
			message: "Unauthorized SNS topic: arn:aws:sns:us-east-1:1:other",
		},
		{
			name:    "unauthorized bucket",
			body:    objectNotification("m", snstest.ObjectRecord{Bucket: "other-bucket", Key: "gut/gut-v1/source-datasets/a.h5ad", ETag: emptyETag, EventTime: t0}),
			status:  http.StatusForbidden,
			message: "Unauthorized S3 bucket: other-bucket",
		},
		{
			name:   "bad atlas version",
			body:   objectNotification("m", snstest.ObjectRecord{Key: "gut/gut-v01/source-datasets/a.h5ad", ETag: emptyETag, EventTime: t0}),
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown network",
			body:   objectNotification("m", snstest.ObjectRecord{Key: "moon/gut-v1/source-datasets/a.h5ad", ETag: emptyETag, EventTime: t0}),
			status: http.StatusBadRequest,
		},
		{
			name:   "two records",
			body:   snstest.Notification(snstest.S3Topic, "m", snstest.S3Message(sourceDatasetRecord("a.h5ad", t0), sourceDatasetRecord("b.h5ad", t0))),
			status: http.StatusBadRequest,
		},
		{
			name:   "allowlist unavailable",
			body:   objectNotification("m", sourceDatasetRecord("a.h5ad", t0)),
			opts:   []fixtureOption{func(d *NotificationServiceDeps) { d.Allowlist = unconfiguredAllowlist }},
			status: http.StatusInternalServerError,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newNotificationFixture(t, tc.opts...)
			_, err := f.svc.Handle(context.Background(), tc.body)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := apierr.StatusOf(err); got != tc.status {
				t.Fatalf("status: want=%d got=%d (%v)", tc.status, got, err)
			}
			if tc.message != "" && err.Error() != tc.message {
				t.Fatalf("message: want=%q got=%q", tc.message, err.Error())
			}
			if n := len(f.store.AllFiles()); n != 0 {
				t.Fatalf("no rows expected, got %d", n)
			}
		})
	}
}

func unconfiguredAllowlist() (*access.Allowlist, error) {
	return nil, apierr.New(http.StatusInternalServerError, "allowlist_unconfigured", errors.New("AWS_RESOURCE_CONFIG is not set"))
}

func TestHandle_ValidationResultsUpdateFile(t *testing.T) {
	f := newNotificationFixture(t)
	res, err := f.svc.Handle(context.Background(), objectNotification("msg-1", sourceDatasetRecord("a.h5ad", t0)))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.drain(t)

	results := map[string]any{
		"batch_job_id":      "job-1",
		"file_id":           res.FileID.String(),
		"status":            "success",
		"integrity_status":  "valid",
		"downloaded_sha256": strings.Repeat("ab", 32),
		"metadata_summary":  map[string]any{"cell_count": 1200},
		"tool_reports":      map[string]any{"cap": map[string]any{"valid": true}, "cellxgene": map[string]any{"valid": false}},
		"timestamp":         "2025-03-01T13:00:00Z",
	}
	raw, _ := json.Marshal(results)
	out, err := f.svc.Handle(context.Background(), snstest.Notification(snstest.ResultsTopic, "msg-results", string(raw)))
	if err != nil {
		t.Fatalf("Handle results: %v", err)
	}
	if out.Action != ActionValidationResults || *out.FileID != *res.FileID {
		t.Fatalf("results: %+v", out)
	}

	file := f.store.AllFiles()[0]
	if file.ValidationStatus != types.ValidationStatusCompleted || file.IntegrityStatus != types.IntegrityStatusValid {
		t.Fatalf("statuses: %s %s", file.ValidationStatus, file.IntegrityStatus)
	}
	if file.SHA256Server == nil || *file.SHA256Server != strings.Repeat("ab", 32) {
		t.Fatalf("sha256_server: %v", file.SHA256Server)
	}
	var summary validationSummaryDoc
	if err := json.Unmarshal(file.ValidationSummary, &summary); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Status != "success" || len(summary.ToolsPassed) != 1 || summary.ToolsFailed[0] != "cellxgene" {
		t.Fatalf("summary: %+v", summary)
	}
	sd := f.store.AllSourceDatasets()[0]
	if !strings.Contains(string(sd.Summary), "cell_count") {
		t.Fatalf("entity summary not copied: %s", sd.Summary)
	}
}

func TestHandle_ValidationResultsUnknownFile(t *testing.T) {
	f := newNotificationFixture(t)
	raw := `{"file_id":"` + uuid.New().String() + `","status":"failure","integrity_status":"error"}`
	_, err := f.svc.Handle(context.Background(), snstest.Notification(snstest.ResultsTopic, "msg-results", raw))
	if err == nil {
		t.Fatalf("expected not found")
	}

	_, err = f.svc.Handle(context.Background(), snstest.Notification(snstest.ResultsTopic, "msg-bad", "{not json"))
	if apierr.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("unparsable results: want 400, got %v", err)
	}
}

func TestHandle_SubscriptionConfirmation(t *testing.T) {
	var hits int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Query().Get("Action") != "ConfirmSubscription" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	confirmer, err := NewSubscriptionConfirmer(logger.Nop(), srv.Client(), `^127\.0\.0\.1$`)
	if err != nil {
		t.Fatalf("NewSubscriptionConfirmer: %v", err)
	}
	f := newNotificationFixture(t, func(d *NotificationServiceDeps) { d.Subscriptions = confirmer })

	res, err := f.svc.Handle(context.Background(), snstest.SubscriptionConfirmation(snstest.S3Topic, srv.URL+"/?Action=ConfirmSubscription&Token=token-1"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Action != ActionSubscriptionConfirmed || hits != 1 {
		t.Fatalf("confirmation: %+v hits=%d", res, hits)
	}

	_, err = f.svc.Handle(context.Background(), snstest.SubscriptionConfirmation(snstest.S3Topic, "http://127.0.0.1/confirm"))
	if apierr.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("plain http callback: want 400, got %v", err)
	}
	_, err = f.svc.Handle(context.Background(), snstest.SubscriptionConfirmation(snstest.S3Topic, ""))
	if apierr.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("missing callback: want 400, got %v", err)
	}
}

func TestDispatchNow_RechecksAllowlist(t *testing.T) {
	f := newNotificationFixture(t)
	res, err := f.svc.Handle(context.Background(), objectNotification("msg-1", snstest.ObjectRecord{Key: "gut/gut-v1/manifests/m.json", ETag: "e", EventTime: t0}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	err = f.dispatcher.DispatchNow(context.Background(), ValidationTarget{FileID: *res.FileID, Bucket: "other-bucket", Key: "k"})
	if apierr.StatusOf(err) != http.StatusForbidden {
		t.Fatalf("want 403, got %v", err)
	}
	err = f.dispatcher.DispatchNow(context.Background(), ValidationTarget{FileID: *res.FileID, Bucket: snstest.Bucket, Key: "k", TopicArn: "arn:aws:sns:us-east-1:1:other"})
	if apierr.StatusOf(err) != http.StatusForbidden {
		t.Fatalf("want 403 for topic, got %v", err)
	}
	if f.submitter.count() != 0 {
		t.Fatalf("unauthorized targets must not be submitted")
	}
	if st := f.store.AllFiles()[0].ValidationStatus; st != types.ValidationStatusRequestFailed {
		t.Fatalf("status: %s", st)
	}
}

func TestSetFilesArchived(t *testing.T) {
	f := newNotificationFixture(t)
	res, err := f.svc.Handle(context.Background(), objectNotification("msg-1", sourceDatasetRecord("a.h5ad", t0)))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.drain(t)
	n, err := f.svc.SetFilesArchived(context.Background(), []uuid.UUID{*res.FileID}, true)
	if err != nil || n != 1 {
		t.Fatalf("SetFilesArchived: n=%d err=%v", n, err)
	}
	if !f.store.AllFiles()[0].IsArchived {
		t.Fatalf("file should be archived")
	}
}

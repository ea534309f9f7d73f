package atlas_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/yungbote/atlas-ingest/internal/data/repos/atlas"
	"github.com/yungbote/atlas-ingest/internal/data/repos/testutil"
	types "github.com/yungbote/atlas-ingest/internal/domain"
	"github.com/yungbote/atlas-ingest/internal/platform/dbctx"
)

func TestConceptRepo_GetOrCreateID(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := atlas.NewConceptRepo(db, testutil.Logger(t))

	key := types.ConceptKey{
		Network:        "gut",
		AtlasShortName: "Gut",
		Generation:     1,
		FileType:       types.FileTypeSourceDataset,
		BaseFilename:   "cells.h5ad",
	}
	first, err := repo.GetOrCreateID(dbc, key)
	if err != nil {
		t.Fatalf("GetOrCreateID: %v", err)
	}
	key.AtlasShortName = "gut"
	second, err := repo.GetOrCreateID(dbc, key)
	if err != nil {
		t.Fatalf("GetOrCreateID (again): %v", err)
	}
	if first != second {
		t.Fatalf("concept ids differ: %s vs %s", first, second)
	}

	key.FileType = types.FileTypeIntegratedObject
	other, err := repo.GetOrCreateID(dbc, key)
	if err != nil {
		t.Fatalf("GetOrCreateID (other type): %v", err)
	}
	if other == first {
		t.Fatalf("different file types must not share a concept")
	}

	got, err := repo.GetByID(dbc, first)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v (found=%v)", err, got != nil)
	}
	if got.AtlasShortName != "gut" {
		t.Fatalf("short name should be stored lowercased, got %q", got.AtlasShortName)
	}
}

func TestConceptRepo_GetOrCreateIDConcurrent(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := atlas.NewConceptRepo(db, testutil.Logger(t))

	// Committed rows; the filename keeps runs apart.
	key := types.ConceptKey{
		Network:        "gut",
		AtlasShortName: "gut",
		Generation:     1,
		FileType:       types.FileTypeSourceDataset,
		BaseFilename:   uuid.NewString() + ".h5ad",
	}
	t.Cleanup(func() {
		db.WithContext(ctx).Where("base_filename = ?", key.BaseFilename).Delete(&types.Concept{})
	})

	const workers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		ids   = make([]uuid.UUID, workers)
		errs  = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				id, err := repo.GetOrCreateID(dbctx.Context{Ctx: ctx, Tx: tx}, key)
				ids[i] = id
				return err
			})
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
		if ids[i] == uuid.Nil || ids[i] != ids[0] {
			t.Fatalf("worker %d got id %s, want %s", i, ids[i], ids[0])
		}
	}
	var n int64
	if err := db.WithContext(ctx).Model(&types.Concept{}).Where("base_filename = ?", key.BaseFilename).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("concept rows: want=1 got=%d", n)
	}
}

func TestAtlasRepo_MatchAndArrays(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	log := testutil.Logger(t)
	concepts := atlas.NewConceptRepo(db, log)
	repo := atlas.NewAtlasRepo(db, log)

	seeded := testutil.SeedAtlas(t, ctx, tx, "kidney", "Kidney-Core", 2, 1)
	conceptID, err := concepts.GetOrCreateID(dbc, types.ConceptKey{
		Network:        "kidney",
		AtlasShortName: "kidney-core",
		Generation:     2,
		FileType:       types.FileTypeSourceDataset,
		BaseFilename:   "cells.h5ad",
	})
	if err != nil {
		t.Fatalf("GetOrCreateID: %v", err)
	}

	matches, err := repo.LockMatchingConcept(dbc, conceptID)
	if err != nil {
		t.Fatalf("LockMatchingConcept: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != seeded.ID {
		t.Fatalf("expected the seeded atlas, got %d matches", len(matches))
	}

	v1, v2 := uuid.New(), uuid.New()
	ok, err := repo.AppendSourceDataset(dbc, seeded.ID, v1)
	if err != nil || !ok {
		t.Fatalf("AppendSourceDataset: ok=%v err=%v", ok, err)
	}
	ok, err = repo.AppendSourceDataset(dbc, seeded.ID, v1)
	if err != nil {
		t.Fatalf("AppendSourceDataset (again): %v", err)
	}
	if ok {
		t.Fatalf("appending an existing version should be refused")
	}

	n, err := repo.ReplaceSourceDatasetVersion(dbc, v1, v2)
	if err != nil || n != 1 {
		t.Fatalf("ReplaceSourceDatasetVersion: n=%d err=%v", n, err)
	}
	got, err := repo.GetByID(dbc, seeded.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.SourceDatasets) != 1 || got.SourceDatasets[0] != v2.String() {
		t.Fatalf("source_datasets: %v", got.SourceDatasets)
	}
	if len(got.ComponentAtlases) != 0 {
		t.Fatalf("component_atlases should be untouched: %v", got.ComponentAtlases)
	}
}

func TestFileRepo_UpsertByMessageID(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := atlas.NewFileRepo(db, testutil.Logger(t))

	conceptID := uuid.New()
	at := time.Now().UTC().Truncate(time.Microsecond)
	row := func(etag string, size int64) *types.File {
		return &types.File{
			ID:               uuid.New(),
			Bucket:           "bucket",
			Key:              "gut/gut-v1/manifests/m.json",
			ETag:             etag,
			SizeBytes:        size,
			EventName:        "ObjectCreated:Put",
			EventTime:        at,
			SNSMessageID:     "msg-" + conceptID.String(),
			IsLatest:         true,
			FileType:         types.FileTypeIngestManifest,
			ConceptID:        conceptID,
			ValidationStatus: types.ValidationStatusPending,
			IntegrityStatus:  types.IntegrityStatusPending,
		}
	}

	first, err := repo.UpsertByMessageID(dbc, row("etag-1", 10))
	if err != nil {
		t.Fatalf("UpsertByMessageID: %v", err)
	}
	if !first.Applied || !first.Inserted {
		t.Fatalf("first upsert: %+v", first)
	}

	dup, err := repo.UpsertByMessageID(dbc, row("etag-1", 11))
	if err != nil {
		t.Fatalf("UpsertByMessageID (dup): %v", err)
	}
	if !dup.Applied || dup.Inserted || dup.ID != first.ID {
		t.Fatalf("duplicate upsert: %+v", dup)
	}

	mismatch, err := repo.UpsertByMessageID(dbc, row("etag-2", 12))
	if err != nil {
		t.Fatalf("UpsertByMessageID (mismatch): %v", err)
	}
	if mismatch.Applied {
		t.Fatalf("mismatched etag must not apply")
	}

	stored, err := repo.GetByID(dbc, first.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.ETag != "etag-1" || stored.SizeBytes != 11 {
		t.Fatalf("stored row: etag=%s size=%d", stored.ETag, stored.SizeBytes)
	}
}

func TestFileRepo_LatestAndETagConflict(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := atlas.NewFileRepo(db, testutil.Logger(t))

	conceptID := uuid.New()
	now := time.Now().UTC()
	f := testutil.SeedFile(t, ctx, tx, conceptID, types.FileTypeIngestManifest, "gut/gut-v1/manifests/a.json", "msg-"+uuid.NewString(), now, nil)

	version := "v-1"
	if err := tx.Model(&types.File{}).Where("id = ?", f.ID).Update("version_id", version).Error; err != nil {
		t.Fatalf("set version_id: %v", err)
	}

	latest, err := repo.LockLatestByConcept(dbc, conceptID)
	if err != nil || latest == nil || latest.ID != f.ID {
		t.Fatalf("LockLatestByConcept: %v (found=%v)", err, latest != nil)
	}

	conflict, err := repo.FindETagConflict(dbc, f.Bucket, f.Key, &version, "other-etag", "msg-new")
	if err != nil {
		t.Fatalf("FindETagConflict: %v", err)
	}
	if conflict == nil || conflict.ID != f.ID {
		t.Fatalf("expected a conflict with the seeded file")
	}
	conflict, err = repo.FindETagConflict(dbc, f.Bucket, f.Key, nil, "other-etag", "msg-new")
	if err != nil || conflict != nil {
		t.Fatalf("unversioned objects should never conflict: %v", err)
	}

	n, err := repo.ClearLatestByConcept(dbc, conceptID)
	if err != nil || n != 1 {
		t.Fatalf("ClearLatestByConcept: n=%d err=%v", n, err)
	}
	latest, err = repo.LockLatestByConcept(dbc, conceptID)
	if err != nil || latest != nil {
		t.Fatalf("expected no latest after clear: %v", err)
	}
}

func TestFileRepo_ValidationStatusGuard(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := atlas.NewFileRepo(db, testutil.Logger(t))

	f := testutil.SeedFile(t, ctx, tx, uuid.New(), types.FileTypeIngestManifest, "gut/gut-v1/manifests/b.json", "msg-"+uuid.NewString(), time.Now(), nil)

	allowed := []types.ValidationStatus{types.ValidationStatusPending}
	ok, err := repo.UpdateFieldsIfValidationStatus(dbc, f.ID, allowed, map[string]interface{}{
		"validation_status": types.ValidationStatusRequested,
	})
	if err != nil || !ok {
		t.Fatalf("first guarded update: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateFieldsIfValidationStatus(dbc, f.ID, allowed, map[string]interface{}{
		"validation_status": types.ValidationStatusRequestFailed,
	})
	if err != nil {
		t.Fatalf("second guarded update: %v", err)
	}
	if ok {
		t.Fatalf("guard should refuse a status outside the allowed set")
	}

	n, err := repo.SetArchived(dbc, []uuid.UUID{f.ID}, true)
	if err != nil || n != 1 {
		t.Fatalf("SetArchived: n=%d err=%v", n, err)
	}
	rows, err := repo.ListLatestByValidationStatus(dbc, []types.ValidationStatus{types.ValidationStatusRequested}, false, 0)
	if err != nil {
		t.Fatalf("ListLatestByValidationStatus: %v", err)
	}
	for _, r := range rows {
		if r.ID == f.ID {
			t.Fatalf("archived file should be excluded")
		}
	}
}

func TestComponentAtlasRepo_ReplaceOnlyTouchesLatest(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := atlas.NewComponentAtlasRepo(db, testutil.Logger(t))

	oldSD, newSD := uuid.New(), uuid.New()
	entityID := uuid.New()
	retired := &types.ComponentAtlas{
		VersionID:      uuid.New(),
		ID:             entityID,
		Revision:       1,
		FileID:         uuid.New(),
		IsLatest:       false,
		SourceDatasets: pq.StringArray{oldSD.String()},
	}
	current := &types.ComponentAtlas{
		VersionID:      uuid.New(),
		ID:             entityID,
		Revision:       2,
		FileID:         uuid.New(),
		IsLatest:       true,
		SourceDatasets: pq.StringArray{oldSD.String()},
	}
	if _, err := repo.Create(dbc, []*types.ComponentAtlas{retired, current}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := repo.ReplaceSourceDatasetVersion(dbc, oldSD, newSD)
	if err != nil || n != 1 {
		t.Fatalf("ReplaceSourceDatasetVersion: n=%d err=%v", n, err)
	}

	versions, err := repo.ListVersions(dbc, entityID)
	if err != nil || len(versions) != 2 {
		t.Fatalf("ListVersions: %v (n=%d)", err, len(versions))
	}
	if versions[0].SourceDatasets[0] != oldSD.String() {
		t.Fatalf("retired version was rewritten")
	}
	if versions[1].SourceDatasets[0] != newSD.String() {
		t.Fatalf("latest version not rewritten: %v", versions[1].SourceDatasets)
	}

	latest, err := repo.GetLatestByID(dbc, entityID)
	if err != nil || latest == nil || latest.VersionID != current.VersionID {
		t.Fatalf("GetLatestByID: %v", err)
	}
	if err := repo.UpdateSummary(dbc, current.VersionID, []byte(`{"cell_count":3}`)); err != nil {
		t.Fatalf("UpdateSummary: %v", err)
	}
	cleared, err := repo.ClearLatest(dbc, current.VersionID)
	if err != nil || cleared != 1 {
		t.Fatalf("ClearLatest: n=%d err=%v", cleared, err)
	}
}

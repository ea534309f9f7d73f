package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/yungbote/atlas-ingest/internal/data/repos/atlas"
	types "github.com/yungbote/atlas-ingest/internal/domain"
	"github.com/yungbote/atlas-ingest/internal/platform/dbctx"
)

// MemStore is an in-memory implementation of every atlas repo plus a TxRunner.
// Transactions are serialized and roll back by restoring a snapshot taken at begin.
type MemStore struct {
	txMu sync.Mutex

	mu               sync.RWMutex
	concepts         map[uuid.UUID]types.Concept
	atlases          map[uuid.UUID]types.Atlas
	files            map[uuid.UUID]types.File
	componentAtlases map[uuid.UUID]types.ComponentAtlas
	sourceDatasets   map[uuid.UUID]types.SourceDataset

	failures map[string]error

	TxBegins    int
	TxRollbacks int
}

func NewMemStore() *MemStore {
	return &MemStore{
		concepts:         map[uuid.UUID]types.Concept{},
		atlases:          map[uuid.UUID]types.Atlas{},
		files:            map[uuid.UUID]types.File{},
		componentAtlases: map[uuid.UUID]types.ComponentAtlas{},
		sourceDatasets:   map[uuid.UUID]types.SourceDataset{},
		failures:         map[string]error{},
	}
}

func (s *MemStore) Concepts() atlas.ConceptRepo                 { return memConcepts{s} }
func (s *MemStore) Atlases() atlas.AtlasRepo                    { return memAtlases{s} }
func (s *MemStore) Files() atlas.FileRepo                       { return memFiles{s} }
func (s *MemStore) ComponentAtlases() atlas.ComponentAtlasRepo { return memComponentAtlases{s} }
func (s *MemStore) SourceDatasets() atlas.SourceDatasetRepo     { return memSourceDatasets{s} }

// FailOn makes the named repo method (e.g. "AtlasRepo.AppendSourceDataset") return err
// until cleared with a nil err.
func (s *MemStore) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *MemStore) failure(method string) error {
	return s.failures[method]
}

// InTx runs fn under the store-wide transaction lock, restoring the pre-call state if fn fails.
func (s *MemStore) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.TxBegins++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := fn(dbctx.Context{Ctx: ctx}); err != nil {
		s.mu.Lock()
		s.TxRollbacks++
		s.restoreLocked(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	concepts         map[uuid.UUID]types.Concept
	atlases          map[uuid.UUID]types.Atlas
	files            map[uuid.UUID]types.File
	componentAtlases map[uuid.UUID]types.ComponentAtlas
	sourceDatasets   map[uuid.UUID]types.SourceDataset
}

func (s *MemStore) snapshotLocked() memSnapshot {
	snap := memSnapshot{
		concepts:         make(map[uuid.UUID]types.Concept, len(s.concepts)),
		atlases:          make(map[uuid.UUID]types.Atlas, len(s.atlases)),
		files:            make(map[uuid.UUID]types.File, len(s.files)),
		componentAtlases: make(map[uuid.UUID]types.ComponentAtlas, len(s.componentAtlases)),
		sourceDatasets:   make(map[uuid.UUID]types.SourceDataset, len(s.sourceDatasets)),
	}
	for k, v := range s.concepts {
		snap.concepts[k] = v
	}
	for k, v := range s.atlases {
		snap.atlases[k] = cloneAtlas(v)
	}
	for k, v := range s.files {
		snap.files[k] = cloneFile(v)
	}
	for k, v := range s.componentAtlases {
		snap.componentAtlases[k] = cloneComponentAtlas(v)
	}
	for k, v := range s.sourceDatasets {
		snap.sourceDatasets[k] = cloneSourceDataset(v)
	}
	return snap
}

func (s *MemStore) restoreLocked(snap memSnapshot) {
	s.concepts = snap.concepts
	s.atlases = snap.atlases
	s.files = snap.files
	s.componentAtlases = snap.componentAtlases
	s.sourceDatasets = snap.sourceDatasets
}

// ---- seeding + inspection ----

// SeedAtlas inserts an atlas with empty entity arrays.
func (s *MemStore) SeedAtlas(network, shortName string, generation, revision int) *types.Atlas {
	a := types.Atlas{
		ID:               uuid.New(),
		Network:          network,
		ShortName:        shortName,
		Generation:       generation,
		Revision:         revision,
		Status:           types.AtlasStatusDraft,
		SourceDatasets:   pq.StringArray{},
		ComponentAtlases: pq.StringArray{},
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	s.mu.Lock()
	s.atlases[a.ID] = a
	s.mu.Unlock()
	out := cloneAtlas(a)
	return &out
}

// SetAtlasComponentAtlases overwrites an atlas's component atlas array.
func (s *MemStore) SetAtlasComponentAtlases(atlasID uuid.UUID, versionIDs ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.atlases[atlasID]
	a.ComponentAtlases = uuidStrings(versionIDs)
	s.atlases[atlasID] = a
}

// SetComponentAtlasSourceDatasets overwrites a component atlas version's source dataset array.
func (s *MemStore) SetComponentAtlasSourceDatasets(versionID uuid.UUID, sourceDatasetVersionIDs ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ca := s.componentAtlases[versionID]
	ca.SourceDatasets = uuidStrings(sourceDatasetVersionIDs)
	s.componentAtlases[versionID] = ca
}

// PutComponentAtlas stores a component atlas version directly.
func (s *MemStore) PutComponentAtlas(row types.ComponentAtlas) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.SourceDatasets == nil {
		row.SourceDatasets = pq.StringArray{}
	}
	s.componentAtlases[row.VersionID] = cloneComponentAtlas(row)
}

func (s *MemStore) Atlas(id uuid.UUID) *types.Atlas {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.atlases[id]
	if !ok {
		return nil
	}
	out := cloneAtlas(a)
	return &out
}

// AllFiles returns every file row ordered by event time.
func (s *MemStore) AllFiles() []*types.File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.File, 0, len(s.files))
	for _, f := range s.files {
		c := cloneFile(f)
		out = append(out, &c)
	}
	sortFiles(out)
	return out
}

func (s *MemStore) AllConcepts() []*types.Concept {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Concept, 0, len(s.concepts))
	for _, c := range s.concepts {
		c := c
		out = append(out, &c)
	}
	return out
}

func (s *MemStore) AllComponentAtlases() []*types.ComponentAtlas {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.ComponentAtlas, 0, len(s.componentAtlases))
	for _, ca := range s.componentAtlases {
		c := cloneComponentAtlas(ca)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out
}

func (s *MemStore) AllSourceDatasets() []*types.SourceDataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.SourceDataset, 0, len(s.sourceDatasets))
	for _, sd := range s.sourceDatasets {
		c := cloneSourceDataset(sd)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out
}

// ---- concept ----

type memConcepts struct{ s *MemStore }

func (r memConcepts) GetOrCreateID(_ dbctx.Context, key types.ConceptKey) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("ConceptRepo.GetOrCreateID"); err != nil {
		return uuid.Nil, err
	}
	key.AtlasShortName = strings.ToLower(key.AtlasShortName)
	for _, c := range r.s.concepts {
		if c.Network == key.Network && c.AtlasShortName == key.AtlasShortName &&
			c.Generation == key.Generation && c.FileType == key.FileType && c.BaseFilename == key.BaseFilename {
			return c.ID, nil
		}
	}
	c := types.Concept{
		ID:             uuid.New(),
		Network:        key.Network,
		AtlasShortName: key.AtlasShortName,
		Generation:     key.Generation,
		FileType:       key.FileType,
		BaseFilename:   key.BaseFilename,
		CreatedAt:      time.Now().UTC(),
	}
	r.s.concepts[c.ID] = c
	return c.ID, nil
}

func (r memConcepts) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Concept, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.concepts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// ---- atlas ----

type memAtlases struct{ s *MemStore }

func (r memAtlases) Create(_ dbctx.Context, rows []*types.Atlas) ([]*types.Atlas, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.SourceDatasets == nil {
			row.SourceDatasets = pq.StringArray{}
		}
		if row.ComponentAtlases == nil {
			row.ComponentAtlases = pq.StringArray{}
		}
		r.s.atlases[row.ID] = cloneAtlas(*row)
	}
	return rows, nil
}

func (r memAtlases) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Atlas, error) {
	return r.s.Atlas(id), nil
}

func (r memAtlases) LockMatchingConcept(_ dbctx.Context, conceptID uuid.UUID) ([]*types.Atlas, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.failure("AtlasRepo.LockMatchingConcept"); err != nil {
		return nil, err
	}
	out := []*types.Atlas{}
	c, ok := r.s.concepts[conceptID]
	if !ok {
		return out, nil
	}
	for _, a := range r.s.atlases {
		if a.Network == c.Network && strings.ToLower(a.ShortName) == c.AtlasShortName && a.Generation == c.Generation {
			cp := cloneAtlas(a)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memAtlases) AppendSourceDataset(_ dbctx.Context, atlasID, versionID uuid.UUID) (bool, error) {
	return r.appendVersion("AtlasRepo.AppendSourceDataset", atlasID, versionID, func(a *types.Atlas) *pq.StringArray { return &a.SourceDatasets })
}

func (r memAtlases) AppendComponentAtlas(_ dbctx.Context, atlasID, versionID uuid.UUID) (bool, error) {
	return r.appendVersion("AtlasRepo.AppendComponentAtlas", atlasID, versionID, func(a *types.Atlas) *pq.StringArray { return &a.ComponentAtlases })
}

func (r memAtlases) ReplaceSourceDatasetVersion(_ dbctx.Context, oldVersionID, newVersionID uuid.UUID) (int64, error) {
	return r.replaceVersion("AtlasRepo.ReplaceSourceDatasetVersion", oldVersionID, newVersionID, func(a *types.Atlas) *pq.StringArray { return &a.SourceDatasets })
}

func (r memAtlases) ReplaceComponentAtlasVersion(_ dbctx.Context, oldVersionID, newVersionID uuid.UUID) (int64, error) {
	return r.replaceVersion("AtlasRepo.ReplaceComponentAtlasVersion", oldVersionID, newVersionID, func(a *types.Atlas) *pq.StringArray { return &a.ComponentAtlases })
}

func (r memAtlases) appendVersion(method string, atlasID, versionID uuid.UUID, col func(*types.Atlas) *pq.StringArray) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(method); err != nil {
		return false, err
	}
	a, ok := r.s.atlases[atlasID]
	if !ok {
		return false, nil
	}
	arr := col(&a)
	if containsString(*arr, versionID.String()) {
		return false, nil
	}
	*arr = append(append(pq.StringArray{}, (*arr)...), versionID.String())
	a.UpdatedAt = time.Now().UTC()
	r.s.atlases[atlasID] = a
	return true, nil
}

func (r memAtlases) replaceVersion(method string, oldVersionID, newVersionID uuid.UUID, col func(*types.Atlas) *pq.StringArray) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(method); err != nil {
		return 0, err
	}
	var n int64
	for id, a := range r.s.atlases {
		arr := col(&a)
		if !containsString(*arr, oldVersionID.String()) {
			continue
		}
		*arr = replaceString(*arr, oldVersionID.String(), newVersionID.String())
		a.UpdatedAt = time.Now().UTC()
		r.s.atlases[id] = a
		n++
	}
	return n, nil
}

// ---- file ----

type memFiles struct{ s *MemStore }

func (r memFiles) Create(_ dbctx.Context, rows []*types.File) ([]*types.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		r.s.files[row.ID] = cloneFile(*row)
	}
	return rows, nil
}

func (r memFiles) GetByID(_ dbctx.Context, id uuid.UUID) (*types.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.files[id]
	if !ok {
		return nil, nil
	}
	out := cloneFile(f)
	return &out, nil
}

func (r memFiles) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*types.File{}
	for _, id := range ids {
		if f, ok := r.s.files[id]; ok {
			c := cloneFile(f)
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r memFiles) GetBySNSMessageID(_ dbctx.Context, messageID string) (*types.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, f := range r.s.files {
		if f.SNSMessageID == messageID {
			c := cloneFile(f)
			return &c, nil
		}
	}
	return nil, nil
}

func (r memFiles) ListByConcept(_ dbctx.Context, conceptID uuid.UUID) ([]*types.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*types.File{}
	for _, f := range r.s.files {
		if f.ConceptID == conceptID {
			c := cloneFile(f)
			out = append(out, &c)
		}
	}
	sortFiles(out)
	return out, nil
}

func (r memFiles) LockLatestByConcept(_ dbctx.Context, conceptID uuid.UUID) (*types.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.failure("FileRepo.LockLatestByConcept"); err != nil {
		return nil, err
	}
	for _, f := range r.s.files {
		if f.ConceptID == conceptID && f.IsLatest {
			c := cloneFile(f)
			return &c, nil
		}
	}
	return nil, nil
}

func (r memFiles) ClearLatestByConcept(_ dbctx.Context, conceptID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("FileRepo.ClearLatestByConcept"); err != nil {
		return 0, err
	}
	var n int64
	for id, f := range r.s.files {
		if f.ConceptID == conceptID && f.IsLatest {
			f.IsLatest = false
			f.UpdatedAt = time.Now().UTC()
			r.s.files[id] = f
			n++
		}
	}
	return n, nil
}

func (r memFiles) FindETagConflict(_ dbctx.Context, bucket, key string, versionID *string, etag, messageID string) (*types.File, error) {
	// Without a storage version id a different ETag is an overwrite, not a corrupted replay.
	if versionID == nil || *versionID == "" {
		return nil, nil
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, f := range r.s.files {
		if f.Bucket == bucket && f.Key == key && f.VersionID != nil && *f.VersionID == *versionID &&
			f.ETag != etag && f.SNSMessageID != messageID {
			c := cloneFile(f)
			return &c, nil
		}
	}
	return nil, nil
}

func (r memFiles) UpsertByMessageID(_ dbctx.Context, row *types.File) (atlas.UpsertResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("FileRepo.UpsertByMessageID"); err != nil {
		return atlas.UpsertResult{}, err
	}
	now := time.Now().UTC()
	for id, f := range r.s.files {
		if f.SNSMessageID != row.SNSMessageID {
			continue
		}
		if f.ETag != row.ETag {
			return atlas.UpsertResult{}, nil
		}
		f.SizeBytes = row.SizeBytes
		f.EventName = row.EventName
		f.EventTime = row.EventTime
		f.IsLatest = row.IsLatest
		f.UpdatedAt = now
		r.s.files[id] = f
		return atlas.UpsertResult{ID: id, Inserted: false, Applied: true}, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.ValidationStatus == "" {
		row.ValidationStatus = types.ValidationStatusPending
	}
	if row.IntegrityStatus == "" {
		row.IntegrityStatus = types.IntegrityStatusPending
	}
	c := cloneFile(*row)
	c.IsArchived = false
	c.CreatedAt = now
	c.UpdatedAt = now
	r.s.files[c.ID] = c
	return atlas.UpsertResult{ID: c.ID, Inserted: true, Applied: true}, nil
}

func (r memFiles) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("FileRepo.UpdateFields"); err != nil {
		return err
	}
	f, ok := r.s.files[id]
	if !ok {
		return nil
	}
	if err := applyFileUpdates(&f, updates); err != nil {
		return err
	}
	r.s.files[id] = f
	return nil
}

func (r memFiles) UpdateFieldsIfValidationStatus(_ dbctx.Context, id uuid.UUID, allowed []types.ValidationStatus, updates map[string]interface{}) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("FileRepo.UpdateFieldsIfValidationStatus"); err != nil {
		return false, err
	}
	f, ok := r.s.files[id]
	if !ok {
		return false, nil
	}
	match := false
	for _, st := range allowed {
		if f.ValidationStatus == st {
			match = true
			break
		}
	}
	if !match {
		return false, nil
	}
	if err := applyFileUpdates(&f, updates); err != nil {
		return false, err
	}
	r.s.files[id] = f
	return true, nil
}

func (r memFiles) SetArchived(_ dbctx.Context, ids []uuid.UUID, archived bool) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		f, ok := r.s.files[id]
		if !ok || f.IsArchived == archived {
			continue
		}
		f.IsArchived = archived
		f.UpdatedAt = time.Now().UTC()
		r.s.files[id] = f
		n++
	}
	return n, nil
}

func (r memFiles) ListLatestByValidationStatus(_ dbctx.Context, statuses []types.ValidationStatus, includeArchived bool, limit int) ([]*types.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*types.File{}
	for _, f := range r.s.files {
		if !f.IsLatest || (!includeArchived && f.IsArchived) {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, st := range statuses {
				if f.ValidationStatus == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		c := cloneFile(f)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func applyFileUpdates(f *types.File, updates map[string]interface{}) error {
	for col, v := range updates {
		switch col {
		case "validation_status":
			f.ValidationStatus = v.(types.ValidationStatus)
		case "integrity_status":
			f.IntegrityStatus = v.(types.IntegrityStatus)
		case "validation_job_id":
			f.ValidationJobID = optString(v)
		case "sha256_server":
			f.SHA256Server = optString(v)
		case "validated_at":
			f.ValidatedAt = optTime(v)
		case "integrity_checked_at":
			f.IntegrityCheckedAt = optTime(v)
		case "dataset_info":
			f.DatasetInfo = optJSON(v)
		case "validation_reports":
			f.ValidationReports = optJSON(v)
		case "validation_summary":
			f.ValidationSummary = optJSON(v)
		case "is_archived":
			f.IsArchived = v.(bool)
		case "is_latest":
			f.IsLatest = v.(bool)
		case "updated_at":
			f.UpdatedAt = v.(time.Time)
		default:
			return fmt.Errorf("memstore: unsupported file column %q", col)
		}
	}
	if _, ok := updates["updated_at"]; !ok {
		f.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// ---- component atlas ----

type memComponentAtlases struct{ s *MemStore }

func (r memComponentAtlases) Create(_ dbctx.Context, rows []*types.ComponentAtlas) ([]*types.ComponentAtlas, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("ComponentAtlasRepo.Create"); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.SourceDatasets == nil {
			row.SourceDatasets = pq.StringArray{}
		}
		r.s.componentAtlases[row.VersionID] = cloneComponentAtlas(*row)
	}
	return rows, nil
}

func (r memComponentAtlases) GetByVersionID(_ dbctx.Context, versionID uuid.UUID) (*types.ComponentAtlas, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ca, ok := r.s.componentAtlases[versionID]
	if !ok {
		return nil, nil
	}
	out := cloneComponentAtlas(ca)
	return &out, nil
}

func (r memComponentAtlases) GetLatestByID(_ dbctx.Context, id uuid.UUID) (*types.ComponentAtlas, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, ca := range r.s.componentAtlases {
		if ca.ID == id && ca.IsLatest {
			out := cloneComponentAtlas(ca)
			return &out, nil
		}
	}
	return nil, nil
}

func (r memComponentAtlases) ListVersions(_ dbctx.Context, id uuid.UUID) ([]*types.ComponentAtlas, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*types.ComponentAtlas{}
	for _, ca := range r.s.componentAtlases {
		if ca.ID == id {
			c := cloneComponentAtlas(ca)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}

func (r memComponentAtlases) ClearLatest(_ dbctx.Context, versionID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ca, ok := r.s.componentAtlases[versionID]
	if !ok || !ca.IsLatest {
		return 0, nil
	}
	ca.IsLatest = false
	ca.UpdatedAt = time.Now().UTC()
	r.s.componentAtlases[versionID] = ca
	return 1, nil
}

func (r memComponentAtlases) ReplaceSourceDatasetVersion(_ dbctx.Context, oldVersionID, newVersionID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("ComponentAtlasRepo.ReplaceSourceDatasetVersion"); err != nil {
		return 0, err
	}
	var n int64
	for vid, ca := range r.s.componentAtlases {
		if !ca.IsLatest || !containsString(ca.SourceDatasets, oldVersionID.String()) {
			continue
		}
		ca.SourceDatasets = replaceString(ca.SourceDatasets, oldVersionID.String(), newVersionID.String())
		ca.UpdatedAt = time.Now().UTC()
		r.s.componentAtlases[vid] = ca
		n++
	}
	return n, nil
}

func (r memComponentAtlases) UpdateSummary(_ dbctx.Context, versionID uuid.UUID, summary []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ca, ok := r.s.componentAtlases[versionID]
	if !ok {
		return nil
	}
	ca.Summary = optJSON(summary)
	ca.UpdatedAt = time.Now().UTC()
	r.s.componentAtlases[versionID] = ca
	return nil
}

// ---- source dataset ----

type memSourceDatasets struct{ s *MemStore }

func (r memSourceDatasets) Create(_ dbctx.Context, rows []*types.SourceDataset) ([]*types.SourceDataset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("SourceDatasetRepo.Create"); err != nil {
		return nil, err
	}
	for _, row := range rows {
		r.s.sourceDatasets[row.VersionID] = cloneSourceDataset(*row)
	}
	return rows, nil
}

func (r memSourceDatasets) GetByVersionID(_ dbctx.Context, versionID uuid.UUID) (*types.SourceDataset, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sd, ok := r.s.sourceDatasets[versionID]
	if !ok {
		return nil, nil
	}
	out := cloneSourceDataset(sd)
	return &out, nil
}

func (r memSourceDatasets) GetLatestByID(_ dbctx.Context, id uuid.UUID) (*types.SourceDataset, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, sd := range r.s.sourceDatasets {
		if sd.ID == id && sd.IsLatest {
			out := cloneSourceDataset(sd)
			return &out, nil
		}
	}
	return nil, nil
}

func (r memSourceDatasets) ListVersions(_ dbctx.Context, id uuid.UUID) ([]*types.SourceDataset, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*types.SourceDataset{}
	for _, sd := range r.s.sourceDatasets {
		if sd.ID == id {
			c := cloneSourceDataset(sd)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}

func (r memSourceDatasets) ClearLatest(_ dbctx.Context, versionID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sd, ok := r.s.sourceDatasets[versionID]
	if !ok || !sd.IsLatest {
		return 0, nil
	}
	sd.IsLatest = false
	sd.UpdatedAt = time.Now().UTC()
	r.s.sourceDatasets[versionID] = sd
	return 1, nil
}

func (r memSourceDatasets) UpdateSummary(_ dbctx.Context, versionID uuid.UUID, summary []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sd, ok := r.s.sourceDatasets[versionID]
	if !ok {
		return nil
	}
	sd.Summary = optJSON(summary)
	sd.UpdatedAt = time.Now().UTC()
	r.s.sourceDatasets[versionID] = sd
	return nil
}

// ---- helpers ----

func cloneAtlas(a types.Atlas) types.Atlas {
	a.SourceDatasets = append(pq.StringArray{}, a.SourceDatasets...)
	a.ComponentAtlases = append(pq.StringArray{}, a.ComponentAtlases...)
	return a
}

func cloneFile(f types.File) types.File {
	f.DatasetInfo = cloneJSON(f.DatasetInfo)
	f.ValidationReports = cloneJSON(f.ValidationReports)
	f.ValidationSummary = cloneJSON(f.ValidationSummary)
	return f
}

func cloneComponentAtlas(ca types.ComponentAtlas) types.ComponentAtlas {
	ca.SourceDatasets = append(pq.StringArray{}, ca.SourceDatasets...)
	ca.Summary = cloneJSON(ca.Summary)
	return ca
}

func cloneSourceDataset(sd types.SourceDataset) types.SourceDataset {
	sd.Summary = cloneJSON(sd.Summary)
	return sd
}

func cloneJSON(j datatypes.JSON) datatypes.JSON {
	if j == nil {
		return nil
	}
	return append(datatypes.JSON{}, j...)
}

func optJSON(v interface{}) datatypes.JSON {
	switch t := v.(type) {
	case nil:
		return nil
	case datatypes.JSON:
		return cloneJSON(t)
	case []byte:
		if t == nil {
			return nil
		}
		return append(datatypes.JSON{}, t...)
	default:
		panic(fmt.Sprintf("memstore: unsupported json value %T", v))
	}
}

func optString(v interface{}) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case *string:
		if t == nil {
			return nil
		}
		c := *t
		return &c
	default:
		panic(fmt.Sprintf("memstore: unsupported string value %T", v))
	}
}

func optTime(v interface{}) *time.Time {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return &t
	case *time.Time:
		if t == nil {
			return nil
		}
		c := *t
		return &c
	default:
		panic(fmt.Sprintf("memstore: unsupported time value %T", v))
	}
}

func containsString(arr []string, v string) bool {
	for _, s := range arr {
		if s == v {
			return true
		}
	}
	return false
}

func replaceString(arr pq.StringArray, from, to string) pq.StringArray {
	out := make(pq.StringArray, len(arr))
	for i, s := range arr {
		if s == from {
			s = to
		}
		out[i] = s
	}
	return out
}

func uuidStrings(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func sortFiles(files []*types.File) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].EventTime.Equal(files[j].EventTime) {
			return files[i].CreatedAt.Before(files[j].CreatedAt)
		}
		return files[i].EventTime.Before(files[j].EventTime)
	})
}

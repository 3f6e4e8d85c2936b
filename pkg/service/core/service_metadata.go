package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/navikt/datatalk/pkg/cache"
	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
)

// ColumnPolicy decides what happens when the saved metadata of a table has no
// columns.
type ColumnPolicy string

const (
	// ColumnPolicySavedOnly keeps the column list empty.
	ColumnPolicySavedOnly ColumnPolicy = "saved_only"
	// ColumnPolicyLiveFallback derives the columns from the live schema of the
	// data source, when its descriptor is known.
	ColumnPolicyLiveFallback ColumnPolicy = "live_fallback"
)

func ParseColumnPolicy(s string) (ColumnPolicy, error) {
	switch p := ColumnPolicy(strings.TrimSpace(s)); p {
	case "":
		return ColumnPolicySavedOnly, nil
	case ColumnPolicySavedOnly, ColumnPolicyLiveFallback:
		return p, nil
	}

	return "", fmt.Errorf("unknown column policy: %q", s)
}

type MetadataSource int

const (
	SourceSaved MetadataSource = iota
	SourceLive
)

func (s MetadataSource) String() string {
	if s == SourceLive {
		return "live"
	}

	return "saved"
}

// SyncResult holds the metadata as saved on the server and the metadata to
// edit. They only differ when the columns came from the live schema.
type SyncResult struct {
	Saved    service.TableMetadata
	Metadata service.TableMetadata
	Source   MetadataSource
}

// MetadataSync fetches the metadata overlay of a table.
type MetadataSync struct {
	api      service.RegistryAPI
	conn     service.ConnectionAPI
	registry *Registry
	policy   ColumnPolicy
	schemas  cache.Cacher
	log      zerolog.Logger
}

// WithSchemaCache keeps live schemas in c, keyed by table id.
func (s *MetadataSync) WithSchemaCache(c cache.Cacher) *MetadataSync {
	s.schemas = c

	return s
}

func (s *MetadataSync) liveSchema(ctx context.Context, tableID string, d service.Descriptor) (*service.SchemaSnapshot, error) {
	if s.schemas != nil {
		snapshot := &service.SchemaSnapshot{}
		if s.schemas.Get(tableID, snapshot) {
			return snapshot, nil
		}
	}

	snapshot, err := s.conn.TestConnection(ctx, service.NewSchemaRequest(d))
	if err != nil {
		return nil, err
	}

	if s.schemas != nil {
		s.schemas.Set(tableID, snapshot)
	}

	return snapshot, nil
}

func (s *MetadataSync) Sync(ctx context.Context, rec service.TableRecord) (*SyncResult, error) {
	const op errs.Op = "MetadataSync.Sync"

	meta, err := s.api.GetTableMetadata(ctx, rec.TableID)
	if err != nil {
		return nil, errs.E(op, err)
	}

	saved := meta.Clone()
	res := &SyncResult{
		Saved:    saved,
		Metadata: saved.Clone(),
		Source:   SourceSaved,
	}

	if len(saved.Columns) > 0 || s.policy != ColumnPolicyLiveFallback {
		return res, nil
	}

	d, ok := s.registry.Descriptor(rec.TableID)
	if !ok {
		s.log.Debug().Str("table_id", rec.TableID).Msg("no descriptor known, keeping saved columns")
		return res, nil
	}

	snapshot, err := s.liveSchema(ctx, rec.TableID, d)
	if err != nil {
		s.log.Warn().Str("table_id", rec.TableID).Str("message", errs.Msg(err)).Msg("live schema unavailable")
		return res, nil
	}

	cols := snapshot.Columns()
	if len(cols) == 0 {
		return res, nil
	}

	res.Metadata.Columns = cols
	res.Source = SourceLive

	return res, nil
}

func NewMetadataSync(
	api service.RegistryAPI,
	conn service.ConnectionAPI,
	registry *Registry,
	policy ColumnPolicy,
	log zerolog.Logger,
) *MetadataSync {
	if policy == "" {
		policy = ColumnPolicySavedOnly
	}

	return &MetadataSync{
		api:      api,
		conn:     conn,
		registry: registry,
		policy:   policy,
		log:      log,
	}
}

// MetadataEditor holds the editable buffer for the selected table. The buffer
// is only replaced by selecting a table; edits stay in it until saved.
type MetadataEditor struct {
	syncer   *MetadataSync
	api      service.RegistryAPI
	registry *Registry
	log      zerolog.Logger

	mu         sync.Mutex
	record     *service.TableRecord
	buffer     service.TableMetadata
	saved      service.TableMetadata
	source     MetadataSource
	loading    bool
	synced     bool
	saving     bool
	generation uint64
}

// Select switches to rec, discarding any unsaved edits, and loads its
// metadata.
func (e *MetadataEditor) Select(ctx context.Context, rec service.TableRecord) error {
	const op errs.Op = "MetadataEditor.Select"

	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.record = &rec
	e.buffer = service.TableMetadata{}
	e.saved = service.TableMetadata{}
	e.source = SourceSaved
	e.loading = true
	e.synced = false
	e.mu.Unlock()

	res, err := e.syncer.Sync(ctx, rec)

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		e.log.Debug().Str("table_id", rec.TableID).Msg("dropping metadata for a table no longer selected")
		return errs.E(errs.Precondition, op, "another table was selected")
	}

	e.loading = false

	if err != nil {
		return errs.E(op, err)
	}

	e.saved = res.Saved
	e.buffer = res.Metadata
	e.source = res.Source
	e.synced = true

	e.log.Debug().Str("table_id", rec.TableID).Str("source", res.Source.String()).Int("columns", len(res.Metadata.Columns)).Msg("metadata loaded")

	return nil
}

func (e *MetadataEditor) SetDescription(text string) error {
	const op errs.Op = "MetadataEditor.SetDescription"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.record == nil {
		return errs.E(errs.Invalid, op, "no table selected")
	}

	e.buffer.Description = text

	return nil
}

func (e *MetadataEditor) SetColumnDescription(name, text string) error {
	const op errs.Op = "MetadataEditor.SetColumnDescription"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.record == nil {
		return errs.E(errs.Invalid, op, "no table selected")
	}

	for i := range e.buffer.Columns {
		if e.buffer.Columns[i].Name == name {
			e.buffer.Columns[i].Description = text
			return nil
		}
	}

	return errs.E(errs.NotExist, op, errs.Parameter("column"), fmt.Sprintf("unknown column: %s", name))
}

// Save overwrites the saved metadata of the selected table with the buffer.
// The registry description is only patched once the server has acknowledged
// the write.
func (e *MetadataEditor) Save(ctx context.Context) error {
	const op errs.Op = "MetadataEditor.Save"

	e.mu.Lock()
	if e.record == nil {
		e.mu.Unlock()
		return errs.E(errs.Invalid, op, "no table selected")
	}

	if e.saving {
		e.mu.Unlock()
		return errs.E(errs.Busy, op, "metadata is already being saved")
	}

	if e.loading {
		e.mu.Unlock()
		return errs.E(errs.Busy, op, "metadata is still loading")
	}

	if !e.synced {
		e.mu.Unlock()
		return errs.E(errs.Precondition, op, "metadata was not loaded, select the table again")
	}

	e.saving = true
	gen := e.generation
	tableID := e.record.TableID
	payload := e.buffer.Clone()
	e.mu.Unlock()

	err := e.api.SaveTableMetadata(ctx, tableID, payload)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.saving = false

	if err != nil {
		return errs.E(op, err)
	}

	if err := e.registry.ApplyDescription(tableID, payload.Description); err != nil {
		e.log.Warn().Str("table_id", tableID).Msg("saved table missing from registry cache")
	}

	if gen == e.generation {
		e.saved = payload
		e.source = SourceSaved
	}

	e.log.Info().Str("table_id", tableID).Msg("metadata saved")

	return nil
}

// Dirty reports whether the buffer differs from what is saved on the server.
func (e *MetadataEditor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return !e.buffer.Equal(e.saved)
}

// HasColumns is false when the "no columns" message should be shown.
func (e *MetadataEditor) HasColumns() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.buffer.Columns) > 0
}

func (e *MetadataEditor) Buffer() service.TableMetadata {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.buffer.Clone()
}

func (e *MetadataEditor) Source() MetadataSource {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.source
}

func (e *MetadataEditor) Selected() (service.TableRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.record == nil {
		return service.TableRecord{}, false
	}

	return *e.record, true
}

func NewMetadataEditor(syncer *MetadataSync, api service.RegistryAPI, registry *Registry, log zerolog.Logger) *MetadataEditor {
	return &MetadataEditor{
		syncer:   syncer,
		api:      api,
		registry: registry,
		log:      log,
	}
}

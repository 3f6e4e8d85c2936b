package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
)

// Registry is the client side cache of onboarded tables. Records are only
// appended, except for the description which is patched after a metadata
// save has been acknowledged.
type Registry struct {
	api service.RegistryAPI
	log zerolog.Logger

	mu          sync.RWMutex
	records     []service.TableRecord
	descriptors map[string]service.Descriptor
}

// Load merges the server listing into the cache. Listed records come first,
// in server order, followed by cached records the listing does not have yet,
// such as tables added while the listing was in flight. Duplicate ids after
// the first occurrence are dropped.
func (r *Registry) Load(ctx context.Context) error {
	const op errs.Op = "Registry.Load"

	tables, err := r.api.ListTables(ctx)
	if err != nil {
		return errs.E(op, err)
	}

	seen := make(map[string]struct{}, len(tables))
	records := make([]service.TableRecord, 0, len(tables))

	for _, t := range tables {
		if _, ok := seen[t.TableID]; ok {
			r.log.Warn().Str("table_id", t.TableID).Msg("duplicate table in listing")
			continue
		}

		seen[t.TableID] = struct{}{}
		records = append(records, t)
	}

	r.mu.Lock()
	for _, rec := range r.records {
		if _, ok := seen[rec.TableID]; ok {
			continue
		}

		seen[rec.TableID] = struct{}{}
		records = append(records, rec)
	}
	r.records = records
	r.mu.Unlock()

	r.log.Debug().Int("tables", len(records)).Msg("registry loaded")

	return nil
}

func (r *Registry) Records() []service.TableRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]service.TableRecord, len(r.records))
	copy(out, r.records)

	return out
}

func (r *Registry) Record(tableID string) (service.TableRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.records {
		if rec.TableID == tableID {
			return rec, true
		}
	}

	return service.TableRecord{}, false
}

// Add appends a freshly onboarded record and remembers the descriptor it was
// onboarded from.
func (r *Registry) Add(rec service.TableRecord, d service.Descriptor) error {
	const op errs.Op = "Registry.Add"

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.records {
		if existing.TableID == rec.TableID {
			return errs.E(errs.Exist, op, errs.Parameter("table_id"), "table is already registered")
		}
	}

	r.records = append(r.records, rec)

	if d != nil {
		r.descriptors[rec.TableID] = d
	}

	r.log.Info().Str("table_id", rec.TableID).Str("kind", string(rec.Type)).Msg("table added to registry")

	return nil
}

// ApplyDescription mirrors an acknowledged description change into the cache.
func (r *Registry) ApplyDescription(tableID, description string) error {
	const op errs.Op = "Registry.ApplyDescription"

	r.mu.Lock()
	defer r.mu.Unlock()

	records, ok := withDescription(r.records, tableID, description)
	if !ok {
		return errs.E(errs.NotExist, op, errs.Parameter("table_id"), "table is not in the registry")
	}

	r.records = records

	return nil
}

// Descriptor returns the descriptor a record was onboarded from, known only
// for tables onboarded through this registry.
func (r *Registry) Descriptor(tableID string) (service.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[tableID]

	return d, ok
}

// withDescription returns a copy of records with the description of tableID
// replaced. The input is never modified.
func withDescription(records []service.TableRecord, tableID, description string) ([]service.TableRecord, bool) {
	out := make([]service.TableRecord, len(records))
	copy(out, records)

	for i := range out {
		if out[i].TableID == tableID {
			out[i].Description = description
			return out, true
		}
	}

	return records, false
}

func NewRegistry(api service.RegistryAPI, log zerolog.Logger) *Registry {
	return &Registry{
		api:         api,
		log:         log,
		descriptors: map[string]service.Descriptor{},
	}
}

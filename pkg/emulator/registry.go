package emulator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
)

const (
	onboardedBy = "Admin"

	// Same layout as a python isoformat() timestamp.
	timestampLayout = "2006-01-02T15:04:05.000000"
)

type entry struct {
	record  service.TableRecord
	hashKey string
}

// Health is the body of the health endpoint.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (e *Emulator) health(_ context.Context, _ *http.Request, _ any) (*Health, error) {
	return &Health{Status: "ok", Version: e.version}, nil
}

// CodeDuplicateTable is returned with the 409 for an already onboarded table.
const CodeDuplicateTable errs.Code = "duplicate_table"

func (e *Emulator) getSchema(ctx context.Context, _ *http.Request, in service.SchemaRequest) (*service.SchemaSnapshot, error) {
	const op errs.Op = "Emulator.getSchema"

	d, err := in.Descriptor()
	if err != nil {
		return nil, errs.E(op, err)
	}

	snapshot, err := e.prober.Probe(ctx, d)
	if err != nil {
		return nil, errs.E(op, err)
	}

	snapshot.DatasetID = in.DatasetID

	return snapshot, nil
}

func hashKey(req service.OnboardTableRequest) string {
	raw := req.FilePath
	if req.Type == service.KindPostgres {
		raw = fmt.Sprintf("%s:%s:%s", req.Host, req.Database, req.TableName)
	}

	sum := sha256.Sum256([]byte(raw))

	return hex.EncodeToString(sum[:])
}

func (e *Emulator) onboardTable(ctx context.Context, _ *http.Request, in service.OnboardTableRequest) (*service.OnboardTableResponse, error) {
	const op errs.Op = "Emulator.onboardTable"

	if in.Type == service.KindSQLite && strings.TrimSpace(in.TableName) == "" {
		in.TableName = in.FilePath
	}

	if strings.TrimSpace(in.TableName) == "" {
		return nil, errs.E(errs.Validation, op, errs.Parameter(service.FieldTableName), "table_name is required")
	}

	d, err := in.Descriptor()
	if err != nil {
		return nil, errs.E(op, err)
	}

	key := hashKey(in)

	rec := service.TableRecord{
		TableID:     uuid.NewString(),
		Name:        in.TableName,
		DBName:      in.Database,
		Type:        in.Type,
		OnboardedBy: onboardedBy,
		OnboardedAt: e.now().Format(timestampLayout),
	}

	message := "Table successfully onboarded"
	duplicate := "Table already exists."

	if in.Type == service.KindSQLite {
		rec.DBName = service.SQLiteDatabaseName
		message = "SQLite Database onboarded"
		duplicate = "Database file already onboarded."
	}

	e.mu.Lock()
	if _, ok := e.hashes[key]; ok {
		e.mu.Unlock()

		return nil, errs.E(errs.Exist, op, CodeDuplicateTable, duplicate)
	}

	ent := &entry{record: rec, hashKey: key}
	e.tables = append(e.tables, ent)
	e.byID[rec.TableID] = ent
	e.hashes[key] = rec.TableID
	e.mu.Unlock()

	e.extractSchema(ctx, rec.TableID, d)

	return &service.OnboardTableResponse{
		Message:     message,
		TableID:     rec.TableID,
		HashKey:     key,
		Name:        rec.Name,
		DBName:      rec.DBName,
		Type:        rec.Type,
		OnboardedBy: rec.OnboardedBy,
		OnboardedAt: rec.OnboardedAt,
	}, nil
}

// extractSchema seeds the metadata of a newly onboarded table with its
// columns. A failure leaves the table without metadata.
func (e *Emulator) extractSchema(ctx context.Context, tableID string, d service.Descriptor) {
	snapshot, err := e.prober.Probe(ctx, d)
	if err != nil {
		e.log.Error().Err(err).Str("table_id", tableID).Msg("failed to extract schema")

		return
	}

	cols := snapshot.Columns()
	if cols == nil {
		cols = []service.ColumnMetadata{}
	}

	e.mu.Lock()
	e.metadata[tableID] = service.TableMetadata{
		Description: fmt.Sprintf("Imported from %s", d.Kind()),
		Columns:     cols,
	}
	e.mu.Unlock()

	e.log.Info().Str("table_id", tableID).Int("columns", len(cols)).Msg("schema extracted")
}

func (e *Emulator) listTables(_ context.Context, _ *http.Request, _ any) ([]service.TableRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]service.TableRecord, 0, len(e.tables))

	for _, ent := range e.tables {
		rec := ent.record
		rec.Description = e.metadata[rec.TableID].Description

		out = append(out, rec)
	}

	return out, nil
}

func (e *Emulator) getMetadata(ctx context.Context, _ *http.Request, _ any) (*service.TableMetadata, error) {
	id := chi.URLParamFromCtx(ctx, "table_id")

	e.mu.Lock()
	defer e.mu.Unlock()

	meta, ok := e.metadata[id]
	if !ok {
		return &service.TableMetadata{Columns: []service.ColumnMetadata{}}, nil
	}

	meta = meta.Clone()

	return &meta, nil
}

func (e *Emulator) saveMetadata(ctx context.Context, _ *http.Request, in service.TableMetadata) (*service.StatusResponse, error) {
	const op errs.Op = "Emulator.saveMetadata"

	id := chi.URLParamFromCtx(ctx, "table_id")

	e.mu.Lock()
	defer e.mu.Unlock()

	ent, known := e.byID[id]
	_, hasMeta := e.metadata[id]

	if !known && !hasMeta {
		return nil, errs.E(errs.NotExist, op, errs.Parameter("table_id"), "Table metadata not found")
	}

	e.metadata[id] = in.Clone()

	registry := "Postgres"
	if known && ent.record.Type == service.KindSQLite {
		registry = "SQLite"
	}

	return &service.StatusResponse{
		Status:  "success",
		Message: fmt.Sprintf("Metadata saved to %s registry", registry),
	}, nil
}

func (e *Emulator) getPrompt(ctx context.Context, _ *http.Request, _ any) (*service.PromptConfig, error) {
	id := chi.URLParamFromCtx(ctx, "table_id")

	e.mu.Lock()
	defer e.mu.Unlock()

	if cfg, ok := e.prompts[id]; ok {
		return &cfg, nil
	}

	return &service.PromptConfig{TableID: id}, nil
}

func (e *Emulator) savePrompt(ctx context.Context, _ *http.Request, in service.PromptConfig) (*service.StatusResponse, error) {
	id := chi.URLParamFromCtx(ctx, "table_id")

	if in.TableID == "" {
		in.TableID = id
	}

	e.mu.Lock()
	e.prompts[id] = in
	e.mu.Unlock()

	return &service.StatusResponse{
		Status:  "success",
		Message: "Prompt configuration saved",
	}, nil
}

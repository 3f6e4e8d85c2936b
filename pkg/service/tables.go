package service

import (
	"context"
	"fmt"
	"strconv"
)

// TableRecord is one onboarded table as listed by the registry.
type TableRecord struct {
	TableID     string `json:"table_id"`
	Name        string `json:"name"`
	DBName      string `json:"db_name"`
	Type        Kind   `json:"type"`
	Description string `json:"description"`
	OnboardedBy string `json:"onboarded_by"`
	OnboardedAt string `json:"onboarded_at"`
}

// TableMetadata is the editable overlay attached to a table.
type TableMetadata struct {
	Description string           `json:"description"`
	Columns     []ColumnMetadata `json:"columns"`
}

type ColumnMetadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Clone returns a deep copy, so buffers never share a backing array.
func (m TableMetadata) Clone() TableMetadata {
	cols := make([]ColumnMetadata, len(m.Columns))
	copy(cols, m.Columns)

	return TableMetadata{Description: m.Description, Columns: cols}
}

// Equal compares description and columns in order. A nil and an empty column
// list are equal.
func (m TableMetadata) Equal(other TableMetadata) bool {
	if m.Description != other.Description || len(m.Columns) != len(other.Columns) {
		return false
	}

	for i := range m.Columns {
		if m.Columns[i] != other.Columns[i] {
			return false
		}
	}

	return true
}

// OnboardTableRequest is the onboarding payload. Which fields are set depends
// on the type, see NewOnboardTableRequest.
type OnboardTableRequest struct {
	Type      Kind   `json:"type"`
	FilePath  string `json:"file_path,omitempty"`
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
	Database  string `json:"database,omitempty"`
	TableName string `json:"table_name"`
}

// NewOnboardTableRequest builds the payload for a tested descriptor. For
// sqlite the file path doubles as the table alias.
func NewOnboardTableRequest(d Descriptor) (OnboardTableRequest, error) {
	switch d := d.(type) {
	case SQLiteDescriptor:
		return OnboardTableRequest{
			Type:      KindSQLite,
			FilePath:  d.FilePath,
			TableName: d.FilePath,
		}, nil
	case PostgresDescriptor:
		if d.TableName == "" {
			return OnboardTableRequest{}, fmt.Errorf("table name is required to onboard a postgres table")
		}

		return OnboardTableRequest{
			Type:      KindPostgres,
			Host:      d.Host,
			Port:      d.Port,
			Database:  d.Database,
			TableName: d.TableName,
		}, nil
	}

	return OnboardTableRequest{}, fmt.Errorf("unknown descriptor type %T", d)
}

// Descriptor returns the data source the request points at.
func (r OnboardTableRequest) Descriptor() (Descriptor, error) {
	form := NewDescriptorForm(r.Type)
	form.Fields[FieldFilePath] = r.FilePath
	form.Fields[FieldHost] = r.Host
	form.Fields[FieldDatabase] = r.Database
	form.Fields[FieldTableName] = r.TableName

	if r.Port != 0 {
		form.Fields[FieldPort] = strconv.Itoa(r.Port)
	}

	return BuildDescriptor(form)
}

type OnboardTableResponse struct {
	Message     string `json:"message"`
	TableID     string `json:"table_id"`
	HashKey     string `json:"hash_key"`
	Name        string `json:"name,omitempty"`
	DBName      string `json:"db_name,omitempty"`
	Type        Kind   `json:"type,omitempty"`
	OnboardedBy string `json:"onboarded_by,omitempty"`
	OnboardedAt string `json:"onboarded_at,omitempty"`
}

// Record builds the registry record for a successful onboarding, falling back
// to the request values for anything the server did not echo.
func (r OnboardTableResponse) Record(req OnboardTableRequest) TableRecord {
	rec := TableRecord{
		TableID:     r.TableID,
		Name:        r.Name,
		DBName:      r.DBName,
		Type:        r.Type,
		OnboardedBy: r.OnboardedBy,
		OnboardedAt: r.OnboardedAt,
	}

	if rec.Type == "" {
		rec.Type = req.Type
	}

	if rec.Name == "" {
		rec.Name = req.TableName
	}

	if rec.DBName == "" {
		rec.DBName = req.Database
		if req.Type == KindSQLite {
			rec.DBName = SQLiteDatabaseName
		}
	}

	return rec
}

// PromptConfig is the per table prompt used when answering questions.
type PromptConfig struct {
	TableID      string `json:"table_id"`
	TableName    string `json:"table_name,omitempty"`
	DatabaseType string `json:"database_type,omitempty"`
	Prompt       string `json:"Prompt"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type RegistryAPI interface {
	OnboardTable(ctx context.Context, req OnboardTableRequest) (*OnboardTableResponse, error)
	ListTables(ctx context.Context) ([]TableRecord, error)
	GetTableMetadata(ctx context.Context, tableID string) (*TableMetadata, error)
	SaveTableMetadata(ctx context.Context, tableID string, meta TableMetadata) error
	GetTablePrompt(ctx context.Context, tableID string) (*PromptConfig, error)
	SaveTablePrompt(ctx context.Context, cfg PromptConfig) error
}

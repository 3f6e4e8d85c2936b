package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/navikt/datatalk/pkg/errs"
)

// Kind is the type of data source a descriptor points at.
type Kind string

const (
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
)

const (
	DefaultPostgresPort = 5432

	// SQLiteDatabaseName is what the registry reports as the database of a
	// sqlite table.
	SQLiteDatabaseName = "SQLite"
)

// Form field names, as they appear in the request details.
const (
	FieldFilePath  = "file_path"
	FieldHost      = "host"
	FieldPort      = "port"
	FieldDatabase  = "database"
	FieldTableName = "table_name"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSQLite:
		return KindSQLite, nil
	case KindPostgres:
		return KindPostgres, nil
	}

	return "", fmt.Errorf("unsupported DB type: %s", s)
}

// Descriptor is a typed description of a data source, before any contact with
// the server. The only implementations are SQLiteDescriptor and
// PostgresDescriptor, both comparable, so two descriptors are the same data
// source exactly when they are ==.
type Descriptor interface {
	Kind() Kind
	isDescriptor()
}

type SQLiteDescriptor struct {
	FilePath string
}

func (SQLiteDescriptor) Kind() Kind  { return KindSQLite }
func (SQLiteDescriptor) isDescriptor() {}

type PostgresDescriptor struct {
	Host      string
	Port      int
	Database  string
	TableName string
}

func (PostgresDescriptor) Kind() Kind  { return KindPostgres }
func (PostgresDescriptor) isDescriptor() {}

// SameDescriptor reports whether a and b describe the same data source.
func SameDescriptor(a, b Descriptor) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return a == b
}

// DescriptorForm holds the raw fields as typed by the user.
type DescriptorForm struct {
	Kind   Kind
	Fields map[string]string
}

func NewDescriptorForm(kind Kind) DescriptorForm {
	return DescriptorForm{Kind: kind, Fields: map[string]string{}}
}

// FormFromDescriptor is the inverse of BuildDescriptor.
func FormFromDescriptor(d Descriptor) DescriptorForm {
	switch d := d.(type) {
	case SQLiteDescriptor:
		return DescriptorForm{
			Kind:   KindSQLite,
			Fields: map[string]string{FieldFilePath: d.FilePath},
		}
	case PostgresDescriptor:
		f := map[string]string{
			FieldHost:     d.Host,
			FieldPort:     strconv.Itoa(d.Port),
			FieldDatabase: d.Database,
		}
		if d.TableName != "" {
			f[FieldTableName] = d.TableName
		}

		return DescriptorForm{Kind: KindPostgres, Fields: f}
	}

	return DescriptorForm{}
}

func (f DescriptorForm) Clone() DescriptorForm {
	fields := make(map[string]string, len(f.Fields))
	for k, v := range f.Fields {
		fields[k] = v
	}

	return DescriptorForm{Kind: f.Kind, Fields: fields}
}

func (f DescriptorForm) field(name string) string {
	return strings.TrimSpace(f.Fields[name])
}

// BuildDescriptor turns raw form fields into a typed descriptor.
func BuildDescriptor(form DescriptorForm) (Descriptor, error) {
	const op errs.Op = "service.BuildDescriptor"

	switch form.Kind {
	case KindSQLite:
		d := SQLiteDescriptor{FilePath: form.field(FieldFilePath)}

		err := validation.ValidateStruct(&d,
			validation.Field(&d.FilePath, validation.Required.Error("file path is required")),
		)
		if err != nil {
			return nil, errs.E(errs.Validation, op, errs.Parameter(FieldFilePath), err)
		}

		return d, nil
	case KindPostgres:
		port := DefaultPostgresPort

		if raw := form.field(FieldPort); raw != "" {
			p, err := strconv.Atoi(raw)
			if err != nil {
				return nil, errs.E(errs.Validation, op, errs.Parameter(FieldPort), fmt.Errorf("port must be a number, got %q", raw))
			}

			port = p
		}

		d := PostgresDescriptor{
			Host:      form.field(FieldHost),
			Port:      port,
			Database:  form.field(FieldDatabase),
			TableName: form.field(FieldTableName),
		}

		err := validation.ValidateStruct(&d,
			validation.Field(&d.Host, validation.Required, is.Host),
			validation.Field(&d.Port, validation.Required, validation.Min(1), validation.Max(65535)),
			validation.Field(&d.Database, validation.Required),
		)
		if err != nil {
			return nil, errs.E(errs.Validation, op, err)
		}

		return d, nil
	}

	return nil, errs.E(errs.Validation, op, errs.Parameter("type"), fmt.Errorf("unsupported DB type: %q", form.Kind))
}

// SchemaSnapshot is the live schema returned by a successful connection test.
type SchemaSnapshot struct {
	DatasetID    *string       `json:"dataset_id"`
	DatabaseType string        `json:"database_type"`
	DatabaseName *string       `json:"database_name"`
	Tables       []TableSchema `json:"tables"`
}

type TableSchema struct {
	TableName string       `json:"table_name"`
	Columns   []ColumnInfo `json:"columns"`
}

type ColumnInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Columns flattens the snapshot into metadata columns. When more than one
// table is present the column names are qualified with the table name.
func (s *SchemaSnapshot) Columns() []ColumnMetadata {
	if s == nil {
		return nil
	}

	var cols []ColumnMetadata

	for _, t := range s.Tables {
		for _, c := range t.Columns {
			name := c.Name
			if len(s.Tables) > 1 {
				name = t.TableName + "." + c.Name
			}

			cols = append(cols, ColumnMetadata{Name: name, Type: c.Type})
		}
	}

	return cols
}

// ConnectionDetails is the kind specific part of a connection test request.
// Credentials are never part of it; the server supplies them.
type ConnectionDetails struct {
	FilePath  string `json:"file_path,omitempty"`
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
	Database  string `json:"database,omitempty"`
	TableName string `json:"table_name,omitempty"`
}

type SchemaRequest struct {
	Type      Kind              `json:"type"`
	DatasetID *string           `json:"dataset_id,omitempty"`
	Details   ConnectionDetails `json:"details"`
}

// NewSchemaRequest builds the connection test request for a descriptor.
func NewSchemaRequest(d Descriptor) SchemaRequest {
	switch d := d.(type) {
	case SQLiteDescriptor:
		return SchemaRequest{
			Type:    KindSQLite,
			Details: ConnectionDetails{FilePath: d.FilePath},
		}
	case PostgresDescriptor:
		return SchemaRequest{
			Type: KindPostgres,
			Details: ConnectionDetails{
				Host:      d.Host,
				Port:      d.Port,
				Database:  d.Database,
				TableName: d.TableName,
			},
		}
	}

	panic(fmt.Sprintf("unknown descriptor type %T", d))
}

// Descriptor converts a request back into a descriptor, the way a server
// reads it.
func (r SchemaRequest) Descriptor() (Descriptor, error) {
	form := NewDescriptorForm(r.Type)
	form.Fields[FieldFilePath] = r.Details.FilePath
	form.Fields[FieldHost] = r.Details.Host
	form.Fields[FieldDatabase] = r.Details.Database
	form.Fields[FieldTableName] = r.Details.TableName

	if r.Details.Port != 0 {
		form.Fields[FieldPort] = strconv.Itoa(r.Details.Port)
	}

	return BuildDescriptor(form)
}

type ConnectionAPI interface {
	TestConnection(ctx context.Context, req SchemaRequest) (*SchemaSnapshot, error)
}

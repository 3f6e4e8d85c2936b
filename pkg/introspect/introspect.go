// Package introspect reads the live schema of a data source.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/navikt/datatalk/pkg/config"
	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"

	// Drivers
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	// sqliteDatabaseName is reported as the database of sqlite snapshots.
	sqliteDatabaseName = "sqlite_file"
)

type OpenerFn func(driver, dsn string) (*sql.DB, error)

// Prober connects to the data source of a descriptor and lists its tables
// and columns. Postgres credentials come from the server configuration.
type Prober struct {
	postgres config.EmulatorPostgres
	open     OpenerFn
	log      zerolog.Logger
}

func (p *Prober) Probe(ctx context.Context, d service.Descriptor) (*service.SchemaSnapshot, error) {
	const op errs.Op = "Prober.Probe"

	switch d := d.(type) {
	case service.SQLiteDescriptor:
		snapshot, err := p.probeSQLite(ctx, d)
		if err != nil {
			return nil, errs.E(op, err)
		}

		return snapshot, nil
	case service.PostgresDescriptor:
		snapshot, err := p.probePostgres(ctx, d)
		if err != nil {
			return nil, errs.E(op, err)
		}

		return snapshot, nil
	}

	return nil, errs.E(errs.Validation, op, fmt.Errorf("unsupported DB type: %T", d))
}

func (p *Prober) probeSQLite(ctx context.Context, d service.SQLiteDescriptor) (*service.SchemaSnapshot, error) {
	const op errs.Op = "Prober.probeSQLite"

	// Opening a missing file would create an empty database.
	if _, err := os.Stat(d.FilePath); err != nil {
		return nil, errs.E(errs.NotExist, op, errs.Parameter(service.FieldFilePath), fmt.Sprintf("File not found: %s", d.FilePath))
	}

	db, err := p.open(driverSQLite, d.FilePath)
	if err != nil {
		return nil, errs.E(errs.Database, op, err)
	}
	defer db.Close()

	tables, err := SQLiteTables(ctx, db)
	if err != nil {
		return nil, errs.E(op, err)
	}

	name := sqliteDatabaseName

	p.log.Debug().Str("kind", string(service.KindSQLite)).Int("tables", len(tables)).Msg("schema probed")

	return &service.SchemaSnapshot{
		DatabaseType: string(service.KindSQLite),
		DatabaseName: &name,
		Tables:       tables,
	}, nil
}

func (p *Prober) probePostgres(ctx context.Context, d service.PostgresDescriptor) (*service.SchemaSnapshot, error) {
	const op errs.Op = "Prober.probePostgres"

	db, err := p.open(driverPostgres, p.postgres.ConnectionString(d.Host, d.Port, d.Database))
	if err != nil {
		return nil, errs.E(errs.Database, op, err)
	}
	defer db.Close()

	tables, err := PostgresTables(ctx, db, d.TableName)
	if err != nil {
		return nil, errs.E(op, err)
	}

	name := d.Database

	p.log.Debug().Str("kind", string(service.KindPostgres)).Int("tables", len(tables)).Msg("schema probed")

	return &service.SchemaSnapshot{
		DatabaseType: string(service.KindPostgres),
		DatabaseName: &name,
		Tables:       tables,
	}, nil
}

// SQLiteTables lists every user table of a sqlite database with its columns.
func SQLiteTables(ctx context.Context, db *sql.DB) ([]service.TableSchema, error) {
	const op errs.Op = "introspect.SQLiteTables"

	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, errs.E(errs.Database, op, fmt.Errorf("database connection or reflection failed: %w", err))
	}

	names, err := scanNames(rows)
	if err != nil {
		return nil, errs.E(errs.Database, op, err)
	}

	tables := make([]service.TableSchema, 0, len(names))

	for _, name := range names {
		cols, err := sqliteColumns(ctx, db, name)
		if err != nil {
			return nil, errs.E(errs.Database, op, err)
		}

		tables = append(tables, service.TableSchema{TableName: name, Columns: cols})
	}

	return tables, nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, table string) ([]service.ColumnInfo, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("get table info: %w", err)
	}
	defer rows.Close()

	var cols []service.ColumnInfo

	for rows.Next() {
		var (
			cid       int
			name      string
			dataType  string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan column info: %w", err)
		}

		cols = append(cols, service.ColumnInfo{Name: name, Type: dataType})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return cols, nil
}

// PostgresTables lists the tables of the public schema with their columns.
// When table is set only that table is returned, and it must exist.
func PostgresTables(ctx context.Context, db *sql.DB, table string) ([]service.TableSchema, error) {
	const op errs.Op = "introspect.PostgresTables"

	rows, err := db.QueryContext(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`)
	if err != nil {
		return nil, errs.E(errs.Database, op, fmt.Errorf("database connection or reflection failed: %w", err))
	}

	names, err := scanNames(rows)
	if err != nil {
		return nil, errs.E(errs.Database, op, err)
	}

	if table != "" {
		found := false

		for _, n := range names {
			if n == table {
				found = true
				break
			}
		}

		if !found {
			return nil, errs.E(errs.NotExist, op, errs.Parameter(service.FieldTableName), fmt.Sprintf("Table '%s' not found", table))
		}

		names = []string{table}
	}

	tables := make([]service.TableSchema, 0, len(names))

	for _, name := range names {
		cols, err := postgresColumns(ctx, db, name)
		if err != nil {
			return nil, errs.E(errs.Database, op, err)
		}

		tables = append(tables, service.TableSchema{TableName: name, Columns: cols})
	}

	return tables, nil
}

func postgresColumns(ctx context.Context, db *sql.DB, table string) ([]service.ColumnInfo, error) {
	rows, err := db.QueryContext(ctx, `SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("get columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []service.ColumnInfo

	for rows.Next() {
		var name, dataType string

		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, fmt.Errorf("scan column info: %w", err)
		}

		cols = append(cols, service.ColumnInfo{Name: name, Type: strings.ToUpper(dataType)})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return cols, nil
}

func scanNames(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}

		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return names, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func New(postgres config.EmulatorPostgres, log zerolog.Logger) *Prober {
	return NewWithOpener(postgres, sql.Open, log)
}

func NewWithOpener(postgres config.EmulatorPostgres, open OpenerFn, log zerolog.Logger) *Prober {
	return &Prober{
		postgres: postgres,
		open:     open,
		log:      log,
	}
}

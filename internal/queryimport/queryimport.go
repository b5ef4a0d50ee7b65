// Package queryimport defines the row-streaming boundary a downstream
// analytical query engine would consume: a TableSource abstracts over the
// concrete dialect and exposes the schema plus a row iterator per table, so
// the engine's own operations (Sampler, Shard Extractor, Differ) never
// depend on `database/sql` directly. It never builds or dumps DDL, only
// reads it for schema discovery, and reads rows — it is the read side of
// what the teacher's adapter/* packages do for migration.
package queryimport

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/sqldef-engine/sqldef-engine/internal/schema"
)

// Config holds the connection parameters common to all three drivers,
// mirroring the teacher's adapter.Config field set.
type Config struct {
	DbName   string
	User     string
	Password string
	Host     string
	Port     int
	Socket   string
}

// Row is one result row, keyed by column name. Values come back as
// whatever the driver's database/sql scan produces ([]byte for text/blob
// types unless a dialect-specific conversion is applied).
type Row map[string]any

// TableSource is the contract a query-import consumer uses: the set of
// tables with their resolved schema, and a lazy row iterator per table.
type TableSource interface {
	Tables() []schema.TableSchema
	Rows(ctx context.Context, table string) iter.Seq[Row]
	Close() error
}

// sqlSource is the shared implementation behind the three dialect
// adapters below; only the DSN, driver name, and introspection queries
// differ per dialect.
type sqlSource struct {
	db     *sql.DB
	driver string
	tables []schema.TableSchema
}

func (s *sqlSource) Tables() []schema.TableSchema { return s.tables }

func (s *sqlSource) Close() error { return s.db.Close() }

// Rows streams `SELECT * FROM table` one row at a time via a range-over-func
// iterator, in the style of internal/util's CanonicalMapIter, so a caller
// can `for row := range source.Rows(ctx, "users") { ... }` without loading
// the whole table into memory.
func (s *sqlSource) Rows(ctx context.Context, table string) iter.Seq[Row] {
	return func(yield func(Row) bool) {
		quoted := quoteIdent(s.driver, table)
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", quoted))
		if err != nil {
			return
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return
		}
		values := make([]any, len(cols))
		scanArgs := make([]any, len(cols))
		for i := range values {
			scanArgs[i] = &values[i]
		}

		for rows.Next() {
			if err := rows.Scan(scanArgs...); err != nil {
				return
			}
			row := make(Row, len(cols))
			for i, col := range cols {
				row[col] = values[i]
			}
			if !yield(row) {
				return
			}
		}
	}
}

func quoteIdent(driver, name string) string {
	if driver == "postgres" {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// --- MySQL ---

func mysqlDSN(cfg Config) string {
	var addr string
	if cfg.Socket != "" {
		addr = fmt.Sprintf("unix(%s)", cfg.Socket)
	} else {
		addr = fmt.Sprintf("tcp(%s:%d)", cfg.Host, cfg.Port)
	}
	return fmt.Sprintf("%s:%s@%s/%s?parseTime=false", cfg.User, cfg.Password, addr, cfg.DbName)
}

// NewMySQLSource connects to a MySQL/MariaDB database and introspects its
// tables from INFORMATION_SCHEMA.
func NewMySQLSource(ctx context.Context, cfg Config) (TableSource, error) {
	db, err := sql.Open("mysql", mysqlDSN(cfg))
	if err != nil {
		return nil, err
	}
	src := &sqlSource{db: db, driver: "mysql"}
	if err := src.loadMySQLSchema(ctx, cfg.DbName); err != nil {
		db.Close()
		return nil, err
	}
	return src, nil
}

func (s *sqlSource) loadMySQLSchema(ctx context.Context, dbName string) error {
	tableRows, err := s.db.QueryContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = ? AND table_type = 'BASE TABLE'", dbName)
	if err != nil {
		return err
	}
	var names []string
	for tableRows.Next() {
		var name string
		if err := tableRows.Scan(&name); err != nil {
			tableRows.Close()
			return err
		}
		names = append(names, name)
	}
	tableRows.Close()

	for _, name := range names {
		t, err := s.loadInformationSchemaTable(ctx, dbName, name)
		if err != nil {
			return err
		}
		s.tables = append(s.tables, t)
	}
	return nil
}

// loadInformationSchemaTable is shared between MySQL and Postgres, which
// both expose INFORMATION_SCHEMA.{COLUMNS,KEY_COLUMN_USAGE}; sqlite3 has no
// such schema and is introspected separately via PRAGMA statements below.
func (s *sqlSource) loadInformationSchemaTable(ctx context.Context, dbName, tableName string) (schema.TableSchema, error) {
	t := schema.TableSchema{Name: tableName}

	colRows, err := s.db.QueryContext(ctx,
		`SELECT column_name, data_type, is_nullable, ordinal_position
		 FROM information_schema.columns
		 WHERE table_schema = `+schemaFilter(s.driver)+` AND table_name = `+placeholder(s.driver, 2)+`
		 ORDER BY ordinal_position`, schemaArg(s.driver, dbName), tableName)
	if err != nil {
		return t, err
	}
	pkSet := make(map[string]bool)
	if err := func() error {
		defer colRows.Close()
		ordinal := 0
		for colRows.Next() {
			var name, dataType, nullable string
			var pos int
			if err := colRows.Scan(&name, &dataType, &nullable, &pos); err != nil {
				return err
			}
			t.Columns = append(t.Columns, schema.Column{
				Name:     name,
				Type:     canonicalType(dataType),
				RawType:  strings.ToUpper(dataType),
				Ordinal:  ordinal,
				Nullable: strings.EqualFold(nullable, "YES"),
			})
			ordinal++
		}
		return nil
	}(); err != nil {
		return t, err
	}

	pkRows, err := s.db.QueryContext(ctx,
		`SELECT kcu.column_name
		 FROM information_schema.key_column_usage kcu
		 JOIN information_schema.table_constraints tc
		   ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		 WHERE tc.constraint_type = 'PRIMARY KEY' AND kcu.table_schema = `+schemaFilter(s.driver)+` AND kcu.table_name = `+placeholder(s.driver, 2)+``,
		schemaArg(s.driver, dbName), tableName)
	if err == nil {
		for pkRows.Next() {
			var col string
			if pkRows.Scan(&col) == nil {
				pkSet[col] = true
			}
		}
		pkRows.Close()
	}

	for i, c := range t.Columns {
		if pkSet[c.Name] {
			t.Columns[i].PrimaryKey = true
			t.PrimaryKey = append(t.PrimaryKey, c.Ordinal)
		}
	}

	return t, nil
}

func schemaFilter(driver string) string {
	if driver == "postgres" {
		return "$1"
	}
	return "?"
}

func placeholder(driver string, n int) string {
	if driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func schemaArg(driver, dbName string) string {
	if driver == "postgres" {
		return "public"
	}
	return dbName
}

// canonicalType maps an INFORMATION_SCHEMA data_type string onto the
// engine's ColumnType taxonomy, following the same style of switch used by
// internal/convert's type-rewrite table.
func canonicalType(dataType string) schema.ColumnType {
	switch strings.ToLower(dataType) {
	case "int", "integer", "mediumint":
		return schema.Int
	case "bigint":
		return schema.BigInt
	case "smallint", "tinyint":
		return schema.SmallInt
	case "boolean", "bool":
		return schema.Bool
	case "float", "real":
		return schema.Float
	case "double", "double precision":
		return schema.Double
	case "decimal", "numeric":
		return schema.Decimal
	case "char", "varchar", "text", "character varying", "mediumtext", "longtext":
		return schema.Text
	case "blob", "bytea", "varbinary", "longblob":
		return schema.Blob
	case "date":
		return schema.Date
	case "time":
		return schema.Time
	case "datetime", "timestamp", "timestamp without time zone", "timestamp with time zone":
		return schema.DateTime
	case "json", "jsonb":
		return schema.Json
	case "uuid":
		return schema.Uuid
	default:
		return schema.Other
	}
}

// --- PostgreSQL ---

func postgresDSN(cfg Config) string {
	host := cfg.Host
	if cfg.Socket != "" {
		host = cfg.Socket
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", cfg.User, cfg.Password, host, cfg.Port, cfg.DbName)
}

// NewPostgresSource connects to a PostgreSQL database and introspects its
// tables from information_schema (schema "public").
func NewPostgresSource(ctx context.Context, cfg Config) (TableSource, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, err
	}
	src := &sqlSource{db: db, driver: "postgres"}

	rows, err := db.QueryContext(ctx, "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'")
	if err != nil {
		db.Close()
		return nil, err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			db.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()

	for _, name := range names {
		t, err := src.loadInformationSchemaTable(ctx, cfg.DbName, name)
		if err != nil {
			db.Close()
			return nil, err
		}
		src.tables = append(src.tables, t)
	}
	return src, nil
}

// --- SQLite3 ---

// NewSQLite3Source opens a sqlite3 file and introspects sqlite_master plus
// PRAGMA table_info, since sqlite has no INFORMATION_SCHEMA. Uses
// modernc.org/sqlite (the teacher's own dependency) rather than a cgo
// driver, matching the rest of this module's pure-Go build.
func NewSQLite3Source(ctx context.Context, cfg Config) (TableSource, error) {
	db, err := sql.Open("sqlite", cfg.DbName)
	if err != nil {
		return nil, err
	}
	src := &sqlSource{db: db, driver: "sqlite3"}

	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		db.Close()
		return nil, err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			db.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()

	for _, name := range names {
		t, err := src.loadSQLiteTable(ctx, name)
		if err != nil {
			db.Close()
			return nil, err
		}
		src.tables = append(src.tables, t)
	}
	return src, nil
}

func (s *sqlSource) loadSQLiteTable(ctx context.Context, tableName string) (schema.TableSchema, error) {
	t := schema.TableSchema{Name: tableName}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(s.driver, tableName)))
	if err != nil {
		return t, err
	}
	defer rows.Close()

	ordinal := 0
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return t, err
		}
		col := schema.Column{
			Name:       name,
			Type:       canonicalType(colType),
			RawType:    strings.ToUpper(colType),
			Ordinal:    ordinal,
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
		}
		if col.PrimaryKey {
			t.PrimaryKey = append(t.PrimaryKey, ordinal)
		}
		t.Columns = append(t.Columns, col)
		ordinal++
	}
	return t, nil
}

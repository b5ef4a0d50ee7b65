// Command sqldiff compares two dumps: their schemas (tables added, removed,
// or modified) and, unless --schema-only is given, their row data per
// table, keyed by primary key.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/jessevdk/go-flags"

	"github.com/sqldef-engine/sqldef-engine/internal/classify"
	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/diff"
	"github.com/sqldef-engine/sqldef-engine/internal/issue"
	"github.com/sqldef-engine/sqldef-engine/internal/pipeline"
	"github.com/sqldef-engine/sqldef-engine/internal/pk"
	"github.com/sqldef-engine/sqldef-engine/internal/rowparser"
	"github.com/sqldef-engine/sqldef-engine/internal/scanner"
	"github.com/sqldef-engine/sqldef-engine/internal/schema"
	"github.com/sqldef-engine/sqldef-engine/internal/xlog"
)

type opts struct {
	Dialect           string `long:"dialect" description:"mysql|postgres|sqlite|mssql (omitted: auto-detect from the old dump)"`
	SchemaOnly        bool   `long:"schema-only" description:"Compare schemas only, skip row data"`
	DataOnly          bool   `long:"data-only" description:"Compare row data only, skip schema"`
	Tables            string `long:"tables" description:"Comma-separated allowlist of tables to compare"`
	Exclude           string `long:"exclude" description:"Comma-separated denylist of tables to skip"`
	IgnoreOrder       bool   `long:"ignore-order" description:"Ignore column declaration order when comparing tables"`
	IgnoreColumns     string `long:"ignore-columns" description:"Comma-separated glob patterns of table.column to ignore"`
	PrimaryKey        string `long:"primary-key" description:"tbl:col+col override for tables lacking a declared primary key"`
	AllowNoPK         bool   `long:"allow-no-pk" description:"Compare data for tables with no usable primary key (skipped by default)"`
	MaxPKEntries      int    `long:"max-pk-entries" description:"Cap on sampled PKs listed per change bucket" default:"10"`
	Verbose           bool   `long:"verbose" description:"List sampled primary keys per change bucket (up to --max-pk-entries)"`
	Format            string `long:"format" description:"text|json|sql" default:"text"`
	Help              bool   `long:"help" description:"Show this help"`
}

func main() {
	xlog.Init()

	var o opts
	parser := flags.NewParser(&o, flags.None)
	parser.Usage = "[options] old.sql new.sql"
	args, err := parser.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if o.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "exactly two input dump files are required: old.sql new.sql")
		parser.WriteHelp(os.Stderr)
		os.Exit(2)
	}
	oldPath, newPath := args[0], args[1]

	d, confidence, err := pipeline.ResolveDialect(oldPath, o.Dialect)
	if err != nil {
		slog.Error("resolving dialect", "error", err)
		os.Exit(1)
	}
	if o.Dialect == "" {
		slog.Info("dialect auto-detected from old dump", "dialect", d.String(), "confidence", confidence.String())
	}

	format, err := diff.ParseDiffOutputFormat(o.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := &diff.DiffConfig{
		SchemaOnly:        o.SchemaOnly,
		DataOnly:          o.DataOnly,
		Tables:            splitList(o.Tables),
		Exclude:           splitList(o.Exclude),
		Verbose:           o.Verbose,
		MaxPKEntries:      o.MaxPKEntries,
		AllowNoPK:         o.AllowNoPK,
		IgnoreColumnOrder: o.IgnoreOrder,
		IgnoreColumns:     splitList(o.IgnoreColumns),
		PKOverrides:       parsePKOverrides(o.PrimaryKey),
	}

	oldIssues, newIssues := &issue.List{}, &issue.List{}
	oldSchema, err := pipeline.BuildSchema(oldPath, d, oldIssues)
	if err != nil {
		slog.Error("building old schema", "error", err)
		os.Exit(1)
	}
	newSchema, err := pipeline.BuildSchema(newPath, d, newIssues)
	if err != nil {
		slog.Error("building new schema", "error", err)
		os.Exit(1)
	}

	var schemaDiff *diff.SchemaDiff
	if !o.DataOnly {
		schemaDiff = diff.CompareSchemas(oldSchema, newSchema, cfg)
	}

	var dataDiff *diff.DataDiff
	var warnings []diff.Warning
	if !o.SchemaOnly {
		dataDiff, warnings = compareData(oldPath, newPath, d, oldSchema, newSchema, cfg)
	}

	result := &diff.DiffResult{
		Schema:   schemaDiff,
		Data:     dataDiff,
		Warnings: warnings,
	}
	result.Summary = diff.BuildSummary(schemaDiff, dataDiff)

	out, err := diff.FormatDiff(result, format)
	if err != nil {
		slog.Error("formatting diff", "error", err)
		os.Exit(1)
	}
	fmt.Println(out)

	if result.Summary.TablesAdded+result.Summary.TablesRemoved+result.Summary.TablesModified > 0 ||
		result.Summary.RowsAdded+result.Summary.RowsRemoved+result.Summary.RowsModified > 0 {
		os.Exit(1)
	}
}

// compareData streams both dumps' DML in a row-digest pass per table,
// then runs diff.DiffTableRows per table present in either schema.
func compareData(oldPath, newPath string, d dialect.Dialect, oldSchema, newSchema *schema.Schema, cfg *diff.DiffConfig) (*diff.DataDiff, []diff.Warning) {
	oldRows, warningsOld := collectRowDigests(oldPath, d, oldSchema, cfg)
	newRows, warningsNew := collectRowDigests(newPath, d, newSchema, cfg)

	tables := make(map[string]bool)
	for name := range oldRows {
		tables[name] = true
	}
	for name := range newRows {
		tables[name] = true
	}

	result := &diff.DataDiff{Tables: make(map[string]*diff.TableDataDiff)}
	maxSamples := cfg.MaxPKEntriesOrDefault()
	if !cfg.Verbose {
		maxSamples = 0
	}
	for name := range tables {
		result.Tables[name] = diff.DiffTableRows(oldRows[name], newRows[name], maxSamples)
	}

	warnings := append(warningsOld, warningsNew...)
	return result, warnings
}

// collectRowDigests runs a DML pass over path, keyed by the table's PK
// digest, mapping to a hash of its non-key column values. Tables with no
// usable primary key are skipped (with a Warning) unless cfg.AllowNoPK,
// in which case every column (there being no PK to exclude) feeds the hash
// and the row is indexed by the hash of the whole row instead.
func collectRowDigests(path string, d dialect.Dialect, sc *schema.Schema, cfg *diff.DiffConfig) (map[string]map[pk.Digest]uint64, []diff.Warning) {
	result := make(map[string]map[pk.Digest]uint64)
	var warnings []diff.Warning

	warned := make(map[string]bool)
	src, scn, err := pipeline.OpenScanner(path, d)
	if err != nil {
		return result, warnings
	}
	defer src.Close()

	traits := dialect.TraitsFor(d)
	_ = pipeline.Walk(scn, traits, func(stmt scanner.Statement, cls classify.Result) error {
		if cls.Kind != classify.Insert && cls.Kind != classify.CopyData {
			return nil
		}
		if !diff.ShouldIncludeTable(cfg, cls.Table) {
			return nil
		}
		table, ok := sc.TableByName(cls.Table)
		if !ok {
			return nil
		}
		if len(table.PrimaryKey) == 0 {
			if cols, ok := cfg.PKOverrides[strings.ToLower(table.Name)]; ok {
				overridden := *table
				overridden.PrimaryKey = nil
				for _, c := range cols {
					if ord := table.ColumnOrdinal(c); ord >= 0 {
						overridden.PrimaryKey = append(overridden.PrimaryKey, ord)
					}
				}
				table = &overridden
			}
		}
		if len(table.PrimaryKey) == 0 && !cfg.AllowNoPK {
			if !warned[table.Name] {
				warned[table.Name] = true
				name := table.Name
				warnings = append(warnings, diff.Warning{Table: &name, Message: "no usable primary key; data diff skipped"})
			}
			return nil
		}

		positions := pipeline.InsertPositions(table, cls.ColumnsHeader)
		rows, err := pipeline.Rows(stmt, cls, traits)
		if err != nil {
			return nil
		}
		tableRows := result[table.Name]
		if tableRows == nil {
			tableRows = make(map[pk.Digest]uint64)
			result[table.Name] = tableRows
		}
		for _, row := range rows {
			pkTuple, hashDigest := rowIdentity(table, row, positions)
			tableRows[pkTuple] = hashDigest
		}
		return nil
	})
	return result, warnings
}

// rowIdentity returns the row's PK digest (or a digest of the whole row,
// when the table has none and AllowNoPK let the comparison proceed) and a
// hash of its remaining column values.
func rowIdentity(table *schema.TableSchema, row rowparser.Row, positions []int) (pk.Digest, uint64) {
	var pkDigest pk.Digest
	excluded := make(map[int]bool, len(table.PrimaryKey))
	for _, ord := range table.PrimaryKey {
		excluded[ord] = true
	}

	if len(table.PrimaryKey) > 0 {
		if tuple, ok := rowparser.ExtractTuple(row, table.PrimaryKey, positions); ok {
			pkDigest = tuple.Hash()
		}
	}

	h := xxhash.New()
	for ordinal := 0; ordinal < len(table.Columns); ordinal++ {
		if excluded[ordinal] {
			continue
		}
		pos := positions[ordinal]
		if pos < 0 || pos >= len(row.Values) {
			continue
		}
		h.Write([]byte(row.Values[pos].Text))
		h.Write([]byte{0})
	}
	rowHash := h.Sum64()

	if len(table.PrimaryKey) == 0 {
		return pk.Digest(rowHash), rowHash
	}
	return pkDigest, rowHash
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parsePKOverrides parses a "tbl:col+col,tbl2:col3" --primary-key flag into
// diff.DiffConfig's PKOverrides map.
func parsePKOverrides(s string) map[string][]string {
	if s == "" {
		return nil
	}
	out := make(map[string][]string)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = strings.Split(parts[1], "+")
	}
	return out
}

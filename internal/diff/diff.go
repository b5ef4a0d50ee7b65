// Package diff compares two schema snapshots and, optionally, their row
// data: which tables were added, removed, or modified, and
// for data diffs, a PK-keyed row digest comparison summarized as
// added/removed/modified counts per table.
package diff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sqldef-engine/sqldef-engine/internal/pk"
	"github.com/sqldef-engine/sqldef-engine/internal/schema"
)

// DiffOutputFormat selects how FormatDiff renders a DiffResult.
type DiffOutputFormat int

const (
	FormatText DiffOutputFormat = iota
	FormatJSON
	FormatSQL
)

func ParseDiffOutputFormat(s string) (DiffOutputFormat, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "sql":
		return FormatSQL, nil
	default:
		return FormatText, fmt.Errorf("unknown diff format %q", s)
	}
}

// DiffConfig controls which tables are compared and how verbosely.
type DiffConfig struct {
	SchemaOnly        bool
	DataOnly          bool
	Tables            []string // inclusion filter; empty means all tables
	Exclude           []string
	Verbose           bool
	MaxPKEntries      int // sample PK cap per added/removed/modified bucket; 0 means use DefaultMaxPKEntries
	AllowNoPK         bool
	IgnoreColumnOrder bool
	PKOverrides       map[string][]string // table -> explicit PK column list
	IgnoreColumns     []string            // glob patterns, matched per table.column
}

// DefaultMaxPKEntries is the sample-PK cap applied when DiffConfig.MaxPKEntries is 0.
const DefaultMaxPKEntries = 10

// MaxPKEntriesOrDefault resolves the --max-pk-entries sample cap, falling
// back to DefaultMaxPKEntries when unset.
func (c *DiffConfig) MaxPKEntriesOrDefault() int {
	if c.MaxPKEntries > 0 {
		return c.MaxPKEntries
	}
	return DefaultMaxPKEntries
}

// ShouldIncludeTable applies the --tables/--exclude filters. An explicit
// Tables allowlist wins; Exclude always removes a table even if named in
// Tables.
func ShouldIncludeTable(cfg *DiffConfig, tableName string) bool {
	lower := strings.ToLower(tableName)
	for _, ex := range cfg.Exclude {
		if strings.ToLower(ex) == lower {
			return false
		}
	}
	if len(cfg.Tables) == 0 {
		return true
	}
	for _, t := range cfg.Tables {
		if strings.ToLower(t) == lower {
			return true
		}
	}
	return false
}

// columnIgnored reports whether table.column matches one of cfg's
// --ignore-columns glob patterns (e.g. "*.updated_at" or "users.last_seen").
func columnIgnored(cfg *DiffConfig, table, column string) bool {
	qualified := strings.ToLower(table + "." + column)
	for _, pattern := range cfg.IgnoreColumns {
		if ok, _ := filepathMatch(strings.ToLower(pattern), qualified); ok {
			return true
		}
	}
	return false
}

// filepathMatch is a tiny glob matcher supporting a single leading or
// embedded "*" wildcard, enough for "*.col" / "table.*" style patterns
// without pulling in a path-oriented glob package for dotted names.
func filepathMatch(pattern, name string) (bool, error) {
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return pattern == name, nil
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix), nil
}

// ColumnInfo describes a column for the "table added" / "column added"
// cases, where only the new shape matters.
type ColumnInfo struct {
	Name       string `json:"name"`
	ColType    string `json:"col_type"`
	IsNullable bool   `json:"is_nullable"`
	IsPrimary  bool   `json:"is_primary_key"`
}

// ColumnChange describes one column present on both sides whose type or
// nullability differs. A nil field means that attribute didn't change.
type ColumnChange struct {
	Name        string  `json:"name"`
	OldType     *string `json:"old_type,omitempty"`
	NewType     *string `json:"new_type,omitempty"`
	OldNullable *bool   `json:"old_nullable,omitempty"`
	NewNullable *bool   `json:"new_nullable,omitempty"`
}

// ForeignKeyInfo is the shape diffed for fks_added/fks_removed.
type ForeignKeyInfo struct {
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns"`
}

// IndexInfo is the shape diffed for indexes_added/indexes_removed.
type IndexInfo struct {
	Name      string   `json:"name"`
	Columns   []string `json:"columns"`
	Unique    bool     `json:"is_unique"`
	IndexType string   `json:"index_type,omitempty"`
}

// TableInfo describes a whole new table, for SchemaDiff.TablesAdded.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// TableModification holds every per-column, per-key, and per-index change
// detected for one table present in both schemas.
type TableModification struct {
	TableName       string           `json:"table_name"`
	ColumnsAdded    []ColumnInfo     `json:"columns_added,omitempty"`
	ColumnsRemoved  []ColumnInfo     `json:"columns_removed,omitempty"`
	ColumnsModified []ColumnChange   `json:"columns_modified,omitempty"`
	PKChanged       bool             `json:"pk_changed"`
	OldPK           []string         `json:"old_pk,omitempty"`
	NewPK           []string         `json:"new_pk,omitempty"`
	FKsAdded        []ForeignKeyInfo `json:"fks_added,omitempty"`
	FKsRemoved      []ForeignKeyInfo `json:"fks_removed,omitempty"`
	IndexesAdded    []IndexInfo      `json:"indexes_added,omitempty"`
	IndexesRemoved  []IndexInfo      `json:"indexes_removed,omitempty"`
}

// HasChanges reports whether this modification carries any actual diff;
// compareTable always returns a TableModification, so callers filter on
// this before surfacing it.
func (m *TableModification) HasChanges() bool {
	return len(m.ColumnsAdded) > 0 ||
		len(m.ColumnsRemoved) > 0 ||
		len(m.ColumnsModified) > 0 ||
		m.PKChanged ||
		len(m.FKsAdded) > 0 ||
		len(m.FKsRemoved) > 0 ||
		len(m.IndexesAdded) > 0 ||
		len(m.IndexesRemoved) > 0
}

// SchemaDiff is the structural diff between two schema snapshots.
type SchemaDiff struct {
	TablesAdded    []TableInfo          `json:"tables_added,omitempty"`
	TablesRemoved  []string             `json:"tables_removed,omitempty"`
	TablesModified []TableModification  `json:"tables_modified,omitempty"`
}

func (d *SchemaDiff) HasChanges() bool {
	return len(d.TablesAdded) > 0 || len(d.TablesRemoved) > 0 || len(d.TablesModified) > 0
}

// tableColumnInfo converts a schema.TableSchema's columns into ColumnInfo,
// in declared order.
func tableColumnInfo(t *schema.TableSchema) []ColumnInfo {
	pkSet := make(map[int]bool, len(t.PrimaryKey))
	for _, ord := range t.PrimaryKey {
		pkSet[ord] = true
	}
	cols := make([]ColumnInfo, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, ColumnInfo{
			Name:       c.Name,
			ColType:    c.RawType,
			IsNullable: c.Nullable,
			IsPrimary:  pkSet[c.Ordinal],
		})
	}
	return cols
}

func pkColumnNames(t *schema.TableSchema) []string {
	names := make([]string, 0, len(t.PrimaryKey))
	for _, ord := range t.PrimaryKey {
		if ord >= 0 && ord < len(t.Columns) {
			names = append(names, t.Columns[ord].Name)
		}
	}
	return names
}

func fkInfo(fk schema.ForeignKey, t *schema.TableSchema) ForeignKeyInfo {
	cols := make([]string, 0, len(fk.Columns))
	for _, ord := range fk.Columns {
		if ord >= 0 && ord < len(t.Columns) {
			cols = append(cols, t.Columns[ord].Name)
		}
	}
	return ForeignKeyInfo{
		Columns:           cols,
		ReferencedTable:   fk.RefTable,
		ReferencedColumns: append([]string(nil), fk.RefColumns...),
	}
}

func indexInfo(idx schema.Index) IndexInfo {
	return IndexInfo{
		Name:      idx.Name,
		Columns:   append([]string(nil), idx.Columns...),
		Unique:    idx.Unique,
		IndexType: idx.Type,
	}
}

// CompareSchemas is the schema-diff entry point: every table present in
// newSchema but not old is a TablesAdded entry, every table present in old
// but not new is a TablesRemoved entry, and every table present in both is
// compared column-by-column, key-by-key, and index-by-index.
func CompareSchemas(oldSchema, newSchema *schema.Schema, cfg *DiffConfig) *SchemaDiff {
	diff := &SchemaDiff{}

	oldNames := make(map[string]*schema.TableSchema, len(oldSchema.Tables))
	for _, t := range oldSchema.Tables {
		if t == nil {
			continue
		}
		oldNames[strings.ToLower(t.Name)] = t
	}
	newNames := make(map[string]*schema.TableSchema, len(newSchema.Tables))
	for _, t := range newSchema.Tables {
		if t == nil {
			continue
		}
		newNames[strings.ToLower(t.Name)] = t
	}

	for _, t := range newSchema.Tables {
		if t == nil {
			continue
		}
		if !ShouldIncludeTable(cfg, t.Name) {
			continue
		}
		if _, ok := oldNames[strings.ToLower(t.Name)]; !ok {
			diff.TablesAdded = append(diff.TablesAdded, TableInfo{Name: t.Name, Columns: tableColumnInfo(t)})
		}
	}
	sort.Slice(diff.TablesAdded, func(i, j int) bool { return diff.TablesAdded[i].Name < diff.TablesAdded[j].Name })

	for _, t := range oldSchema.Tables {
		if t == nil {
			continue
		}
		if !ShouldIncludeTable(cfg, t.Name) {
			continue
		}
		if _, ok := newNames[strings.ToLower(t.Name)]; !ok {
			diff.TablesRemoved = append(diff.TablesRemoved, t.Name)
		}
	}
	sort.Strings(diff.TablesRemoved)

	for _, newTable := range newSchema.Tables {
		if newTable == nil {
			continue
		}
		if !ShouldIncludeTable(cfg, newTable.Name) {
			continue
		}
		oldTable, ok := oldNames[strings.ToLower(newTable.Name)]
		if !ok {
			continue
		}
		mod := compareTable(oldTable, newTable, cfg)
		if mod.HasChanges() {
			diff.TablesModified = append(diff.TablesModified, mod)
		}
	}
	sort.Slice(diff.TablesModified, func(i, j int) bool {
		return diff.TablesModified[i].TableName < diff.TablesModified[j].TableName
	})

	return diff
}

func compareTable(oldTable, newTable *schema.TableSchema, cfg *DiffConfig) TableModification {
	mod := TableModification{TableName: newTable.Name}

	oldCols := make(map[string]*schema.Column, len(oldTable.Columns))
	for i := range oldTable.Columns {
		oldCols[strings.ToLower(oldTable.Columns[i].Name)] = &oldTable.Columns[i]
	}
	newCols := make(map[string]*schema.Column, len(newTable.Columns))
	for i := range newTable.Columns {
		newCols[strings.ToLower(newTable.Columns[i].Name)] = &newTable.Columns[i]
	}

	for _, c := range newTable.Columns {
		lower := strings.ToLower(c.Name)
		if columnIgnored(cfg, newTable.Name, c.Name) {
			continue
		}
		old, existed := oldCols[lower]
		if !existed {
			mod.ColumnsAdded = append(mod.ColumnsAdded, ColumnInfo{
				Name: c.Name, ColType: c.RawType, IsNullable: c.Nullable,
			})
			continue
		}
		change := ColumnChange{Name: c.Name}
		changed := false
		if !strings.EqualFold(old.RawType, c.RawType) {
			changed = true
			change.OldType, change.NewType = &old.RawType, &c.RawType
		}
		if old.Nullable != c.Nullable {
			changed = true
			oldN, newN := old.Nullable, c.Nullable
			change.OldNullable, change.NewNullable = &oldN, &newN
		}
		if changed {
			mod.ColumnsModified = append(mod.ColumnsModified, change)
		}
	}
	for _, c := range oldTable.Columns {
		lower := strings.ToLower(c.Name)
		if columnIgnored(cfg, oldTable.Name, c.Name) {
			continue
		}
		if _, existed := newCols[lower]; !existed {
			mod.ColumnsRemoved = append(mod.ColumnsRemoved, ColumnInfo{
				Name: c.Name, ColType: c.RawType, IsNullable: c.Nullable,
			})
		}
	}
	sort.Slice(mod.ColumnsAdded, func(i, j int) bool { return mod.ColumnsAdded[i].Name < mod.ColumnsAdded[j].Name })
	sort.Slice(mod.ColumnsRemoved, func(i, j int) bool { return mod.ColumnsRemoved[i].Name < mod.ColumnsRemoved[j].Name })
	sort.Slice(mod.ColumnsModified, func(i, j int) bool { return mod.ColumnsModified[i].Name < mod.ColumnsModified[j].Name })

	oldPK, newPK := pkColumnNames(oldTable), pkColumnNames(newTable)
	if override, ok := cfg.PKOverrides[strings.ToLower(newTable.Name)]; ok {
		newPK = override
	}
	if !stringSlicesEqual(oldPK, newPK, cfg.IgnoreColumnOrder) {
		mod.PKChanged = true
		mod.OldPK, mod.NewPK = oldPK, newPK
	}

	oldFKs := make(map[string]ForeignKeyInfo)
	for _, fk := range oldTable.ForeignKeys {
		oldFKs[fkKey(fk, oldTable)] = fkInfo(fk, oldTable)
	}
	newFKs := make(map[string]ForeignKeyInfo)
	for _, fk := range newTable.ForeignKeys {
		newFKs[fkKey(fk, newTable)] = fkInfo(fk, newTable)
	}
	for key, info := range newFKs {
		if _, ok := oldFKs[key]; !ok {
			mod.FKsAdded = append(mod.FKsAdded, info)
		}
	}
	for key, info := range oldFKs {
		if _, ok := newFKs[key]; !ok {
			mod.FKsRemoved = append(mod.FKsRemoved, info)
		}
	}
	sort.Slice(mod.FKsAdded, func(i, j int) bool { return mod.FKsAdded[i].ReferencedTable < mod.FKsAdded[j].ReferencedTable })
	sort.Slice(mod.FKsRemoved, func(i, j int) bool { return mod.FKsRemoved[i].ReferencedTable < mod.FKsRemoved[j].ReferencedTable })

	oldIdx := make(map[string]schema.Index)
	for _, idx := range oldTable.Indexes {
		oldIdx[strings.ToLower(idx.Name)] = idx
	}
	newIdx := make(map[string]schema.Index)
	for _, idx := range newTable.Indexes {
		newIdx[strings.ToLower(idx.Name)] = idx
	}
	for name, idx := range newIdx {
		if _, ok := oldIdx[name]; !ok {
			mod.IndexesAdded = append(mod.IndexesAdded, indexInfo(idx))
		}
	}
	for name, idx := range oldIdx {
		if _, ok := newIdx[name]; !ok {
			mod.IndexesRemoved = append(mod.IndexesRemoved, indexInfo(idx))
		}
	}
	sort.Slice(mod.IndexesAdded, func(i, j int) bool { return mod.IndexesAdded[i].Name < mod.IndexesAdded[j].Name })
	sort.Slice(mod.IndexesRemoved, func(i, j int) bool { return mod.IndexesRemoved[i].Name < mod.IndexesRemoved[j].Name })

	return mod
}

func fkKey(fk schema.ForeignKey, t *schema.TableSchema) string {
	info := fkInfo(fk, t)
	return strings.ToLower(strings.Join(info.Columns, ",") + "->" + info.ReferencedTable + "(" + strings.Join(info.ReferencedColumns, ",") + ")")
}

func stringSlicesEqual(a, b []string, ignoreOrder bool) bool {
	if len(a) != len(b) {
		return false
	}
	if !ignoreOrder {
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// TableDataDiff summarizes row-level changes for one table: a PK-keyed
// digest comparison between the old and new row streams.
type TableDataDiff struct {
	AddedCount        int      `json:"added_count"`
	RemovedCount      int      `json:"removed_count"`
	ModifiedCount     int      `json:"modified_count"`
	Truncated         bool     `json:"truncated"`
	SampleAddedPKs    []string `json:"sample_added_pks,omitempty"`
	SampleRemovedPKs  []string `json:"sample_removed_pks,omitempty"`
	SampleModifiedPKs []string `json:"sample_modified_pks,omitempty"`
}

// RowDigest is one row's PK and a hash of its non-key column values, as
// produced by the caller while streaming a table's INSERTs.
type RowDigest struct {
	PK   pk.Digest
	Hash uint64
}

// DiffTableRows compares two streams of RowDigest (already collected by the
// caller into maps) for one table: a PK present only in newRows is added, a
// PK present only in oldRows is removed, and a PK present in both with a
// differing Hash is modified. Samples are capped at maxSamples per bucket.
func DiffTableRows(oldRows, newRows map[pk.Digest]uint64, maxSamples int) *TableDataDiff {
	d := &TableDataDiff{}
	for digest, newHash := range newRows {
		oldHash, existed := oldRows[digest]
		switch {
		case !existed:
			d.AddedCount++
			if len(d.SampleAddedPKs) < maxSamples {
				d.SampleAddedPKs = append(d.SampleAddedPKs, digestLabel(digest))
			}
		case oldHash != newHash:
			d.ModifiedCount++
			if len(d.SampleModifiedPKs) < maxSamples {
				d.SampleModifiedPKs = append(d.SampleModifiedPKs, digestLabel(digest))
			}
		}
	}
	for digest := range oldRows {
		if _, existed := newRows[digest]; !existed {
			d.RemovedCount++
			if len(d.SampleRemovedPKs) < maxSamples {
				d.SampleRemovedPKs = append(d.SampleRemovedPKs, digestLabel(digest))
			}
		}
	}
	return d
}

func digestLabel(d pk.Digest) string {
	return fmt.Sprintf("%x", uint64(d))
}

// DataDiff is the per-table row-level diff, keyed by table name.
type DataDiff struct {
	Tables map[string]*TableDataDiff `json:"tables"`
}

// Warning is a non-fatal note surfaced alongside a DiffResult, e.g. a table
// with no usable primary key when AllowNoPK lets the comparison proceed
// anyway.
type Warning struct {
	Table   *string `json:"table,omitempty"`
	Message string  `json:"message"`
}

// DiffSummary totals a DiffResult's counts for the one-line footer.
type DiffSummary struct {
	TablesAdded    int  `json:"tables_added"`
	TablesRemoved  int  `json:"tables_removed"`
	TablesModified int  `json:"tables_modified"`
	RowsAdded      int  `json:"rows_added"`
	RowsRemoved    int  `json:"rows_removed"`
	RowsModified   int  `json:"rows_modified"`
	Truncated      bool `json:"truncated"`
}

// DiffResult is the full output of one diff run: a schema diff, a data
// diff, both optional depending on DiffConfig.SchemaOnly/DataOnly, plus
// warnings and a summary.
type DiffResult struct {
	Schema   *SchemaDiff `json:"schema,omitempty"`
	Data     *DataDiff   `json:"data,omitempty"`
	Warnings []Warning   `json:"warnings,omitempty"`
	Summary  DiffSummary `json:"summary"`
}

// BuildSummary totals a schema diff and/or data diff into a DiffSummary.
func BuildSummary(schemaDiff *SchemaDiff, dataDiff *DataDiff) DiffSummary {
	var s DiffSummary
	if schemaDiff != nil {
		s.TablesAdded = len(schemaDiff.TablesAdded)
		s.TablesRemoved = len(schemaDiff.TablesRemoved)
		s.TablesModified = len(schemaDiff.TablesModified)
	}
	if dataDiff != nil {
		for _, t := range dataDiff.Tables {
			s.RowsAdded += t.AddedCount
			s.RowsRemoved += t.RemovedCount
			s.RowsModified += t.ModifiedCount
			if t.Truncated {
				s.Truncated = true
			}
		}
	}
	return s
}

// FormatDiff renders a DiffResult per the requested format.
func FormatDiff(result *DiffResult, format DiffOutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(result)
	case FormatSQL:
		return formatSQL(result), nil
	default:
		return formatText(result), nil
	}
}

func formatJSON(result *DiffResult) (string, error) {
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func formatText(result *DiffResult) string {
	var b strings.Builder

	if result.Schema != nil {
		b.WriteString("Schema Changes:\n")
		if !result.Schema.HasChanges() {
			b.WriteString("  (no schema changes)\n")
		} else {
			for _, table := range result.Schema.TablesAdded {
				b.WriteString(fmt.Sprintf("  + Table '%s' (new)\n", table.Name))
				for _, col := range table.Columns {
					b.WriteString(fmt.Sprintf("      + %s %s %s\n", col.Name, col.ColType, nullLabel(col.IsNullable)))
				}
			}
			for _, name := range result.Schema.TablesRemoved {
				b.WriteString(fmt.Sprintf("  - Table '%s' (removed)\n", name))
			}
			for _, mod := range result.Schema.TablesModified {
				writeTableModification(&b, &mod)
			}
		}
		b.WriteString("\n")
	}

	if result.Data != nil {
		b.WriteString("Data Changes:\n")
		if len(result.Data.Tables) == 0 {
			b.WriteString("  (no data changes)\n")
		} else {
			names := make([]string, 0, len(result.Data.Tables))
			for name := range result.Data.Tables {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				writeTableDataDiff(&b, name, result.Data.Tables[name])
			}
		}
		b.WriteString("\n")
	}

	if len(result.Warnings) > 0 {
		b.WriteString("Warnings:\n")
		for _, w := range result.Warnings {
			if w.Table != nil {
				b.WriteString(fmt.Sprintf("  ⚠ Table '%s': %s\n", *w.Table, w.Message))
			} else {
				b.WriteString(fmt.Sprintf("  ⚠ %s\n", w.Message))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Summary:\n")
	b.WriteString(fmt.Sprintf("  %d tables added, %d removed, %d modified\n",
		result.Summary.TablesAdded, result.Summary.TablesRemoved, result.Summary.TablesModified))
	b.WriteString(fmt.Sprintf("  %d rows added, %d removed, %d modified\n",
		result.Summary.RowsAdded, result.Summary.RowsRemoved, result.Summary.RowsModified))
	if result.Summary.Truncated {
		b.WriteString("  (some tables truncated due to memory limits)\n")
	}

	return b.String()
}

func nullLabel(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}

func writeTableModification(b *strings.Builder, mod *TableModification) {
	b.WriteString(fmt.Sprintf("  ~ Table '%s':\n", mod.TableName))
	for _, col := range mod.ColumnsAdded {
		b.WriteString(fmt.Sprintf("      + Column '%s' %s %s\n", col.Name, col.ColType, nullLabel(col.IsNullable)))
	}
	for _, col := range mod.ColumnsRemoved {
		b.WriteString(fmt.Sprintf("      - Column '%s' %s\n", col.Name, col.ColType))
	}
	for _, change := range mod.ColumnsModified {
		var parts []string
		if change.OldType != nil && change.NewType != nil {
			parts = append(parts, fmt.Sprintf("%s → %s", *change.OldType, *change.NewType))
		}
		if change.OldNullable != nil && change.NewNullable != nil {
			parts = append(parts, fmt.Sprintf("%s → %s", nullLabel(*change.OldNullable), nullLabel(*change.NewNullable)))
		}
		b.WriteString(fmt.Sprintf("      ~ Column '%s': %s\n", change.Name, strings.Join(parts, ", ")))
	}
	if mod.PKChanged {
		oldPK, newPK := "(none)", "(none)"
		if len(mod.OldPK) > 0 {
			oldPK = strings.Join(mod.OldPK, ", ")
		}
		if len(mod.NewPK) > 0 {
			newPK = strings.Join(mod.NewPK, ", ")
		}
		b.WriteString(fmt.Sprintf("      ~ PRIMARY KEY: (%s) → (%s)\n", oldPK, newPK))
	}
	for _, fk := range mod.FKsAdded {
		b.WriteString(fmt.Sprintf("      + FK (%s) → %s.(%s)\n", strings.Join(fk.Columns, ", "), fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", ")))
	}
	for _, fk := range mod.FKsRemoved {
		b.WriteString(fmt.Sprintf("      - FK (%s) → %s.(%s)\n", strings.Join(fk.Columns, ", "), fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", ")))
	}
	for _, idx := range mod.IndexesAdded {
		b.WriteString(fmt.Sprintf("      + Index '%s' on (%s)%s\n", idx.Name, strings.Join(idx.Columns, ", "), indexMarkers(idx)))
	}
	for _, idx := range mod.IndexesRemoved {
		b.WriteString(fmt.Sprintf("      - Index '%s' on (%s)%s\n", idx.Name, strings.Join(idx.Columns, ", "), indexMarkers(idx)))
	}
}

func indexMarkers(idx IndexInfo) string {
	s := ""
	if idx.Unique {
		s += " [unique]"
	}
	if idx.IndexType != "" {
		s += " [" + idx.IndexType + "]"
	}
	return s
}

func writeTableDataDiff(b *strings.Builder, name string, d *TableDataDiff) {
	if d.AddedCount == 0 && d.RemovedCount == 0 && d.ModifiedCount == 0 {
		return
	}
	var parts []string
	if d.AddedCount > 0 {
		parts = append(parts, fmt.Sprintf("+%d rows", d.AddedCount))
	}
	if d.RemovedCount > 0 {
		parts = append(parts, fmt.Sprintf("-%d rows", d.RemovedCount))
	}
	if d.ModifiedCount > 0 {
		parts = append(parts, fmt.Sprintf("~%d modified", d.ModifiedCount))
	}
	truncated := ""
	if d.Truncated {
		truncated = " [truncated]"
	}
	b.WriteString(fmt.Sprintf("  Table '%s': %s%s\n", name, strings.Join(parts, ", "), truncated))

	writeSamples(b, "Added", d.SampleAddedPKs, d.AddedCount)
	writeSamples(b, "Removed", d.SampleRemovedPKs, d.RemovedCount)
	writeSamples(b, "Modified", d.SampleModifiedPKs, d.ModifiedCount)
}

func writeSamples(b *strings.Builder, label string, samples []string, total int) {
	if len(samples) == 0 {
		return
	}
	remaining := total - len(samples)
	suffix := ""
	if remaining > 0 {
		suffix = fmt.Sprintf("... (+%d more)", remaining)
	}
	b.WriteString(fmt.Sprintf("    %s PKs: %s%s\n", label, strings.Join(samples, ", "), suffix))
}

// formatSQL renders a best-effort migration script: CREATE TABLE for each
// added table and ALTER TABLE ... ADD/DROP COLUMN for modified ones. This
// is a convenience rendering, not a dialect-aware migration generator —
// callers needing exact DDL should drive internal/convert directly.
func formatSQL(result *DiffResult) string {
	var b strings.Builder
	if result.Schema == nil {
		return b.String()
	}
	for _, table := range result.Schema.TablesAdded {
		b.WriteString(fmt.Sprintf("CREATE TABLE %s (\n", table.Name))
		for i, col := range table.Columns {
			comma := ","
			if i == len(table.Columns)-1 {
				comma = ""
			}
			b.WriteString(fmt.Sprintf("  %s %s %s%s\n", col.Name, col.ColType, nullLabel(col.IsNullable), comma))
		}
		b.WriteString(");\n")
	}
	for _, mod := range result.Schema.TablesModified {
		for _, col := range mod.ColumnsAdded {
			b.WriteString(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s %s;\n", mod.TableName, col.Name, col.ColType, nullLabel(col.IsNullable)))
		}
		for _, col := range mod.ColumnsRemoved {
			b.WriteString(fmt.Sprintf("-- ALTER TABLE %s DROP COLUMN %s; -- destructive, review before applying\n", mod.TableName, col.Name))
		}
	}
	for _, name := range result.Schema.TablesRemoved {
		b.WriteString(fmt.Sprintf("-- DROP TABLE %s; -- destructive, review before applying\n", name))
	}
	return b.String()
}

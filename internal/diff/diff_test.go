package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqldef-engine/sqldef-engine/internal/pk"
	"github.com/sqldef-engine/sqldef-engine/internal/schema"
)

func buildSchema(t *testing.T, tables ...*schema.TableSchema) *schema.Schema {
	t.Helper()
	s := schema.NewSchema()
	for _, tbl := range tables {
		_, ok := s.AddTable(tbl)
		require.True(t, ok)
	}
	return s
}

func usersTable(withEmail bool) *schema.TableSchema {
	cols := []schema.Column{
		{Name: "id", Type: schema.Int, RawType: "INT", Ordinal: 0, PrimaryKey: true},
		{Name: "name", Type: schema.Text, RawType: "VARCHAR(100)", Ordinal: 1, Nullable: true},
	}
	if withEmail {
		cols = append(cols, schema.Column{Name: "email", Type: schema.Text, RawType: "VARCHAR(255)", Ordinal: 2, Nullable: true})
	}
	return &schema.TableSchema{Name: "users", Columns: cols, PrimaryKey: []int{0}}
}

func TestCompareSchemasColumnAdded(t *testing.T) {
	old := buildSchema(t, usersTable(false))
	new_ := buildSchema(t, usersTable(true))

	diff := CompareSchemas(old, new_, &DiffConfig{})
	require.Len(t, diff.TablesModified, 1)
	mod := diff.TablesModified[0]
	require.Len(t, mod.ColumnsAdded, 1)
	assert.Equal(t, "email", mod.ColumnsAdded[0].Name)
	assert.True(t, mod.HasChanges())

	text := formatText(&DiffResult{Schema: diff, Summary: BuildSummary(diff, nil)})
	assert.Contains(t, text, "Column 'email'")
}

func TestCompareSchemasSkipsDroppedTableSlots(t *testing.T) {
	old := buildSchema(t, usersTable(false))
	old.DropTable("users")
	new_ := buildSchema(t, usersTable(true))
	new_.DropTable("users")

	assert.NotPanics(t, func() {
		diff := CompareSchemas(old, new_, &DiffConfig{})
		assert.Empty(t, diff.TablesAdded)
		assert.Empty(t, diff.TablesRemoved)
		assert.Empty(t, diff.TablesModified)
	})
}

func TestCompareSchemasTableAdded(t *testing.T) {
	old := buildSchema(t, usersTable(false))
	products := &schema.TableSchema{
		Name: "products",
		Columns: []schema.Column{
			{Name: "id", Type: schema.Int, RawType: "INT", Ordinal: 0, PrimaryKey: true},
			{Name: "name", Type: schema.Text, RawType: "VARCHAR(100)", Ordinal: 1},
		},
		PrimaryKey: []int{0},
	}
	new_ := buildSchema(t, usersTable(false), products)

	diff := CompareSchemas(old, new_, &DiffConfig{})
	require.Len(t, diff.TablesAdded, 1)
	assert.Equal(t, "products", diff.TablesAdded[0].Name)

	text := formatText(&DiffResult{Schema: diff, Summary: BuildSummary(diff, nil)})
	assert.Contains(t, text, "Table 'products'")
	assert.Contains(t, text, "(new)")
}

func TestCompareSchemasTableRemoved(t *testing.T) {
	legacy := &schema.TableSchema{
		Name:       "legacy_data",
		Columns:    []schema.Column{{Name: "id", Type: schema.Int, RawType: "INT", Ordinal: 0, PrimaryKey: true}},
		PrimaryKey: []int{0},
	}
	old := buildSchema(t, usersTable(false), legacy)
	new_ := buildSchema(t, usersTable(false))

	diff := CompareSchemas(old, new_, &DiffConfig{})
	require.Len(t, diff.TablesRemoved, 1)
	assert.Equal(t, "legacy_data", diff.TablesRemoved[0])

	text := formatText(&DiffResult{Schema: diff, Summary: BuildSummary(diff, nil)})
	assert.Contains(t, text, "legacy_data")
	assert.Contains(t, text, "(removed)")
}

func TestCompareSchemasNoChanges(t *testing.T) {
	old := buildSchema(t, usersTable(false))
	new_ := buildSchema(t, usersTable(false))

	diff := CompareSchemas(old, new_, &DiffConfig{})
	assert.False(t, diff.HasChanges())

	result := &DiffResult{Schema: diff, Data: &DataDiff{Tables: map[string]*TableDataDiff{}}, Summary: BuildSummary(diff, &DataDiff{})}
	text := formatText(result)
	assert.Contains(t, text, "0 tables added, 0 removed, 0 modified")
	assert.Contains(t, text, "0 rows added, 0 removed, 0 modified")
}

func TestCompareSchemasPKChanged(t *testing.T) {
	oldTable := &schema.TableSchema{
		Name: "orders",
		Columns: []schema.Column{
			{Name: "id", RawType: "INT", Ordinal: 0, PrimaryKey: true},
			{Name: "order_num", RawType: "INT", Ordinal: 1},
		},
		PrimaryKey: []int{0},
	}
	newTable := &schema.TableSchema{
		Name: "orders",
		Columns: []schema.Column{
			{Name: "id", RawType: "INT", Ordinal: 0},
			{Name: "order_num", RawType: "INT", Ordinal: 1, PrimaryKey: true},
		},
		PrimaryKey: []int{1},
	}
	old := buildSchema(t, oldTable)
	new_ := buildSchema(t, newTable)

	diff := CompareSchemas(old, new_, &DiffConfig{})
	require.Len(t, diff.TablesModified, 1)
	mod := diff.TablesModified[0]
	assert.True(t, mod.PKChanged)
	assert.Equal(t, []string{"id"}, mod.OldPK)
	assert.Equal(t, []string{"order_num"}, mod.NewPK)
}

func TestCompareSchemasFKsAndIndexes(t *testing.T) {
	oldTable := &schema.TableSchema{
		Name: "orders",
		Columns: []schema.Column{
			{Name: "id", RawType: "INT", Ordinal: 0, PrimaryKey: true},
			{Name: "user_id", RawType: "INT", Ordinal: 1},
		},
		PrimaryKey: []int{0},
	}
	newTable := &schema.TableSchema{
		Name: "orders",
		Columns: []schema.Column{
			{Name: "id", RawType: "INT", Ordinal: 0, PrimaryKey: true},
			{Name: "user_id", RawType: "INT", Ordinal: 1},
		},
		PrimaryKey: []int{0},
		ForeignKeys: []schema.ForeignKey{
			{Name: "fk_user", Columns: []int{1}, RefTable: "users", RefColumns: []string{"id"}},
		},
		Indexes: []schema.Index{
			{Name: "idx_user_id", Columns: []string{"user_id"}},
		},
	}
	old := buildSchema(t, oldTable)
	new_ := buildSchema(t, newTable)

	diff := CompareSchemas(old, new_, &DiffConfig{})
	require.Len(t, diff.TablesModified, 1)
	mod := diff.TablesModified[0]
	require.Len(t, mod.FKsAdded, 1)
	assert.Equal(t, "users", mod.FKsAdded[0].ReferencedTable)
	require.Len(t, mod.IndexesAdded, 1)
	assert.Equal(t, "idx_user_id", mod.IndexesAdded[0].Name)
}

func TestShouldIncludeTableFilter(t *testing.T) {
	cfg := &DiffConfig{Tables: []string{"users"}}
	assert.True(t, ShouldIncludeTable(cfg, "users"))
	assert.False(t, ShouldIncludeTable(cfg, "products"))
}

func TestShouldIncludeTableExclude(t *testing.T) {
	cfg := &DiffConfig{Exclude: []string{"audit_log"}}
	assert.True(t, ShouldIncludeTable(cfg, "users"))
	assert.False(t, ShouldIncludeTable(cfg, "audit_log"))
}

func TestCompareSchemasRespectsTableFilter(t *testing.T) {
	products := &schema.TableSchema{
		Name:       "products",
		Columns:    []schema.Column{{Name: "id", RawType: "INT", Ordinal: 0, PrimaryKey: true}},
		PrimaryKey: []int{0},
	}
	productsModified := &schema.TableSchema{
		Name: "products",
		Columns: []schema.Column{
			{Name: "id", RawType: "INT", Ordinal: 0, PrimaryKey: true},
			{Name: "name", RawType: "VARCHAR(100)", Ordinal: 1},
		},
		PrimaryKey: []int{0},
	}
	old := buildSchema(t, usersTable(false), products)
	new_ := buildSchema(t, usersTable(false), productsModified)

	diff := CompareSchemas(old, new_, &DiffConfig{Tables: []string{"users"}})
	assert.False(t, diff.HasChanges())
}

func TestDiffTableRowsAddedRemovedModified(t *testing.T) {
	old := map[pk.Digest]uint64{1: 111, 2: 222, 3: 333}
	new_ := map[pk.Digest]uint64{1: 999, 2: 222, 4: 444}

	d := DiffTableRows(old, new_, DefaultMaxPKEntries)
	assert.Equal(t, 1, d.AddedCount)   // pk 4
	assert.Equal(t, 1, d.RemovedCount) // pk 3
	assert.Equal(t, 1, d.ModifiedCount) // pk 1 hash changed
	assert.Len(t, d.SampleAddedPKs, 1)
	assert.Len(t, d.SampleRemovedPKs, 1)
	assert.Len(t, d.SampleModifiedPKs, 1)
}

func TestDiffTableRowsRespectsSampleCap(t *testing.T) {
	old := map[pk.Digest]uint64{}
	new_ := map[pk.Digest]uint64{1: 1, 2: 2, 3: 3, 4: 4}

	d := DiffTableRows(old, new_, 2)
	assert.Equal(t, 4, d.AddedCount)
	assert.Len(t, d.SampleAddedPKs, 2)
}

func TestFormatTextDataChanges(t *testing.T) {
	result := &DiffResult{
		Data: &DataDiff{Tables: map[string]*TableDataDiff{
			"users": {AddedCount: 1, RemovedCount: 1, ModifiedCount: 1},
		}},
		Summary: DiffSummary{RowsAdded: 1, RowsRemoved: 1, RowsModified: 1},
	}
	text := formatText(result)
	assert.Contains(t, text, "+1 rows")
	assert.Contains(t, text, "-1 rows")
	assert.Contains(t, text, "modified")
}

func TestFormatJSONIncludesSchemaDataSummary(t *testing.T) {
	diff := &SchemaDiff{TablesModified: []TableModification{{TableName: "users", PKChanged: false}}}
	dataDiff := &DataDiff{Tables: map[string]*TableDataDiff{"users": {AddedCount: 1}}}
	result := &DiffResult{Schema: diff, Data: dataDiff, Summary: BuildSummary(diff, dataDiff)}

	out, err := FormatDiff(result, FormatJSON)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, `"schema"`))
	assert.True(t, strings.Contains(out, `"data"`))
	assert.True(t, strings.Contains(out, `"summary"`))
	assert.True(t, strings.Contains(out, `"rows_added": 1`))
}

func TestFormatSQLProducesAlterAndCreate(t *testing.T) {
	old := buildSchema(t, usersTable(false))
	products := &schema.TableSchema{
		Name:       "products",
		Columns:    []schema.Column{{Name: "id", RawType: "INT", Ordinal: 0, PrimaryKey: true}},
		PrimaryKey: []int{0},
	}
	new_ := buildSchema(t, usersTable(true), products)

	diff := CompareSchemas(old, new_, &DiffConfig{})
	out, err := FormatDiff(&DiffResult{Schema: diff, Summary: BuildSummary(diff, nil)}, FormatSQL)
	require.NoError(t, err)
	assert.Contains(t, out, "ALTER TABLE")
	assert.Contains(t, out, "ADD COLUMN")
	assert.Contains(t, out, "CREATE TABLE")
}

func TestParseDiffOutputFormat(t *testing.T) {
	f, err := ParseDiffOutputFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseDiffOutputFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseDiffOutputFormat("bogus")
	assert.Error(t, err)
}

func TestColumnIgnoredGlobPattern(t *testing.T) {
	cfg := &DiffConfig{IgnoreColumns: []string{"*.updated_at"}}
	assert.True(t, columnIgnored(cfg, "users", "updated_at"))
	assert.False(t, columnIgnored(cfg, "users", "name"))
}

func TestCompareSchemasIgnoresConfiguredColumns(t *testing.T) {
	oldTable := &schema.TableSchema{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", RawType: "INT", Ordinal: 0, PrimaryKey: true},
			{Name: "updated_at", RawType: "TIMESTAMP", Ordinal: 1},
		},
		PrimaryKey: []int{0},
	}
	newTable := &schema.TableSchema{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", RawType: "INT", Ordinal: 0, PrimaryKey: true},
			{Name: "updated_at", RawType: "DATETIME", Ordinal: 1},
		},
		PrimaryKey: []int{0},
	}
	old := buildSchema(t, oldTable)
	new_ := buildSchema(t, newTable)

	diff := CompareSchemas(old, new_, &DiffConfig{IgnoreColumns: []string{"*.updated_at"}})
	assert.False(t, diff.HasChanges())
}

func TestBuildSummaryTotalsAcrossTables(t *testing.T) {
	schemaDiff := &SchemaDiff{TablesAdded: []TableInfo{{Name: "products"}}}
	dataDiff := &DataDiff{Tables: map[string]*TableDataDiff{
		"users":    {AddedCount: 2, ModifiedCount: 1},
		"products": {RemovedCount: 3, Truncated: true},
	}}
	summary := BuildSummary(schemaDiff, dataDiff)
	assert.Equal(t, 1, summary.TablesAdded)
	assert.Equal(t, 2, summary.RowsAdded)
	assert.Equal(t, 3, summary.RowsRemoved)
	assert.Equal(t, 1, summary.RowsModified)
	assert.True(t, summary.Truncated)
}

package rowparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/pk"
)

func TestParseInsertRowsBasic(t *testing.T) {
	rows, err := ParseInsertRows([]byte("(1, 'alice', NULL), (2, 'bob', TRUE);"), dialect.TraitsFor(dialect.MySQL))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, LitNumber, rows[0].Values[0].Kind)
	assert.Equal(t, "1", rows[0].Values[0].Text)
	assert.Equal(t, LitString, rows[0].Values[1].Kind)
	assert.Equal(t, "alice", rows[0].Values[1].Text)
	assert.Equal(t, LitNull, rows[0].Values[2].Kind)
	assert.Equal(t, LitBool, rows[1].Values[2].Kind)
}

func TestParseInsertRowsStringEmbeddedSemicolonAndComma(t *testing.T) {
	rows, err := ParseInsertRows([]byte("('a;b,c');"), dialect.TraitsFor(dialect.MySQL))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a;b,c", rows[0].Values[0].Text)
}

func TestParseInsertRowsPostgresDoubledApostrophe(t *testing.T) {
	rows, err := ParseInsertRows([]byte("('it''s here');"), dialect.TraitsFor(dialect.Postgres))
	require.NoError(t, err)
	assert.Equal(t, "it's here", rows[0].Values[0].Text)
}

func TestParseInsertRowsMySQLBackslashEscape(t *testing.T) {
	rows, err := ParseInsertRows([]byte(`('a\'b');`), dialect.TraitsFor(dialect.MySQL))
	require.NoError(t, err)
	assert.Equal(t, "a'b", rows[0].Values[0].Text)
}

func TestParseInsertRowsHexLiteral(t *testing.T) {
	rows, err := ParseInsertRows([]byte("(0xAB12);"), dialect.TraitsFor(dialect.MySQL))
	require.NoError(t, err)
	assert.Equal(t, LitBlob, rows[0].Values[0].Kind)
	assert.Equal(t, "ab12", rows[0].Values[0].Text)
}

func TestParseInsertRowsXQuotedHex(t *testing.T) {
	rows, err := ParseInsertRows([]byte("(X'FF01');"), dialect.TraitsFor(dialect.MySQL))
	require.NoError(t, err)
	assert.Equal(t, LitBlob, rows[0].Values[0].Kind)
	assert.Equal(t, "FF01", rows[0].Values[0].Text)
}

func TestParseInsertRowsOpaqueExpression(t *testing.T) {
	rows, err := ParseInsertRows([]byte("(CURRENT_TIMESTAMP);"), dialect.TraitsFor(dialect.MySQL))
	require.NoError(t, err)
	assert.Equal(t, LitOpaque, rows[0].Values[0].Kind)
	assert.Equal(t, "CURRENT_TIMESTAMP", rows[0].Values[0].Text)
}

func TestParseInsertRowsNegativeAndDecimalNumbers(t *testing.T) {
	rows, err := ParseInsertRows([]byte("(-1, 3.14, +2);"), dialect.TraitsFor(dialect.MySQL))
	require.NoError(t, err)
	assert.Equal(t, "-1", rows[0].Values[0].Text)
	assert.Equal(t, "3.14", rows[0].Values[1].Text)
	assert.Equal(t, "+2", rows[0].Values[2].Text)
}

func TestParseInsertRowsMalformedUnterminatedRow(t *testing.T) {
	_, err := ParseInsertRows([]byte("(1, 'alice'"), dialect.TraitsFor(dialect.MySQL))
	require.Error(t, err)
}

func TestParseCopyRowBasic(t *testing.T) {
	row := ParseCopyRow("1\tAlice\t\\N")
	require.Len(t, row.Values, 3)
	assert.Equal(t, "1", row.Values[0].Text)
	assert.Equal(t, LitNumber, row.Values[0].Kind)
	assert.Equal(t, "Alice", row.Values[1].Text)
	assert.Equal(t, LitString, row.Values[1].Kind)
	assert.Equal(t, LitNull, row.Values[2].Kind)
}

func TestParseCopyRowNumericPkMatchesInsertPk(t *testing.T) {
	copyRow := ParseCopyRow("1\t2\tAlice")
	tuple, ok := ExtractTuple(copyRow, []int{0}, nil)
	require.True(t, ok)
	assert.Equal(t, pk.Int(1), tuple[0])

	fkTuple, ok := ExtractFKTuple(copyRow, []int{1}, nil)
	require.True(t, ok)
	assert.Equal(t, pk.Int(2), fkTuple[0])

	insertRows, err := ParseInsertRows([]byte("(1, 2, 'Alice');"), dialect.TraitsFor(dialect.MySQL))
	require.NoError(t, err)
	insertTuple, ok := ExtractTuple(insertRows[0], []int{0}, nil)
	require.True(t, ok)
	assert.Equal(t, insertTuple[0], tuple[0])
}

func TestParseCopyRowEscapes(t *testing.T) {
	row := ParseCopyRow(`a\tb\nc`)
	assert.Equal(t, "a\tb\nc", row.Values[0].Text)
}

func TestExtractTupleIdentityPositions(t *testing.T) {
	rows, err := ParseInsertRows([]byte("(1, 'a');"), dialect.TraitsFor(dialect.MySQL))
	require.NoError(t, err)
	tuple, ok := ExtractTuple(rows[0], []int{0}, nil)
	require.True(t, ok)
	assert.Equal(t, pk.Int(1), tuple[0])
}

func TestExtractFKTupleNullSuppressesTuple(t *testing.T) {
	rows, err := ParseInsertRows([]byte("(1, NULL);"), dialect.TraitsFor(dialect.MySQL))
	require.NoError(t, err)
	_, ok := ExtractFKTuple(rows[0], []int{0, 1}, nil)
	assert.False(t, ok)
}

func TestPositionsFromColumnList(t *testing.T) {
	// INSERT INTO t (c, a) VALUES (...) where schema order is [a, b, c]
	// so explicit ordinals (as written) are [2, 0].
	pos := PositionsFromColumnList([]int{2, 0}, 3)
	assert.Equal(t, []int{1, -1, 0}, pos)
}

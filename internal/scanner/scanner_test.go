package scanner

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
)

func scanAll(t *testing.T, input string, d dialect.Dialect) []Statement {
	t.Helper()
	sc := New(strings.NewReader(input), d, 0, 0)
	var out []Statement
	for {
		stmt, err := sc.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, stmt.Clone())
		if stmt.Kind == KindStatement && isCopyHeaderText(string(stmt.Bytes)) {
			data, err := sc.ReadCopyData()
			require.NoError(t, err)
			out = append(out, data.Clone())
		}
	}
	return out
}

func isCopyHeaderText(s string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s)), "COPY")
}

// Scenario 1: string-embedded semicolon.
func TestScannerStringEmbeddedSemicolon(t *testing.T) {
	input := "INSERT INTO t VALUES ('a;b'); INSERT INTO t VALUES ('c');"
	stmts := scanAll(t, input, dialect.MySQL)
	require.Len(t, stmts, 2)
	assert.Equal(t, "INSERT INTO t VALUES ('a;b');", string(stmts[0].Bytes))
	assert.Equal(t, "INSERT INTO t VALUES ('c');", string(stmts[1].Bytes))
}

// Scenario 2: COPY data block parsing.
func TestScannerCopyDataBlock(t *testing.T) {
	input := "COPY public.users (id, name, email) FROM stdin;\n1\tAlice\talice@example.com\n2\tBob\tbob@example.com\n\\.\n"
	stmts := scanAll(t, input, dialect.Postgres)
	require.Len(t, stmts, 2)
	assert.Equal(t, KindStatement, stmts[0].Kind)
	assert.Equal(t, KindCopyData, stmts[1].Kind)
	assert.Contains(t, string(stmts[1].Bytes), "1\tAlice\talice@example.com")
	assert.Contains(t, string(stmts[1].Bytes), "2\tBob\tbob@example.com")
}

func TestScannerFaithfulness(t *testing.T) {
	input := "CREATE TABLE t(id INT);\nINSERT INTO t VALUES (1);\nINSERT INTO t VALUES (2);"
	sc := New(strings.NewReader(input), dialect.MySQL, 0, 0)
	var rebuilt strings.Builder
	for {
		stmt, err := sc.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		rebuilt.Write(stmt.Bytes)
		rebuilt.WriteByte('\n')
	}
	// Allow for trimmed whitespace/comments between statements.
	assert.Equal(t, strings.Join(strings.Fields(input), " "), strings.Join(strings.Fields(rebuilt.String()), " "))
}

func TestScannerDollarQuotedEmptyTag(t *testing.T) {
	input := "CREATE FUNCTION f() RETURNS int AS $$ SELECT 1; $$ LANGUAGE sql;"
	stmts := scanAll(t, input, dialect.Postgres)
	require.Len(t, stmts, 1)
	assert.Equal(t, input, string(stmts[0].Bytes))
}

func TestScannerDollarQuotedNamedTag(t *testing.T) {
	input := "CREATE FUNCTION f() RETURNS int AS $body$ SELECT 1; $body$ LANGUAGE sql;"
	stmts := scanAll(t, input, dialect.Postgres)
	require.Len(t, stmts, 1)
	assert.Equal(t, input, string(stmts[0].Bytes))
}

func TestScannerConditionalCommentRetained(t *testing.T) {
	input := "/*!40101 SET NAMES utf8 */;"
	stmts := scanAll(t, input, dialect.MySQL)
	require.Len(t, stmts, 1)
	assert.Contains(t, string(stmts[0].Bytes), "/*!40101")
}

func TestScannerBacktickIdentifierWithSemicolonLookingBytes(t *testing.T) {
	input := "CREATE TABLE `a;b`(id INT);"
	stmts := scanAll(t, input, dialect.MySQL)
	require.Len(t, stmts, 1)
	assert.Equal(t, input, string(stmts[0].Bytes))
}

func TestScannerMssqlBracketIdentifier(t *testing.T) {
	input := "CREATE TABLE [dbo].[Users]([Id] INT);"
	stmts := scanAll(t, input, dialect.MSSQL)
	require.Len(t, stmts, 1)
	assert.Equal(t, input, string(stmts[0].Bytes))
}

func TestScannerEmptyInsert(t *testing.T) {
	input := "INSERT INTO t() VALUES ();"
	stmts := scanAll(t, input, dialect.MySQL)
	require.Len(t, stmts, 1)
}

func TestScannerFinalStatementWithoutTrailingSemicolon(t *testing.T) {
	input := "CREATE TABLE t(id INT);\nINSERT INTO t VALUES (1)"
	stmts := scanAll(t, input, dialect.MySQL)
	require.Len(t, stmts, 2)
	assert.Equal(t, TermEOF, stmts[1].Terminator)
}

func TestScannerOnlyWhitespaceAtEOFYieldsNoFinalStatement(t *testing.T) {
	input := "CREATE TABLE t(id INT);\n   \n"
	stmts := scanAll(t, input, dialect.MySQL)
	require.Len(t, stmts, 1)
}

func TestScannerOversizedStatement(t *testing.T) {
	huge := "INSERT INTO t VALUES ('" + strings.Repeat("x", 1000) + "');"
	sc := New(strings.NewReader(huge), dialect.MySQL, 0, 100)
	_, err := sc.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOversizedStatement)
}

func TestScannerCopyDataEndsAtDotMarker(t *testing.T) {
	input := "COPY t (id) FROM stdin;\n1\n\\.\n"
	stmts := scanAll(t, input, dialect.Postgres)
	require.Len(t, stmts, 2)
	assert.Equal(t, TermCopyDotMarker, stmts[1].Terminator)
}

func TestBufferSizeHintClamped(t *testing.T) {
	assert.GreaterOrEqual(t, BufferSizeHint(0), minBufferSize)
	assert.LessOrEqual(t, BufferSizeHint(1<<40), maxBufferSizeHint)
}

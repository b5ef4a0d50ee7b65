package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/rowparser"
)

func strLit(s string) rowparser.Literal {
	return rowparser.Literal{Kind: rowparser.LitString, Text: s}
}

func TestRewriteSkipPassesStringThrough(t *testing.T) {
	rw := NewRewriter(dialect.MySQL, NewRng(1))
	out := rw.Rewrite(strLit("alice"), Strategy{Kind: Skip}, false)
	assert.Equal(t, "'alice'", out)
}

func TestRewriteNullStatementContext(t *testing.T) {
	rw := NewRewriter(dialect.MySQL, NewRng(1))
	out := rw.Rewrite(strLit("alice"), Strategy{Kind: Null}, false)
	assert.Equal(t, "NULL", out)
}

func TestRewriteNullCopyContext(t *testing.T) {
	rw := NewRewriter(dialect.Postgres, NewRng(1))
	out := rw.Rewrite(strLit("alice"), Strategy{Kind: Null}, true)
	assert.Equal(t, `\N`, out)
}

func TestRewriteConstant(t *testing.T) {
	rw := NewRewriter(dialect.MySQL, NewRng(1))
	out := rw.Rewrite(strLit("alice"), Strategy{Kind: Constant, ConstantValue: "REDACTED"}, false)
	assert.Equal(t, "'REDACTED'", out)
}

func TestRewriteMySQLBackslashEscapesApostrophe(t *testing.T) {
	rw := NewRewriter(dialect.MySQL, NewRng(1))
	out := rw.Rewrite(strLit("it's"), Strategy{Kind: Skip}, false)
	assert.Equal(t, `'it\'s'`, out)
}

func TestRewritePostgresDoublesApostrophe(t *testing.T) {
	rw := NewRewriter(dialect.Postgres, NewRng(1))
	out := rw.Rewrite(strLit("it's"), Strategy{Kind: Skip}, false)
	assert.Equal(t, "'it''s'", out)
}

func TestRewriteMSSQLPrefixesNString(t *testing.T) {
	rw := NewRewriter(dialect.MSSQL, NewRng(1))
	out := rw.Rewrite(strLit("alice"), Strategy{Kind: Skip}, false)
	assert.Equal(t, "N'alice'", out)
}

func TestRewriteHashDeterministic(t *testing.T) {
	rw := NewRewriter(dialect.MySQL, NewRng(1))
	out1 := rw.Rewrite(strLit("alice@example.com"), Strategy{Kind: Hash}, false)
	out2 := rw.Rewrite(strLit("alice@example.com"), Strategy{Kind: Hash}, false)
	assert.Equal(t, out1, out2)
	assert.NotEqual(t, "'alice@example.com'", out1)
}

func TestRewriteHashPreserveDomainKeepsEmailShape(t *testing.T) {
	rw := NewRewriter(dialect.MySQL, NewRng(1))
	out := rw.Rewrite(strLit("alice@example.com"), Strategy{Kind: Hash, PreserveDomain: true}, false)
	assert.Contains(t, out, "@example.com")
}

func TestRewriteHashPreserveDomainFallsBackWithoutAt(t *testing.T) {
	rw := NewRewriter(dialect.MySQL, NewRng(1))
	out := rw.Rewrite(strLit("not-an-email"), Strategy{Kind: Hash, PreserveDomain: true}, false)
	assert.NotContains(t, out, "not-an-email")
}

func TestRewriteMaskPattern(t *testing.T) {
	rw := NewRewriter(dialect.MySQL, NewRng(1))
	out := rw.Rewrite(strLit("4111111111111111"), Strategy{Kind: Mask, MaskPattern: "************XXXX"}, false)
	assert.Equal(t, "'************1111'", out)
}

func TestRewriteMaskRandomDigitsDiffer(t *testing.T) {
	rw := NewRewriter(dialect.MySQL, NewRng(42))
	out := rw.Rewrite(strLit("x"), Strategy{Kind: Mask, MaskPattern: "####"}, false)
	assert.Len(t, out, len("####")+2)
	for _, c := range out[1 : len(out)-1] {
		assert.True(t, c >= '0' && c <= '9')
	}
}

func TestRewriteFakeNameProducesNonEmptyString(t *testing.T) {
	rw := NewRewriter(dialect.MySQL, NewRng(7))
	out := rw.Rewrite(rowparser.Literal{}, Strategy{Kind: Fake, FakeGenerator: "email"}, false)
	assert.Contains(t, out, "@example.test")
}

func TestApplyShuffleIsPermutation(t *testing.T) {
	values := []string{"a", "b", "c", "d", "e"}
	out := ApplyShuffle(values, NewRng(3))
	assert.ElementsMatch(t, values, out)
}

func TestFormatNumberDecimalTwoDigits(t *testing.T) {
	assert.Equal(t, "3.10", FormatNumber("3.1", true))
	assert.Equal(t, "3", FormatNumber("3", false))
}

func TestRewriteCopyContextEscapesTabsAndNewlines(t *testing.T) {
	rw := NewRewriter(dialect.Postgres, NewRng(1))
	out := rw.Rewrite(strLit("a\tb\nc"), Strategy{Kind: Skip}, true)
	assert.Equal(t, `a\tb\nc`, out)
}

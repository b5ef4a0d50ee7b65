package convert

import (
	"regexp"
	"strings"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/issue"
)

// typeRule is one entry of the type-mapping rule table (step 6): match
// scans case-insensitively and replace substitutes the matched text,
// referencing capture groups with $1 etc. the way regexp.ReplaceAll does.
type typeRule struct {
	match   *regexp.Regexp
	replace string
	warn    string // non-empty: emit an UNSUPPORTED_TYPE warning when this rule fires
}

var autoIncrementToSerial = regexp.MustCompile(`(?i)\b(BIGINT|INT|INTEGER)\s+AUTO_INCREMENT\b`)
var serialToAutoIncrement = regexp.MustCompile(`(?i)\bBIGSERIAL\b`)
var smallSerialToAutoIncrement = regexp.MustCompile(`(?i)\bSERIAL\b`)

func mysqlToPostgresRules() []typeRule {
	return []typeRule{
		{regexp.MustCompile(`(?i)\bTINYINT\s*\(\s*1\s*\)`), "BOOLEAN", ""},
		{regexp.MustCompile(`(?i)\bDATETIME\b`), "TIMESTAMP", ""},
		{regexp.MustCompile(`(?i)\bJSON\b`), "JSONB", ""},
		{regexp.MustCompile(`(?i)\bENUM\s*\([^)]*\)`), "VARCHAR(255)", "ENUM has no Postgres equivalent, widened to VARCHAR(255)"},
		{regexp.MustCompile(`(?i)\bDOUBLE\b`), "DOUBLE PRECISION", ""},
	}
}

func postgresToMysqlRules() []typeRule {
	return []typeRule{
		{regexp.MustCompile(`(?i)\bBYTEA\b`), "BLOB", ""},
		{regexp.MustCompile(`(?i)\bDOUBLE PRECISION\b`), "DOUBLE", ""},
		{regexp.MustCompile(`(?i)\bJSONB\b`), "JSON", ""},
		{regexp.MustCompile(`(?i)\bTIMESTAMPTZ\b`), "TIMESTAMP", ""},
	}
}

func mysqlToSqliteRules() []typeRule {
	return []typeRule{
		{regexp.MustCompile(`(?i)\bTINYINT\s*\(\s*1\s*\)`), "BOOLEAN", ""},
		{regexp.MustCompile(`(?i)\bDATETIME\b`), "TEXT", ""},
		{regexp.MustCompile(`(?i)\bJSON\b`), "TEXT", ""},
	}
}

func postgresToSqliteRules() []typeRule {
	return []typeRule{
		{regexp.MustCompile(`(?i)\bBYTEA\b`), "BLOB", ""},
		{regexp.MustCompile(`(?i)\bSERIAL\b`), "INTEGER", ""},
		{regexp.MustCompile(`(?i)\bBOOLEAN\b`), "INTEGER", ""},
	}
}

func sqliteToMysqlRules() []typeRule {
	return []typeRule{
		{regexp.MustCompile(`(?i)\bREAL\b`), "DOUBLE", ""},
	}
}

func sqliteToPostgresRules() []typeRule {
	return []typeRule{
		{regexp.MustCompile(`(?i)\bREAL\b`), "DOUBLE PRECISION", ""},
		{regexp.MustCompile(`(?i)\bBLOB\b`), "BYTEA", ""},
	}
}

func mssqlToOtherRules() []typeRule {
	return []typeRule{
		{regexp.MustCompile(`(?i)\bVARCHAR\s*\(\s*MAX\s*\)`), "TEXT", ""},
		{regexp.MustCompile(`(?i)\bNVARCHAR\s*\(\s*MAX\s*\)`), "TEXT", ""},
	}
}

// mapTypes applies step 6 of the conversion pipeline: the AUTO_INCREMENT
// <-> SERIAL rewrite (which spans a type keyword and a trailing column
// qualifier) plus the dialect-pair type rule table.
func mapTypes(s string, from, to dialect.Dialect, issues *issue.List) string {
	if from == dialect.MySQL && to == dialect.Postgres {
		s = autoIncrementToSerial.ReplaceAllStringFunc(s, func(m string) string {
			if strings.EqualFold(autoIncrementToSerial.FindStringSubmatch(m)[1], "BIGINT") {
				return "BIGSERIAL"
			}
			return "SERIAL"
		})
	}
	if from == dialect.Postgres && to == dialect.MySQL {
		s = serialToAutoIncrement.ReplaceAllString(s, "BIGINT AUTO_INCREMENT")
		s = smallSerialToAutoIncrement.ReplaceAllString(s, "INT AUTO_INCREMENT")
	}

	var rules []typeRule
	switch {
	case from == dialect.MySQL && to == dialect.Postgres:
		rules = mysqlToPostgresRules()
	case from == dialect.Postgres && to == dialect.MySQL:
		rules = postgresToMysqlRules()
	case from == dialect.MySQL && to == dialect.SQLite:
		rules = mysqlToSqliteRules()
	case from == dialect.Postgres && to == dialect.SQLite:
		rules = postgresToSqliteRules()
	case from == dialect.SQLite && to == dialect.MySQL:
		rules = sqliteToMysqlRules()
	case from == dialect.SQLite && to == dialect.Postgres:
		rules = sqliteToPostgresRules()
	}
	if from == dialect.MSSQL && to != dialect.MSSQL {
		rules = append(rules, mssqlToOtherRules()...)
	}

	for _, r := range rules {
		if r.warn != "" && r.match.MatchString(s) {
			issues.Add(issue.New(issue.Warning, issue.CodeUnsupportedType, r.warn))
		}
		s = r.match.ReplaceAllString(s, r.replace)
	}
	return s
}

var engineClause = regexp.MustCompile(`(?i)\s*ENGINE\s*=\s*\w+`)
var charsetClause = regexp.MustCompile(`(?i)\s*(DEFAULT\s+)?CHARSET\s*=\s*\w+`)
var collateClause = regexp.MustCompile(`(?i)\s*COLLATE\s*=?\s*[\w]+`)

// stripUnsupportedClauses removes MySQL table-option clauses the target
// dialect doesn't accept (step 7).
func stripUnsupportedClauses(s string, to dialect.Dialect) string {
	if to == dialect.MySQL {
		return s
	}
	s = engineClause.ReplaceAllString(s, "")
	s = charsetClause.ReplaceAllString(s, "")
	s = collateClause.ReplaceAllString(s, "")
	return s
}

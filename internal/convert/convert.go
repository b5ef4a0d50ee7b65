// Package convert translates statements from a source SQL dialect to a
// target dialect: session commands and Postgres-only features are
// filtered, identifiers and string escapes are re-quoted, types are
// remapped, dialect-specific clauses are stripped, and COPY blocks are
// turned into batched INSERTs.
package convert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/issue"
)

// DefaultBatchSize is the number of COPY rows folded into one INSERT
// statement when the target dialect doesn't support COPY.
const DefaultBatchSize = 100

var sessionOnlyPrefixes = []string{
	"SET NAMES", "SET FOREIGN_KEY_CHECKS", "SET CLIENT_ENCODING", "SET SEARCH_PATH",
	"SET STATEMENT_TIMEOUT", "LOCK TABLES", "UNLOCK TABLES", "PRAGMA", "CREATE EXTENSION",
}

var postgresOnlyPrefixes = []string{
	"CREATE SEQUENCE", "CREATE DOMAIN", "CREATE TYPE", "CREATE TRIGGER",
	"CREATE FUNCTION", "COMMENT ON", "GRANT", "REVOKE",
}

// copyHeader is the pending state between a `COPY ... FROM stdin;` header
// and the CopyData block that follows it.
type copyHeader struct {
	table   string
	columns []string
}

// Converter holds the single piece of cross-statement state the pipeline
// needs (a pending COPY header) plus the source/target dialect traits.
type Converter struct {
	from, to   dialect.Dialect
	fromTraits dialect.Traits
	toTraits   dialect.Traits
	issues     *issue.List
	batchSize  int
	pending    *copyHeader
}

func New(from, to dialect.Dialect, issues *issue.List) *Converter {
	return &Converter{
		from:       from,
		to:         to,
		fromTraits: dialect.TraitsFor(from),
		toTraits:   dialect.TraitsFor(to),
		issues:     issues,
		batchSize:  DefaultBatchSize,
	}
}

func (c *Converter) SetBatchSize(n int) {
	if n > 0 {
		c.batchSize = n
	}
}

// ConvertStatement runs steps 1-8 of the pipeline over one statement and
// returns the rewritten text, or nil if the statement should be dropped.
// If the statement is a COPY header the target dialect can't use, the
// header is captured as pending state and nil is returned; the caller
// must then feed the CopyData payload to ConvertCopyData.
func (c *Converter) ConvertStatement(stmt []byte) []byte {
	raw := string(stmt)
	upper := strings.ToUpper(strings.TrimSpace(raw))

	// Step 1: session-command filter.
	if hasAnyPrefix(upper, sessionOnlyPrefixes) {
		if c.from == c.to {
			return stmt
		}
		return nil
	}

	// Step 2: feature filter (Postgres-only DDL).
	if hasAnyPrefix(upper, postgresOnlyPrefixes) {
		if c.to == dialect.Postgres {
			return stmt
		}
		c.issues.Add(issue.New(issue.Warning, issue.CodeUnsupportedFeature,
			fmt.Sprintf("dropped Postgres-only statement for %s target", c.to)))
		return nil
	}

	// Step 9 (header half): capture a COPY header the target can't use.
	if header, cols, ok := parseCopyHeader(raw); ok && !c.toTraits.BulkCopy {
		c.pending = &copyHeader{table: header, columns: cols}
		return nil
	}

	out := raw

	// Step 3: conditional-comment stripping.
	out = stripConditionalComments(out, c.from, c.to)

	// Step 4: identifier quote translation.
	out = translateIdentQuotes(out, c.fromTraits, c.toTraits)

	// Step 5: string-escape translation.
	out = translateStringEscapes(out, c.fromTraits, c.toTraits)

	// Step 6: type mapping.
	out = mapTypes(out, c.from, c.to, c.issues)

	// Step 7: clause stripping.
	out = stripUnsupportedClauses(out, c.to)

	// Step 8: Postgres-specific rewrites (only meaningful when source is Postgres).
	if c.from == dialect.Postgres {
		out = stripCasts(out)
		out = rewriteNextval(out, c.to)
		out = rewriteNow(out)
		out = stripSchemaPrefix(out, "public")
	}

	return []byte(out)
}

// ConvertCopyData consumes a raw COPY payload (one row per line, up to the
// terminating `\.`) against the most recently pending COPY header and
// returns one INSERT statement per batch of rows (step 9). It is a no-op
// if no header is pending (the target accepts COPY natively).
func (c *Converter) ConvertCopyData(payload []byte) [][]byte {
	if c.pending == nil {
		return nil
	}
	header := c.pending
	c.pending = nil

	lines := splitCopyLines(string(payload))
	var batches [][]byte
	for start := 0; start < len(lines); start += c.batchSize {
		end := start + c.batchSize
		if end > len(lines) {
			end = len(lines)
		}
		batches = append(batches, buildInsertBatch(header, lines[start:end], c.toTraits))
	}
	return batches
}

func hasAnyPrefix(upper string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}

// stripConditionalComments handles MySQL's `/*! ... */` hint syntax: keep
// the body unwrapped for a MySQL target, drop it entirely otherwise.
func stripConditionalComments(s string, from, to dialect.Dialect) string {
	if from != dialect.MySQL {
		return s
	}
	var b strings.Builder
	i := 0
	for i < len(s) {
		if i+2 < len(s) && s[i] == '/' && s[i+1] == '*' && s[i+2] == '!' {
			j := i + 3
			for j < len(s) && (s[j] < '0' || s[j] > '9') {
				j++
			}
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			end := strings.Index(s[j:], "*/")
			if end == -1 {
				b.WriteString(s[i:])
				break
			}
			body := strings.TrimSpace(s[j : j+end])
			if to == dialect.MySQL {
				b.WriteString(body)
			}
			i = j + end + 2
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// translateIdentQuotes swaps the source dialect's identifier-quote
// characters for the target's, leaving string-literal bodies untouched.
func translateIdentQuotes(s string, from, to dialect.Traits) string {
	if from.IdentQuoteOpen == to.IdentQuoteOpen && from.IdentQuoteClose == to.IdentQuoteClose {
		return s
	}
	var b strings.Builder
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString && c == '\\' && from.EscapeMode == dialect.EscapeBackslash && i+1 < len(s) {
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
			continue
		}
		if c == '\'' {
			inString = !inString
			b.WriteByte(c)
			continue
		}
		if !inString && c == from.IdentQuoteOpen {
			depth := 1
			b.WriteByte(to.IdentQuoteOpen)
			i++
			for i < len(s) && depth > 0 {
				if s[i] == from.IdentQuoteClose {
					depth--
					if depth == 0 {
						b.WriteByte(to.IdentQuoteClose)
						break
					}
				}
				b.WriteByte(s[i])
				i++
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// translateStringEscapes rewrites string-literal bodies between MySQL's
// backslash-escape convention and the SQL-standard doubled-apostrophe
// convention.
func translateStringEscapes(s string, from, to dialect.Traits) string {
	if from.EscapeMode == to.EscapeMode {
		return s
	}
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			i++
			continue
		}
		b.WriteByte('\'')
		i++
		for i < len(s) {
			c := s[i]
			if from.EscapeMode == dialect.EscapeBackslash && c == '\\' && i+1 < len(s) {
				if s[i+1] == '\'' {
					b.WriteString(escapeApostrophe(to))
					i += 2
					continue
				}
				b.WriteByte(c)
				i++
				continue
			}
			if c == '\'' {
				if from.EscapeMode == dialect.EscapeDoubleApostrophe && i+1 < len(s) && s[i+1] == '\'' {
					b.WriteString(escapeApostrophe(to))
					i += 2
					continue
				}
				b.WriteByte('\'')
				i++
				break
			}
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func escapeApostrophe(to dialect.Traits) string {
	if to.EscapeMode == dialect.EscapeBackslash {
		return `\'`
	}
	return "''"
}

func stripCasts(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if i+1 < len(s) && s[i] == ':' && s[i+1] == ':' {
			j := i + 2
			for j < len(s) && (isIdentByte(s[j]) || s[j] == '[' || s[j] == ']' || s[j] == ' ') {
				if s[j] == ' ' && (j+1 >= len(s) || !isIdentByte(s[j+1])) {
					break
				}
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func rewriteNextval(s string, to dialect.Dialect) string {
	idx := strings.Index(strings.ToLower(s), "nextval(")
	if idx == -1 {
		return s
	}
	depth := 0
	end := -1
	for i := idx + len("nextval("); i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				end = i
			} else {
				depth--
			}
		}
		if end != -1 {
			break
		}
	}
	if end == -1 {
		return s
	}
	replacement := "AUTO_INCREMENT"
	return s[:idx] + replacement + s[end+1:]
}

func rewriteNow(s string) string {
	var b strings.Builder
	lower := strings.ToLower(s)
	i := 0
	for i < len(s) {
		if strings.HasPrefix(lower[i:], "now()") {
			b.WriteString("CURRENT_TIMESTAMP")
			i += len("now()")
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func stripSchemaPrefix(s, schema string) string {
	return strings.ReplaceAll(s, schema+".", "")
}

// parseCopyHeader recognizes `COPY table (cols) FROM stdin;` and returns
// the table name and column list.
func parseCopyHeader(raw string) (string, []string, bool) {
	trimmed := strings.TrimSpace(raw)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "COPY ") {
		return "", nil, false
	}
	fromIdx := strings.Index(upper, " FROM ")
	if fromIdx == -1 {
		return "", nil, false
	}
	head := strings.TrimSpace(trimmed[len("COPY "):fromIdx])
	parenIdx := strings.IndexByte(head, '(')
	if parenIdx == -1 {
		return strings.TrimSpace(head), nil, true
	}
	table := strings.TrimSpace(head[:parenIdx])
	closeIdx := strings.LastIndexByte(head, ')')
	if closeIdx == -1 || closeIdx < parenIdx {
		return table, nil, true
	}
	cols := strings.Split(head[parenIdx+1:closeIdx], ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return table, cols, true
}

func splitCopyLines(payload string) []string {
	var lines []string
	for _, line := range strings.Split(payload, "\n") {
		if line == `\.` || line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// buildInsertBatch formats one `INSERT INTO tbl (cols) VALUES (...), (...);`
// statement from a batch of tab-separated COPY rows.
func buildInsertBatch(header *copyHeader, rows []string, to dialect.Traits) []byte {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(header.table)
	if len(header.columns) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(header.columns, ", "))
		b.WriteByte(')')
	}
	b.WriteString(" VALUES ")
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		fields := strings.Split(row, "\t")
		for j, f := range fields {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(formatCopyField(f, to))
		}
		b.WriteByte(')')
	}
	b.WriteByte(';')
	return []byte(b.String())
}

func formatCopyField(f string, to dialect.Traits) string {
	if f == `\N` {
		return "NULL"
	}
	if _, err := strconv.ParseFloat(f, 64); err == nil {
		return f
	}
	if to.EscapeMode == dialect.EscapeBackslash {
		return "'" + strings.ReplaceAll(f, "'", `\'`) + "'"
	}
	return "'" + strings.ReplaceAll(f, "'", "''") + "'"
}

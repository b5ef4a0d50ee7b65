// Package classify identifies the kind of a scanned statement and, where
// applicable, the table name it targets.
package classify

import (
	"strings"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
)

// Kind enumerates the statement kinds the rest of the engine dispatches on.
type Kind int

const (
	Unknown Kind = iota
	CreateTable
	AlterTable
	DropTable
	CreateIndex
	Insert
	Copy
	CopyData
	SessionSetting
	Other
)

func (k Kind) String() string {
	switch k {
	case CreateTable:
		return "CreateTable"
	case AlterTable:
		return "AlterTable"
	case DropTable:
		return "DropTable"
	case CreateIndex:
		return "CreateIndex"
	case Insert:
		return "Insert"
	case Copy:
		return "Copy"
	case CopyData:
		return "CopyData"
	case SessionSetting:
		return "SessionSetting"
	case Other:
		return "Other"
	default:
		return "Unknown"
	}
}

// Result is the classifier's output.
type Result struct {
	Kind      Kind
	Table     string // exactly as written, case preserved
	ColumnsHeader []string // for Insert/Copy, the explicit column list if present
}

var sessionKeywords = []string{"SET", "LOCK", "UNLOCK", "PRAGMA", "USE", "BEGIN", "COMMIT", "ROLLBACK", "START"}

// Classify inspects a statement's significant keyword (after skipping
// whitespace, comments, and conditional-comment prefixes) and extracts its
// kind and target table.
func Classify(stmt []byte, traits dialect.Traits) Result {
	s := skipNoise(string(stmt), traits)
	upper := strings.ToUpper(s)

	switch {
	case hasWord(upper, "CREATE") && containsWordAfter(upper, "CREATE", "TABLE"):
		name := extractAfterKeywordSeq(s, upper, []string{"CREATE", "TABLE"}, traits, []string{"IF", "NOT", "EXISTS"})
		return Result{Kind: CreateTable, Table: name}

	case hasWord(upper, "ALTER") && containsWordAfter(upper, "ALTER", "TABLE"):
		name := extractAfterKeywordSeq(s, upper, []string{"ALTER", "TABLE"}, traits, nil)
		return Result{Kind: AlterTable, Table: name}

	case hasWord(upper, "DROP") && containsWordAfter(upper, "DROP", "TABLE"):
		name := extractAfterKeywordSeq(s, upper, []string{"DROP", "TABLE"}, traits, []string{"IF", "EXISTS"})
		return Result{Kind: DropTable, Table: name}

	case hasWord(upper, "CREATE") && (containsWordAfter(upper, "CREATE", "INDEX") || containsWordSeq(upper, []string{"CREATE", "UNIQUE", "INDEX"})):
		name := extractIndexTargetTable(s, upper, traits)
		return Result{Kind: CreateIndex, Table: name}

	case hasWord(upper, "INSERT") && containsWordAfter(upper, "INSERT", "INTO"):
		name, cols := extractInsertTarget(s, upper, traits)
		return Result{Kind: Insert, Table: name, ColumnsHeader: cols}

	case traits.BulkCopy && hasWord(upper, "COPY"):
		name, cols := extractCopyTarget(s, upper, traits)
		return Result{Kind: Copy, Table: name, ColumnsHeader: cols}

	case firstWordIn(upper, sessionKeywords):
		return Result{Kind: SessionSetting}

	default:
		return Result{Kind: Other}
	}
}

// skipNoise strips leading whitespace, line comments, block comments
// and the "/*!NNNNN " marker of a conditional comment (whose body is kept
// as content) and returns the remaining text.
func skipNoise(s string, traits dialect.Traits) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"):
			if idx := strings.IndexByte(s, '\n'); idx >= 0 {
				s = s[idx+1:]
				continue
			}
			return ""
		case traits.LineCommentHash && strings.HasPrefix(s, "#"):
			if idx := strings.IndexByte(s, '\n'); idx >= 0 {
				s = s[idx+1:]
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*!") && traits.ConditionalComments:
			// Conditional comment prefix is retained as executable content:
			// strip only the "/*!NNNNN " marker itself, keep the body.
			rest := s[3:]
			i := 0
			for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
				i++
			}
			s = strings.TrimLeft(rest[i:], " ")
			continue
		case strings.HasPrefix(s, "/*"):
			if idx := strings.Index(s, "*/"); idx >= 0 {
				s = s[idx+2:]
				continue
			}
			return ""
		default:
			return s
		}
	}
}

func hasWord(upper, word string) bool {
	return firstWord(upper) == word
}

func firstWord(s string) string {
	s = strings.TrimLeft(s, " \t\r\n")
	i := 0
	for i < len(s) && !isBoundary(s[i]) {
		i++
	}
	return s[:i]
}

func firstWordIn(upper string, words []string) bool {
	fw := firstWord(upper)
	for _, w := range words {
		if fw == w {
			return true
		}
	}
	return false
}

func isBoundary(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == ';'
}

// containsWordAfter reports whether, after skipping `after`, the next
// significant word equals `want`.
func containsWordAfter(upper, after, want string) bool {
	rest := afterWord(upper, after)
	return firstWord(rest) == want
}

func containsWordSeq(upper string, seq []string) bool {
	rest := upper
	for _, w := range seq {
		rest = strings.TrimLeft(rest, " \t\r\n")
		if firstWord(rest) != w {
			return false
		}
		rest = afterWord(rest, w)
	}
	return true
}

func afterWord(s, word string) string {
	s = strings.TrimLeft(s, " \t\r\n")
	if strings.HasPrefix(s, word) {
		return s[len(word):]
	}
	return s
}

// extractAfterKeywordSeq walks past the given keyword sequence (e.g.
// ["CREATE","TABLE"]), optionally past an IF [NOT] EXISTS clause, and reads
// the table identifier that follows, unquoting and dropping any schema
// qualifier.
func extractAfterKeywordSeq(original, upper string, seq []string, traits dialect.Traits, optionalWords []string) string {
	rest := original
	restUpper := upper
	for _, w := range seq {
		trimmed := strings.TrimLeft(restUpper, " \t\r\n")
		skip := len(restUpper) - len(trimmed)
		rest = rest[skip:]
		restUpper = trimmed
		rest = rest[len(w):]
		restUpper = restUpper[len(w):]
	}

	// Skip an optional clause made of the given words in sequence, e.g.
	// IF [NOT] EXISTS.
	if len(optionalWords) > 0 {
		rest, restUpper = skipOptionalClause(rest, restUpper, optionalWords)
	}

	return readIdentifier(rest, traits)
}

// skipOptionalClause tries to consume a sequence drawn (in order, but with
// any subset) from words; used for "IF NOT EXISTS" / "IF EXISTS".
func skipOptionalClause(rest, restUpper string, words []string) (string, string) {
	for {
		trimmed := strings.TrimLeft(restUpper, " \t\r\n")
		skip := len(restUpper) - len(trimmed)
		candidateUpper := trimmed
		fw := firstWord(candidateUpper)
		matched := false
		for _, w := range words {
			if fw == w {
				matched = true
				break
			}
		}
		if !matched {
			return rest, restUpper
		}
		rest = rest[skip+len(fw):]
		restUpper = candidateUpper[len(fw):]
	}
}

// readIdentifier reads a (possibly schema-qualified, possibly quoted)
// identifier at the start of s and returns its last (table-name) component,
// unquoted, case preserved.
func readIdentifier(s string, traits dialect.Traits) string {
	s = strings.TrimLeft(s, " \t\r\n")
	if s == "" {
		return ""
	}

	var parts []string
	for {
		part, remainder, ok := readOneIdentifierPart(s, traits)
		if !ok {
			break
		}
		parts = append(parts, part)
		s = remainder
		if strings.HasPrefix(s, ".") {
			s = s[1:]
			continue
		}
		break
	}
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func readOneIdentifierPart(s string, traits dialect.Traits) (part, remainder string, ok bool) {
	if s == "" {
		return "", s, false
	}
	if s[0] == traits.IdentQuoteOpen {
		closeC := traits.IdentQuoteClose
		idx := strings.IndexByte(s[1:], closeC)
		if idx < 0 {
			return "", s, false
		}
		return s[1 : 1+idx], s[1+idx+1:], true
	}
	if s[0] == '"' {
		idx := strings.IndexByte(s[1:], '"')
		if idx >= 0 {
			return s[1 : 1+idx], s[1+idx+1:], true
		}
	}
	i := 0
	for i < len(s) && !isBoundary(s[i]) && s[i] != '.' && s[i] != ',' {
		i++
	}
	if i == 0 {
		return "", s, false
	}
	return s[:i], s[i:], true
}

func extractIndexTargetTable(original, upper string, traits dialect.Traits) string {
	idx := strings.Index(upper, " ON ")
	if idx < 0 {
		return ""
	}
	return readIdentifier(original[idx+4:], traits)
}

func extractInsertTarget(original, upper string, traits dialect.Traits) (string, []string) {
	rest := afterWordPreserveCase(original, upper, "INSERT")
	restUpper := strings.TrimLeft(upper[len("INSERT"):], " \t\r\n")
	rest = strings.TrimLeft(rest, " \t\r\n")
	if firstWord(restUpper) == "INTO" {
		rest = rest[len("INTO"):]
	}
	table := readIdentifier(rest, traits)

	// Look for an explicit column list: "(col1, col2) VALUES".
	openParen := strings.IndexByte(rest, '(')
	cols := []string{}
	if openParen >= 0 {
		closeParen := matchingParen(rest, openParen)
		if closeParen > openParen {
			inner := rest[openParen+1 : closeParen]
			afterParen := strings.TrimLeft(rest[closeParen+1:], " \t\r\n")
			if strings.HasPrefix(strings.ToUpper(afterParen), "VALUES") {
				for _, c := range splitTopLevelCommas(inner) {
					cols = append(cols, strings.TrimSpace(stripQuotes(c, traits)))
				}
			}
		}
	}
	return table, cols
}

func extractCopyTarget(original, upper string, traits dialect.Traits) (string, []string) {
	rest := original[len("COPY"):]
	rest = strings.TrimLeft(rest, " \t\r\n")
	table := readIdentifier(rest, traits)

	cols := []string{}
	openParen := strings.IndexByte(rest, '(')
	fromIdx := strings.Index(strings.ToUpper(rest), "FROM")
	if openParen >= 0 && (fromIdx < 0 || openParen < fromIdx) {
		closeParen := matchingParen(rest, openParen)
		if closeParen > openParen {
			inner := rest[openParen+1 : closeParen]
			for _, c := range splitTopLevelCommas(inner) {
				cols = append(cols, strings.TrimSpace(stripQuotes(c, traits)))
			}
		}
	}
	return table, cols
}

func afterWordPreserveCase(original, upper, word string) string {
	return original[len(word):]
}

func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitTopLevelCommas(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func stripQuotes(s string, traits dialect.Traits) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if s[0] == traits.IdentQuoteOpen && s[len(s)-1] == traits.IdentQuoteClose {
			return s[1 : len(s)-1]
		}
		if s[0] == '"' && s[len(s)-1] == '"' {
			return s[1 : len(s)-1]
		}
	}
	return s
}

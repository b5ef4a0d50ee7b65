package schema

import (
	"strings"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
)

// tokenize breaks a DDL fragment into a flat token stream: bare words,
// quoted identifiers/strings (kept whole, including their quote
// characters), and balanced parenthesized groups (kept whole, including
// the parens). It is not a full SQL tokenizer; it exists to let the schema
// builder walk column- and constraint-definitions without re-parsing
// nested structure by hand at every call site.
func tokenize(s string, traits dialect.Traits) []string {
	var toks []string
	i := 0
	n := len(s)
	for i < n {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',':
			i++
		case c == '(':
			depth := 0
			j := i
			for j < n {
				switch s[j] {
				case '(':
					depth++
				case ')':
					depth--
					if depth == 0 {
						j++
						goto done
					}
				}
				j++
			}
		done:
			toks = append(toks, s[i:j])
			i = j
		case c == '\'':
			j := i + 1
			for j < n {
				if s[j] == '\'' {
					if j+1 < n && s[j+1] == '\'' {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		case c == traits.IdentQuoteOpen:
			closeC := traits.IdentQuoteClose
			j := i + 1
			for j < n && s[j] != closeC {
				j++
			}
			if j < n {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		case c == '"':
			j := i + 1
			for j < n && s[j] != '"' {
				j++
			}
			if j < n {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		default:
			j := i
			for j < n && !isTokBoundary(s[j], traits) {
				j++
			}
			if j == i {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		}
	}
	return toks
}

func isTokBoundary(c byte, traits dialect.Traits) bool {
	if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',' || c == '(' || c == ')' || c == '\'' || c == '"' {
		return true
	}
	return c == traits.IdentQuoteOpen
}

// unquoteToken strips the surrounding quote characters from a token
// produced by tokenize, returning it unchanged if it wasn't quoted.
func unquoteToken(tok string, traits dialect.Traits) string {
	if len(tok) < 2 {
		return tok
	}
	first, last := tok[0], tok[len(tok)-1]
	if first == traits.IdentQuoteOpen && last == traits.IdentQuoteClose {
		return unescapeDoubled(tok[1:len(tok)-1], traits.IdentQuoteClose)
	}
	if first == '"' && last == '"' {
		return unescapeDoubled(tok[1:len(tok)-1], '"')
	}
	if first == '\'' && last == '\'' {
		return unescapeDoubled(tok[1:len(tok)-1], '\'')
	}
	return tok
}

func unescapeDoubled(s string, q byte) string {
	doubled := string([]byte{q, q})
	if !strings.Contains(s, doubled) {
		return s
	}
	return strings.ReplaceAll(s, doubled, string([]byte{q}))
}

// trimParens strips one layer of surrounding "(" ")" from a token produced
// by tokenize's paren-group branch.
func trimParens(tok string) string {
	tok = strings.TrimSpace(tok)
	if len(tok) >= 2 && tok[0] == '(' && tok[len(tok)-1] == ')' {
		return tok[1 : len(tok)-1]
	}
	return tok
}

// splitTopLevelCommas splits s on commas that are not nested inside parens
// or quotes.
func splitTopLevelCommas(s string, traits dialect.Traits) []string {
	var out []string
	depth := 0
	start := 0
	i := 0
	n := len(s)
	for i < n {
		c := s[i]
		switch {
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
		case c == '\'':
			i++
			for i < n {
				if s[i] == '\'' {
					i++
					if i < n && s[i] == '\'' {
						i++
						continue
					}
					break
				}
				i++
			}
		case c == traits.IdentQuoteOpen:
			i++
			for i < n && s[i] != traits.IdentQuoteClose {
				i++
			}
			if i < n {
				i++
			}
		case c == ',' && depth == 0:
			out = append(out, s[start:i])
			i++
			start = i
		default:
			i++
		}
	}
	out = append(out, s[start:])
	return out
}

func unquoteColumnList(raw string, traits dialect.Traits) []string {
	parts := splitTopLevelCommas(trimParens(raw), traits)
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		fields := strings.Fields(p)
		name := p
		if len(fields) > 0 {
			name = fields[0]
		}
		out = append(out, unquoteToken(name, traits))
	}
	return out
}

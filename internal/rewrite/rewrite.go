// Package rewrite implements the value rewriter used by redaction: given a
// parsed row and a per-column strategy, it
// produces the dialect-formatted literal text to splice back into the
// statement.
package rewrite

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/rowparser"
)

// StrategyKind enumerates the redaction strategies, grounded on the
// tagged-variant shape of the original Rust redactor.
type StrategyKind int

const (
	Skip StrategyKind = iota
	Null
	Constant
	Hash
	Mask
	Shuffle
	Fake
)

// Strategy configures one column's rewrite behavior.
type Strategy struct {
	Kind           StrategyKind
	ConstantValue  string
	PreserveDomain bool // Hash
	MaskPattern    string
	FakeGenerator  string
}

// Rng is the seeded PRNG every stochastic strategy draws from. Construct
// one per run from a user-provided 64-bit seed so that the same seed
// applied to the same dump reproduces byte-identical output.
type Rng struct {
	src *rand.Rand
}

func NewRng(seed uint64) *Rng {
	return &Rng{src: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *Rng) IntN(n int) int { return r.src.IntN(n) }

// Rewriter applies strategies to literal values and formats the result for
// a target dialect.
type Rewriter struct {
	traits dialect.Traits
	rng    *Rng
}

func NewRewriter(d dialect.Dialect, rng *Rng) *Rewriter {
	return &Rewriter{traits: dialect.TraitsFor(d), rng: rng}
}

// Rewrite applies strategy to lit and returns the dialect-formatted literal
// text ready to splice into a statement (or a COPY row field, via
// copyContext).
func (rw *Rewriter) Rewrite(lit rowparser.Literal, strategy Strategy, copyContext bool) string {
	switch strategy.Kind {
	case Skip:
		return rw.formatAsIs(lit, copyContext)
	case Null:
		return rw.formatNull(copyContext)
	case Constant:
		return rw.formatString(strategy.ConstantValue, copyContext)
	case Hash:
		return rw.applyHash(lit, strategy.PreserveDomain, copyContext)
	case Mask:
		return rw.applyMask(lit, strategy.MaskPattern, copyContext)
	case Fake:
		return rw.applyFake(strategy.FakeGenerator, copyContext)
	default:
		return rw.formatAsIs(lit, copyContext)
	}
}

// ApplyShuffle reorders a column's already-rewritten values (collected
// across a full pass) into a deterministic permutation driven by rng.
// Shuffle strategies need the whole column collected up front, unlike
// every other strategy which rewrites a value in isolation.
func ApplyShuffle(values []string, rng *Rng) []string {
	out := make([]string, len(values))
	copy(out, values)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (rw *Rewriter) formatAsIs(lit rowparser.Literal, copyContext bool) string {
	switch lit.Kind {
	case rowparser.LitNull:
		return rw.formatNull(copyContext)
	case rowparser.LitString:
		return rw.formatString(lit.Text, copyContext)
	default:
		return lit.Text
	}
}

func (rw *Rewriter) formatNull(copyContext bool) string {
	if copyContext {
		return `\N`
	}
	return "NULL"
}

func (rw *Rewriter) formatString(s string, copyContext bool) string {
	if copyContext {
		return escapeCopyField(s)
	}
	escaped := rw.escapeForDialect(s)
	if rw.traits.Dialect == dialect.MSSQL {
		return "N'" + escaped + "'"
	}
	return "'" + escaped + "'"
}

func (rw *Rewriter) escapeForDialect(s string) string {
	if rw.traits.EscapeMode == dialect.EscapeBackslash {
		r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
		return r.Replace(s)
	}
	return strings.ReplaceAll(s, "'", "''")
}

func escapeCopyField(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)
	return r.Replace(s)
}

func (rw *Rewriter) applyHash(lit rowparser.Literal, preserveDomain, copyContext bool) string {
	sum := sha256.Sum256([]byte(lit.Text))
	digest := hex.EncodeToString(sum[:])[:16]

	if preserveDomain {
		if local, domain, ok := splitEmail(lit.Text); ok {
			localSum := sha256.Sum256([]byte(local))
			short := hex.EncodeToString(localSum[:])[:8]
			return rw.formatString(short+"@"+domain, copyContext)
		}
	}
	return rw.formatString(digest, copyContext)
}

func splitEmail(s string) (local, domain string, ok bool) {
	idx := strings.IndexByte(s, '@')
	if idx <= 0 || idx == len(s)-1 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

func (rw *Rewriter) applyMask(lit rowparser.Literal, pattern string, copyContext bool) string {
	original := []byte(lit.Text)
	out := make([]byte, len(pattern))
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*':
			out[i] = '*'
		case 'X':
			if i < len(original) {
				out[i] = original[i]
			} else {
				out[i] = 'X'
			}
		case '#':
			out[i] = byte('0' + rw.rng.IntN(10))
		default:
			out[i] = pattern[i]
		}
	}
	return rw.formatString(string(out), copyContext)
}

var fakeGenerators = map[string]func(*Rng) string{
	"name": func(r *Rng) string {
		first := []string{"Alex", "Jordan", "Taylor", "Morgan", "Casey"}
		last := []string{"Smith", "Johnson", "Lee", "Brown", "Garcia"}
		return first[r.IntN(len(first))] + " " + last[r.IntN(len(last))]
	},
	"email": func(r *Rng) string {
		return fmt.Sprintf("user%d@example.test", r.IntN(1_000_000))
	},
	"phone": func(r *Rng) string {
		return fmt.Sprintf("+1-555-%03d-%04d", r.IntN(1000), r.IntN(10000))
	},
	"address": func(r *Rng) string {
		return fmt.Sprintf("%d Example St", 100+r.IntN(9900))
	},
	"date": func(r *Rng) string {
		return fmt.Sprintf("2020-%02d-%02d", 1+r.IntN(12), 1+r.IntN(28))
	},
	"uuid": func(r *Rng) string {
		var b [16]byte
		for i := range b {
			b[i] = byte(r.IntN(256))
		}
		b[6] = (b[6] & 0x0f) | 0x40
		b[8] = (b[8] & 0x3f) | 0x80
		return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
	},
	"credit_card": func(r *Rng) string {
		return fmt.Sprintf("4%03d-%04d-%04d-%04d", r.IntN(1000), r.IntN(10000), r.IntN(10000), r.IntN(10000))
	},
}

func (rw *Rewriter) applyFake(generator string, copyContext bool) string {
	gen, ok := fakeGenerators[generator]
	if !ok {
		gen = fakeGenerators["name"]
	}
	return rw.formatString(gen(rw.rng), copyContext)
}

// FormatNumber re-formats a Decimal column's numeric literal with no
// exponent and exactly two digits after the decimal point. Text that is not
// for a Decimal column, or does not parse as a number, is returned unchanged.
func FormatNumber(text string, isDecimal bool) string {
	if !isDecimal {
		return text
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return text
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

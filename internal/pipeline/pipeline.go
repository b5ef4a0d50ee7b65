// Package pipeline wires together the substrate every cmd/sql* binary
// shares: open a byte source, resolve or detect its dialect, drive the
// scanner/classifier over it, and (on a second pass) build schema-relative
// row tuples for the validator, sampler, shard extractor, and differ.
// Extracted once so every subcommand's main.go stays as thin as the
// teacher's cmd/mysqldef.
package pipeline

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sqldef-engine/sqldef-engine/internal/bytesource"
	"github.com/sqldef-engine/sqldef-engine/internal/classify"
	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/issue"
	"github.com/sqldef-engine/sqldef-engine/internal/pk"
	"github.com/sqldef-engine/sqldef-engine/internal/rowparser"
	"github.com/sqldef-engine/sqldef-engine/internal/scanner"
	"github.com/sqldef-engine/sqldef-engine/internal/schema"
)

// ResolveDialect returns flag parsed as a Dialect, or, when flag is empty,
// sniffs the first 16 KiB of path through the Dialect Detector. The source is opened and closed solely for sniffing; callers open
// their own Source for the actual scan passes since Source never seeks.
func ResolveDialect(path, flag string) (dialect.Dialect, dialect.Confidence, error) {
	if flag != "" {
		d, ok := dialect.Parse(strings.ToLower(flag))
		if !ok {
			return dialect.MySQL, dialect.Low, fmt.Errorf("pipeline: unknown dialect %q", flag)
		}
		return d, dialect.High, nil
	}

	src, err := bytesource.Open(path)
	if err != nil {
		return dialect.MySQL, dialect.Low, err
	}
	defer src.Close()

	window := make([]byte, 16*1024)
	n, _ := io.ReadFull(src, window)
	det := dialect.Detect(window[:n])
	return det.Dialect, det.Confidence, nil
}

// OpenScanner opens a fresh Source over path and wraps it in a Scanner
// sized from the file's length, ready for a full pass from the start. Any
// bytesource.Option (e.g. WithProgress) is forwarded to Open.
func OpenScanner(path string, d dialect.Dialect, opts ...bytesource.Option) (*bytesource.Source, *scanner.Scanner, error) {
	src, err := bytesource.Open(path, opts...)
	if err != nil {
		return nil, nil, err
	}
	hint := scanner.BufferSizeHint(fileSize(path))
	return src, scanner.New(src, d, hint, scanner.DefaultMaxStatement), nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// ProgressReporter prints cumulative bytes read to w every time it crosses
// another interval boundary (default 10 MiB), suitable for wiring into
// bytesource.WithProgress behind a --progress flag.
func ProgressReporter(w io.Writer, label string, interval uint64) bytesource.ProgressFunc {
	if interval == 0 {
		interval = 10 * 1024 * 1024
	}
	var last uint64
	return func(totalBytesRead uint64) {
		if totalBytesRead-last < interval {
			return
		}
		last = totalBytesRead
		fmt.Fprintf(w, "%s: %d bytes read\n", label, totalBytesRead)
	}
}

// Walk drives sc to exhaustion, classifying every statement and invoking
// visit once per Statement. A COPY header (classify.Copy) is immediately
// followed by its CopyData payload, surfaced as a second visit call tagged
// classify.CopyData and carrying the header's table/column list, mirroring
// how the scanner's own test harness stitches the two back together
// (internal/scanner/scanner_test.go's scanAll helper).
func Walk(sc *scanner.Scanner, traits dialect.Traits, visit func(scanner.Statement, classify.Result) error) error {
	for {
		stmt, err := sc.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		cls := classify.Classify(stmt.Bytes, traits)
		if err := visit(stmt, cls); err != nil {
			return err
		}

		if stmt.Kind == scanner.KindStatement && cls.Kind == classify.Copy {
			data, err := sc.ReadCopyData()
			if err != nil {
				return err
			}
			dataCls := classify.Result{Kind: classify.CopyData, Table: cls.Table, ColumnsHeader: cls.ColumnsHeader}
			if err := visit(data, dataCls); err != nil {
				return err
			}
		}
	}
}

// BuildSchemaInto runs the DDL pass over path into an already-constructed
// Builder, without resolving foreign keys: callers that build a schema
// spanning multiple input files (e.g. sqlmerge reassembling a split dump)
// call this once per file and call b.ResolveForeignKeys() themselves after
// the last one.
func BuildSchemaInto(path string, d dialect.Dialect, b *schema.Builder) error {
	src, sc, err := OpenScanner(path, d)
	if err != nil {
		return err
	}
	defer src.Close()

	traits := dialect.TraitsFor(d)
	return Walk(sc, traits, func(stmt scanner.Statement, cls classify.Result) error {
		raw := string(stmt.Bytes)
		switch cls.Kind {
		case classify.CreateTable:
			b.HandleCreateTable(raw, cls.Table)
		case classify.AlterTable:
			b.HandleAlterTable(raw, cls.Table)
		case classify.DropTable:
			b.HandleDropTable(cls.Table)
		case classify.CreateIndex:
			b.HandleCreateIndex(raw, cls.Table)
		}
		return nil
	})
}

// BuildSchema performs the DDL pass over path: every CreateTable,
// AlterTable, DropTable, and CreateIndex statement is fed to a
// schema.Builder, and the result has ResolveForeignKeys already applied.
func BuildSchema(path string, d dialect.Dialect, issues *issue.List) (*schema.Schema, error) {
	b := schema.NewBuilder(d, issues)
	if err := BuildSchemaInto(path, d, b); err != nil {
		return nil, err
	}
	b.ResolveForeignKeys()
	return b.Schema(), nil
}

// ValuesTail returns the slice of raw following its first case-insensitive
// "VALUES" keyword, the tuple list an INSERT statement's row parser
// consumes. Returns nil if no VALUES keyword is present (e.g. an
// INSERT ... SELECT, which the Row Parser does not decompose).
func ValuesTail(raw []byte) []byte {
	upper := strings.ToUpper(string(raw))
	idx := strings.Index(upper, "VALUES")
	if idx < 0 {
		return nil
	}
	return raw[idx+len("VALUES"):]
}

// CopyDataRows splits a CopyData payload into its constituent rows, one
// per non-empty line, stopping before the `\.` terminator line.
func CopyDataRows(payload []byte) []rowparser.Row {
	lines := copyLines(payload)
	rows := make([]rowparser.Row, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, rowparser.ParseCopyRow(line))
	}
	return rows
}

func copyLines(payload []byte) []string {
	raw := strings.Split(string(payload), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if line == "" || line == `\.` {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// FilterCopyPayload rebuilds a CopyData payload keeping only the rows whose
// corresponding keep[i] is true, re-appending the `\.` terminator.
func FilterCopyPayload(payload []byte, keep []bool) []byte {
	lines := copyLines(payload)
	var b strings.Builder
	for i, line := range lines {
		if i < len(keep) && !keep[i] {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(`\.` + "\n")
	return []byte(b.String())
}

// InsertHeader returns the slice of raw up to and including its first
// case-insensitive "VALUES" keyword (the "INSERT INTO t (cols) VALUES"
// prefix), or nil if absent.
func InsertHeader(raw []byte) []byte {
	upper := strings.ToUpper(string(raw))
	idx := strings.Index(upper, "VALUES")
	if idx < 0 {
		return nil
	}
	return raw[:idx+len("VALUES")]
}

// FilterInsertStatement rebuilds an INSERT statement keeping only the rows
// whose corresponding keep[i] is true, preserving each retained row's
// original literal text via its byte range in valuesTail rather than the
// row parser's decoded Literal.Text (so formatting/quoting is unchanged).
// Returns nil if no row survives.
func FilterInsertStatement(raw, valuesTail []byte, rows []rowparser.Row, keep []bool) []byte {
	header := InsertHeader(raw)
	if header == nil {
		return nil
	}
	var kept []string
	for i, row := range rows {
		if i < len(keep) && !keep[i] {
			continue
		}
		if len(row.Values) == 0 {
			continue
		}
		start := row.Values[0].RangeStart
		end := row.Values[len(row.Values)-1].RangeEnd
		kept = append(kept, "("+string(valuesTail[start:end])+")")
	}
	if len(kept) == 0 {
		return nil
	}
	var b strings.Builder
	b.Write(header)
	b.WriteByte(' ')
	b.WriteString(strings.Join(kept, ", "))
	b.WriteByte(';')
	return []byte(b.String())
}

// RewriteValuesTail rebuilds valuesTail with selected literals replaced in
// place: replace is called for every literal in row order (rowIdx, the
// literal's position within that row's Values, and the literal itself) and
// returns the text to splice in and true, or false to keep the literal's
// original byte span untouched. Everything between and around literals
// (parens, commas, whitespace, row boundaries) is copied through verbatim,
// so output stays byte-identical except where replace opts in.
func RewriteValuesTail(valuesTail []byte, rows []rowparser.Row, replace func(rowIdx, valIdx int, lit rowparser.Literal) (string, bool)) []byte {
	var b strings.Builder
	cursor := 0
	for rowIdx, row := range rows {
		for valIdx, lit := range row.Values {
			if lit.RangeStart < cursor || lit.RangeEnd > len(valuesTail) {
				continue
			}
			b.Write(valuesTail[cursor:lit.RangeStart])
			if repl, ok := replace(rowIdx, valIdx, lit); ok {
				b.WriteString(repl)
			} else {
				b.Write(valuesTail[lit.RangeStart:lit.RangeEnd])
			}
			cursor = lit.RangeEnd
		}
	}
	b.Write(valuesTail[cursor:])
	return []byte(b.String())
}

// RewriteCopyPayload rebuilds a CopyData payload field by field: replace is
// called for every tab-separated field (rowIdx, its field index, and its
// parsed Literal) and returns the replacement field text and true, or
// false to keep the field unchanged.
func RewriteCopyPayload(payload []byte, replace func(rowIdx, valIdx int, lit rowparser.Literal) (string, bool)) []byte {
	lines := copyLines(payload)
	var b strings.Builder
	for rowIdx, line := range lines {
		fields := strings.Split(line, "\t")
		row := rowparser.ParseCopyRow(line)
		for valIdx := range fields {
			if repl, ok := replace(rowIdx, valIdx, row.Values[valIdx]); ok {
				fields[valIdx] = repl
			}
		}
		b.WriteString(strings.Join(fields, "\t"))
		b.WriteByte('\n')
	}
	b.WriteString(`\.` + "\n")
	return []byte(b.String())
}

// InsertPositions resolves the schema-ordinal -> row-position mapping for
// an INSERT or COPY row, given the statement's explicit column list (may be
// empty, meaning positional 1:1 mapping in declaration order).
func InsertPositions(table *schema.TableSchema, columnsHeader []string) []int {
	if len(columnsHeader) == 0 {
		return rowparser.DefaultPositions(len(table.Columns))
	}
	ordinals := make([]int, len(columnsHeader))
	for i, name := range columnsHeader {
		ordinals[i] = table.ColumnOrdinal(name)
	}
	return rowparser.PositionsFromColumnList(ordinals, len(table.Columns))
}

// RowTuples extracts a row's primary-key tuple (nil if the table has no PK
// or the row doesn't supply every PK column) and its foreign-key tuples,
// keyed by referenced table name, skipping any FK tuple with a NULL
// component.
func RowTuples(table *schema.TableSchema, row rowparser.Row, positions []int) (pkTuple pk.Tuple, fkTuples map[string]pk.Tuple) {
	if len(table.PrimaryKey) > 0 {
		if t, ok := rowparser.ExtractTuple(row, table.PrimaryKey, positions); ok {
			pkTuple = t
		}
	}
	fkTuples = make(map[string]pk.Tuple)
	for _, fk := range table.ForeignKeys {
		if t, ok := rowparser.ExtractFKTuple(row, fk.Columns, positions); ok {
			fkTuples[fk.RefTable] = t
		}
	}
	return pkTuple, fkTuples
}

// Rows decomposes one DML statement (Insert or CopyData) into its Row
// tuples, dispatching on cls.Kind.
func Rows(stmt scanner.Statement, cls classify.Result, traits dialect.Traits) ([]rowparser.Row, error) {
	switch cls.Kind {
	case classify.Insert:
		tail := ValuesTail(stmt.Bytes)
		if tail == nil {
			return nil, nil
		}
		return rowparser.ParseInsertRows(tail, traits)
	case classify.CopyData:
		return CopyDataRows(stmt.Bytes), nil
	default:
		return nil, nil
	}
}

package schema

import (
	"strings"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/issue"
)

var inlineConstraintWords = map[string]bool{
	"PRIMARY": true, "NOT": true, "NULL": true, "DEFAULT": true,
	"AUTO_INCREMENT": true, "AUTOINCREMENT": true, "REFERENCES": true,
}

// Builder assembles a Schema from DDL statements consumed in source order
//. It never aborts on a single malformed column or
// constraint; failures become warnings on the returned issue list and the
// offending element is skipped.
type Builder struct {
	schema *Schema
	traits dialect.Traits
	issues *issue.List
}

// NewBuilder returns an empty builder for the given dialect.
func NewBuilder(d dialect.Dialect, issues *issue.List) *Builder {
	return &Builder{schema: NewSchema(), traits: dialect.TraitsFor(d), issues: issues}
}

// Schema returns the schema assembled so far. After the last DDL statement
// has been handled, call ResolveForeignKeys once to fix up referenced-table
// ids.
func (b *Builder) Schema() *Schema { return b.schema }

// HandleCreateTable parses a `CREATE TABLE [IF NOT EXISTS] name (...)` body
// and adds the resulting TableSchema to the schema. tableName is the name
// already extracted by the classifier.
func (b *Builder) HandleCreateTable(raw, tableName string) {
	body, ok := extractParenBody(raw)
	if !ok {
		b.issues.Add(issue.New(issue.Warning, issue.CodeMalformedStatement, "CREATE TABLE without a parenthesized body").WithTable(tableName))
		return
	}

	t := &TableSchema{Name: tableName, RawCreate: raw}
	entries := splitTopLevelCommas(body, b.traits)
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		b.handleTableEntry(t, entry)
	}

	if _, added := b.schema.AddTable(t); !added {
		b.issues.AddOnce("redefinition:"+strings.ToLower(tableName), issue.New(issue.Warning, issue.CodeSchemaRedefinition, "table redefined, later definition wins").WithTable(tableName))
		b.schema.ReplaceTable(t)
	}
}

func (b *Builder) handleTableEntry(t *TableSchema, entry string) {
	upper := strings.ToUpper(entry)
	switch {
	case strings.HasPrefix(upper, "PRIMARY KEY"):
		cols := unquoteColumnList(entry[len("PRIMARY KEY"):], b.traits)
		b.applyPrimaryKey(t, cols)

	case strings.HasPrefix(upper, "UNIQUE KEY") || strings.HasPrefix(upper, "UNIQUE INDEX"):
		name, cols := namedIndexSpec(entry, firstKeywordLen(upper, 2), b.traits)
		t.Indexes = append(t.Indexes, Index{Name: name, Columns: cols, Unique: true})

	case strings.HasPrefix(upper, "UNIQUE"):
		cols := unquoteColumnList(entry[len("UNIQUE"):], b.traits)
		t.Indexes = append(t.Indexes, Index{Columns: cols, Unique: true})

	case strings.HasPrefix(upper, "CONSTRAINT"):
		b.handleConstraintEntry(t, entry)

	case strings.HasPrefix(upper, "FOREIGN KEY"):
		fk, localCols, ok := parseForeignKey(entry[len("FOREIGN KEY"):], b.traits)
		if !ok {
			b.issues.Add(issue.New(issue.Warning, issue.CodeMalformedStatement, "malformed FOREIGN KEY clause").WithTable(t.Name))
			return
		}
		t.ForeignKeys = append(t.ForeignKeys, resolveLocalOrdinals(t, fk, localCols))

	case strings.HasPrefix(upper, "KEY") || strings.HasPrefix(upper, "INDEX"):
		name, cols := namedIndexSpec(entry, firstKeywordLen(upper, 1), b.traits)
		t.Indexes = append(t.Indexes, Index{Name: name, Columns: cols})

	default:
		b.handleColumnEntry(t, entry)
	}
}

func firstKeywordLen(upper string, numWords int) int {
	i := 0
	words := 0
	for words < numWords && i < len(upper) {
		for i < len(upper) && upper[i] == ' ' {
			i++
		}
		for i < len(upper) && upper[i] != ' ' {
			i++
		}
		words++
	}
	return i
}

func namedIndexSpec(entry string, skip int, traits dialect.Traits) (string, []string) {
	rest := strings.TrimSpace(entry[min(skip, len(entry)):])
	toks := tokenize(rest, traits)
	var name string
	var colsTok string
	if len(toks) > 0 && !strings.HasPrefix(toks[0], "(") {
		name = unquoteToken(toks[0], traits)
		if len(toks) > 1 {
			colsTok = toks[1]
		}
	} else if len(toks) > 0 {
		colsTok = toks[0]
	}
	var cols []string
	if colsTok != "" {
		cols = unquoteColumnList(colsTok, traits)
	}
	return name, cols
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (b *Builder) handleConstraintEntry(t *TableSchema, entry string) {
	toks := tokenize(entry, b.traits)
	if len(toks) < 2 {
		b.issues.Add(issue.New(issue.Warning, issue.CodeMalformedStatement, "malformed CONSTRAINT clause").WithTable(t.Name))
		return
	}
	name := unquoteToken(toks[1], b.traits)
	rest := strings.TrimSpace(entry)
	upper := strings.ToUpper(rest)
	idx := strings.Index(upper, "FOREIGN KEY")
	if idx < 0 {
		// Other constraint kinds (CHECK, UNIQUE with a name, ...) are not
		// part of the FK/PK model this builder maintains.
		return
	}
	fk, localCols, ok := parseForeignKey(rest[idx+len("FOREIGN KEY"):], b.traits)
	if !ok {
		b.issues.Add(issue.New(issue.Warning, issue.CodeMalformedStatement, "malformed FOREIGN KEY clause").WithTable(t.Name))
		return
	}
	fk.Name = name
	t.ForeignKeys = append(t.ForeignKeys, resolveLocalOrdinals(t, fk, localCols))
}

// parseForeignKey parses the remainder after the "FOREIGN KEY" keyword:
// "(cols) REFERENCES table(cols) [ON DELETE action] [ON UPDATE action]".
// It returns the FK (with Columns left as zeroed placeholders, one per
// local column) alongside the local column names themselves, so the caller
// can resolve them to ordinals via resolveLocalOrdinals once it knows which
// table the constraint belongs to.
func parseForeignKey(rest string, traits dialect.Traits) (ForeignKey, []string, bool) {
	toks := tokenize(rest, traits)
	if len(toks) == 0 || !strings.HasPrefix(toks[0], "(") {
		return ForeignKey{}, nil, false
	}
	localCols := unquoteColumnList(toks[0], traits)
	i := 1
	for i < len(toks) && strings.ToUpper(toks[i]) != "REFERENCES" {
		i++
	}
	if i >= len(toks)-1 {
		return ForeignKey{}, nil, false
	}
	i++ // consume REFERENCES
	refTable := unquoteToken(toks[i], traits)
	i++
	var refCols []string
	if i < len(toks) && strings.HasPrefix(toks[i], "(") {
		refCols = unquoteColumnList(toks[i], traits)
		i++
	}

	var onDelete, onUpdate ReferentialAction
	for i < len(toks) {
		if strings.ToUpper(toks[i]) == "ON" && i+2 < len(toks) {
			kind := strings.ToUpper(toks[i+1])
			action, consumed := readReferentialAction(toks, i+2)
			switch kind {
			case "DELETE":
				onDelete = ReferentialAction(action)
			case "UPDATE":
				onUpdate = ReferentialAction(action)
			}
			i += 2 + consumed
			continue
		}
		i++
	}

	return ForeignKey{
		Columns:    make([]int, len(localCols)),
		RefTable:   refTable,
		RefColumns: refCols,
		RefTableID: -1,
		OnDelete:   onDelete,
		OnUpdate:   onUpdate,
	}, localCols, true
}

func readReferentialAction(toks []string, i int) (string, int) {
	if i >= len(toks) {
		return "", 0
	}
	switch strings.ToUpper(toks[i]) {
	case "SET":
		if i+1 < len(toks) {
			return "SET " + strings.ToUpper(toks[i+1]), 2
		}
		return "SET", 1
	case "NO":
		if i+1 < len(toks) && strings.ToUpper(toks[i+1]) == "ACTION" {
			return "NO ACTION", 2
		}
		return "NO", 1
	default:
		return strings.ToUpper(toks[i]), 1
	}
}

// resolveLocalOrdinals maps a FK's local column names to the owning
// table's column ordinals.
func resolveLocalOrdinals(t *TableSchema, fk ForeignKey, localCols []string) ForeignKey {
	for i, name := range localCols {
		fk.Columns[i] = t.ColumnOrdinal(name)
	}
	return fk
}

func (b *Builder) applyPrimaryKey(t *TableSchema, cols []string) {
	for _, name := range cols {
		ord := t.ColumnOrdinal(name)
		if ord < 0 {
			continue
		}
		t.PrimaryKey = append(t.PrimaryKey, ord)
		t.Columns[ord].PrimaryKey = true
		t.Columns[ord].Nullable = false
	}
}

func (b *Builder) handleColumnEntry(t *TableSchema, entry string) {
	toks := tokenize(entry, b.traits)
	if len(toks) == 0 {
		return
	}
	name := unquoteToken(toks[0], b.traits)
	col := Column{Name: name, Ordinal: len(t.Columns), Nullable: true}

	i := 1
	var typeParts []string
	if i < len(toks) {
		typeParts = append(typeParts, toks[i])
		i++
	}
	if i < len(toks) && strings.HasPrefix(toks[i], "(") {
		typeParts = append(typeParts, toks[i])
		i++
	}
	for i < len(toks) && !inlineConstraintWords[strings.ToUpper(toks[i])] {
		typeParts = append(typeParts, toks[i])
		i++
	}
	col.RawType = strings.Join(typeParts, " ")
	col.Type = MapColumnType(col.RawType)

	var inlineFK *ForeignKey
	var inlineFKLocal string
	for i < len(toks) {
		switch strings.ToUpper(toks[i]) {
		case "PRIMARY":
			i++
			if i < len(toks) && strings.ToUpper(toks[i]) == "KEY" {
				i++
			}
			col.PrimaryKey = true
			col.Nullable = false
		case "NOT":
			i++
			if i < len(toks) && strings.ToUpper(toks[i]) == "NULL" {
				i++
			}
			col.Nullable = false
		case "NULL":
			i++
		case "AUTO_INCREMENT", "AUTOINCREMENT":
			i++
		case "DEFAULT":
			i++
			if i < len(toks) {
				i++
				if i < len(toks) && strings.HasPrefix(toks[i], "(") {
					i++
				}
			}
		case "REFERENCES":
			i++
			if i < len(toks) {
				inlineFKLocal = name
				refTable := unquoteToken(toks[i], b.traits)
				i++
				var refCols []string
				if i < len(toks) && strings.HasPrefix(toks[i], "(") {
					refCols = unquoteColumnList(toks[i], b.traits)
					i++
				}
				inlineFK = &ForeignKey{RefTable: refTable, RefColumns: refCols, RefTableID: -1, Columns: []int{0}}
			}
		default:
			i++
		}
	}

	t.Columns = append(t.Columns, col)
	if col.PrimaryKey {
		t.PrimaryKey = append(t.PrimaryKey, col.Ordinal)
	}
	if inlineFK != nil {
		inlineFK.Columns[0] = t.ColumnOrdinal(inlineFKLocal)
		t.ForeignKeys = append(t.ForeignKeys, *inlineFK)
	}
}

// HandleAlterTable picks up `ADD CONSTRAINT ... FOREIGN KEY ...` and
// `ADD INDEX/KEY ...` clauses; other ALTER forms (column
// add/drop/modify, RENAME, etc.) are outside the schema model this builder
// maintains and are silently ignored.
func (b *Builder) HandleAlterTable(raw, tableName string) {
	t, ok := b.schema.TableByName(tableName)
	if !ok {
		b.issues.AddOnce("ddl-missing:"+strings.ToLower(tableName), issue.New(issue.Warning, issue.CodeDDLMissingTable, "ALTER TABLE references a table with no known CREATE TABLE").WithTable(tableName))
		return
	}

	upper := strings.ToUpper(raw)
	idx := strings.Index(upper, "ADD")
	if idx < 0 {
		return
	}
	rest := raw[idx+len("ADD"):]
	restUpper := strings.ToUpper(rest)
	rest = strings.TrimLeft(rest, " \t\r\n")
	restUpper = strings.TrimLeft(restUpper, " \t\r\n")

	switch {
	case strings.HasPrefix(restUpper, "CONSTRAINT"):
		b.handleConstraintEntry(t, strings.TrimRight(rest, "; \t\r\n"))
	case strings.HasPrefix(restUpper, "FOREIGN KEY"):
		fk, localCols, ok := parseForeignKey(rest[len("FOREIGN KEY"):], b.traits)
		if ok {
			t.ForeignKeys = append(t.ForeignKeys, resolveLocalOrdinals(t, fk, localCols))
		}
	case strings.HasPrefix(restUpper, "INDEX") || strings.HasPrefix(restUpper, "KEY"):
		skip := firstKeywordLen(restUpper, 1)
		name, cols := namedIndexSpec(rest, skip, b.traits)
		t.Indexes = append(t.Indexes, Index{Name: name, Columns: cols})
	case strings.HasPrefix(restUpper, "UNIQUE"):
		skip := firstKeywordLen(restUpper, 1)
		name, cols := namedIndexSpec(rest, skip, b.traits)
		t.Indexes = append(t.Indexes, Index{Name: name, Columns: cols, Unique: true})
	}
}

// HandleCreateIndex parses `CREATE [UNIQUE] INDEX name ON table (cols)`.
func (b *Builder) HandleCreateIndex(raw, tableName string) {
	t, ok := b.schema.TableByName(tableName)
	if !ok {
		b.issues.AddOnce("ddl-missing:"+strings.ToLower(tableName), issue.New(issue.Warning, issue.CodeDDLMissingTable, "CREATE INDEX references a table with no known CREATE TABLE").WithTable(tableName))
		return
	}
	upper := strings.ToUpper(raw)
	unique := strings.Contains(upper[:min(len("CREATE UNIQUE"), len(upper))], "UNIQUE")

	nameStart := strings.Index(upper, "INDEX") + len("INDEX")
	onIdx := strings.Index(upper, " ON ")
	if nameStart < len("INDEX") || onIdx < 0 || onIdx < nameStart {
		b.issues.Add(issue.New(issue.Warning, issue.CodeMalformedStatement, "malformed CREATE INDEX").WithTable(tableName))
		return
	}
	name := strings.TrimSpace(raw[nameStart:onIdx])
	name = unquoteToken(name, b.traits)

	afterOn := raw[onIdx+4:]
	open := strings.IndexByte(afterOn, '(')
	if open < 0 {
		b.issues.Add(issue.New(issue.Warning, issue.CodeMalformedStatement, "CREATE INDEX without a column list").WithTable(tableName))
		return
	}
	closeIdx := strings.LastIndexByte(afterOn, ')')
	if closeIdx < open {
		b.issues.Add(issue.New(issue.Warning, issue.CodeMalformedStatement, "CREATE INDEX with unbalanced column list").WithTable(tableName))
		return
	}
	cols := unquoteColumnList(afterOn[open:closeIdx+1], b.traits)
	t.Indexes = append(t.Indexes, Index{Name: name, Columns: cols, Unique: unique})
}

// HandleDropTable removes a table from the schema: a later DROP simply
// retires the table from the live schema, and downstream components never
// see it again.
func (b *Builder) HandleDropTable(tableName string) {
	b.schema.DropTable(tableName)
}

// ResolveForeignKeys is called once all DDL has been consumed. It looks up
// each FK's RefTable against the name index and fills in RefTableID;
// unresolved FKs keep RefTableID == -1 and are reported so downstream
// validation can emit DDL_MISSING_TABLE when data actually exercises them.
func (b *Builder) ResolveForeignKeys() {
	for _, t := range b.schema.Tables {
		if t == nil {
			continue
		}
		for i := range t.ForeignKeys {
			fk := &t.ForeignKeys[i]
			if id, ok := b.schema.TableByName(fk.RefTable); ok {
				fk.RefTableID = id.ID
			} else {
				fk.RefTableID = -1
			}
		}
	}
}

// extractParenBody finds the first top-level "(...)" group in raw and
// returns its inner contents.
func extractParenBody(raw string) (string, bool) {
	open := strings.IndexByte(raw, '(')
	if open < 0 {
		return "", false
	}
	depth := 0
	for i := open; i < len(raw); i++ {
		switch raw[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return raw[open+1 : i], true
			}
		}
	}
	return "", false
}

// Package graphrender turns a resolved Schema into an entity-relationship
// view and renders it as DOT/Graphviz, Mermaid, JSON, or a standalone
// pannable HTML page. Cycle detection is delegated to
// internal/schemagraph rather than reimplemented here.
package graphrender

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sqldef-engine/sqldef-engine/internal/schema"
	"github.com/sqldef-engine/sqldef-engine/internal/schemagraph"
)

// OutputFormat selects the rendering target.
type OutputFormat int

const (
	Dot OutputFormat = iota
	Mermaid
	Json
	Html
)

// ParseOutputFormat accepts the canonical name plus the common aliases.
func ParseOutputFormat(s string) (OutputFormat, bool) {
	switch strings.ToLower(s) {
	case "dot", "graphviz":
		return Dot, true
	case "mermaid", "mmd":
		return Mermaid, true
	case "json":
		return Json, true
	case "html":
		return Html, true
	default:
		return Dot, false
	}
}

func (f OutputFormat) String() string {
	switch f {
	case Mermaid:
		return "mermaid"
	case Json:
		return "json"
	case Html:
		return "html"
	default:
		return "dot"
	}
}

// Extension returns the conventional file extension for f.
func (f OutputFormat) Extension() string {
	switch f {
	case Mermaid:
		return "mmd"
	case Json:
		return "json"
	case Html:
		return "html"
	default:
		return "dot"
	}
}

// FormatFromExtension maps an output file's extension back to a format.
// png/svg/pdf are recognized as Dot, since those are rendered from the DOT
// output by an external `dot` invocation rather than by this package.
func FormatFromExtension(ext string) (OutputFormat, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "dot", "gv", "png", "svg", "pdf":
		return Dot, true
	case "mmd", "mermaid":
		return Mermaid, true
	case "json":
		return Json, true
	case "html", "htm":
		return Html, true
	default:
		return Dot, false
	}
}

// Layout picks the Graphviz rank direction.
type Layout int

const (
	LR Layout = iota
	TB
)

// ParseLayout accepts the canonical name plus its common aliases.
func ParseLayout(s string) (Layout, bool) {
	switch strings.ToLower(s) {
	case "lr", "left-right", "horizontal":
		return LR, true
	case "tb", "td", "top-bottom", "top-down", "vertical":
		return TB, true
	default:
		return LR, false
	}
}

func (l Layout) String() string {
	if l == TB {
		return "TB"
	}
	return "LR"
}

// Cardinality describes how an edge's two endpoints relate. The engine only
// ever derives ManyToOne edges from plain foreign keys; a unique index on
// the FK's local columns would make it OneToOne, but edge derivation does
// not consult the schema's unique indexes.
type Cardinality int

const (
	ManyToOne Cardinality = iota
)

func (c Cardinality) String() string {
	return "ManyToOne"
}

// MermaidSymbol returns the erDiagram relationship token for c.
func (c Cardinality) MermaidSymbol() string {
	return "}o--||"
}

// ColumnInfo is one column as seen by the renderers.
type ColumnInfo struct {
	Name             string
	ColType          string
	IsPrimaryKey     bool
	IsForeignKey     bool
	IsNullable       bool
	ReferencesTable  *string
	ReferencesColumn *string
}

// TableInfo is one table as seen by the renderers.
type TableInfo struct {
	Name    string
	Columns []ColumnInfo
}

// EdgeInfo is one foreign-key-derived relationship.
type EdgeInfo struct {
	FromTable   string
	FromColumn  string
	ToTable     string
	ToColumn    string
	Cardinality Cardinality
}

// View is the renderer-facing projection of a Schema: table and column
// shapes plus the FK edges between them, keyed by table name so renderers
// never need to resolve ids.
type View struct {
	Tables map[string]TableInfo
	Edges  []EdgeInfo
}

// BuildView projects sch into a View. Dropped table slots (schema.DropTable
// leaves a nil entry) are skipped.
func BuildView(sch *schema.Schema) *View {
	v := &View{Tables: make(map[string]TableInfo)}

	for _, t := range sch.Tables {
		if t == nil {
			continue
		}

		fkByColumn := make(map[int]*schema.ForeignKey)
		refIndex := make(map[int]int) // column ordinal -> index within its FK's Columns
		for i := range t.ForeignKeys {
			fk := &t.ForeignKeys[i]
			for idx, col := range fk.Columns {
				fkByColumn[col] = fk
				refIndex[col] = idx
			}
		}

		columns := make([]ColumnInfo, 0, len(t.Columns))
		for _, c := range t.Columns {
			ci := ColumnInfo{
				Name:         c.Name,
				ColType:      rawOrCanonical(c),
				IsPrimaryKey: c.PrimaryKey,
				IsNullable:   c.Nullable,
			}
			if fk, ok := fkByColumn[c.Ordinal]; ok {
				ci.IsForeignKey = true
				refTable := fk.RefTable
				ci.ReferencesTable = &refTable
				if i := refIndex[c.Ordinal]; i < len(fk.RefColumns) {
					refCol := fk.RefColumns[i]
					ci.ReferencesColumn = &refCol
				}
			}
			columns = append(columns, ci)
		}
		v.Tables[t.Name] = TableInfo{Name: t.Name, Columns: columns}

		colByOrdinal := make(map[int]string, len(t.Columns))
		for _, c := range t.Columns {
			colByOrdinal[c.Ordinal] = c.Name
		}
		for _, fk := range t.ForeignKeys {
			for i, colOrdinal := range fk.Columns {
				if i >= len(fk.RefColumns) {
					continue
				}
				fromCol, ok := colByOrdinal[colOrdinal]
				if !ok {
					continue
				}
				v.Edges = append(v.Edges, EdgeInfo{
					FromTable:   t.Name,
					FromColumn:  fromCol,
					ToTable:     fk.RefTable,
					ToColumn:    fk.RefColumns[i],
					Cardinality: ManyToOne,
				})
			}
		}
	}

	sort.Slice(v.Edges, func(i, j int) bool {
		if v.Edges[i].FromTable != v.Edges[j].FromTable {
			return v.Edges[i].FromTable < v.Edges[j].FromTable
		}
		return v.Edges[i].FromColumn < v.Edges[j].FromColumn
	})

	return v
}

func rawOrCanonical(c schema.Column) string {
	if c.RawType != "" {
		return c.RawType
	}
	return c.Type.String()
}

// SortedTables returns every table name in alphabetical order, matching
// both the dot and mermaid renderers' iteration order.
func (v *View) SortedTables() []string {
	names := make([]string, 0, len(v.Tables))
	for name := range v.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *View) TableCount() int { return len(v.Tables) }
func (v *View) EdgeCount() int  { return len(v.Edges) }

// Subview restricts v to the tables named in keep, dropping any edge whose
// endpoint falls outside the set.
func (v *View) Subview(keep map[string]bool) *View {
	out := &View{Tables: make(map[string]TableInfo)}
	for name, info := range v.Tables {
		if keep[name] {
			out.Tables[name] = info
		}
	}
	for _, e := range v.Edges {
		if keep[e.FromTable] && keep[e.ToTable] {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

// graphAndIndex builds a schemagraph.Graph over v's tables (ids assigned by
// alphabetical position) so cycle/ancestor/descendant analysis can reuse
// the engine's one Tarjan/BFS implementation instead of a second one keyed
// by table name.
func (v *View) graphAndIndex() (*schemagraph.Graph, []string, map[string]int) {
	names := v.SortedTables()
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	edges := make([]schemagraph.Edge, 0, len(v.Edges))
	for _, e := range v.Edges {
		from, ok1 := idx[e.FromTable]
		to, ok2 := idx[e.ToTable]
		if ok1 && ok2 {
			edges = append(edges, schemagraph.Edge{From: from, To: to})
		}
	}
	return schemagraph.Build(len(names), edges), names, idx
}

// FilterTransitive restricts v to table plus every table it transitively
// depends on (its FK ancestors), per the graph command's --table/--transitive
// combination.
func (v *View) FilterTransitive(table string) *View {
	g, names, idx := v.graphAndIndex()
	id, ok := idx[table]
	if !ok {
		return &View{Tables: map[string]TableInfo{}}
	}
	keep := map[string]bool{table: true}
	for _, a := range g.Ancestors(id) {
		keep[names[a]] = true
	}
	return v.Subview(keep)
}

// FilterReverse restricts v to table plus every table that transitively
// depends on it, per the graph command's --table/--reverse combination.
func (v *View) FilterReverse(table string) *View {
	g, names, idx := v.graphAndIndex()
	id, ok := idx[table]
	if !ok {
		return &View{Tables: map[string]TableInfo{}}
	}
	keep := map[string]bool{table: true}
	for _, d := range g.Descendants(id) {
		keep[names[d]] = true
	}
	return v.Subview(keep)
}

// FilterCyclesOnly restricts v to tables participating in a cycle (per
// --cycles-only).
func (v *View) FilterCyclesOnly() *View {
	keep := make(map[string]bool)
	for _, name := range CyclicTables(v) {
		keep[name] = true
	}
	return v.Subview(keep)
}

// Cycle is a set of mutually dependent tables, or a single self-referencing
// table.
type Cycle struct {
	Tables []string
}

// IsSelfReference reports whether the cycle is a single table referencing
// itself, rather than a multi-table cycle.
func (c Cycle) IsSelfReference() bool {
	return len(c.Tables) == 1
}

// Display renders the cycle as "a -> b -> ... -> a", or
// "table -> table (self-reference)" for a self-reference.
func (c Cycle) Display() string {
	if c.IsSelfReference() {
		return fmt.Sprintf("%s -> %s (self-reference)", c.Tables[0], c.Tables[0])
	}
	parts := append(append([]string{}, c.Tables...), c.Tables[0])
	return strings.Join(parts, " -> ")
}

// FindCycles detects every cycle in v's FK graph: every strongly connected
// component of size >= 2, plus any single table with a recorded
// self-referencing FK. Delegates the SCC search to schemagraph.Graph.
func FindCycles(v *View) []Cycle {
	g, names, _ := v.graphAndIndex()
	raw := g.FindCycles()
	cycles := make([]Cycle, 0, len(raw))
	for _, rc := range raw {
		tables := make([]string, len(rc.Tables))
		for i, id := range rc.Tables {
			tables[i] = names[id]
		}
		cycles = append(cycles, Cycle{Tables: tables})
	}
	return cycles
}

// CyclicTables flattens every cycle's members into a sorted, deduplicated
// list of table names.
func CyclicTables(v *View) []string {
	seen := make(map[string]bool)
	for _, c := range FindCycles(v) {
		for _, t := range c.Tables {
			seen[t] = true
		}
	}
	names := make([]string, 0, len(seen))
	for t := range seen {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

func keyMarker(c ColumnInfo) string {
	switch {
	case c.IsPrimaryKey:
		return "\U0001F511 PK" // 🔑 PK
	case c.IsForeignKey:
		return "\U0001F517 FK" // 🔗 FK
	default:
		return ""
	}
}

// ToDOT renders v as a Graphviz digraph, one HTML-labeled node per table
// and one edge per foreign key column.
func ToDOT(v *View, layout Layout) string {
	var b strings.Builder
	b.WriteString("digraph ERD {\n")
	fmt.Fprintf(&b, "  rankdir=%s;\n", layout.String())
	b.WriteString("  graph [fontname=\"Helvetica\", bgcolor=\"white\"];\n")
	b.WriteString("  node [fontname=\"Helvetica\", shape=plaintext];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, name := range v.SortedTables() {
		table := v.Tables[name]
		id := escapeDotID(name)
		b.WriteString("  " + id + " [label=<\n")
		b.WriteString("    <TABLE BORDER=\"0\" CELLBORDER=\"1\" CELLSPACING=\"0\" CELLPADDING=\"4\">\n")
		fmt.Fprintf(&b, "      <TR><TD BGCOLOR=\"#4a5568\" COLSPAN=\"3\"><FONT COLOR=\"white\"><B>%s</B></FONT></TD></TR>\n", escapeHTML(table.Name))
		b.WriteString("      <TR><TD><B>Column</B></TD><TD><B>Type</B></TD><TD><B>Key</B></TD></TR>\n")
		for _, col := range table.Columns {
			nameCell := escapeHTML(col.Name)
			if col.IsNullable && !col.IsPrimaryKey {
				nameCell += " NULL"
			}
			fmt.Fprintf(&b, "      <TR><TD>%s</TD><TD>%s</TD><TD>%s</TD></TR>\n",
				nameCell, escapeHTML(col.ColType), keyMarker(col))
		}
		b.WriteString("    </TABLE>\n")
		b.WriteString("  >];\n")
	}

	b.WriteString("\n")
	for _, e := range v.Edges {
		fmt.Fprintf(&b, "  %s:%s -> %s:%s [label=\"%s\\u2192%s\"];\n",
			escapeDotID(e.FromTable), escapeDotID(e.FromColumn),
			escapeDotID(e.ToTable), escapeDotID(e.ToColumn),
			e.FromColumn, e.ToColumn)
	}

	b.WriteString("}\n")
	return b.String()
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

func escapeDotID(s string) string {
	plain := true
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			plain = false
			break
		}
	}
	if plain && s != "" {
		return s
	}
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}

func mermaidSafe(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func mermaidType(rawType string) string {
	if i := strings.IndexByte(rawType, '('); i >= 0 {
		rawType = rawType[:i]
	}
	return mermaidSafe(rawType)
}

// ToMermaid renders v as a Mermaid erDiagram.
func ToMermaid(v *View) string {
	var b strings.Builder
	b.WriteString("erDiagram\n")

	for _, name := range v.SortedTables() {
		table := v.Tables[name]
		fmt.Fprintf(&b, "  %s {\n", mermaidSafe(table.Name))
		for _, col := range table.Columns {
			keyWord := ""
			switch {
			case col.IsPrimaryKey:
				keyWord = "PK"
			case col.IsForeignKey:
				keyWord = "FK"
			}
			fmt.Fprintf(&b, "    %s %s %s\n", mermaidType(col.ColType), mermaidSafe(col.Name), keyWord)
		}
		b.WriteString("  }\n")
	}

	for _, e := range v.Edges {
		fmt.Fprintf(&b, "  %s %s %s : \"%s\"\n",
			mermaidSafe(e.FromTable), e.Cardinality.MermaidSymbol(), mermaidSafe(e.ToTable), e.FromColumn)
	}

	return b.String()
}

// columnJSON and the rest of the erdJSON_ family mirror the on-disk JSON
// shape exactly (snake_case field names), since external tooling consumes
// the graph JSON output directly.
type columnJSON struct {
	Name             string  `json:"name"`
	ColType          string  `json:"type"`
	IsPrimaryKey     bool    `json:"is_primary_key"`
	IsForeignKey     bool    `json:"is_foreign_key"`
	IsNullable       bool    `json:"is_nullable"`
	ReferencesTable  *string `json:"references_table,omitempty"`
	ReferencesColumn *string `json:"references_column,omitempty"`
}

type tableJSON struct {
	Name    string       `json:"name"`
	Columns []columnJSON `json:"columns"`
}

type relationshipJSON struct {
	FromTable   string `json:"from_table"`
	FromColumn  string `json:"from_column"`
	ToTable     string `json:"to_table"`
	ToColumn    string `json:"to_column"`
	Cardinality string `json:"cardinality"`
}

type statsJSON struct {
	TableCount        int `json:"table_count"`
	ColumnCount       int `json:"column_count"`
	RelationshipCount int `json:"relationship_count"`
}

type erdJSON struct {
	Tables        []tableJSON        `json:"tables"`
	Relationships []relationshipJSON `json:"relationships"`
	Stats         statsJSON          `json:"stats"`
}

func buildErdJSON(v *View) erdJSON {
	doc := erdJSON{}
	columnCount := 0
	for _, name := range v.SortedTables() {
		table := v.Tables[name]
		tj := tableJSON{Name: table.Name}
		for _, col := range table.Columns {
			tj.Columns = append(tj.Columns, columnJSON{
				Name:             col.Name,
				ColType:          col.ColType,
				IsPrimaryKey:     col.IsPrimaryKey,
				IsForeignKey:     col.IsForeignKey,
				IsNullable:       col.IsNullable,
				ReferencesTable:  col.ReferencesTable,
				ReferencesColumn: col.ReferencesColumn,
			})
		}
		columnCount += len(tj.Columns)
		doc.Tables = append(doc.Tables, tj)
	}
	for _, e := range v.Edges {
		doc.Relationships = append(doc.Relationships, relationshipJSON{
			FromTable:   e.FromTable,
			FromColumn:  e.FromColumn,
			ToTable:     e.ToTable,
			ToColumn:    e.ToColumn,
			Cardinality: e.Cardinality.String(),
		})
	}
	doc.Stats = statsJSON{
		TableCount:        v.TableCount(),
		ColumnCount:       columnCount,
		RelationshipCount: v.EdgeCount(),
	}
	return doc
}

// ToJSON renders v as the ERD JSON document (tables, relationships, stats).
func ToJSON(v *View) (string, error) {
	b, err := json.MarshalIndent(buildErdJSON(v), "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%[1]s</title>
  <script src="https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.min.js"></script>
  <script src="https://cdn.jsdelivr.net/npm/panzoom@9/dist/panzoom.min.js"></script>
  <link rel="preconnect" href="https://fonts.googleapis.com">
  <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
  <link href="https://fonts.googleapis.com/css2?family=Monda:wght@400;700&display=swap" rel="stylesheet">
  <style>
    :root {
      --color-bg: #0a0a0a;
      --color-surface: #111111;
      --color-text: #e6edf3;
      --color-text-muted: #8b949e;
      --color-border: #27272a;
      --color-accent: #58a6ff;
    }
    [data-theme="light"] {
      --color-bg: #ffffff;
      --color-surface: #f6f8fa;
      --color-text: #1f2328;
      --color-text-muted: #57606a;
      --color-border: #d0d7de;
      --color-accent: #0969da;
    }
    * { box-sizing: border-box; }
    html, body { margin: 0; padding: 0; height: 100%%; background: var(--color-bg); }
    body {
      font-family: 'Monda', sans-serif;
      color: var(--color-text);
      overflow: hidden;
    }
    .diagram-container {
      position: absolute;
      inset: 0;
      cursor: grab;
    }
    .diagram-container:active { cursor: grabbing; }
    .mermaid { display: inline-block; transform-origin: 0 0; }
    .mermaid svg { max-width: none !important; }
    .bottom-bar {
      position: fixed;
      bottom: 0; left: 0; right: 0;
      display: flex;
      align-items: center;
      justify-content: space-between;
      padding: 8px 16px;
      background: var(--color-surface);
      border-top: 1px solid var(--color-border);
      font-size: 12px;
    }
    .bar-left, .bar-right { display: flex; align-items: center; gap: 12px; }
    .logo { color: var(--color-text); text-decoration: none; display: flex; gap: 6px; align-items: center; }
    .sep { color: var(--color-text-muted); }
    .title, .stats { color: var(--color-text-muted); }
  </style>
</head>
<body data-theme="dark">
  <div class="diagram-container">
    <div class="mermaid" id="diagram">
%[2]s
    </div>
  </div>

  <div class="bottom-bar">
    <div class="bar-left">
      <span class="logo"><span>sqldef-engine</span></span>
      <span class="sep">&middot;</span>
      <span class="title">%[1]s</span>
    </div>
    <div class="bar-right">
      <span class="stats">%[3]s</span>
    </div>
  </div>

  <script>
    const mermaidCode = ` + "`%[4]s`" + `;
    let panzoomInstance = null;

    function getPreferredTheme() {
      const saved = localStorage.getItem('erd-theme');
      if (saved) return saved;
      return window.matchMedia('(prefers-color-scheme: dark)').matches ? 'dark' : 'light';
    }

    function initPanzoom() {
      const diagram = document.getElementById('diagram');
      if (panzoomInstance) panzoomInstance.dispose();
      panzoomInstance = panzoom(diagram, { maxZoom: 5, minZoom: 0.1, bounds: false, boundsPadding: 0.1 });
    }

    document.addEventListener('DOMContentLoaded', () => {
      const theme = getPreferredTheme();
      document.body.setAttribute('data-theme', theme);
      mermaid.initialize({
        startOnLoad: true,
        theme: theme === 'dark' ? 'dark' : 'default',
        maxTextSize: 500000,
        er: { useMaxWidth: false },
        securityLevel: 'loose'
      });
      mermaid.run().then(() => initPanzoom());
    });
  </script>
</body>
</html>
`

func indentMermaid(code string) string {
	lines := strings.Split(code, "\n")
	for i, l := range lines {
		lines[i] = "      " + l
	}
	return strings.Join(lines, "\n")
}

func escapeJS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "`", "\\`")
	s = strings.ReplaceAll(s, "${", "\\${")
	return s
}

// ToHTML renders v as a standalone pannable HTML page wrapping a Mermaid
// erDiagram. The page takes its dark or light theme from a stored preference
// or the browser's color-scheme setting; it has no theme toggle and no
// copy-to-clipboard button.
func ToHTML(v *View, title string) string {
	mermaidCode := ToMermaid(v)
	stats := fmt.Sprintf("%d tables · %d columns · %d relationships",
		v.TableCount(), countColumns(v), v.EdgeCount())
	return fmt.Sprintf(htmlTemplate,
		escapeHTML(title),
		indentMermaid(mermaidCode),
		stats,
		escapeJS(mermaidCode),
	)
}

func countColumns(v *View) int {
	n := 0
	for _, t := range v.Tables {
		n += len(t.Columns)
	}
	return n
}

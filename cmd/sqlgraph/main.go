// Command sqlgraph renders a dump's schema as an entity-relationship
// graph: DOT, Mermaid, a JSON description, or a self-contained HTML page,
// with optional filtering to one table's neighborhood or to cyclic FKs
// only.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/sqldef-engine/sqldef-engine/internal/graphrender"
	"github.com/sqldef-engine/sqldef-engine/internal/issue"
	"github.com/sqldef-engine/sqldef-engine/internal/pipeline"
	"github.com/sqldef-engine/sqldef-engine/internal/schema"
	"github.com/sqldef-engine/sqldef-engine/internal/schemagraph"
	"github.com/sqldef-engine/sqldef-engine/internal/xlog"
)

type opts struct {
	Dialect      string `long:"dialect" description:"mysql|postgres|sqlite|mssql (omitted: auto-detect)"`
	Format       string `long:"format" description:"dot|mermaid|json|html (omitted: inferred from --output's extension, default dot)"`
	Layout       string `long:"layout" description:"dot layout engine hint: lr|tb" default:"lr"`
	Table        string `long:"table" description:"Focus the graph on one table's neighborhood"`
	Transitive   bool   `long:"transitive" description:"With --table, include every ancestor/descendant, not just direct neighbors"`
	Reverse      bool   `long:"reverse" description:"With --table, walk dependents (children) instead of dependencies (parents)"`
	CyclesOnly   bool   `long:"cycles-only" description:"Keep only tables and edges that participate in an FK cycle"`
	Order        bool   `long:"order" description:"Print tables in FK-dependency order instead of rendering a graph"`
	Output       string `short:"o" long:"output" description:"Output file (default: stdout)"`
	Help         bool   `long:"help" description:"Show this help"`
}

func main() {
	xlog.Init()

	var o opts
	parser := flags.NewParser(&o, flags.None)
	parser.Usage = "[options] dump.sql"
	args, err := parser.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if o.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "exactly one input dump file is required")
		parser.WriteHelp(os.Stderr)
		os.Exit(2)
	}
	input := args[0]

	d, confidence, err := pipeline.ResolveDialect(input, o.Dialect)
	if err != nil {
		slog.Error("resolving dialect", "error", err)
		os.Exit(1)
	}
	if o.Dialect == "" {
		slog.Info("dialect auto-detected", "dialect", d.String(), "confidence", confidence.String())
	}

	issues := &issue.List{}
	sc, err := pipeline.BuildSchema(input, d, issues)
	if err != nil {
		slog.Error("building schema", "error", err)
		os.Exit(1)
	}

	out := os.Stdout
	if o.Output != "" {
		f, err := os.Create(o.Output)
		if err != nil {
			slog.Error("creating output file", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if o.Order {
		printOrder(out, sc)
		return
	}

	view := graphrender.BuildView(sc)

	if o.CyclesOnly {
		view = view.FilterCyclesOnly()
	} else if o.Table != "" {
		switch {
		case o.Reverse && o.Transitive:
			view = view.FilterReverse(o.Table)
		case o.Transitive:
			view = view.FilterTransitive(o.Table)
		default:
			view = filterDirect(view, o.Table, o.Reverse)
		}
	}

	format := resolveFormat(o.Format, o.Output)
	layout, ok := graphrender.ParseLayout(o.Layout)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown --layout %q\n", o.Layout)
		os.Exit(2)
	}

	var rendered string
	switch format {
	case graphrender.Dot:
		rendered = graphrender.ToDOT(view, layout)
	case graphrender.Mermaid:
		rendered = graphrender.ToMermaid(view)
	case graphrender.Html:
		rendered = graphrender.ToHTML(view, "Schema")
	case graphrender.Json:
		rendered, err = graphrender.ToJSON(view)
		if err != nil {
			slog.Error("rendering JSON", "error", err)
			os.Exit(1)
		}
	}

	fmt.Fprintln(out, rendered)
}

// filterDirect restricts view to table plus its immediate FK neighbors:
// the tables it directly references (reverse false) or the tables that
// directly reference it (reverse true).
func filterDirect(view *graphrender.View, table string, reverse bool) *graphrender.View {
	keep := map[string]bool{table: true}
	for _, e := range view.Edges {
		if !reverse && e.FromTable == table {
			keep[e.ToTable] = true
		}
		if reverse && e.ToTable == table {
			keep[e.FromTable] = true
		}
	}
	return view.Subview(keep)
}

func resolveFormat(flag, output string) graphrender.OutputFormat {
	if flag != "" {
		if f, ok := graphrender.ParseOutputFormat(flag); ok {
			return f
		}
	}
	if output != "" {
		if f, ok := graphrender.FormatFromExtension(output); ok {
			return f
		}
	}
	return graphrender.Dot
}

// printOrder prints every table name in ascending FK-dependency order
// (parents before children), with any cyclic tables listed last.
func printOrder(out *os.File, sc *schema.Schema) {
	graph := buildGraph(sc)
	topo := graph.TopoSort()
	for _, id := range topo.Order {
		if t := sc.Tables[id]; t != nil {
			fmt.Fprintln(out, t.Name)
		}
	}
	for _, id := range topo.CyclicTables {
		if t := sc.Tables[id]; t != nil {
			fmt.Fprintln(out, t.Name, "(cyclic)")
		}
	}
}

func buildGraph(sc *schema.Schema) *schemagraph.Graph {
	var edges []schemagraph.Edge
	for _, t := range sc.Tables {
		if t == nil {
			continue
		}
		for _, fk := range t.ForeignKeys {
			if fk.RefTableID < 0 {
				continue
			}
			edges = append(edges, schemagraph.Edge{From: t.ID, To: fk.RefTableID})
		}
	}
	return schemagraph.Build(len(sc.Tables), edges)
}

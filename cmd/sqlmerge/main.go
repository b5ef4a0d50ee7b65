// Command sqlmerge reassembles the per-table files a Writer Pool produced
// (cmd/sqlsplit) into one dump, ordering tables so that every CREATE TABLE
// and its row data precede any table that references it, which keeps merge(split(D)) loadable in one shot
// rather than requiring FK checks to be deferred.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/sqldef-engine/sqldef-engine/internal/issue"
	"github.com/sqldef-engine/sqldef-engine/internal/pipeline"
	"github.com/sqldef-engine/sqldef-engine/internal/schema"
	"github.com/sqldef-engine/sqldef-engine/internal/schemagraph"
	"github.com/sqldef-engine/sqldef-engine/internal/xlog"
)

type opts struct {
	Dialect string `long:"dialect" description:"mysql|postgres|sqlite|mssql (omitted: auto-detect from the first input)"`
	Output  string `short:"o" long:"output" description:"Output file (default: stdout)"`
	JSON    bool   `long:"json" description:"Emit the merge summary as JSON instead of text"`
	Help    bool   `long:"help" description:"Show this help"`
}

func main() {
	xlog.Init()

	var o opts
	parser := flags.NewParser(&o, flags.None)
	parser.Usage = "[options] table1.sql table2.sql ..."
	args, err := parser.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if o.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "at least one input file is required")
		parser.WriteHelp(os.Stderr)
		os.Exit(2)
	}

	d, confidence, err := pipeline.ResolveDialect(args[0], o.Dialect)
	if err != nil {
		slog.Error("resolving dialect", "error", err)
		os.Exit(1)
	}
	if o.Dialect == "" {
		slog.Info("dialect auto-detected from first input", "dialect", d.String(), "confidence", confidence.String())
	}

	issues := &issue.List{}
	b := schema.NewBuilder(d, issues)
	for _, path := range args {
		if err := pipeline.BuildSchemaInto(path, d, b); err != nil {
			slog.Error("reading schema", "file", path, "error", err)
			os.Exit(1)
		}
	}
	b.ResolveForeignKeys()
	sc := b.Schema()

	order := mergeOrder(sc, args)

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

	var bytesWritten int64
	for _, path := range order {
		n, err := copyFile(out, path)
		if err != nil {
			slog.Error("merging file", "file", path, "error", err)
			os.Exit(1)
		}
		bytesWritten += n
	}

	if o.JSON {
		printSummaryJSON(order, bytesWritten)
	} else {
		fmt.Printf("merged %d files (%d bytes) in dependency order:\n", len(order), bytesWritten)
		for _, p := range order {
			fmt.Printf("  %s\n", p)
		}
	}
}

// mergeOrder maps each input file to the schema table it represents (by
// filename stem, the convention cmd/sqlsplit writes) and returns the files
// in ascending topological order from schemagraph.TopoSort, trailing
// unmatched files (the "_other" catch-all, or any file not named after a
// known table) appended afterward in their original order.
func mergeOrder(sc *schema.Schema, inputs []string) []string {
	byTable := make(map[string]string, len(inputs))
	for _, path := range inputs {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		byTable[strings.ToLower(stem)] = path
	}

	var edges []schemagraph.Edge
	for _, t := range sc.Tables {
		if t == nil {
			continue
		}
		for _, fk := range t.ForeignKeys {
			edges = append(edges, schemagraph.Edge{From: t.ID, To: fk.RefTableID})
		}
	}
	graph := schemagraph.Build(len(sc.Tables), edges)
	topo := graph.TopoSort()

	used := make(map[string]bool, len(inputs))
	var ordered []string
	for _, id := range append(topo.Order, topo.CyclicTables...) {
		t := sc.Tables[id]
		if t == nil {
			continue
		}
		if path, ok := byTable[strings.ToLower(t.Name)]; ok {
			ordered = append(ordered, path)
			used[path] = true
		}
	}
	for _, path := range inputs {
		if !used[path] {
			ordered = append(ordered, path)
		}
	}
	return ordered
}

func copyFile(out io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := io.Copy(out, f)
	if err != nil {
		return n, err
	}
	m, err := out.Write([]byte("\n"))
	return n + int64(m), err
}

type mergeSummary struct {
	Files []string `json:"files"`
	Bytes int64    `json:"bytes"`
}

func printSummaryJSON(order []string, bytesWritten int64) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(mergeSummary{Files: order, Bytes: bytesWritten})
}

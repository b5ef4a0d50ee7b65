// Command sqlsample produces a smaller dump by sampling each table's rows
// (by percentage or a target row count), optionally closing the sample
// over foreign keys so the result stays referentially consistent. It runs
// three passes: build the schema, stream every row once to decide what's
// selected, then stream again to write only the selected rows.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/sqldef-engine/sqldef-engine/internal/bytesource"
	"github.com/sqldef-engine/sqldef-engine/internal/classify"
	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/engconfig"
	"github.com/sqldef-engine/sqldef-engine/internal/issue"
	"github.com/sqldef-engine/sqldef-engine/internal/pipeline"
	"github.com/sqldef-engine/sqldef-engine/internal/pk"
	"github.com/sqldef-engine/sqldef-engine/internal/sample"
	"github.com/sqldef-engine/sqldef-engine/internal/scanner"
	"github.com/sqldef-engine/sqldef-engine/internal/schema"
	"github.com/sqldef-engine/sqldef-engine/internal/schemagraph"
	"github.com/sqldef-engine/sqldef-engine/internal/xlog"
)

type opts struct {
	Dialect           string `long:"dialect" description:"mysql|postgres|sqlite|mssql (omitted: auto-detect)"`
	Percent           int    `long:"percent" description:"Percent of rows to keep per table"`
	Rows              int    `long:"rows" description:"Target row count per table (reservoir sampling)"`
	PreserveRelations bool   `long:"preserve-relations" description:"Close the sample over foreign keys so selected rows stay referentially consistent"`
	Seed              uint64 `long:"seed" description:"PRNG seed for reproducible sampling" default:"1"`
	IncludeGlobal     string `long:"include-global" description:"none|lookups|all: how classification.global/lookup tables are treated" default:"lookups"`
	MaxTotalRows      int    `long:"max-total-rows" description:"Cap on total rows selected across every table (0 means unbounded)"`
	Config            string `long:"config" description:"YAML file with table classification overrides"`
	Output            string `short:"o" long:"output" description:"Output file (default: stdout)"`
	Progress          bool   `long:"progress" description:"Report bytes read to stderr as the file is scanned"`
	JSON              bool   `long:"json" description:"Emit the sampling stats as JSON instead of text"`
	Help              bool   `long:"help" description:"Show this help"`
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

	if o.Percent <= 0 && o.Rows <= 0 {
		fmt.Fprintln(os.Stderr, "one of --percent or --rows is required")
		os.Exit(2)
	}

	globalMode, ok := sample.ParseGlobalTableMode(o.IncludeGlobal)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown --include-global value %q\n", o.IncludeGlobal)
		os.Exit(2)
	}

	yamlCfg, err := engconfig.LoadSampleConfig(o.Config)
	if err != nil {
		slog.Error("loading sample config", "error", err)
		os.Exit(1)
	}

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

	mode := sample.ModePercent
	if o.Rows > 0 {
		mode = sample.ModeRows
	}
	cfg := &sample.Config{
		Mode:              mode,
		Percent:           o.Percent,
		Rows:              o.Rows,
		Yaml:              yamlCfg,
		GlobalMode:        globalMode,
		PreserveRelations: o.PreserveRelations,
		Seed:              o.Seed,
		MaxTotalRows:      o.MaxTotalRows,
	}

	graph := buildGraph(sc)
	engine := sample.NewEngine(cfg, graph, issues)
	traits := dialect.TraitsFor(d)

	pkOf := make(map[string]map[int]pk.Digest)
	fkLookup := make(map[string][]sample.FKRef)
	rowCounts := make(map[string]int)

	var scanOpts1 []bytesource.Option
	if o.Progress {
		scanOpts1 = append(scanOpts1, bytesource.WithProgress(pipeline.ProgressReporter(os.Stderr, input+" (pass 1/2)", 0)))
	}
	src1, sc1, err := pipeline.OpenScanner(input, d, scanOpts1...)
	if err != nil {
		slog.Error("opening input", "error", err)
		os.Exit(1)
	}
	err = pipeline.Walk(sc1, traits, func(stmt scanner.Statement, cls classify.Result) error {
		if cls.Kind != classify.Insert && cls.Kind != classify.CopyData {
			return nil
		}
		table, ok := sc.TableByName(cls.Table)
		if !ok {
			return nil
		}
		positions := pipeline.InsertPositions(table, cls.ColumnsHeader)
		rows, err := pipeline.Rows(stmt, cls, traits)
		if err != nil {
			return nil
		}
		for _, row := range rows {
			idx := rowCounts[table.Name]
			rowCounts[table.Name] = idx + 1

			engine.Offer(table.Name, idx)

			pkTuple, fkTuples := pipeline.RowTuples(table, row, positions)
			if pkTuple != nil {
				if pkOf[table.Name] == nil {
					pkOf[table.Name] = make(map[int]pk.Digest)
				}
				pkOf[table.Name][idx] = pkTuple.Hash()
			}
			for refTable, tuple := range fkTuples {
				if tuple == nil || tuple.HasNull() {
					continue
				}
				fkLookup[table.Name] = append(fkLookup[table.Name], sample.FKRef{RowIdx: idx, Parent: refTable, Digest: tuple.Hash()})
			}
		}
		return nil
	})
	src1.Close()
	if err != nil {
		slog.Error("scanning input", "error", err)
		os.Exit(1)
	}

	selected, stats := engine.SelectedRows(fkLookup, pkOf)

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

	var scanOpts2 []bytesource.Option
	if o.Progress {
		scanOpts2 = append(scanOpts2, bytesource.WithProgress(pipeline.ProgressReporter(os.Stderr, input+" (pass 2/2)", 0)))
	}
	src2, sc2, err := pipeline.OpenScanner(input, d, scanOpts2...)
	if err != nil {
		slog.Error("opening input", "error", err)
		os.Exit(1)
	}
	defer src2.Close()

	rowCounts2 := make(map[string]int)
	err = pipeline.Walk(sc2, traits, func(stmt scanner.Statement, cls classify.Result) error {
		return writeFilteredStatement(out, sc, stmt, cls, traits, selected, rowCounts2)
	})
	if err != nil {
		slog.Error("writing output", "error", err)
		os.Exit(1)
	}

	if o.JSON {
		printSampleJSON(stats)
	} else {
		fmt.Fprintf(os.Stderr, "sampled %d tables: %d/%d rows selected\n", stats.TablesSampled, stats.TotalRowsSelected, stats.TotalRowsSeen)
		for _, w := range stats.Warnings {
			fmt.Fprintln(os.Stderr, "warning:", w)
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

type sampleReport struct {
	TablesSampled     int      `json:"tables_sampled"`
	TotalRowsSeen     int      `json:"total_rows_seen"`
	TotalRowsSelected int      `json:"total_rows_selected"`
	Warnings          []string `json:"warnings,omitempty"`
}

func printSampleJSON(stats sample.Stats) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(sampleReport{
		TablesSampled:     stats.TablesSampled,
		TotalRowsSeen:     stats.TotalRowsSeen,
		TotalRowsSelected: stats.TotalRowsSelected,
		Warnings:          stats.Warnings,
	})
}

// writeFilteredStatement re-emits stmt to out, filtering Insert/CopyData
// rows down to the ones selected for their table, and passing every other
// statement (DDL, comments, etc.) through unchanged.
func writeFilteredStatement(out *os.File, sc *schema.Schema, stmt scanner.Statement, cls classify.Result, traits dialect.Traits, selected map[string]map[int]bool, rowCounts map[string]int) error {
	if cls.Kind != classify.Insert && cls.Kind != classify.CopyData {
		if _, err := out.Write(stmt.Bytes); err != nil {
			return err
		}
		_, err := out.Write([]byte("\n"))
		return err
	}

	table, ok := sc.TableByName(cls.Table)
	if !ok {
		return nil
	}
	keptSet := selected[table.Name]

	rows, err := pipeline.Rows(stmt, cls, traits)
	if err != nil || len(rows) == 0 {
		return nil
	}

	keep := make([]bool, len(rows))
	for i := range rows {
		idx := rowCounts[table.Name]
		rowCounts[table.Name] = idx + 1
		keep[i] = keptSet != nil && keptSet[idx]
	}

	switch cls.Kind {
	case classify.Insert:
		tail := pipeline.ValuesTail(stmt.Bytes)
		filtered := pipeline.FilterInsertStatement(stmt.Bytes, tail, rows, keep)
		if filtered == nil {
			return nil
		}
		if _, err := out.Write(filtered); err != nil {
			return err
		}
		_, err := out.Write([]byte("\n"))
		return err
	case classify.CopyData:
		filtered := pipeline.FilterCopyPayload(stmt.Bytes, keep)
		_, err := out.Write(filtered)
		return err
	}
	return nil
}

// Command sqlredact rewrites flagged columns' values in place (null out,
// replace with a constant, hash, mask, shuffle within the column, or
// generate a fake value) without touching row counts or any other part of
// the dump's formatting. An INSERT whose VALUES list cannot be parsed is
// left out of the output.
package main

import (
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
	"github.com/sqldef-engine/sqldef-engine/internal/rewrite"
	"github.com/sqldef-engine/sqldef-engine/internal/rowparser"
	"github.com/sqldef-engine/sqldef-engine/internal/scanner"
	"github.com/sqldef-engine/sqldef-engine/internal/schema"
	"github.com/sqldef-engine/sqldef-engine/internal/xlog"
)

type opts struct {
	Dialect  string `long:"dialect" description:"mysql|postgres|sqlite|mssql (omitted: auto-detect)"`
	Config   string `long:"config" description:"YAML file listing table.column redaction rules" required:"true"`
	Output   string `short:"o" long:"output" description:"Output file (default: stdout)"`
	Progress bool   `long:"progress" description:"Report bytes read to stderr as the file is scanned"`
	Help     bool   `long:"help" description:"Show this help"`
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

	cfg, err := engconfig.LoadRedactionConfig(o.Config)
	if err != nil {
		slog.Error("loading redaction config", "error", err)
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

	traits := dialect.TraitsFor(d)
	shuffleQueues, err := collectShuffleQueues(input, d, traits, sc, cfg)
	if err != nil {
		slog.Error("collecting shuffle columns", "error", err)
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

	var scanOpts []bytesource.Option
	if o.Progress {
		scanOpts = append(scanOpts, bytesource.WithProgress(pipeline.ProgressReporter(os.Stderr, input, 0)))
	}
	src, scn, err := pipeline.OpenScanner(input, d, scanOpts...)
	if err != nil {
		slog.Error("opening input", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	rng := rewrite.NewRng(cfg.Seed)
	rw := rewrite.NewRewriter(d, rng)

	err = pipeline.Walk(scn, traits, func(stmt scanner.Statement, cls classify.Result) error {
		return writeRedactedStatement(out, sc, cfg, rw, shuffleQueues, stmt, cls, traits)
	})
	if err != nil {
		slog.Error("redacting input", "error", err)
		os.Exit(1)
	}
}

// columnNameForPos names the valIdx-th field of a row: the explicit column
// list entry at that position if the statement carried one, otherwise the
// table's declared column at that ordinal (the positional-mapping
// convention every row in this dump family follows when no column list is
// given).
func columnNameForPos(table *schema.TableSchema, columnsHeader []string, valIdx int) string {
	if len(columnsHeader) > 0 {
		if valIdx < len(columnsHeader) {
			return columnsHeader[valIdx]
		}
		return ""
	}
	if valIdx < len(table.Columns) {
		return table.Columns[valIdx].Name
	}
	return ""
}

// collectShuffleQueues runs a pre-pass over the dump to gather, for every
// table.column configured with the shuffle strategy, every row's as-is
// formatted value, then returns a shuffled read-once queue per column:
// shuffle needs the whole column collected before any value can be placed,
// unlike every other strategy which rewrites one value in isolation.
func collectShuffleQueues(path string, d dialect.Dialect, traits dialect.Traits, sc *schema.Schema, cfg *engconfig.RedactionConfig) (map[string]*shuffleQueue, error) {
	shuffled := make(map[string][]string)
	rng := rewrite.NewRng(cfg.Seed)
	rw := rewrite.NewRewriter(d, rng)

	hasShuffleColumn := false
	for _, t := range sc.Tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			if strategy, ok := cfg.StrategyFor(t.Name, c.Name); ok && strategy.Kind == rewrite.Shuffle {
				hasShuffleColumn = true
			}
		}
	}
	if !hasShuffleColumn {
		return nil, nil
	}

	src, scn, err := pipeline.OpenScanner(path, d)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	err = pipeline.Walk(scn, traits, func(stmt scanner.Statement, cls classify.Result) error {
		if cls.Kind != classify.Insert && cls.Kind != classify.CopyData {
			return nil
		}
		table, ok := sc.TableByName(cls.Table)
		if !ok {
			return nil
		}
		rows, err := pipeline.Rows(stmt, cls, traits)
		if err != nil {
			return nil
		}
		for _, row := range rows {
			for valIdx, lit := range row.Values {
				name := columnNameForPos(table, cls.ColumnsHeader, valIdx)
				strategy, ok := cfg.StrategyFor(table.Name, name)
				if !ok || strategy.Kind != rewrite.Shuffle {
					continue
				}
				key := table.Name + "." + name
				shuffled[key] = append(shuffled[key], rw.Rewrite(lit, rewrite.Strategy{Kind: rewrite.Skip}, cls.Kind == classify.CopyData))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	queues := make(map[string]*shuffleQueue, len(shuffled))
	for key, values := range shuffled {
		queues[key] = &shuffleQueue{values: rewrite.ApplyShuffle(values, rng)}
	}
	return queues, nil
}

// shuffleQueue hands out a shuffled column's values one at a time, in the
// same row order the main rewrite pass encounters them in.
type shuffleQueue struct {
	values []string
	next   int
}

func (q *shuffleQueue) take() string {
	if q == nil || q.next >= len(q.values) {
		return ""
	}
	v := q.values[q.next]
	q.next++
	return v
}

func writeRedactedStatement(out *os.File, sc *schema.Schema, cfg *engconfig.RedactionConfig, rw *rewrite.Rewriter, shuffleQueues map[string]*shuffleQueue, stmt scanner.Statement, cls classify.Result, traits dialect.Traits) error {
	if cls.Kind != classify.Insert && cls.Kind != classify.CopyData {
		if _, err := out.Write(stmt.Bytes); err != nil {
			return err
		}
		_, err := out.Write([]byte("\n"))
		return err
	}

	table, ok := sc.TableByName(cls.Table)
	if !ok {
		if _, err := out.Write(stmt.Bytes); err != nil {
			return err
		}
		_, err := out.Write([]byte("\n"))
		return err
	}

	copyContext := cls.Kind == classify.CopyData
	replace := func(rowIdx, valIdx int, lit rowparser.Literal) (string, bool) {
		name := columnNameForPos(table, cls.ColumnsHeader, valIdx)
		strategy, ok := cfg.StrategyFor(table.Name, name)
		if !ok || strategy.Kind == rewrite.Skip {
			return "", false
		}
		if strategy.Kind == rewrite.Shuffle {
			return shuffleQueues[table.Name+"."+name].take(), true
		}
		return rw.Rewrite(lit, strategy, copyContext), true
	}

	switch cls.Kind {
	case classify.Insert:
		tail := pipeline.ValuesTail(stmt.Bytes)
		if tail == nil {
			if _, err := out.Write(stmt.Bytes); err != nil {
				return err
			}
			_, err := out.Write([]byte("\n"))
			return err
		}
		rows, err := rowparser.ParseInsertRows(tail, traits)
		if err != nil {
			return nil
		}
		header := pipeline.InsertHeader(stmt.Bytes)
		rewritten := pipeline.RewriteValuesTail(tail, rows, replace)
		if _, err := out.Write(header); err != nil {
			return err
		}
		if _, err := out.Write(rewritten); err != nil {
			return err
		}
		_, err = out.Write([]byte("\n"))
		return err
	case classify.CopyData:
		rewritten := pipeline.RewriteCopyPayload(stmt.Bytes, replace)
		_, err := out.Write(rewritten)
		return err
	}
	return nil
}

// Command sqlsplit routes every statement in a SQL dump into one output
// file per target table: a single-pass operation that doesn't need a built
// schema.
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
	"github.com/sqldef-engine/sqldef-engine/internal/pipeline"
	"github.com/sqldef-engine/sqldef-engine/internal/scanner"
	"github.com/sqldef-engine/sqldef-engine/internal/writerpool"
	"github.com/sqldef-engine/sqldef-engine/internal/xlog"
)

// otherTable is the catch-all output file for statements the classifier
// couldn't pin to a table (session settings, unknown statements).
const otherTable = "_other"

type opts struct {
	Dialect  string `long:"dialect" description:"mysql|postgres|sqlite|mssql (omitted: auto-detect)"`
	Output   string `short:"o" long:"output" description:"Output directory" required:"true"`
	Progress bool   `long:"progress" description:"Report bytes read to stderr as the file is scanned"`
	JSON     bool   `long:"json" description:"Emit the summary as JSON instead of text"`
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

	d, confidence, err := pipeline.ResolveDialect(input, o.Dialect)
	if err != nil {
		slog.Error("resolving dialect", "error", err)
		os.Exit(1)
	}
	if o.Dialect == "" {
		slog.Info("dialect auto-detected", "dialect", d.String(), "confidence", confidence.String())
	}

	pool := writerpool.New(o.Output)
	if err := pool.EnsureOutputDir(); err != nil {
		slog.Error("creating output directory", "error", err)
		os.Exit(1)
	}

	var scanOpts []bytesource.Option
	if o.Progress {
		scanOpts = append(scanOpts, bytesource.WithProgress(pipeline.ProgressReporter(os.Stderr, input, 0)))
	}
	src, sc, err := pipeline.OpenScanner(input, d, scanOpts...)
	if err != nil {
		slog.Error("opening input", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	var statementCount int
	traits := dialect.TraitsFor(d)
	err = pipeline.Walk(sc, traits, func(stmt scanner.Statement, cls classify.Result) error {
		statementCount++
		table := cls.Table
		if table == "" {
			table = otherTable
		}
		return pool.Write(table, stmt.Bytes)
	})
	if err != nil {
		slog.Error("scanning input", "error", err)
		os.Exit(1)
	}

	if err := pool.CloseAll(); err != nil {
		slog.Error("flushing output files", "error", err)
		os.Exit(1)
	}

	tables := pool.Tables()
	if o.JSON {
		summary := struct {
			Statements int      `json:"statements"`
			Tables     []string `json:"tables"`
		}{statementCount, tables}
		enc := json.NewEncoder(os.Stdout)
		if err := enc.Encode(summary); err != nil {
			slog.Error("encoding summary", "error", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("wrote %d statements across %d files to %s\n", statementCount, len(tables), o.Output)
		for _, t := range tables {
			fmt.Printf("  %s.sql\n", t)
		}
	}
}

// Command sqlvalidate runs the two-pass DDL/DML validator over a dump: pass
// one builds the schema, pass two streams every row checking primary-key
// uniqueness and foreign-key referential integrity.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/sqldef-engine/sqldef-engine/internal/classify"
	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/issue"
	"github.com/sqldef-engine/sqldef-engine/internal/pipeline"
	"github.com/sqldef-engine/sqldef-engine/internal/scanner"
	"github.com/sqldef-engine/sqldef-engine/internal/validate"
	"github.com/sqldef-engine/sqldef-engine/internal/xlog"
)

type opts struct {
	Dialect      string `long:"dialect" description:"mysql|postgres|sqlite|mssql (omitted: auto-detect)"`
	Strict       bool   `long:"strict" description:"Treat warnings as errors for the exit code"`
	NoFKChecks   bool   `long:"no-fk-checks" description:"Skip foreign-key referential integrity checks"`
	MaxRows      int    `long:"max-rows-per-table" description:"Cap on distinct primary keys tracked per table" default:"0"`
	FailFast     bool   `long:"fail-fast" description:"Stop at the first error-severity issue"`
	Progress     bool   `long:"progress" description:"Report bytes read to stderr as the file is scanned"`
	JSON         bool   `long:"json" description:"Emit the validation summary as JSON instead of text"`
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

	validator := validate.New(d.String(), sc, issues, o.MaxRows)

	src, scn, err := pipeline.OpenScanner(input, d)
	if err != nil {
		slog.Error("opening input", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	traits := dialect.TraitsFor(d)
	fastStop := fmt.Errorf("fail-fast: stopping at first error")
	err = pipeline.Walk(scn, traits, func(stmt scanner.Statement, cls classify.Result) error {
		if cls.Kind != classify.Insert && cls.Kind != classify.CopyData {
			return nil
		}
		table, ok := sc.TableByName(cls.Table)
		if !ok {
			validator.ObserveRow(cls.Table, nil, nil)
			return checkFailFast(o.FailFast, issues, fastStop)
		}
		positions := pipeline.InsertPositions(table, cls.ColumnsHeader)
		rows, err := pipeline.Rows(stmt, cls, traits)
		if err != nil {
			return nil
		}
		for _, row := range rows {
			pkTuple, fkTuples := pipeline.RowTuples(table, row, positions)
			if o.NoFKChecks {
				fkTuples = nil
			}
			validator.ObserveRow(cls.Table, pkTuple, fkTuples)
			if err := checkFailFast(o.FailFast, issues, fastStop); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && err != fastStop {
		slog.Error("scanning input", "error", err)
		os.Exit(1)
	}

	summary := validator.Finalize()

	if o.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			slog.Error("encoding summary", "error", err)
			os.Exit(1)
		}
	} else {
		printTextSummary(summary)
	}

	if issues.HasErrorsStrict(o.Strict) {
		os.Exit(1)
	}
}

func checkFailFast(failFast bool, issues *issue.List, sentinel error) error {
	if failFast && issues.HasErrors() {
		return sentinel
	}
	return nil
}

func printTextSummary(s *validate.ValidationSummary) {
	fmt.Printf("dialect: %s\n", s.Dialect)
	fmt.Printf("tables scanned: %d, statements scanned: %d\n", s.Summary.TablesScanned, s.Summary.StatementsScanned)
	fmt.Printf("errors: %d, warnings: %d\n", s.Summary.Errors, s.Summary.Warnings)
	shown := 0
	for _, it := range s.Issues.Items {
		if shown >= 50 {
			fmt.Printf("... %d more issues\n", len(s.Issues.Items)-shown)
			break
		}
		fmt.Println(it.String())
		shown++
	}
}

// Command sqlanalyze reports a dump's shape in a single pass: table and
// column counts, index and foreign-key counts, and a row count per table,
// without the second validation pass sqlvalidate needs to check PK/FK
// integrity.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/jessevdk/go-flags"

	"github.com/sqldef-engine/sqldef-engine/internal/bytesource"
	"github.com/sqldef-engine/sqldef-engine/internal/classify"
	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/issue"
	"github.com/sqldef-engine/sqldef-engine/internal/pipeline"
	"github.com/sqldef-engine/sqldef-engine/internal/scanner"
	"github.com/sqldef-engine/sqldef-engine/internal/schema"
	"github.com/sqldef-engine/sqldef-engine/internal/xlog"
)

type opts struct {
	Dialect  string `long:"dialect" description:"mysql|postgres|sqlite|mssql (omitted: auto-detect)"`
	Progress bool   `long:"progress" description:"Report bytes read to stderr as the file is scanned"`
	JSON     bool   `long:"json" description:"Emit the report as JSON instead of text"`
	Help     bool   `long:"help" description:"Show this help"`
}

type tableStat struct {
	Name        string `json:"name"`
	Columns     int    `json:"columns"`
	Indexes     int    `json:"indexes"`
	ForeignKeys int    `json:"foreign_keys"`
	HasPK       bool   `json:"has_primary_key"`
	Rows        int    `json:"rows"`
}

type report struct {
	Dialect           string      `json:"dialect"`
	Tables            []tableStat `json:"tables"`
	TableCount        int         `json:"table_count"`
	TotalRows         int         `json:"total_rows"`
	StatementsScanned int         `json:"statements_scanned"`
	BytesScanned      int64       `json:"bytes_scanned"`
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
	b := schema.NewBuilder(d, issues)
	traits := dialect.TraitsFor(d)

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

	rowCounts := make(map[string]int)
	statementsScanned := 0
	var bytesScanned int64

	err = pipeline.Walk(sc, traits, func(stmt scanner.Statement, cls classify.Result) error {
		statementsScanned++
		bytesScanned += int64(len(stmt.Bytes))
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
		case classify.Insert, classify.CopyData:
			rows, err := pipeline.Rows(stmt, cls, traits)
			if err != nil {
				return nil
			}
			rowCounts[cls.Table] += len(rows)
		}
		return nil
	})
	if err != nil {
		slog.Error("scanning input", "error", err)
		os.Exit(1)
	}

	b.ResolveForeignKeys()
	sch := b.Schema()

	rep := buildReport(d, sch, rowCounts, statementsScanned, bytesScanned)

	if o.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			slog.Error("encoding report", "error", err)
			os.Exit(1)
		}
		return
	}
	printTextReport(rep)
}

func buildReport(d dialect.Dialect, sch *schema.Schema, rowCounts map[string]int, statementsScanned int, bytesScanned int64) *report {
	rep := &report{Dialect: d.String(), StatementsScanned: statementsScanned, BytesScanned: bytesScanned}
	for _, t := range sch.Tables {
		if t == nil {
			continue
		}
		rows := rowCounts[t.Name]
		rep.Tables = append(rep.Tables, tableStat{
			Name:        t.Name,
			Columns:     len(t.Columns),
			Indexes:     len(t.Indexes),
			ForeignKeys: len(t.ForeignKeys),
			HasPK:       len(t.PrimaryKey) > 0,
			Rows:        rows,
		})
		rep.TotalRows += rows
	}
	sort.Slice(rep.Tables, func(i, j int) bool { return rep.Tables[i].Name < rep.Tables[j].Name })
	rep.TableCount = len(rep.Tables)
	return rep
}

func printTextReport(rep *report) {
	fmt.Printf("dialect: %s\n", rep.Dialect)
	fmt.Printf("tables: %d, rows: %d, statements scanned: %d, bytes scanned: %d\n",
		rep.TableCount, rep.TotalRows, rep.StatementsScanned, rep.BytesScanned)
	for _, t := range rep.Tables {
		pk := "no pk"
		if t.HasPK {
			pk = "pk"
		}
		fmt.Printf("  %-30s columns=%-4d indexes=%-3d fks=%-3d rows=%-8d %s\n",
			t.Name, t.Columns, t.Indexes, t.ForeignKeys, t.Rows, pk)
	}
}

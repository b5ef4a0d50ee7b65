// Command sqlshard extracts one tenant's data out of a multi-tenant dump:
// rows in tables carrying the tenant column are kept when they match the
// target tenant, and every row reachable from a kept row by foreign key is
// pulled in by a downward closure pass, same two-pass shape as sqlsample.
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
	"github.com/sqldef-engine/sqldef-engine/internal/rowparser"
	"github.com/sqldef-engine/sqldef-engine/internal/scanner"
	"github.com/sqldef-engine/sqldef-engine/internal/schema"
	"github.com/sqldef-engine/sqldef-engine/internal/shard"
	"github.com/sqldef-engine/sqldef-engine/internal/xlog"
)

type opts struct {
	Dialect       string `long:"dialect" description:"mysql|postgres|sqlite|mssql (omitted: auto-detect)"`
	Tenant        string `long:"tenant" description:"Target tenant value to extract" required:"true"`
	TenantColumn  string `long:"tenant-column" description:"Tenant column name (omitted: auto-detect from tenant_id/company_id/org_id)"`
	IncludeGlobal string `long:"include-global" description:"none|lookups|all: how lookup tables are treated" default:"lookups"`
	Config        string `long:"config" description:"YAML file with tenant/table role overrides"`
	Output        string `short:"o" long:"output" description:"Output file (default: stdout)"`
	Progress      bool   `long:"progress" description:"Report bytes read to stderr as the file is scanned"`
	JSON          bool   `long:"json" description:"Emit the extraction stats as JSON instead of text"`
	Help          bool   `long:"help" description:"Show this help"`
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

	globalMode, ok := shard.ParseGlobalTableMode(o.IncludeGlobal)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown --include-global value %q\n", o.IncludeGlobal)
		os.Exit(2)
	}

	yamlCfg, err := engconfig.LoadShardConfig(o.Config)
	if err != nil {
		slog.Error("loading shard config", "error", err)
		os.Exit(1)
	}
	tenantColumnConfigured := o.TenantColumn
	if tenantColumnConfigured == "" && yamlCfg != nil {
		tenantColumnConfigured = yamlCfg.Tenant.Column
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

	tenantColumn, tenantColumnOK := resolveTenantColumn(sc, tenantColumnConfigured)
	if !tenantColumnOK {
		slog.Error("could not detect a tenant column in any table; pass --tenant-column")
		os.Exit(1)
	}

	extractor := shard.NewExtractor(yamlCfg, globalMode)
	traits := dialect.TraitsFor(d)
	fkLookup := make(map[string][]shard.FKRef)
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
		ordinal := table.ColumnOrdinal(tenantColumn)

		for _, row := range rows {
			idx := rowCounts[table.Name]
			rowCounts[table.Name] = idx + 1

			pkTuple, fkTuples := pipeline.RowTuples(table, row, positions)
			digest := pk.Digest(0)
			if pkTuple != nil {
				digest = pkTuple.Hash()
			}

			if ordinal >= 0 {
				matches := rowMatchesTenant(row, positions, ordinal, o.Tenant)
				extractor.OfferRootRow(table.Name, idx, digest, matches)
			} else {
				extractor.RegisterRow(table.Name, idx, digest)
			}

			for refTable, tuple := range fkTuples {
				if tuple == nil || tuple.HasNull() {
					continue
				}
				fkLookup[table.Name] = append(fkLookup[table.Name], shard.FKRef{RowIdx: idx, Parent: refTable, Digest: tuple.Hash()})
			}
		}
		return nil
	})
	src1.Close()
	if err != nil {
		slog.Error("scanning input", "error", err)
		os.Exit(1)
	}

	extractor.CloseOverForeignKeys(fkLookup)
	stats := extractor.Finalize(tenantColumn)

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
		return writeSelectedStatement(out, sc, extractor, stmt, cls, traits, rowCounts2)
	})
	if err != nil {
		slog.Error("writing output", "error", err)
		os.Exit(1)
	}

	if o.JSON {
		printShardJSON(stats)
	} else {
		fmt.Fprintf(os.Stderr, "tenant column: %s\n", stats.DetectedTenantColumn)
		fmt.Fprintf(os.Stderr, "extracted %d/%d rows across %d tables\n", stats.TotalRowsSelected, stats.TotalRowsSeen, stats.TablesProcessed)
		for _, w := range stats.Warnings {
			fmt.Fprintln(os.Stderr, "warning:", w)
		}
	}
}

type shardReport struct {
	TablesProcessed      int      `json:"tables_processed"`
	TotalRowsSeen        int      `json:"total_rows_seen"`
	TotalRowsSelected    int      `json:"total_rows_selected"`
	DetectedTenantColumn string   `json:"tenant_column"`
	Warnings             []string `json:"warnings,omitempty"`
}

func printShardJSON(stats shard.Stats) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(shardReport{
		TablesProcessed:      stats.TablesProcessed,
		TotalRowsSeen:        stats.TotalRowsSeen,
		TotalRowsSelected:    stats.TotalRowsSelected,
		DetectedTenantColumn: stats.DetectedTenantColumn,
		Warnings:             stats.Warnings,
	})
}

// resolveTenantColumn picks the tenant column name used across the dump:
// the configured/flag-given name if set, otherwise the first of the
// standard candidate names (tenant_id, company_id, org_id) present on any
// table in the schema.
func resolveTenantColumn(sc *schema.Schema, configured string) (string, bool) {
	if configured != "" {
		return configured, true
	}
	var names []string
	for _, t := range sc.Tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			names = append(names, c.Name)
		}
	}
	return shard.DetectTenantColumn(names, "")
}

func rowMatchesTenant(row rowparser.Row, positions []int, ordinal int, tenant string) bool {
	if ordinal < 0 || ordinal >= len(positions) {
		return false
	}
	pos := positions[ordinal]
	if pos < 0 || pos >= len(row.Values) {
		return false
	}
	return row.Values[pos].Text == tenant
}

// writeSelectedStatement re-emits stmt to out, filtering Insert/CopyData
// rows down to the ones the extractor selected for their table, passing
// every other statement through unchanged.
func writeSelectedStatement(out *os.File, sc *schema.Schema, extractor *shard.Extractor, stmt scanner.Statement, cls classify.Result, traits dialect.Traits, rowCounts map[string]int) error {
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

	rows, err := pipeline.Rows(stmt, cls, traits)
	if err != nil || len(rows) == 0 {
		return nil
	}

	keep := make([]bool, len(rows))
	for i := range rows {
		idx := rowCounts[table.Name]
		rowCounts[table.Name] = idx + 1
		keep[i] = extractor.Selected(table.Name, idx)
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

// Command sqlconvert rewrites a dump from its source dialect into a target
// dialect's syntax: identifiers, string escapes, types, and
// COPY-vs-INSERT bulk-load form are all translated in a single pass.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/sqldef-engine/sqldef-engine/internal/bytesource"
	"github.com/sqldef-engine/sqldef-engine/internal/classify"
	"github.com/sqldef-engine/sqldef-engine/internal/convert"
	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/issue"
	"github.com/sqldef-engine/sqldef-engine/internal/pipeline"
	"github.com/sqldef-engine/sqldef-engine/internal/scanner"
	"github.com/sqldef-engine/sqldef-engine/internal/xlog"
)

type opts struct {
	From     string `long:"from" description:"Source dialect: mysql|postgres|sqlite|mssql (omitted: auto-detect)"`
	To       string `long:"to" description:"Target dialect: mysql|postgres|sqlite|mssql" required:"true"`
	Output   string `short:"o" long:"output" description:"Output file (default: stdout)"`
	Batch    int    `long:"batch-size" description:"Rows per INSERT when expanding COPY blocks" default:"100"`
	Progress bool   `long:"progress" description:"Report bytes read to stderr as the file is scanned"`
	JSON     bool   `long:"json" description:"Emit the issue report as JSON instead of text"`
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

	to, ok := dialect.Parse(o.To)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown --to dialect %q\n", o.To)
		os.Exit(2)
	}

	from, confidence, err := pipeline.ResolveDialect(input, o.From)
	if err != nil {
		slog.Error("resolving dialect", "error", err)
		os.Exit(1)
	}
	if o.From == "" {
		slog.Info("source dialect auto-detected", "dialect", from.String(), "confidence", confidence.String())
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
	src, sc, err := pipeline.OpenScanner(input, from, scanOpts...)
	if err != nil {
		slog.Error("opening input", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	issues := &issue.List{}
	conv := convert.New(from, to, issues)
	conv.SetBatchSize(o.Batch)

	traits := dialect.TraitsFor(from)
	copyHeaderDropped := false
	err = pipeline.Walk(sc, traits, func(stmt scanner.Statement, cls classify.Result) error {
		switch cls.Kind {
		case classify.CopyData:
			inserts := conv.ConvertCopyData(stmt.Bytes)
			if inserts == nil && !copyHeaderDropped {
				// The COPY header was written as-is, so its rows stay in COPY form.
				_, err := out.Write(pipeline.FilterCopyPayload(stmt.Bytes, nil))
				return err
			}
			for _, insert := range inserts {
				if _, err := out.Write(insert); err != nil {
					return err
				}
				if _, err := out.Write([]byte("\n")); err != nil {
					return err
				}
			}
		default:
			converted := conv.ConvertStatement(stmt.Bytes)
			copyHeaderDropped = converted == nil
			if converted == nil {
				return nil
			}
			if _, err := out.Write(converted); err != nil {
				return err
			}
			if stmt.Terminator == scanner.TermSemicolon && len(converted) > 0 && converted[len(converted)-1] != ';' {
				if _, err := out.Write([]byte(";")); err != nil {
					return err
				}
			}
			_, err := out.Write([]byte("\n"))
			return err
		}
		return nil
	})
	if err != nil {
		slog.Error("converting input", "error", err)
		os.Exit(1)
	}

	errs, warns, infos := issues.Counts()
	if o.JSON {
		enc := json.NewEncoder(os.Stderr)
		_ = enc.Encode(issues.Items)
	} else if len(issues.Items) > 0 {
		for _, it := range issues.Items {
			fmt.Fprintln(os.Stderr, it.String())
		}
	}
	slog.Info("conversion complete", "errors", errs, "warnings", warns, "infos", infos)
	if errs > 0 {
		os.Exit(1)
	}
}

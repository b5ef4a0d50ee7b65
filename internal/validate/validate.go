// Package validate implements the two-pass DDL/DML validator: pass one
// builds the Schema, pass two streams DML rows checking primary-key
// uniqueness and foreign-key referential integrity with a bounded-memory
// cap-and-warn policy.
package validate

import (
	"fmt"

	"github.com/sqldef-engine/sqldef-engine/internal/issue"
	"github.com/sqldef-engine/sqldef-engine/internal/pk"
	"github.com/sqldef-engine/sqldef-engine/internal/schema"
)

// Checks mirrors the named checks reported in a ValidationSummary.
type Checks struct {
	Syntax            bool `json:"syntax"`
	Encoding          bool `json:"encoding"`
	DDLDMLConsistency bool `json:"ddl_dml_consistency"`
	PKDuplicates      bool `json:"pk_duplicates"`
	FKIntegrity       bool `json:"fk_integrity"`
}

// Summary is the top-level counters reported alongside the issue list.
type Summary struct {
	TablesScanned     int `json:"tables_scanned"`
	StatementsScanned int `json:"statements_scanned"`
	Errors            int `json:"errors"`
	Warnings          int `json:"warnings"`
}

// ValidationSummary is the Validator's public result.
type ValidationSummary struct {
	Dialect string     `json:"dialect"`
	Issues  *issue.List `json:"issues"`
	Checks  Checks     `json:"checks"`
	Summary Summary    `json:"summary"`
}

func (s *ValidationSummary) HasErrors() bool { return s.Issues.HasErrors() }

// unresolvedFK buffers an FK tuple whose parent table's PK set may not be
// fully populated yet, to be resolved at end-of-stream when DML arrives
// out of dependency order.
type unresolvedFK struct {
	childTable string
	parentName string
	tuple      pk.Tuple
}

// Validator runs the DDL pass (via an externally-built *schema.Schema) then
// the DML pass, tracking per-table PK digest sets and cap state.
type Validator struct {
	dialect string
	schema  *schema.Schema
	issues  *issue.List
	cap     int

	pkSets    map[int]*pk.DigestSet // table id -> seen PKs
	fkCapWarn map[int]bool          // table id -> already emitted a suppressed-FK-check info

	tablesScanned     map[int]bool
	statementsScanned int

	pending []unresolvedFK
}

func New(dialectName string, s *schema.Schema, issues *issue.List, cap int) *Validator {
	if cap <= 0 {
		cap = pk.DefaultCap
	}
	return &Validator{
		dialect:       dialectName,
		schema:        s,
		issues:        issues,
		cap:           cap,
		pkSets:        make(map[int]*pk.DigestSet),
		fkCapWarn:     make(map[int]bool),
		tablesScanned: make(map[int]bool),
	}
}

func (v *Validator) pkSetFor(tableID int) *pk.DigestSet {
	set, ok := v.pkSets[tableID]
	if !ok {
		set = pk.NewDigestSet(v.cap)
		v.pkSets[tableID] = set
	}
	return set
}

// ObserveRow processes one DML row's already-extracted PK tuple (may be
// nil if the table has no PK) and FK tuples against the schema. tableName
// is the row's target table as written in the statement.
func (v *Validator) ObserveRow(tableName string, pkTuple pk.Tuple, fkTuples map[string]pk.Tuple) {
	v.statementsScanned++

	table, ok := v.schema.TableByName(tableName)
	if !ok {
		v.issues.AddOnce("DDL_MISSING_TABLE:"+normalizedKey(tableName), issue.New(issue.Warning, issue.CodeDDLMissingTable,
			fmt.Sprintf("statement references unknown table %q", tableName)).WithTable(tableName))
		return
	}
	v.tablesScanned[table.ID] = true

	if pkTuple != nil {
		v.checkPK(table, pkTuple)
	}

	for refTableName, tuple := range fkTuples {
		if tuple == nil || tuple.HasNull() {
			continue
		}
		v.checkFK(table.Name, refTableName, tuple)
	}
}

func (v *Validator) checkPK(table *schema.TableSchema, tuple pk.Tuple) {
	set := v.pkSetFor(table.ID)
	if set.Capped() {
		return
	}
	digest := tuple.Hash()
	alreadyPresent, justCapped := set.Insert(digest)
	if alreadyPresent {
		v.issues.Add(issue.New(issue.Warning, issue.CodeDuplicatePK,
			fmt.Sprintf("duplicate primary key in table %q", table.Name)).WithTable(table.Name))
		return
	}
	if justCapped {
		v.issues.AddOnce("PK_CHECK_SKIPPED:"+table.Name, issue.New(issue.Warning, issue.CodePKCheckSkipped,
			fmt.Sprintf("primary key uniqueness checks skipped for table %q after reaching the cap", table.Name)).WithTable(table.Name))
	}
}

func (v *Validator) checkFK(childTable, parentTable string, tuple pk.Tuple) {
	parent, ok := v.schema.TableByName(parentTable)
	if !ok {
		v.issues.AddOnce("DDL_MISSING_TABLE:"+normalizedKey(parentTable), issue.New(issue.Warning, issue.CodeDDLMissingTable,
			fmt.Sprintf("foreign key in %q references unknown table %q", childTable, parentTable)).WithTable(parentTable))
		return
	}

	set := v.pkSetFor(parent.ID)
	if set.Capped() {
		if !v.fkCapWarn[parent.ID] {
			v.fkCapWarn[parent.ID] = true
			v.issues.Add(issue.New(issue.Info, issue.CodePKCheckSkipped,
				fmt.Sprintf("foreign key checks against %q suppressed after its primary key cap was reached", parentTable)).WithTable(parentTable))
		}
		return
	}

	if !set.Contains(tuple.Hash()) {
		v.pending = append(v.pending, unresolvedFK{childTable: childTable, parentName: parentTable, tuple: tuple})
	}
}

// Finalize resolves any FK references that were unresolved at the time
// they were observed (the dump declared the child before the parent's
// matching row arrived), emitting FK_MISSING_PARENT for any that remain
// unresolved once every row has been processed. Call this once, after
// every row has been fed through ObserveRow.
func (v *Validator) Finalize() *ValidationSummary {
	for _, u := range v.pending {
		parent, ok := v.schema.TableByName(u.parentName)
		if !ok {
			continue
		}
		set := v.pkSetFor(parent.ID)
		if set.Capped() {
			continue
		}
		if !set.Contains(u.tuple.Hash()) {
			v.issues.Add(issue.New(issue.Warning, issue.CodeFKMissingParent,
				fmt.Sprintf("row in %q references missing parent %q", u.childTable, u.parentName)).WithTable(u.childTable))
		}
	}

	errs, warns, _ := v.issues.Counts()
	return &ValidationSummary{
		Dialect: v.dialect,
		Issues:  v.issues,
		Checks: Checks{
			Syntax:            true,
			Encoding:          true,
			DDLDMLConsistency: true,
			PKDuplicates:      true,
			FKIntegrity:       true,
		},
		Summary: Summary{
			TablesScanned:     len(v.tablesScanned),
			StatementsScanned: v.statementsScanned,
			Errors:            errs,
			Warnings:          warns,
		},
	}
}

func normalizedKey(name string) string { return name }

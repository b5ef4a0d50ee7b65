// Package shard implements tenant-scoped extraction: given a tenant column
// and value, keep the matching root rows plus the transitive FK closure of
// rows in dependent tables that reference a kept row. The
// two-pass shape mirrors internal/sample's preserve-relations pass.
package shard

import (
	"strings"

	"github.com/sqldef-engine/sqldef-engine/internal/pk"
)

// Classification marks a table's role in shard extraction. Unlike
// sample's six-way taxonomy, shard only needs to distinguish the handful
// of roles that change how a table is swept: everything else is an
// ordinary tenant-scoped table, walked by the FK closure alone.
type Classification int

const (
	TenantScoped Classification = iota
	System
	Lookup
	Junction
)

func (c Classification) String() string {
	switch c {
	case System:
		return "system"
	case Lookup:
		return "lookup"
	case Junction:
		return "junction"
	default:
		return "tenant_scoped"
	}
}

var systemNameFragments = []string{"migrations", "failed_jobs", "job_batches", "cache", "sessions", "telescope_entries"}

var lookupNames = map[string]bool{
	"countries": true, "currencies": true, "languages": true, "timezones": true,
	"states": true, "provinces": true, "permissions": true,
}

var junctionFragments = []string{"_has_many_", "_pivot", "has_", "role_user", "user_role"}

// IsSystemTable applies the name heuristic for System-classified tables.
func IsSystemTable(name string) bool {
	lower := strings.ToLower(name)
	for _, frag := range systemNameFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// IsLookupTable applies the name heuristic for Lookup-classified tables.
func IsLookupTable(name string) bool {
	return lookupNames[strings.ToLower(name)]
}

// IsJunctionTableByName applies the name heuristic for join/pivot tables,
// e.g. "role_user_pivot" or "user_has_role".
func IsJunctionTableByName(name string) bool {
	lower := strings.ToLower(name)
	for _, frag := range junctionFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// DefaultClassify applies the full name heuristic, in priority order
// System > Lookup > Junction > TenantScoped.
func DefaultClassify(name string) Classification {
	switch {
	case IsSystemTable(name):
		return System
	case IsLookupTable(name):
		return Lookup
	case IsJunctionTableByName(name):
		return Junction
	default:
		return TenantScoped
	}
}

// GlobalTableMode controls how Lookup-classified tables are swept:
// GlobalNone leaves them out unless the table is marked `include: true`,
// while GlobalLookups and GlobalAll both keep every row of them.
type GlobalTableMode int

const (
	GlobalNone GlobalTableMode = iota
	GlobalLookups
	GlobalAll
)

func ParseGlobalTableMode(s string) (GlobalTableMode, bool) {
	switch s {
	case "none":
		return GlobalNone, true
	case "lookups":
		return GlobalLookups, true
	case "all":
		return GlobalAll, true
	default:
		return GlobalNone, false
	}
}

// YamlTenant is the `tenant:` section of the shard config.
type YamlTenant struct {
	Column     string   `yaml:"column"`
	RootTables []string `yaml:"root_tables"`
}

// YamlTableOverride is one entry under `tables:`.
type YamlTableOverride struct {
	Role    string `yaml:"role"` // "system" | "lookup" | "junction"
	Include bool   `yaml:"include"`
	SelfFK  string `yaml:"self_fk"` // self-referencing FK column, e.g. comments.parent_id
	Skip    bool   `yaml:"skip"`
}

// YamlConfig is the root of the shard extractor's `--config` YAML document.
type YamlConfig struct {
	Tenant        YamlTenant                   `yaml:"tenant"`
	Tables        map[string]YamlTableOverride `yaml:"tables"`
	IncludeGlobal string                       `yaml:"include_global"`
}

// GetTableConfig returns the per-table override, if configured.
func (c *YamlConfig) GetTableConfig(tableName string) (YamlTableOverride, bool) {
	if c.Tables == nil {
		return YamlTableOverride{}, false
	}
	tc, ok := c.Tables[strings.ToLower(tableName)]
	return tc, ok
}

// GetClassification returns the table's explicit `role:` override, if one
// is configured. A second return of false means no override exists and
// the caller should fall back to DefaultClassify.
func (c *YamlConfig) GetClassification(tableName string) (Classification, bool) {
	tc, ok := c.GetTableConfig(tableName)
	if !ok || tc.Role == "" {
		return 0, false
	}
	switch tc.Role {
	case "system":
		return System, true
	case "lookup":
		return Lookup, true
	case "junction":
		return Junction, true
	default:
		return 0, false
	}
}

// ShouldSkip reports whether tableName is marked `skip: true`.
func (c *YamlConfig) ShouldSkip(tableName string) bool {
	tc, ok := c.GetTableConfig(tableName)
	return ok && tc.Skip
}

// ShouldForceInclude reports whether tableName is marked `include: true`,
// overriding an otherwise-excluded Lookup classification.
func (c *YamlConfig) ShouldForceInclude(tableName string) bool {
	tc, ok := c.GetTableConfig(tableName)
	return ok && tc.Include
}

// SelfFK returns the self-referencing FK column configured for tableName
// (e.g. a threaded-comments table's parent_id), if any.
func (c *YamlConfig) SelfFK(tableName string) (string, bool) {
	tc, ok := c.GetTableConfig(tableName)
	if !ok || tc.SelfFK == "" {
		return "", false
	}
	return tc.SelfFK, true
}

func (c *YamlConfig) classify(tableName string) Classification {
	if cls, ok := c.GetClassification(tableName); ok {
		return cls
	}
	return DefaultClassify(tableName)
}

// tenantColumnCandidates lists the column names auto-detection tries, in
// priority order, when no explicit tenant column is configured.
var tenantColumnCandidates = []string{"tenant_id", "company_id", "org_id"}

// DetectTenantColumn picks the tenant column: the YAML-configured name, if
// set; otherwise the first of the standard candidate names present in
// columnNames (case-insensitive).
func DetectTenantColumn(columnNames []string, configured string) (string, bool) {
	if configured != "" {
		return configured, true
	}
	lowerSet := make(map[string]string, len(columnNames))
	for _, c := range columnNames {
		lowerSet[strings.ToLower(c)] = c
	}
	for _, candidate := range tenantColumnCandidates {
		if orig, ok := lowerSet[candidate]; ok {
			return orig, true
		}
	}
	return "", false
}

// FKRef describes one row's foreign key, resolved by the caller into the
// parent table name and the parent PK digest it targets.
type FKRef struct {
	RowIdx int
	Parent string
	Digest pk.Digest
}

// Stats summarizes one shard extraction run.
type Stats struct {
	TablesProcessed      int
	TotalRowsSeen        int
	TotalRowsSelected    int
	DetectedTenantColumn string
	Warnings             []string
}

// Extractor drives the two-pass tenant extraction: pass 1 selects root
// rows whose tenant column matches the target tenant value; pass 2 closes
// over FKs so every dependent row that references a kept row is kept too.
type Extractor struct {
	cfg      *YamlConfig
	global   GlobalTableMode
	selected map[string]map[int]bool
	pkOf     map[string]map[int]pk.Digest
	seen     map[string]int
}

func NewExtractor(cfg *YamlConfig, global GlobalTableMode) *Extractor {
	return &Extractor{
		cfg:      cfg,
		global:   global,
		selected: make(map[string]map[int]bool),
		pkOf:     make(map[string]map[int]pk.Digest),
		seen:     make(map[string]int),
	}
}

func (e *Extractor) classify(tableName string) Classification {
	if e.cfg != nil {
		return e.cfg.classify(tableName)
	}
	return DefaultClassify(tableName)
}

func (e *Extractor) ensureSelectedSet(table string) map[int]bool {
	set, ok := e.selected[table]
	if !ok {
		set = make(map[int]bool)
		e.selected[table] = set
	}
	return set
}

// OfferRootRow presents a row from a tenant-scoped (non-FK-gated) table,
// recording its PK digest and selecting it iff tenantMatches is true (the
// caller has already compared the row's tenant column to the target value).
func (e *Extractor) OfferRootRow(table string, rowIdx int, digest pk.Digest, tenantMatches bool) {
	e.seen[table]++
	if e.pkOf[table] == nil {
		e.pkOf[table] = make(map[int]pk.Digest)
	}
	e.pkOf[table][rowIdx] = digest

	if e.cfg != nil && e.cfg.ShouldSkip(table) {
		return
	}

	cls := e.classify(table)
	if cls == Lookup {
		switch e.global {
		case GlobalAll, GlobalLookups:
			e.ensureSelectedSet(table)[rowIdx] = true
			return
		default:
			if e.cfg != nil && e.cfg.ShouldForceInclude(table) {
				e.ensureSelectedSet(table)[rowIdx] = true
			}
			return
		}
	}

	if tenantMatches {
		e.ensureSelectedSet(table)[rowIdx] = true
	}
}

// RegisterRow records a non-root row's own PK digest, to be referenced by
// CloseOverForeignKeys. Rows not reachable from a selected row via FK are
// never selected.
func (e *Extractor) RegisterRow(table string, rowIdx int, digest pk.Digest) {
	e.seen[table]++
	if e.pkOf[table] == nil {
		e.pkOf[table] = make(map[int]pk.Digest)
	}
	e.pkOf[table][rowIdx] = digest
}

// CloseOverForeignKeys runs the downward closure to a fixed point: a row
// is kept iff it references an already-kept parent PK.
func (e *Extractor) CloseOverForeignKeys(fkLookup map[string][]FKRef) {
	selectedDigests := make(map[string]map[pk.Digest]bool)
	refresh := func(table string) {
		digests := make(map[pk.Digest]bool)
		for idx := range e.selected[table] {
			if d, ok := e.pkOf[table][idx]; ok {
				digests[d] = true
			}
		}
		selectedDigests[table] = digests
	}
	for table := range e.selected {
		refresh(table)
	}

	for {
		changed := false
		for table, refs := range fkLookup {
			set := e.ensureSelectedSet(table)
			for _, ref := range refs {
				if set[ref.RowIdx] {
					continue
				}
				parentDigests := selectedDigests[ref.Parent]
				if parentDigests != nil && parentDigests[ref.Digest] {
					set[ref.RowIdx] = true
					if d, ok := e.pkOf[table][ref.RowIdx]; ok {
						if selectedDigests[table] == nil {
							selectedDigests[table] = make(map[pk.Digest]bool)
						}
						selectedDigests[table][d] = true
					}
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
}

// Selected reports whether rowIdx in table ended up selected, after
// CloseOverForeignKeys has run.
func (e *Extractor) Selected(table string, rowIdx int) bool {
	return e.selected[table] != nil && e.selected[table][rowIdx]
}

// Finalize summarizes the run.
func (e *Extractor) Finalize(detectedColumn string) Stats {
	stats := Stats{DetectedTenantColumn: detectedColumn}
	for table, n := range e.seen {
		stats.TablesProcessed++
		stats.TotalRowsSeen += n
		stats.TotalRowsSelected += len(e.selected[table])
	}
	return stats
}

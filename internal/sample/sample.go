// Package sample implements reservoir and percentage row sampling per
// table, with an optional FK-closure pass that pulls in related rows so a
// sampled dump stays referentially consistent.
package sample

import (
	"math/rand/v2"
	"strings"

	"github.com/sqldef-engine/sqldef-engine/internal/issue"
	"github.com/sqldef-engine/sqldef-engine/internal/pk"
	"github.com/sqldef-engine/sqldef-engine/internal/schemagraph"
)

// Classification buckets a table for sampling treatment. Every table falls
// into exactly one of these six categories; a table that matches nothing
// more specific defaults to TenantDependent, since the overwhelming
// majority of application tables hang off some tenant-scoped root via FK.
type Classification int

const (
	TenantRoot Classification = iota
	TenantDependent
	Junction
	Lookup
	System
	Global
)

func (c Classification) String() string {
	switch c {
	case TenantRoot:
		return "tenant_root"
	case Junction:
		return "junction"
	case Lookup:
		return "lookup"
	case System:
		return "system"
	case Global:
		return "global"
	default:
		return "tenant_dependent"
	}
}

// DefaultClassify applies the name heuristic used when a table has no
// explicit YAML classification entry: migration/job-queue tables are
// System, `_has_many_`-style join-table names are Junction, small reference
// tables are Lookup, permission-style tables are Global, everything else
// falls back to TenantDependent.
func DefaultClassify(tableName string) Classification {
	lower := strings.ToLower(tableName)
	switch {
	case strings.Contains(lower, "migration"), strings.Contains(lower, "failed_jobs"),
		strings.Contains(lower, "job_batches"), strings.Contains(lower, "cache"),
		strings.Contains(lower, "sessions"):
		return System
	case strings.Contains(lower, "_has_many_"):
		return Junction
	case strings.Contains(lower, "permissions"), strings.Contains(lower, "permission"):
		return Global
	case lookupNames[lower]:
		return Lookup
	default:
		return TenantDependent
	}
}

var lookupNames = map[string]bool{
	"countries": true, "currencies": true, "languages": true, "timezones": true,
	"states": true, "provinces": true,
}

// GlobalTableMode controls how tables classified Global or Lookup are
// handled: GlobalNone skips both, GlobalLookups keeps every row of Lookup
// tables and skips Global ones, and GlobalAll keeps every row of both. No
// mode samples them at the top-level rate.
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

// YamlDefault is the `default:` section of the sampler's YAML config.
type YamlDefault struct {
	Percent *int `yaml:"percent"`
}

// YamlClassification is the `classification:` section: per-table name
// lists that declare a table's Classification directly, overriding the
// DefaultClassify heuristic. Every list is optional.
type YamlClassification struct {
	TenantRoot      []string `yaml:"tenant_root"`
	TenantDependent []string `yaml:"tenant_dependent"`
	Junction        []string `yaml:"junction"`
	Global          []string `yaml:"global"`
	System          []string `yaml:"system"`
	Lookup          []string `yaml:"lookup"`
}

// YamlTableOverride is one entry under `tables:`.
type YamlTableOverride struct {
	Rows    *int `yaml:"rows"`
	Percent *int `yaml:"percent"`
	Skip    bool `yaml:"skip"`
}

// YamlConfig is the root of the sampler's `--config` YAML document.
type YamlConfig struct {
	Default        YamlDefault                 `yaml:"default"`
	Classification YamlClassification           `yaml:"classification"`
	Tables         map[string]YamlTableOverride `yaml:"tables"`

	tenantRoot      map[string]bool
	tenantDependent map[string]bool
	junction        map[string]bool
	global          map[string]bool
	system          map[string]bool
	lookup          map[string]bool
}

// Prepare builds the lowercase lookup sets used by the accessor methods.
// Call once after unmarshaling.
func (c *YamlConfig) Prepare() {
	c.tenantRoot = toSet(c.Classification.TenantRoot)
	c.tenantDependent = toSet(c.Classification.TenantDependent)
	c.junction = toSet(c.Classification.Junction)
	c.global = toSet(c.Classification.Global)
	c.system = toSet(c.Classification.System)
	c.lookup = toSet(c.Classification.Lookup)
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set
}

// GetTableConfig returns the per-table override, if one is configured.
func (c *YamlConfig) GetTableConfig(tableName string) (YamlTableOverride, bool) {
	if c.Tables == nil {
		return YamlTableOverride{}, false
	}
	tc, ok := c.Tables[strings.ToLower(tableName)]
	return tc, ok
}

// ShouldSkip reports whether tableName is marked `skip: true`.
func (c *YamlConfig) ShouldSkip(tableName string) bool {
	tc, ok := c.GetTableConfig(tableName)
	return ok && tc.Skip
}

// GetPercent returns the table's configured sampling percent, falling
// back to default.percent when the table has no percent override.
func (c *YamlConfig) GetPercent(tableName string) *int {
	if tc, ok := c.GetTableConfig(tableName); ok && tc.Percent != nil {
		return tc.Percent
	}
	return c.Default.Percent
}

// GetClassification resolves tableName's classification: explicit YAML
// lists take priority over the DefaultClassify name heuristic.
func (c *YamlConfig) GetClassification(tableName string) Classification {
	lower := strings.ToLower(tableName)
	switch {
	case c.tenantRoot != nil && c.tenantRoot[lower]:
		return TenantRoot
	case c.tenantDependent != nil && c.tenantDependent[lower]:
		return TenantDependent
	case c.junction != nil && c.junction[lower]:
		return Junction
	case c.system != nil && c.system[lower]:
		return System
	case c.global != nil && c.global[lower]:
		return Global
	case c.lookup != nil && c.lookup[lower]:
		return Lookup
	default:
		return DefaultClassify(tableName)
	}
}

// Mode selects the top-level sampling strategy for tables with no
// per-table override.
type Mode int

const (
	ModePercent Mode = iota
	ModeRows
)

// Config is the fully-resolved sampling policy for a run.
type Config struct {
	Mode              Mode
	Percent           int // ModePercent
	Rows              int // ModeRows
	Yaml              *YamlConfig
	GlobalMode        GlobalTableMode
	PreserveRelations bool
	Seed              uint64
	MaxTotalRows      int // 0 means unbounded
}

func (c *Config) classify(tableName string) Classification {
	if c.Yaml != nil {
		return c.Yaml.GetClassification(tableName)
	}
	return DefaultClassify(tableName)
}

// governedByGlobalMode reports whether cls is one of the two
// classifications whose inclusion is decided by GlobalMode rather than the
// top-level mode.
func governedByGlobalMode(cls Classification) bool {
	return cls == Lookup || cls == Global
}

// Reservoir implements Algorithm R: the first k items are kept outright;
// the i-th subsequent item (1-based, i > k) replaces a uniformly chosen
// slot in [0, i) with probability k/i.
type Reservoir struct {
	capacity int
	items    []int // opaque row identifiers (row index in this table's stream)
	seen     int
	rng      *rand.Rand
}

func NewReservoir(capacity int, seed uint64) *Reservoir {
	return &Reservoir{capacity: capacity, rng: rand.New(rand.NewPCG(seed, seed^0xa5a5a5a5))}
}

// Consider presents the next stream item (its row index) to the reservoir.
func (r *Reservoir) Consider(rowIndex int) {
	r.seen++
	if len(r.items) < r.capacity {
		r.items = append(r.items, rowIndex)
		return
	}
	j := r.rng.IntN(r.seen)
	if j < r.capacity {
		r.items[j] = rowIndex
	}
}

func (r *Reservoir) Len() int       { return len(r.items) }
func (r *Reservoir) TotalSeen() int { return r.seen }

// Items returns the reservoir's current contents, in slot order (NOT
// sorted by original stream position).
func (r *Reservoir) Items() []int {
	out := make([]int, len(r.items))
	copy(out, r.items)
	return out
}

// Bernoulli implements Percent mode: each row is independently kept with
// probability p/100.
type Bernoulli struct {
	percent int
	rng     *rand.Rand
}

func NewBernoulli(percent int, seed uint64) *Bernoulli {
	return &Bernoulli{percent: percent, rng: rand.New(rand.NewPCG(seed, seed^0x5a5a5a5a))}
}

func (b *Bernoulli) Keep() bool {
	if b.percent >= 100 {
		return true
	}
	if b.percent <= 0 {
		return false
	}
	return b.rng.IntN(100) < b.percent
}

// TableSampler accumulates one table's selection decisions, either via
// Algorithm R (Rows mode) or independent Bernoulli trials (Percent mode).
type TableSampler struct {
	classification Classification
	reservoir      *Reservoir // non-nil in Rows mode
	bernoulli      *Bernoulli // non-nil in Percent mode
	skip           bool
	rowsSeen       int
	keepAll        []int // accumulated row indices kept under Bernoulli mode
}

// NewTableSampler builds the per-table sampler for tableName given the
// resolved Config, seeding its PRNG from cfg.Seed mixed with the table
// name so different tables don't share an identical draw sequence.
func NewTableSampler(cfg *Config, tableName string) *TableSampler {
	cls := cfg.classify(tableName)
	seed := mixSeed(cfg.Seed, tableName)

	if cfg.Yaml != nil {
		if cfg.Yaml.ShouldSkip(tableName) {
			return &TableSampler{classification: cls, skip: true}
		}
		if tc, ok := cfg.Yaml.GetTableConfig(tableName); ok {
			if tc.Rows != nil {
				return &TableSampler{classification: cls, reservoir: NewReservoir(*tc.Rows, seed)}
			}
			if tc.Percent != nil {
				return &TableSampler{classification: cls, bernoulli: NewBernoulli(*tc.Percent, seed)}
			}
		}
	}

	if governedByGlobalMode(cls) {
		switch cfg.GlobalMode {
		case GlobalAll:
			return &TableSampler{classification: cls, bernoulli: NewBernoulli(100, seed)}
		case GlobalLookups:
			if cls == Lookup {
				return &TableSampler{classification: cls, bernoulli: NewBernoulli(100, seed)}
			}
			return &TableSampler{classification: cls, skip: true}
		default: // GlobalNone
			return &TableSampler{classification: cls, skip: true}
		}
	}

	percent := cfg.Percent
	if cfg.Yaml != nil {
		if p := cfg.Yaml.GetPercent(tableName); p != nil {
			percent = *p
		}
	}

	switch cfg.Mode {
	case ModeRows:
		return &TableSampler{classification: cls, reservoir: NewReservoir(cfg.Rows, seed)}
	default:
		return &TableSampler{classification: cls, bernoulli: NewBernoulli(percent, seed)}
	}
}

func mixSeed(seed uint64, name string) uint64 {
	h := seed
	for i := 0; i < len(name); i++ {
		h = h*1099511628211 ^ uint64(name[i])
	}
	return h
}

// Offer presents row rowIndex to the sampler. Rows-mode decisions are only
// final once Selected is called, since Algorithm R can still evict
// rowIndex later in the stream.
func (ts *TableSampler) Offer(rowIndex int) {
	ts.rowsSeen++
	if ts.skip {
		return
	}
	if ts.reservoir != nil {
		ts.reservoir.Consider(rowIndex)
		return
	}
	if ts.bernoulli.Keep() {
		ts.keepAll = append(ts.keepAll, rowIndex)
	}
}

// Selected returns the final set of selected row indices once the full
// table has been streamed through Offer.
func (ts *TableSampler) Selected() []int {
	if ts.reservoir != nil {
		return ts.reservoir.Items()
	}
	return ts.keepAll
}

// Stats summarizes one sampling run across all tables.
type Stats struct {
	TablesSampled     int
	TotalRowsSeen     int
	TotalRowsSelected int
	Warnings          []string
}

// FKRef describes one child row's foreign key, resolved ahead of time by
// the caller into the parent table name and the parent PK digest it
// targets.
type FKRef struct {
	RowIdx int
	Parent string
	Digest pk.Digest
}

// Engine drives a full sampling run across every table in a schema,
// coordinating per-table samplers and the optional FK-closure pass.
type Engine struct {
	cfg      *Config
	graph    *schemagraph.Graph
	samplers map[string]*TableSampler
	issues   *issue.List
}

func NewEngine(cfg *Config, graph *schemagraph.Graph, issues *issue.List) *Engine {
	return &Engine{cfg: cfg, graph: graph, samplers: make(map[string]*TableSampler), issues: issues}
}

func (e *Engine) samplerFor(tableName string) *TableSampler {
	key := strings.ToLower(tableName)
	s, ok := e.samplers[key]
	if !ok {
		s = NewTableSampler(e.cfg, tableName)
		e.samplers[key] = s
	}
	return s
}

// Offer feeds one row of tableName (identified by its row index within
// that table's stream) through that table's sampler.
func (e *Engine) Offer(tableName string, rowIndex int) {
	e.samplerFor(tableName).Offer(rowIndex)
}

// SelectedRows returns, after the full stream has been offered, the
// selected row-index set per table name, after running the
// preserve-relations downward closure if cfg.PreserveRelations is set.
//
// fkLookup maps tableName -> that table's foreign keys, each identifying
// the child row and the parent (table, PK digest) it targets. pkOf maps
// tableName -> rowIdx -> that row's own PK digest. Both are built by the
// caller from a first pass over the dump.
func (e *Engine) SelectedRows(fkLookup map[string][]FKRef, pkOf map[string]map[int]pk.Digest) (map[string]map[int]bool, Stats) {
	selected := make(map[string]map[int]bool, len(e.samplers))
	stats := Stats{}
	for name, s := range e.samplers {
		set := make(map[int]bool)
		for _, idx := range s.Selected() {
			set[idx] = true
		}
		selected[name] = set
		stats.TablesSampled++
		stats.TotalRowsSeen += s.rowsSeen
		stats.TotalRowsSelected += len(set)
	}

	if e.cfg.PreserveRelations {
		e.closeOverForeignKeys(selected, fkLookup, pkOf, &stats)
	}

	if e.cfg.MaxTotalRows > 0 && stats.TotalRowsSelected > e.cfg.MaxTotalRows {
		stats.Warnings = append(stats.Warnings, "preserve-relations closure exceeded max_total_rows cap")
	}
	return selected, stats
}

// closeOverForeignKeys implements the preserve-relations bidirectional
// closure:
// (a) downward — a row whose FK points at an already-selected parent PK is
// pulled in; (b) upward — the parent row a selected child's FK points to is
// upgraded into the sample even if that parent's own reservoir/Bernoulli
// trial didn't pick it. Both directions are applied to a fixed point, since
// either can trigger more of the other.
func (e *Engine) closeOverForeignKeys(selected map[string]map[int]bool, fkLookup map[string][]FKRef, pkOf map[string]map[int]pk.Digest, stats *Stats) {
	selectedDigests := make(map[string]map[pk.Digest]bool)
	digestToRow := make(map[string]map[pk.Digest]int)
	for table, rows := range pkOf {
		rev := make(map[pk.Digest]int, len(rows))
		for idx, d := range rows {
			rev[d] = idx
		}
		digestToRow[table] = rev
	}
	markSelected := func(table string, idx int) {
		set, ok := selected[table]
		if !ok {
			set = make(map[int]bool)
			selected[table] = set
		}
		if set[idx] {
			return
		}
		set[idx] = true
		if d, ok := pkOf[table][idx]; ok {
			if selectedDigests[table] == nil {
				selectedDigests[table] = make(map[pk.Digest]bool)
			}
			selectedDigests[table][d] = true
		}
		stats.TotalRowsSelected++
	}
	for table, set := range selected {
		for idx := range set {
			if d, ok := pkOf[table][idx]; ok {
				if selectedDigests[table] == nil {
					selectedDigests[table] = make(map[pk.Digest]bool)
				}
				selectedDigests[table][d] = true
			}
		}
	}

	for {
		changed := false
		for table, refs := range fkLookup {
			for _, ref := range refs {
				childSelected := selected[table] != nil && selected[table][ref.RowIdx]

				// Downward: parent already selected at this PK -> pull in child.
				if !childSelected {
					parentDigests := selectedDigests[ref.Parent]
					if parentDigests != nil && parentDigests[ref.Digest] {
						markSelected(table, ref.RowIdx)
						childSelected = true
						changed = true
					}
				}

				// Upward: child selected -> ensure its referenced parent row is selected.
				if childSelected {
					parentDigests := selectedDigests[ref.Parent]
					if parentDigests == nil || !parentDigests[ref.Digest] {
						if parentIdx, ok := digestToRow[ref.Parent][ref.Digest]; ok {
							markSelected(ref.Parent, parentIdx)
							changed = true
						}
					}
				}
			}
		}
		if !changed {
			break
		}
	}
}

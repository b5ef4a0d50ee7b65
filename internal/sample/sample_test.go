package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/sqldef-engine/sqldef-engine/internal/issue"
	"github.com/sqldef-engine/sqldef-engine/internal/pk"
)

func TestReservoirUnderfilledKeepsEverything(t *testing.T) {
	r := NewReservoir(10, 42)
	for i := 0; i < 5; i++ {
		r.Consider(i)
	}
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, 5, r.TotalSeen())
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, r.Items())
}

func TestReservoirOverfilledCapsAtCapacity(t *testing.T) {
	r := NewReservoir(5, 42)
	for i := 0; i < 100; i++ {
		r.Consider(i)
	}
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, 100, r.TotalSeen())
	assert.Len(t, r.Items(), 5)
}

func TestReservoirDeterministicWithSameSeed(t *testing.T) {
	r1 := NewReservoir(5, 42)
	r2 := NewReservoir(5, 42)
	for i := 0; i < 100; i++ {
		r1.Consider(i)
		r2.Consider(i)
	}
	assert.Equal(t, r1.Items(), r2.Items())
}

func TestReservoirUniformDistribution(t *testing.T) {
	const trials = 2000
	const capacity = 10
	const streamSize = 100
	counts := make([]int, streamSize)

	for seed := 0; seed < trials; seed++ {
		r := NewReservoir(capacity, uint64(seed))
		for i := 0; i < streamSize; i++ {
			r.Consider(i)
		}
		for _, item := range r.Items() {
			counts[item]++
		}
	}

	expected := trials * capacity / streamSize
	tolerance := expected / 3
	for i, c := range counts {
		assert.InDeltaf(t, expected, c, float64(tolerance), "item %d count %d outside expected range", i, c)
	}
}

func TestBernoulliKeepsEverythingAt100Percent(t *testing.T) {
	b := NewBernoulli(100, 1)
	for i := 0; i < 50; i++ {
		assert.True(t, b.Keep())
	}
}

func TestBernoulliKeepsNothingAtZeroPercent(t *testing.T) {
	b := NewBernoulli(0, 1)
	for i := 0; i < 50; i++ {
		assert.False(t, b.Keep())
	}
}

func TestParseGlobalTableMode(t *testing.T) {
	m, ok := ParseGlobalTableMode("none")
	require.True(t, ok)
	assert.Equal(t, GlobalNone, m)

	m, ok = ParseGlobalTableMode("lookups")
	require.True(t, ok)
	assert.Equal(t, GlobalLookups, m)

	m, ok = ParseGlobalTableMode("all")
	require.True(t, ok)
	assert.Equal(t, GlobalAll, m)

	_, ok = ParseGlobalTableMode("bogus")
	assert.False(t, ok)
}

const sampleYAML = `
default:
  percent: 10

classification:
  global:
    - permissions
  system:
    - migrations
    - cache
  lookup:
    - countries
    - currencies

tables:
  users:
    rows: 500
  posts:
    percent: 5
  sessions:
    skip: true
`

func parseYAML(t *testing.T, doc string) *YamlConfig {
	t.Helper()
	var cfg YamlConfig
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	cfg.Prepare()
	return &cfg
}

func TestYamlConfigParsesDefaultAndClassification(t *testing.T) {
	cfg := parseYAML(t, sampleYAML)

	require.NotNil(t, cfg.Default.Percent)
	assert.Equal(t, 10, *cfg.Default.Percent)
	assert.Equal(t, Global, cfg.GetClassification("permissions"))
	assert.Equal(t, System, cfg.GetClassification("migrations"))

	users, ok := cfg.GetTableConfig("users")
	require.True(t, ok)
	require.NotNil(t, users.Rows)
	assert.Equal(t, 500, *users.Rows)

	assert.True(t, cfg.ShouldSkip("sessions"))
	assert.False(t, cfg.ShouldSkip("users"))

	posts := cfg.GetPercent("posts")
	require.NotNil(t, posts)
	assert.Equal(t, 5, *posts)

	unknown := cfg.GetPercent("unknown")
	require.NotNil(t, unknown)
	assert.Equal(t, 10, *unknown) // falls back to default.percent
}

func TestYamlConfigClassification(t *testing.T) {
	cfg := parseYAML(t, `
classification:
  system:
    - migrations
  lookup:
    - currencies
`)

	assert.Equal(t, System, cfg.GetClassification("migrations"))
	assert.Equal(t, Lookup, cfg.GetClassification("currencies"))
	assert.Equal(t, TenantDependent, cfg.GetClassification("users"))
}

func TestDefaultClassifierHeuristic(t *testing.T) {
	assert.Equal(t, System, DefaultClassify("migrations"))
	assert.Equal(t, System, DefaultClassify("failed_jobs"))
	assert.Equal(t, Lookup, DefaultClassify("countries"))
	assert.Equal(t, TenantDependent, DefaultClassify("users"))
	assert.Equal(t, Junction, DefaultClassify("users_has_many_roles"))
	assert.Equal(t, Global, DefaultClassify("permissions"))
}

func TestTableSamplerRowsModeUsesReservoir(t *testing.T) {
	cfg := &Config{Mode: ModeRows, Rows: 2, Seed: 42}
	ts := NewTableSampler(cfg, "orders")
	for i := 0; i < 10; i++ {
		ts.Offer(i)
	}
	assert.Len(t, ts.Selected(), 2)
	assert.Equal(t, 10, ts.rowsSeen)
}

func TestTableSamplerPercentModeAt100KeepsAll(t *testing.T) {
	cfg := &Config{Mode: ModePercent, Percent: 100, Seed: 42}
	ts := NewTableSampler(cfg, "orders")
	for i := 0; i < 10; i++ {
		ts.Offer(i)
	}
	assert.Len(t, ts.Selected(), 10)
}

func TestTableSamplerYamlSkipOverridesEverything(t *testing.T) {
	y := parseYAML(t, sampleYAML)
	cfg := &Config{Mode: ModePercent, Percent: 100, Seed: 42, Yaml: y}
	ts := NewTableSampler(cfg, "sessions")
	for i := 0; i < 10; i++ {
		ts.Offer(i)
	}
	assert.Empty(t, ts.Selected())
}

func TestTableSamplerYamlRowsOverride(t *testing.T) {
	y := parseYAML(t, sampleYAML)
	cfg := &Config{Mode: ModePercent, Percent: 100, Seed: 42, Yaml: y}
	ts := NewTableSampler(cfg, "users")
	for i := 0; i < 1000; i++ {
		ts.Offer(i)
	}
	assert.Len(t, ts.Selected(), 500)
}

func TestTableSamplerGlobalModeAllForcesFullInclusion(t *testing.T) {
	y := parseYAML(t, sampleYAML)
	cfg := &Config{Mode: ModePercent, Percent: 1, Seed: 42, Yaml: y, GlobalMode: GlobalAll}
	ts := NewTableSampler(cfg, "permissions")
	for i := 0; i < 50; i++ {
		ts.Offer(i)
	}
	assert.Len(t, ts.Selected(), 50)
}

func TestTableSamplerGlobalModeNoneSkipsLookupsWhenUnconfigured(t *testing.T) {
	cfg := &Config{Mode: ModePercent, Percent: 100, Seed: 42, GlobalMode: GlobalNone}
	ts := NewTableSampler(cfg, "countries") // classified Lookup by DefaultClassify
	for i := 0; i < 20; i++ {
		ts.Offer(i)
	}
	assert.Empty(t, ts.Selected())
}

func TestEngineBasicSampleAllRows(t *testing.T) {
	cfg := &Config{Mode: ModePercent, Percent: 100, Seed: 42}
	e := NewEngine(cfg, nil, &issue.List{})

	companies := []int{0, 1, 2}
	users := []int{0, 1, 2, 3}
	for _, i := range companies {
		e.Offer("companies", i)
	}
	for _, i := range users {
		e.Offer("users", i)
	}

	selected, stats := e.SelectedRows(nil, nil)
	assert.Equal(t, 2, stats.TablesSampled)
	assert.Equal(t, 7, stats.TotalRowsSeen)
	assert.Equal(t, 7, stats.TotalRowsSelected)
	assert.Len(t, selected["companies"], 3)
	assert.Len(t, selected["users"], 4)
}

func TestEnginePreserveRelationsPullsInParentRow(t *testing.T) {
	cfg := &Config{Mode: ModeRows, Rows: 1, Seed: 7, PreserveRelations: true}
	e := NewEngine(cfg, nil, &issue.List{})

	// companies has 3 rows (PK digests 100,101,102); users has 2 rows,
	// each referencing the company with the same index.
	for i := 0; i < 3; i++ {
		e.Offer("companies", i)
	}
	for i := 0; i < 2; i++ {
		e.Offer("users", i)
	}

	pkOf := map[string]map[int]pk.Digest{
		"companies": {0: 100, 1: 101, 2: 102},
		"users":     {0: 200, 1: 201},
	}
	// users[i] references companies[i]
	fkLookup := map[string][]FKRef{
		"users": {
			{RowIdx: 0, Parent: "companies", Digest: 100},
			{RowIdx: 1, Parent: "companies", Digest: 101},
		},
	}

	selected, _ := e.SelectedRows(fkLookup, pkOf)

	// At least one user row was reservoir-selected, and the closure must
	// guarantee referential integrity: every selected user's referenced
	// company (same index, by construction) ends up selected too.
	require.NotEmpty(t, selected["users"])
	for idx := range selected["users"] {
		assert.True(t, selected["companies"][idx], "user row %d selected without its referenced company", idx)
	}
}

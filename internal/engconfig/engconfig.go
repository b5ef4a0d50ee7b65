// Package engconfig loads the YAML `--config` documents the Sampler, Shard
// Extractor, and Value Rewriter (redaction) operations accept, following
// the teacher's database.ParseGeneratorConfig idiom (read the whole file,
// unmarshal, return the value) rather than a streaming parser.
package engconfig

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/rewrite"
	"github.com/sqldef-engine/sqldef-engine/internal/sample"
	"github.com/sqldef-engine/sqldef-engine/internal/shard"
)

// LoadSampleConfig reads and parses a Sampler `--config` YAML file. An empty
// path is not an error: it returns nil, matching the teacher's "no --config
// given" behavior of falling back to defaults.
func LoadSampleConfig(path string) (*sample.YamlConfig, error) {
	if path == "" {
		return nil, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sample config %s: %w", path, err)
	}
	var cfg sample.YamlConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parsing sample config %s: %w", path, err)
	}
	cfg.Prepare()
	return &cfg, nil
}

// LoadShardConfig reads and parses a Shard Extractor `--config` YAML file.
func LoadShardConfig(path string) (*shard.YamlConfig, error) {
	if path == "" {
		return nil, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading shard config %s: %w", path, err)
	}
	var cfg shard.YamlConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parsing shard config %s: %w", path, err)
	}
	return &cfg, nil
}

// RedactionRule binds a table.column glob pattern (matching the teacher's
// own `*.password`-style CLI pattern flags) to one rewrite strategy. Rules
// are matched in document order; the first match wins, same as
// internal/diff's column-ignore globs.
type RedactionRule struct {
	Pattern        string `yaml:"pattern"`
	Strategy       string `yaml:"strategy"`
	Value          string `yaml:"value,omitempty"`           // constant
	PreserveDomain bool   `yaml:"preserve_domain,omitempty"` // hash
	MaskPattern    string `yaml:"mask_pattern,omitempty"`     // mask
	Generator      string `yaml:"generator,omitempty"`        // fake
}

// RedactionConfig is the root of the Value Rewriter's `--config` YAML
// document: a PRNG seed (for reproducible hash/shuffle/fake output) plus
// the ordered list of column rules.
type RedactionConfig struct {
	Seed  uint64          `yaml:"seed"`
	Rules []RedactionRule `yaml:"rules"`
}

// LoadRedactionConfig reads and parses a Value Rewriter `--config` YAML
// file.
func LoadRedactionConfig(path string) (*RedactionConfig, error) {
	if path == "" {
		return nil, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading redaction config %s: %w", path, err)
	}
	var cfg RedactionConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parsing redaction config %s: %w", path, err)
	}
	return &cfg, nil
}

// StrategyFor returns the rewrite.Strategy configured for table.column, by
// first-match-wins glob, or ok=false if no rule matches (caller should
// default to rewrite.Skip).
func (c *RedactionConfig) StrategyFor(table, column string) (rewrite.Strategy, bool) {
	if c == nil {
		return rewrite.Strategy{}, false
	}
	qualified := table + "." + column
	for _, rule := range c.Rules {
		if !globMatch(rule.Pattern, qualified) {
			continue
		}
		return ruleToStrategy(rule), true
	}
	return rewrite.Strategy{}, false
}

func ruleToStrategy(rule RedactionRule) rewrite.Strategy {
	switch strings.ToLower(rule.Strategy) {
	case "null":
		return rewrite.Strategy{Kind: rewrite.Null}
	case "constant":
		return rewrite.Strategy{Kind: rewrite.Constant, ConstantValue: rule.Value}
	case "hash":
		return rewrite.Strategy{Kind: rewrite.Hash, PreserveDomain: rule.PreserveDomain}
	case "mask":
		return rewrite.Strategy{Kind: rewrite.Mask, MaskPattern: rule.MaskPattern}
	case "shuffle":
		return rewrite.Strategy{Kind: rewrite.Shuffle}
	case "fake":
		return rewrite.Strategy{Kind: rewrite.Fake, FakeGenerator: rule.Generator}
	default:
		return rewrite.Strategy{Kind: rewrite.Skip}
	}
}

// globMatch supports a single leading or trailing '*' wildcard against
// "table.column", matching the pattern style of the teacher's own
// `*.password` CLI flags (internal/diff's column-ignore globs are the same
// shape, reimplemented here to keep engconfig free of a dependency on the
// diff package for a ten-line helper).
func globMatch(pattern, qualified string) bool {
	if pattern == qualified {
		return true
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(qualified, pattern[1:])
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(qualified, pattern[:len(pattern)-1])
	}
	return false
}

// DialectOrDefault parses s as a dialect name, falling back to d if s is
// empty or unrecognized.
func DialectOrDefault(s string, d dialect.Dialect) dialect.Dialect {
	if s == "" {
		return d
	}
	if parsed, ok := dialect.Parse(s); ok {
		return parsed
	}
	return d
}

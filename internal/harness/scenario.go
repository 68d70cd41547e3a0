package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/assetgraph/internal/graph"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/partition"
)

// Scenario defines a conformance test scenario: a set of asset declarations,
// a sequence of runs against them and assertions on what happened.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs is the directory holding the CUE asset declarations.
	// Relative paths are resolved against the scenario file's directory.
	Specs string `yaml:"specs"`

	// AsOf is the evaluation instant of every run, RFC 3339 or YYYY-MM-DD.
	AsOf string `yaml:"as_of"`

	// DynamicPartitions seeds dynamic definitions by name before the graph
	// is built.
	DynamicPartitions map[string][]string `yaml:"dynamic_partitions,omitempty"`

	// StrictLoads makes loads of never-stored partitions fail.
	StrictLoads bool `yaml:"strict_loads,omitempty"`

	// Runs are executed in order against one store and one IO manager.
	Runs []RunStep `yaml:"runs"`

	// Assertions are evaluated after all runs.
	Assertions []Assertion `yaml:"assertions"`
}

// RunStep is one runner invocation.
type RunStep struct {
	Assets []string `yaml:"assets"`

	// Partition targets a single key. From and To target a range.
	Partition string `yaml:"partition,omitempty"`
	From      string `yaml:"from,omitempty"`
	To        string `yaml:"to,omitempty"`

	// Fail lists assets whose compute function returns an error.
	Fail []string `yaml:"fail,omitempty"`

	// ExpectError is a substring the run's error must contain. Empty means
	// the run must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Target returns the partition the step targets, or nil.
func (s RunStep) Target() *partition.KeyRange {
	return target(s.Partition, s.From, s.To)
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "materialized": Records of Asset carry exactly Partitions, in seq order
	// - "record_count": Asset (or the whole log) has exactly Count records
	// - "loaded": Asset loaded Selection of Upstream in some run
	// - "stored": Asset stored Selection in some run
	// - "impact": rerunning Partition or From..To of Asset invalidates Expect
	Type string `yaml:"type"`

	Asset    string `yaml:"asset,omitempty"`
	Upstream string `yaml:"upstream,omitempty"`

	// Selection is a key, a "start..end" range or "all".
	Selection string `yaml:"selection,omitempty"`

	// Partitions uses "all" for records of unpartitioned assets.
	Partitions []string `yaml:"partitions,omitempty"`

	Count *int `yaml:"count,omitempty"`

	Partition string `yaml:"partition,omitempty"`
	From      string `yaml:"from,omitempty"`
	To        string `yaml:"to,omitempty"`

	// Policy is "conservative" (default) or "strict".
	Policy string `yaml:"policy,omitempty"`

	// Expect lists "<asset> <selection>" lines, suffixed " (inexact)" when a
	// conservative fallback applied.
	Expect []string `yaml:"expect,omitempty"`

	// ExpectError is a substring the impact error must contain.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion type constants.
const (
	AssertMaterialized = "materialized"
	AssertRecordCount  = "record_count"
	AssertLoaded       = "loaded"
	AssertStored       = "stored"
	AssertImpact       = "impact"
)

func target(key, from, to string) *partition.KeyRange {
	switch {
	case key != "":
		r := partition.Single(key)
		return &r
	case from != "":
		return &partition.KeyRange{Start: from, End: to}
	}
	return nil
}

func assetKeys(names []string) []ir.AssetKey {
	keys := make([]ir.AssetKey, len(names))
	for i, n := range names {
		keys[i] = ir.AssetKey(n)
	}
	return keys
}

func impactPolicy(name string) graph.ImpactPolicy {
	if name == graph.ImpactStrict.String() {
		return graph.ImpactStrict
	}
	return graph.ImpactConservative
}

// ParseAsOf parses an evaluation instant. Dates are midnight UTC.
func ParseAsOf(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("as_of %q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Specs != "" && !filepath.IsAbs(scenario.Specs) {
		scenario.Specs = filepath.Join(filepath.Dir(path), scenario.Specs)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Specs == "" {
		return fmt.Errorf("specs directory is required")
	}
	if info, err := os.Stat(s.Specs); err != nil || !info.IsDir() {
		return fmt.Errorf("specs directory not found: %s", s.Specs)
	}
	if s.AsOf == "" {
		return fmt.Errorf("as_of is required")
	}
	if _, err := ParseAsOf(s.AsOf); err != nil {
		return err
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, run := range s.Runs {
		if len(run.Assets) == 0 {
			return fmt.Errorf("runs[%d]: assets list is required", i)
		}
		if err := validateTarget(run.Partition, run.From, run.To); err != nil {
			return fmt.Errorf("runs[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateTarget(key, from, to string) error {
	if key != "" && (from != "" || to != "") {
		return fmt.Errorf("partition and from/to are mutually exclusive")
	}
	if (from == "") != (to == "") {
		return fmt.Errorf("from and to must be given together")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertMaterialized:
		if a.Asset == "" || len(a.Partitions) == 0 {
			return fmt.Errorf("assertions[%d]: asset and partitions are required for materialized", index)
		}
	case AssertRecordCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for record_count", index)
		}
	case AssertLoaded:
		if a.Asset == "" || a.Upstream == "" || a.Selection == "" {
			return fmt.Errorf("assertions[%d]: asset, upstream and selection are required for loaded", index)
		}
	case AssertStored:
		if a.Asset == "" || a.Selection == "" {
			return fmt.Errorf("assertions[%d]: asset and selection are required for stored", index)
		}
	case AssertImpact:
		if a.Asset == "" {
			return fmt.Errorf("assertions[%d]: asset is required for impact", index)
		}
		if err := validateTarget(a.Partition, a.From, a.To); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Policy != "" && a.Policy != graph.ImpactStrict.String() && a.Policy != graph.ImpactConservative.String() {
			return fmt.Errorf("assertions[%d]: unknown impact policy %q", index, a.Policy)
		}
		if a.ExpectError == "" && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or expect_error is required for impact", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

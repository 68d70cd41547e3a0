package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/assetgraph/internal/graph"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/partition"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, event)
		}
	}
	return buf.String()
}

func (h *Harness) evaluate(ctx context.Context, a Assertion, result *Result) error {
	switch a.Type {
	case AssertMaterialized:
		return h.assertMaterialized(ctx, a)
	case AssertRecordCount:
		return h.assertRecordCount(ctx, a)
	case AssertLoaded:
		return assertLoaded(result.Events(), a)
	case AssertStored:
		return assertStored(result.Events(), a)
	case AssertImpact:
		return h.assertImpact(a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertMaterialized compares the partitions of an asset's records, in seq
// order, with the expected list.
func (h *Harness) assertMaterialized(ctx context.Context, a Assertion) error {
	history, err := h.store.ReadAssetHistory(ctx, ir.AssetKey(a.Asset))
	if err != nil {
		return err
	}
	got := make([]string, len(history))
	for i, rec := range history {
		got[i] = partitionLabel(rec.PartitionKey)
	}
	if diff := cmp.Diff(a.Partitions, got); diff != "" {
		return &AssertionError{
			Type:     AssertMaterialized,
			Expected: fmt.Sprintf("%s materialized %v", a.Asset, a.Partitions),
			Actual:   fmt.Sprintf("%v (-want +got):\n%s", got, diff),
		}
	}
	return nil
}

// assertRecordCount counts the records of one asset, or of every asset in
// the graph when no asset is given.
func (h *Harness) assertRecordCount(ctx context.Context, a Assertion) error {
	keys := h.graph.Keys()
	if a.Asset != "" {
		keys = []ir.AssetKey{ir.AssetKey(a.Asset)}
	}
	count := 0
	for _, key := range keys {
		history, err := h.store.ReadAssetHistory(ctx, key)
		if err != nil {
			return err
		}
		count += len(history)
	}
	if count != *a.Count {
		scope := a.Asset
		if scope == "" {
			scope = "all assets"
		}
		return &AssertionError{
			Type:     AssertRecordCount,
			Expected: fmt.Sprintf("%d records for %s", *a.Count, scope),
			Actual:   fmt.Sprintf("%d records", count),
		}
	}
	return nil
}

func assertLoaded(trace []TraceEvent, a Assertion) error {
	var seen []string
	for _, e := range trace {
		if e.Op != OpLoad || string(e.Asset) != a.Asset || string(e.Upstream) != a.Upstream {
			continue
		}
		if e.Selection == a.Selection {
			return nil
		}
		seen = append(seen, e.Selection)
	}
	return &AssertionError{
		Type:     AssertLoaded,
		Expected: fmt.Sprintf("%s loaded %s of %s", a.Asset, a.Selection, a.Upstream),
		Actual:   describeSeen(seen),
		Trace:    trace,
	}
}

func assertStored(trace []TraceEvent, a Assertion) error {
	var seen []string
	for _, e := range trace {
		if e.Op != OpStore || string(e.Asset) != a.Asset {
			continue
		}
		if e.Selection == a.Selection {
			return nil
		}
		seen = append(seen, e.Selection)
	}
	return &AssertionError{
		Type:     AssertStored,
		Expected: fmt.Sprintf("%s stored %s", a.Asset, a.Selection),
		Actual:   describeSeen(seen),
		Trace:    trace,
	}
}

func describeSeen(selections []string) string {
	if len(selections) == 0 {
		return "not found in trace"
	}
	return "only " + strings.Join(selections, ", ")
}

// assertImpact runs impact analysis from the assertion's source selection
// and compares the rendered result, or the error, with the expectation.
func (h *Harness) assertImpact(a Assertion) error {
	sel := partition.Whole()
	if r := target(a.Partition, a.From, a.To); r != nil {
		sel = partition.Of(*r)
	}

	impacted, err := h.graph.Impact(ir.AssetKey(a.Asset), sel, h.asOf, impactPolicy(a.Policy))
	if a.ExpectError != "" {
		if err == nil {
			return &AssertionError{
				Type:     AssertImpact,
				Expected: fmt.Sprintf("error containing %q", a.ExpectError),
				Actual:   fmt.Sprintf("%v", RenderImpact(impacted)),
			}
		}
		if !strings.Contains(err.Error(), a.ExpectError) {
			return &AssertionError{
				Type:     AssertImpact,
				Expected: fmt.Sprintf("error containing %q", a.ExpectError),
				Actual:   err.Error(),
			}
		}
		return nil
	}
	if err != nil {
		return &AssertionError{Type: AssertImpact, Expected: fmt.Sprintf("%v", a.Expect), Actual: err.Error()}
	}

	got := RenderImpact(impacted)
	if diff := cmp.Diff(a.Expect, got); diff != "" {
		return &AssertionError{
			Type:     AssertImpact,
			Expected: fmt.Sprintf("%v", a.Expect),
			Actual:   fmt.Sprintf("%v (-want +got):\n%s", got, diff),
		}
	}
	return nil
}

// RenderImpact renders impact results one per line as "<asset> <selection>",
// suffixed " (inexact)" where a conservative fallback applied.
func RenderImpact(impacted []graph.Impacted) []string {
	out := make([]string, len(impacted))
	for i, imp := range impacted {
		out[i] = fmt.Sprintf("%s %s", imp.Asset, imp.Selection)
		if !imp.Exact {
			out[i] += " (inexact)"
		}
	}
	return out
}

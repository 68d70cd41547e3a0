package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/assetgraph/internal/ir"
)

// DefinitionError reports an invalid node or dependency declaration.
type DefinitionError struct {
	Asset   ir.AssetKey
	Field   string
	Message string
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("asset %s: %s: %s", e.Asset, e.Field, e.Message)
	}
	return fmt.Sprintf("asset %s: %s", e.Asset, e.Message)
}

// CycleError reports a dependency cycle. Path starts and ends at the same
// asset; each element depends on the next.
type CycleError struct {
	Path []ir.AssetKey
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = string(k)
	}
	return "dependency cycle: " + strings.Join(parts, " -> ")
}

// IsCycleError reports whether err is or wraps a CycleError.
// It also matches inside an aggregated validation error.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// UnknownAssetError reports a key that is not a node of the graph.
type UnknownAssetError struct {
	Asset ir.AssetKey
}

// Error implements the error interface.
func (e *UnknownAssetError) Error() string {
	return fmt.Sprintf("unknown asset %s", e.Asset)
}

// UnknownDependencyError reports a lookup of an upstream asset that the
// asset does not declare as a dependency.
type UnknownDependencyError struct {
	Asset    ir.AssetKey
	Upstream ir.AssetKey
}

// Error implements the error interface.
func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("asset %s does not depend on %s", e.Asset, e.Upstream)
}

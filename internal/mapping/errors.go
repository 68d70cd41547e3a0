package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/partition"
)

// ErrNotSupported matches every NotSupportedError via errors.Is.
var ErrNotSupported = errors.New("partition mapping direction not supported")

// Direction names which way a mapping is applied.
type Direction string

const (
	// Forward resolves upstream partitions from a downstream range.
	Forward Direction = "upstream"

	// Backward resolves downstream partitions from an upstream range.
	Backward Direction = "downstream"
)

// NotSupportedError reports that a mapping deliberately does not implement a
// direction. It is an expected outcome, not a failure of the graph: impact
// analysis callers choose a fallback policy when they see it.
type NotSupportedError struct {
	Kind      string
	Direction Direction

	// Set by the graph once the edge is known.
	DownstreamAsset ir.AssetKey
	UpstreamAsset   ir.AssetKey
}

// Error implements the error interface.
func (e *NotSupportedError) Error() string {
	msg := fmt.Sprintf("partition mapping %s cannot resolve %s partitions", e.Kind, e.Direction)
	if e.UpstreamAsset != "" || e.DownstreamAsset != "" {
		msg += fmt.Sprintf(" (edge %s -> %s)", e.UpstreamAsset, e.DownstreamAsset)
	}
	return msg
}

// Is reports whether target is ErrNotSupported.
func (e *NotSupportedError) Is(target error) bool {
	return target == ErrNotSupported
}

// WithAssets returns a copy naming the edge's assets.
func (e *NotSupportedError) WithAssets(downstream, upstream ir.AssetKey) *NotSupportedError {
	c := *e
	c.DownstreamAsset = downstream
	c.UpstreamAsset = upstream
	return &c
}

// UnsupportedMappingError reports a mapping applied to definitions it cannot
// translate between, such as identity across different key sets.
type UnsupportedMappingError struct {
	Kind string

	DownstreamAsset ir.AssetKey
	UpstreamAsset   ir.AssetKey

	// Summaries of the two definitions.
	DownstreamDef string
	UpstreamDef   string

	Reason string
}

func unsupported(kind string, downstreamDef, upstreamDef partition.Definition, format string, args ...any) *UnsupportedMappingError {
	return &UnsupportedMappingError{
		Kind:          kind,
		DownstreamDef: summary(downstreamDef),
		UpstreamDef:   summary(upstreamDef),
		Reason:        fmt.Sprintf(format, args...),
	}
}

func summary(def partition.Definition) string {
	if def == nil {
		return "unpartitioned"
	}
	return def.String()
}

// Error implements the error interface.
func (e *UnsupportedMappingError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "unsupported partition mapping %s", e.Kind)
	if e.UpstreamAsset != "" || e.DownstreamAsset != "" {
		fmt.Fprintf(&b, " from %s to %s", e.UpstreamAsset, e.DownstreamAsset)
	}
	fmt.Fprintf(&b, ": %s (upstream %s, downstream %s)", e.Reason, e.UpstreamDef, e.DownstreamDef)
	return b.String()
}

// WithAssets returns a copy naming the edge's assets.
func (e *UnsupportedMappingError) WithAssets(downstream, upstream ir.AssetKey) *UnsupportedMappingError {
	c := *e
	c.DownstreamAsset = downstream
	c.UpstreamAsset = upstream
	return &c
}

// ErrNoPartitions matches every EmptyRangeError via errors.Is.
var ErrNoPartitions = errors.New("partition mapping resolves no partitions")

// EmptyRangeError reports that a valid range maps to no partitions on the
// other side of an edge. Upstream keys filtered out by a Filter, or a daily
// key whose month has not closed yet, have no downstream image.
type EmptyRangeError struct {
	Kind      string
	Direction Direction
	Range     partition.KeyRange

	DownstreamAsset ir.AssetKey
	UpstreamAsset   ir.AssetKey
}

func empty(kind string, dir Direction, r partition.KeyRange) *EmptyRangeError {
	return &EmptyRangeError{Kind: kind, Direction: dir, Range: r}
}

// Error implements the error interface.
func (e *EmptyRangeError) Error() string {
	msg := fmt.Sprintf("partition mapping %s resolves no %s partitions for %s", e.Kind, e.Direction, e.Range)
	if e.UpstreamAsset != "" || e.DownstreamAsset != "" {
		msg += fmt.Sprintf(" (edge %s -> %s)", e.UpstreamAsset, e.DownstreamAsset)
	}
	return msg
}

// Is reports whether target is ErrNoPartitions.
func (e *EmptyRangeError) Is(target error) bool {
	return target == ErrNoPartitions
}

// WithAssets returns a copy naming the edge's assets.
func (e *EmptyRangeError) WithAssets(downstream, upstream ir.AssetKey) *EmptyRangeError {
	c := *e
	c.DownstreamAsset = downstream
	c.UpstreamAsset = upstream
	return &c
}

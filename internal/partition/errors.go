package partition

import (
	"fmt"
	"strings"

	"github.com/roach88/assetgraph/internal/ir"
)

// InvalidRangeError reports a key or range that is not valid in a definition.
//
// Asset is empty when the error is raised by the definition itself; callers
// that know which asset owns the definition attach it with WithAsset.
type InvalidRangeError struct {
	// Asset owning the definition, if known.
	Asset ir.AssetKey

	// Range that failed validation.
	Range KeyRange

	// Key is the offending key, when a specific key is to blame.
	Key string

	// Definition summarizes the definition the range was checked against.
	Definition string

	// Reason is a human-readable description.
	Reason string
}

func newInvalidRange(def Definition, r KeyRange, key, reason string) *InvalidRangeError {
	return &InvalidRangeError{
		Range:      r,
		Key:        key,
		Definition: def.String(),
		Reason:     reason,
	}
}

// Error implements the error interface.
func (e *InvalidRangeError) Error() string {
	var b strings.Builder
	b.WriteString("invalid partition range")
	if e.Range != (KeyRange{}) {
		fmt.Fprintf(&b, " %s", e.Range)
	}
	if e.Asset != "" {
		fmt.Fprintf(&b, " for asset %s", e.Asset)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	if e.Key != "" {
		fmt.Fprintf(&b, " (key %q)", e.Key)
	}
	if e.Definition != "" {
		fmt.Fprintf(&b, " in %s", e.Definition)
	}
	return b.String()
}

// WithAsset returns a copy of the error naming the owning asset.
func (e *InvalidRangeError) WithAsset(asset ir.AssetKey) *InvalidRangeError {
	c := *e
	c.Asset = asset
	return &c
}

package ir

import (
	"fmt"
	"strings"
)

// AssetKeySeparator joins the path segments of an AssetKey.
const AssetKeySeparator = "/"

// AssetKey names an asset. Nested assets use "/"-separated path segments,
// e.g. "warehouse/orders/daily".
type AssetKey string

// NewAssetKey joins path segments into an AssetKey.
func NewAssetKey(path ...string) AssetKey {
	return AssetKey(strings.Join(path, AssetKeySeparator))
}

// Path returns the key's segments.
func (k AssetKey) Path() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), AssetKeySeparator)
}

func (k AssetKey) String() string {
	return string(k)
}

// Validate reports whether the key is usable as an asset name.
// Empty keys, empty segments and segments with surrounding whitespace are rejected.
func (k AssetKey) Validate() error {
	if k == "" {
		return fmt.Errorf("asset key is empty")
	}
	for i, seg := range k.Path() {
		if seg == "" {
			return fmt.Errorf("asset key %q: segment %d is empty", string(k), i)
		}
		if strings.TrimSpace(seg) != seg {
			return fmt.Errorf("asset key %q: segment %q has surrounding whitespace", string(k), seg)
		}
	}
	return nil
}

package partition

import (
	"time"
)

// Definition produces the ordered partition keys of an asset.
//
// Keys must be unique and stable for a given asOf. Definitions are shared
// read-only across resolutions; implementations must be safe for concurrent use.
type Definition interface {
	// Keys returns the partition keys that exist as of the given instant.
	Keys(asOf time.Time) []string

	// String summarizes the definition for diagnostics.
	String() string
}

// indexer is implemented by definitions that can locate a key without
// materializing the full key list.
type indexer interface {
	index(key string, asOf time.Time) (int, bool)
}

// KeyRange is a closed interval [Start, End] over a definition's key order.
type KeyRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Single returns the degenerate range containing only key.
func Single(key string) KeyRange {
	return KeyRange{Start: key, End: key}
}

// IsSingle reports whether the range names exactly one key.
func (r KeyRange) IsSingle() bool {
	return r.Start == r.End
}

func (r KeyRange) String() string {
	if r.IsSingle() {
		return r.Start
	}
	return r.Start + ".." + r.End
}

// Selection is the portion of an asset a step reads or writes: either a
// contiguous key range or the whole asset.
//
// The whole-asset form is used whenever either side of an edge is
// unpartitioned. The zero value is the whole asset.
type Selection struct {
	rng    KeyRange
	ranged bool
}

// Whole selects the entire asset.
func Whole() Selection {
	return Selection{}
}

// Of selects the keys in r.
func Of(r KeyRange) Selection {
	return Selection{rng: r, ranged: true}
}

// IsWhole reports whether the selection covers the entire asset.
func (s Selection) IsWhole() bool {
	return !s.ranged
}

// KeyRange returns the selected range. ok is false for whole-asset selections.
func (s Selection) KeyRange() (r KeyRange, ok bool) {
	return s.rng, s.ranged
}

func (s Selection) String() string {
	if !s.ranged {
		return "all"
	}
	return s.rng.String()
}

// IndexOf returns the position of key in def's order, or -1.
func IndexOf(def Definition, key string, asOf time.Time) int {
	if ix, ok := def.(indexer); ok {
		if i, found := ix.index(key, asOf); found {
			return i
		}
		return -1
	}
	for i, k := range def.Keys(asOf) {
		if k == key {
			return i
		}
	}
	return -1
}

// Contains reports whether key is a member of def.
func Contains(def Definition, key string, asOf time.Time) bool {
	return IndexOf(def, key, asOf) >= 0
}

// ValidateRange checks that both endpoints are members of def and that Start
// does not come after End.
func ValidateRange(def Definition, r KeyRange, asOf time.Time) error {
	_, _, err := bounds(def, r, asOf)
	return err
}

func bounds(def Definition, r KeyRange, asOf time.Time) (int, int, error) {
	lo := IndexOf(def, r.Start, asOf)
	if lo < 0 {
		return 0, 0, newInvalidRange(def, r, r.Start, "start key is not a partition")
	}
	hi := lo
	if !r.IsSingle() {
		hi = IndexOf(def, r.End, asOf)
		if hi < 0 {
			return 0, 0, newInvalidRange(def, r, r.End, "end key is not a partition")
		}
	}
	if lo > hi {
		return 0, 0, newInvalidRange(def, r, "", "start comes after end")
	}
	return lo, hi, nil
}

// KeysInRange expands r into the ordered keys it covers.
func KeysInRange(def Definition, r KeyRange, asOf time.Time) ([]string, error) {
	lo, hi, err := bounds(def, r, asOf)
	if err != nil {
		return nil, err
	}
	keys := def.Keys(asOf)
	out := make([]string, hi-lo+1)
	copy(out, keys[lo:hi+1])
	return out, nil
}

// FullRange returns the range spanning every key of def.
func FullRange(def Definition, asOf time.Time) (KeyRange, error) {
	keys := def.Keys(asOf)
	if len(keys) == 0 {
		return KeyRange{}, &InvalidRangeError{Definition: def.String(), Reason: "definition has no partitions"}
	}
	return KeyRange{Start: keys[0], End: keys[len(keys)-1]}, nil
}

// Cover returns the smallest range of def containing every key in keys.
func Cover(def Definition, keys []string, asOf time.Time) (KeyRange, error) {
	if len(keys) == 0 {
		return KeyRange{}, &InvalidRangeError{Definition: def.String(), Reason: "no keys to cover"}
	}
	lo, hi := -1, -1
	for _, k := range keys {
		i := IndexOf(def, k, asOf)
		if i < 0 {
			return KeyRange{}, newInvalidRange(def, Single(k), k, "key is not a partition")
		}
		if lo < 0 || i < lo {
			lo = i
		}
		if i > hi {
			hi = i
		}
	}
	all := def.Keys(asOf)
	return KeyRange{Start: all[lo], End: all[hi]}, nil
}

// Union returns the smallest range of def covering both a and b.
func Union(def Definition, a, b KeyRange, asOf time.Time) (KeyRange, error) {
	return Cover(def, []string{a.Start, a.End, b.Start, b.End}, asOf)
}

// SameKeys reports whether a and b define the same key set, ignoring order.
func SameKeys(a, b Definition, asOf time.Time) bool {
	ak, bk := a.Keys(asOf), b.Keys(asOf)
	if len(ak) != len(bk) {
		return false
	}
	set := make(map[string]struct{}, len(ak))
	for _, k := range ak {
		set[k] = struct{}{}
	}
	for _, k := range bk {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}

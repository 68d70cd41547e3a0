package partition

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Dynamic is a named, append-only key list whose membership grows at runtime.
//
// Readers always observe a complete snapshot: either the key list before an
// Add or the list after it, never a partial append.
type Dynamic struct {
	name string

	mu   sync.Mutex // serializes writers
	keys atomic.Pointer[[]string]
}

// NewDynamic creates a dynamic definition seeded with keys.
func NewDynamic(name string, keys ...string) (*Dynamic, error) {
	if name == "" {
		return nil, fmt.Errorf("dynamic partitions: name is required")
	}
	d := &Dynamic{name: name}
	empty := []string{}
	d.keys.Store(&empty)
	if _, err := d.Add(keys...); err != nil {
		return nil, err
	}
	return d, nil
}

// Name identifies the key list in storage.
func (d *Dynamic) Name() string {
	return d.name
}

// Keys returns the current snapshot. asOf is ignored: dynamic membership is
// not time-indexed.
func (d *Dynamic) Keys(time.Time) []string {
	return slices.Clone(*d.keys.Load())
}

func (d *Dynamic) index(key string, _ time.Time) (int, bool) {
	i := slices.Index(*d.keys.Load(), key)
	return i, i >= 0
}

// Add appends keys that are not yet members and returns the ones added.
// Keys already present are skipped; empty keys are rejected.
func (d *Dynamic) Add(keys ...string) ([]string, error) {
	for i, k := range keys {
		if k == "" {
			return nil, fmt.Errorf("dynamic partitions %q: key %d is empty", d.name, i)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cur := *d.keys.Load()
	seen := make(map[string]struct{}, len(cur)+len(keys))
	for _, k := range cur {
		seen[k] = struct{}{}
	}

	var added []string
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		added = append(added, k)
	}
	if len(added) == 0 {
		return nil, nil
	}

	next := make([]string, 0, len(cur)+len(added))
	next = append(next, cur...)
	next = append(next, added...)
	d.keys.Store(&next)
	return added, nil
}

// String implements Definition.
func (d *Dynamic) String() string {
	return fmt.Sprintf("dynamic[%s, %d keys]", d.name, len(*d.keys.Load()))
}

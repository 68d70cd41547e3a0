package partition

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Static is a fixed, ordered list of partition keys.
type Static struct {
	keys []string
	pos  map[string]int
}

// NewStatic creates a static definition. Keys keep their declaration order and
// must be non-empty and unique.
func NewStatic(keys ...string) (*Static, error) {
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		if k == "" {
			return nil, fmt.Errorf("static partitions: key %d is empty", i)
		}
		if _, dup := index[k]; dup {
			return nil, fmt.Errorf("static partitions: duplicate key %q", k)
		}
		index[k] = i
	}
	return &Static{keys: slices.Clone(keys), pos: index}, nil
}

// MustStatic is like NewStatic but panics on error.
// Use only in tests or when keys are known to be valid.
func MustStatic(keys ...string) *Static {
	s, err := NewStatic(keys...)
	if err != nil {
		panic(err)
	}
	return s
}

// Keys returns the keys in declaration order. asOf is ignored.
func (s *Static) Keys(time.Time) []string {
	return slices.Clone(s.keys)
}

func (s *Static) index(key string, _ time.Time) (int, bool) {
	i, ok := s.pos[key]
	return i, ok
}

// String implements Definition.
func (s *Static) String() string {
	const shown = 5
	if len(s.keys) <= shown {
		return "static[" + strings.Join(s.keys, ", ") + "]"
	}
	return fmt.Sprintf("static[%s, ... (%d keys)]", strings.Join(s.keys[:shown], ", "), len(s.keys))
}

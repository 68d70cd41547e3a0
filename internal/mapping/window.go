package mapping

import (
	"fmt"
	"time"

	"github.com/roach88/assetgraph/internal/partition"
)

// TrailingWindow makes downstream key k depend on the Size upstream keys that
// end at k, by position in the upstream order. Downstream endpoints must
// also be upstream keys.
//
// The mapping is forward-only: it does not implement Inverse.
type TrailingWindow struct {
	Size int
}

// Kind implements Mapping.
func (TrailingWindow) Kind() string { return "trailing_window" }

// UpstreamRange implements Mapping.
func (m TrailingWindow) UpstreamRange(downstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	if m.Size < 1 {
		return partition.KeyRange{}, unsupported(m.Kind(), downstreamDef, upstreamDef, "window size must be >= 1, got %d", m.Size)
	}
	if err := partition.ValidateRange(downstreamDef, downstream, asOf); err != nil {
		return partition.KeyRange{}, err
	}

	ups := upstreamDef.Keys(asOf)
	lo := partition.IndexOf(upstreamDef, downstream.Start, asOf)
	hi := partition.IndexOf(upstreamDef, downstream.End, asOf)
	if lo < 0 {
		return partition.KeyRange{}, unsupported(m.Kind(), downstreamDef, upstreamDef,
			"downstream key %q is not an upstream partition", downstream.Start)
	}
	if hi < 0 {
		return partition.KeyRange{}, unsupported(m.Kind(), downstreamDef, upstreamDef,
			"downstream key %q is not an upstream partition", downstream.End)
	}
	if lo > hi {
		return partition.KeyRange{}, unsupported(m.Kind(), downstreamDef, upstreamDef,
			"upstream order reverses %s", downstream)
	}
	return partition.KeyRange{Start: ups[max(lo-(m.Size-1), 0)], End: ups[hi]}, nil
}

// TimeWindow maps between two time-window definitions by overlapping time.
//
// A downstream range reads every upstream window that overlaps it, widened by
// StartOffset and EndOffset upstream windows. StartOffset -1 with EndOffset 0
// reads the previous window too. The result is clipped to the windows that
// exist as of the evaluation instant.
type TimeWindow struct {
	StartOffset int
	EndOffset   int
}

// Kind implements Mapping.
func (TimeWindow) Kind() string { return "time_window" }

func (m TimeWindow) windows(downstreamDef, upstreamDef partition.Definition) (*partition.TimeWindow, *partition.TimeWindow, error) {
	down, ok := downstreamDef.(*partition.TimeWindow)
	if !ok {
		return nil, nil, unsupported(m.Kind(), downstreamDef, upstreamDef, "downstream is not time-windowed")
	}
	up, ok := upstreamDef.(*partition.TimeWindow)
	if !ok {
		return nil, nil, unsupported(m.Kind(), downstreamDef, upstreamDef, "upstream is not time-windowed")
	}
	if m.StartOffset > m.EndOffset {
		return nil, nil, unsupported(m.Kind(), downstreamDef, upstreamDef,
			"start offset %d is after end offset %d", m.StartOffset, m.EndOffset)
	}
	return down, up, nil
}

// UpstreamRange implements Mapping.
func (m TimeWindow) UpstreamRange(downstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	down, up, err := m.windows(downstreamDef, upstreamDef)
	if err != nil {
		return partition.KeyRange{}, err
	}
	if err := partition.ValidateRange(down, downstream, asOf); err != nil {
		return partition.KeyRange{}, err
	}
	from, to, err := down.Span(downstream)
	if err != nil {
		return partition.KeyRange{}, err
	}
	lo, hi := up.Overlapping(from, to)
	return m.clip(up, lo+m.StartOffset, hi+m.EndOffset, asOf, downstreamDef, upstreamDef,
		fmt.Sprintf("no upstream windows exist for %s", downstream))
}

// DownstreamRange implements Inverse.
func (m TimeWindow) DownstreamRange(upstream partition.KeyRange, downstreamDef, upstreamDef partition.Definition, asOf time.Time) (partition.KeyRange, error) {
	down, up, err := m.windows(downstreamDef, upstreamDef)
	if err != nil {
		return partition.KeyRange{}, err
	}
	if err := partition.ValidateRange(up, upstream, asOf); err != nil {
		return partition.KeyRange{}, err
	}
	lo := partition.IndexOf(up, upstream.Start, asOf)
	hi := partition.IndexOf(up, upstream.End, asOf)

	// Downstream window d reads upstream [first(d)+StartOffset, last(d)+EndOffset],
	// so upstream [lo, hi] is read by windows overlapping [lo-EndOffset, hi-StartOffset].
	from := up.WindowStart(lo - m.EndOffset)
	to := up.WindowStart(hi - m.StartOffset + 1)
	dlo, dhi := down.Overlapping(from, to)
	dlo = max(dlo, 0)
	dhi = min(dhi, down.Count(asOf)-1)
	if dlo > dhi {
		return partition.KeyRange{}, empty(m.Kind(), Backward, upstream)
	}
	return partition.KeyRange{Start: down.KeyAt(dlo), End: down.KeyAt(dhi)}, nil
}

func (m TimeWindow) clip(w *partition.TimeWindow, lo, hi int, asOf time.Time, downstreamDef, upstreamDef partition.Definition, reason string) (partition.KeyRange, error) {
	lo = max(lo, 0)
	hi = min(hi, w.Count(asOf)-1)
	if lo > hi {
		return partition.KeyRange{}, unsupported(m.Kind(), downstreamDef, upstreamDef, "%s", reason)
	}
	return partition.KeyRange{Start: w.KeyAt(lo), End: w.KeyAt(hi)}, nil
}

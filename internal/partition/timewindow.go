package partition

import (
	"fmt"
	"strings"
	"time"
)

// Cadence is the length of one time window.
type Cadence string

// Supported cadences.
const (
	Hourly  Cadence = "hourly"
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
)

// DefaultFormat returns the key layout used when none is configured.
func (c Cadence) DefaultFormat() string {
	if c == Hourly {
		return "2006-01-02-15:04"
	}
	return "2006-01-02"
}

func (c Cadence) valid() bool {
	switch c {
	case Hourly, Daily, Weekly, Monthly:
		return true
	}
	return false
}

// TimeWindowConfig configures a TimeWindow definition.
type TimeWindowConfig struct {
	Cadence Cadence

	// Start is the first window's start. It must sit on a cadence boundary in
	// Location: top of the hour, midnight, or midnight on the 1st for monthly.
	// Weekly windows are anchored at Start's weekday.
	Start time.Time

	// End bounds the last window's end. Zero means open-ended.
	End time.Time

	// Format is a Go time layout for keys. Defaults to Cadence.DefaultFormat.
	// Hourly windows in a zone with daylight saving need a layout carrying
	// the UTC offset.
	Format string

	// Location is the time zone windows are aligned in. Defaults to UTC.
	Location *time.Location

	// EndOffset includes this many windows past the last complete one.
	EndOffset int
}

// TimeWindow yields one key per complete window from Start up to the as-of
// instant. Keys are the formatted window starts, in chronological order.
type TimeWindow struct {
	cadence   Cadence
	start     time.Time
	end       time.Time
	format    string
	loc       *time.Location
	endOffset int
}

// NewTimeWindow validates cfg and creates a time-window definition.
func NewTimeWindow(cfg TimeWindowConfig) (*TimeWindow, error) {
	if !cfg.Cadence.valid() {
		return nil, fmt.Errorf("time window partitions: unknown cadence %q", cfg.Cadence)
	}
	if cfg.Start.IsZero() {
		return nil, fmt.Errorf("time window partitions: start is required")
	}
	if cfg.EndOffset < 0 {
		return nil, fmt.Errorf("time window partitions: end offset must be >= 0, got %d", cfg.EndOffset)
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	format := cfg.Format
	if format == "" {
		format = cfg.Cadence.DefaultFormat()
	}

	start := cfg.Start.In(loc)
	if aligned := align(cfg.Cadence, start); !aligned.Equal(start) {
		return nil, fmt.Errorf("time window partitions: start %s is not on a %s boundary in %s",
			start.Format(time.RFC3339), cfg.Cadence, loc)
	}

	w := &TimeWindow{
		cadence:   cfg.Cadence,
		start:     start,
		format:    format,
		loc:       loc,
		endOffset: cfg.EndOffset,
	}
	if !cfg.End.IsZero() {
		w.end = cfg.End.In(loc)
		if !w.end.After(start) {
			return nil, fmt.Errorf("time window partitions: end %s is not after start %s",
				w.end.Format(time.RFC3339), start.Format(time.RFC3339))
		}
	}

	// The layout must distinguish adjacent windows, or keys would collide.
	k0, k1 := w.KeyAt(0), w.KeyAt(1)
	if k0 == k1 {
		return nil, fmt.Errorf("time window partitions: format %q does not distinguish %s windows", format, cfg.Cadence)
	}
	if _, err := w.parse(k0); err != nil {
		return nil, fmt.Errorf("time window partitions: format %q does not round-trip: %w", format, err)
	}
	// Wall-clock hours repeat when clocks fall back.
	if cfg.Cadence == Hourly && !hasZone(format) && shiftsOffset(start) {
		return nil, fmt.Errorf("time window partitions: hourly format %q has no UTC offset and %s changes offset; add one to the layout, e.g. %q",
			format, loc, "2006-01-02T15:04-0700")
	}
	return w, nil
}

// hasZone reports whether a Go time layout prints a zone offset or name.
func hasZone(layout string) bool {
	return strings.Contains(layout, "-07") || strings.Contains(layout, "Z07") || strings.Contains(layout, "MST")
}

// shiftsOffset reports whether t's zone changes its UTC offset within ten
// years of t. Monthly samples catch seasonal daylight saving.
func shiftsOffset(t time.Time) bool {
	_, base := t.Zone()
	for m := 1; m <= 120; m++ {
		if _, off := t.AddDate(0, m, 0).Zone(); off != base {
			return true
		}
	}
	return false
}

func align(c Cadence, t time.Time) time.Time {
	y, m, d := t.Date()
	switch c {
	case Hourly:
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, t.Location())
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	}
}

// Cadence returns the window length.
func (w *TimeWindow) Cadence() Cadence { return w.cadence }

// Location returns the zone windows are aligned in.
func (w *TimeWindow) Location() *time.Location { return w.loc }

// WindowStart returns the start of window i. Negative indexes address
// windows before the first one.
func (w *TimeWindow) WindowStart(i int) time.Time {
	switch w.cadence {
	case Hourly:
		return w.start.Add(time.Duration(i) * time.Hour)
	case Daily:
		return w.start.AddDate(0, 0, i)
	case Weekly:
		return w.start.AddDate(0, 0, 7*i)
	default:
		return w.start.AddDate(0, i, 0)
	}
}

// KeyAt formats the key of window i.
func (w *TimeWindow) KeyAt(i int) string {
	return w.WindowStart(i).Format(w.format)
}

// IndexAt returns the index of the window containing t.
func (w *TimeWindow) IndexAt(t time.Time) int {
	var n int
	switch w.cadence {
	case Hourly:
		n = int(t.Sub(w.start) / time.Hour)
	case Daily:
		n = int(t.Sub(w.start) / (24 * time.Hour))
	case Weekly:
		n = int(t.Sub(w.start) / (7 * 24 * time.Hour))
	default:
		lt := t.In(w.loc)
		n = (lt.Year()-w.start.Year())*12 + int(lt.Month()-w.start.Month())
	}
	// The estimate can be off by one around DST shifts and for negative spans.
	for w.WindowStart(n).After(t) {
		n--
	}
	for !w.WindowStart(n + 1).After(t) {
		n++
	}
	return n
}

// Count returns the number of windows that exist as of asOf.
func (w *TimeWindow) Count(asOf time.Time) int {
	last := w.IndexAt(asOf) - 1 + w.endOffset
	if !w.end.IsZero() {
		last = min(last, w.IndexAt(w.end)-1)
	}
	return max(last+1, 0)
}

// Keys implements Definition.
func (w *TimeWindow) Keys(asOf time.Time) []string {
	n := w.Count(asOf)
	keys := make([]string, n)
	for i := range n {
		keys[i] = w.KeyAt(i)
	}
	return keys
}

func (w *TimeWindow) index(key string, asOf time.Time) (int, bool) {
	i, err := w.parse(key)
	if err != nil || i < 0 || i >= w.Count(asOf) {
		return 0, false
	}
	return i, true
}

// parse returns the window index of key, which must be a window start
// formatted exactly as KeyAt would format it.
func (w *TimeWindow) parse(key string) (int, error) {
	t, err := time.ParseInLocation(w.format, key, w.loc)
	if err != nil {
		return 0, err
	}
	i := w.IndexAt(t)
	if w.KeyAt(i) != key {
		return 0, fmt.Errorf("%q is not the start of a %s window", key, w.cadence)
	}
	return i, nil
}

// Bounds returns the [start, end) instants of the window named by key.
func (w *TimeWindow) Bounds(key string) (time.Time, time.Time, error) {
	i, err := w.parse(key)
	if err != nil {
		return time.Time{}, time.Time{}, &InvalidRangeError{
			Range:      Single(key),
			Key:        key,
			Definition: w.String(),
			Reason:     err.Error(),
		}
	}
	return w.WindowStart(i), w.WindowStart(i + 1), nil
}

// Span returns the [start, end) instants covered by r.
func (w *TimeWindow) Span(r KeyRange) (time.Time, time.Time, error) {
	from, _, err := w.Bounds(r.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	_, to, err := w.Bounds(r.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, newInvalidRange(w, r, "", "start comes after end")
	}
	return from, to, nil
}

// Overlapping returns the first and last window indexes that intersect
// [from, to). The indexes are not clipped to existing windows.
func (w *TimeWindow) Overlapping(from, to time.Time) (int, int) {
	return w.IndexAt(from), w.IndexAt(to.Add(-time.Nanosecond))
}

// String implements Definition.
func (w *TimeWindow) String() string {
	s := fmt.Sprintf("%s[%s", w.cadence, w.KeyAt(0))
	if !w.end.IsZero() {
		s += " to " + w.end.Format(w.format)
	}
	if w.loc != time.UTC {
		s += " " + w.loc.String()
	}
	return s + "]"
}

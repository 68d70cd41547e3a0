// Package engine executes resolved plans in-process.
//
// The Runner is a reference scheduler: it walks a resolution.Plan in
// dependency order and, for each step, loads inputs through an IOManager,
// runs the asset's compute function, stores the result and appends one
// MaterializationRecord per stored partition to a RecordSink.
//
// There is no retry and no scheduling policy. A run stops at the first
// failing step. Records are stamped with a shared logical Clock so their
// order never depends on wall time.
//
// Runs share no resolution state. Concurrent Run calls on one Runner are
// safe as long as its IOManager and RecordSink are.
package engine

// Package partition defines how an asset is divided into partitions.
//
// A Definition yields an ordered, duplicate-free sequence of partition keys.
// Order matters: a KeyRange is a closed interval in that order, so the same
// two endpoints can denote different key sets under different definitions.
//
// Three definitions are provided:
//   - Static: a fixed key list, in declaration order
//   - TimeWindow: one key per complete time window up to an as-of instant
//   - Dynamic: an append-only key list that grows at runtime
//
// Time is always passed in explicitly. No definition reads the wall clock, so
// resolution against a fixed as-of instant is deterministic.
package partition

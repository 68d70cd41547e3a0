// Package harness runs conformance scenarios against the real runner.
//
// A scenario names a directory of CUE asset declarations, an evaluation
// instant and a sequence of runs. Every run goes through engine.Runner with a
// shared in-memory IO manager and an in-memory SQLite store as record sink,
// so storage calls and materialization records are those production code
// produces. Clocks and run IDs are deterministic, which makes the rendered
// trace stable enough for golden files:
//
//	scenario: trailing_window
//	run run-1 assets=upstream_asset partition=1..3
//	  store upstream_asset 1..3
//	  record upstream_asset 1 seq=1
//	  ...
//
// Assertions then check the store (materialized, record_count), the trace
// (loaded, stored) and the graph's impact analysis (impact).
package harness

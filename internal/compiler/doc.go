// Package compiler turns CUE asset declarations into an asset graph.
//
// Declarations live under a top-level "asset" struct keyed by asset key:
//
//	asset: "raw/events": {
//		version:    "1.2.0"
//		partitions: {kind: "time_window", cadence: "daily", start: "2024-01-01"}
//	}
//	asset: daily_summary: {
//		partitions: {kind: "time_window", cadence: "daily", start: "2024-01-01"}
//		deps: "raw/events": mapping: {kind: "time_window", start_offset: -1}
//	}
//
// Compilation is three steps: CompileAsset/LoadDir parse CUE into
// ir.AssetSpec, Validate checks each spec on its own, and Build resolves
// definitions and mappings and hands the nodes to graph.New.
package compiler

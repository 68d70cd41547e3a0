// Package ir provides the foundational types shared by every assetgraph package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the bottom layer with
// no circular dependencies.
//
// Key design constraints:
//   - Asset keys are "/"-separated paths and compare as plain strings
//   - MaterializationRecords are immutable and content-addressed
//   - Ordering uses the logical seq, never the wall-clock timestamp
//   - All JSON tags use snake_case
package ir

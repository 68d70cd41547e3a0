package ir

// Version constants for declarations and engine.
const (
	// SchemaVersion is the asset declaration schema version.
	SchemaVersion = "1"

	// EngineVersion is the assetgraph engine version.
	EngineVersion = "0.1.0"
)

package ir

// AssetSpec represents a compiled asset declaration.
type AssetSpec struct {
	Key         AssetKey         `json:"key" validate:"required"`
	Description string           `json:"description,omitempty"`
	Version     string           `json:"version,omitempty"`
	Partitions  *PartitionsSpec  `json:"partitions,omitempty"`
	Deps        []DependencySpec `json:"deps,omitempty" validate:"dive"`
}

// Partitioned reports whether the declaration carries a partitions definition.
func (s AssetSpec) Partitioned() bool {
	return s.Partitions != nil
}

// PartitionsSpec declares how an asset is divided into partitions.
//
// Only the fields relevant to Kind are read:
//   - static: Keys
//   - time_window: Cadence, Start, End, Format, Timezone, EndOffset
//   - dynamic: Name
type PartitionsSpec struct {
	Kind      string   `json:"kind" validate:"required,oneof=static time_window dynamic"`
	Keys      []string `json:"keys,omitempty" validate:"unique,dive,required"`
	Cadence   string   `json:"cadence,omitempty" validate:"omitempty,oneof=hourly daily weekly monthly"`
	Start     string   `json:"start,omitempty"`
	End       string   `json:"end,omitempty"`
	Format    string   `json:"format,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
	EndOffset int      `json:"end_offset,omitempty" validate:"gte=0"`
	Name      string   `json:"name,omitempty"`
}

// Partition kinds.
const (
	PartitionsStatic     = "static"
	PartitionsTimeWindow = "time_window"
	PartitionsDynamic    = "dynamic"
)

// DependencySpec declares an edge from the owning asset to an upstream asset.
type DependencySpec struct {
	Asset   AssetKey     `json:"asset" validate:"required"`
	Mapping *MappingSpec `json:"mapping,omitempty"`
}

// MappingSpec declares the partition mapping of a dependency.
// A nil MappingSpec means identity.
type MappingSpec struct {
	Kind        string              `json:"kind" validate:"required,oneof=identity all_partitions static filter trailing_window time_window custom"`
	Name        string              `json:"name,omitempty"`
	Value       string              `json:"value,omitempty"`
	Separator   string              `json:"separator,omitempty"`
	Size        int                 `json:"size,omitempty" validate:"gte=0"`
	StartOffset int                 `json:"start_offset,omitempty"`
	EndOffset   int                 `json:"end_offset,omitempty"`
	Map         map[string][]string `json:"map,omitempty"`
}

// Mapping kinds.
const (
	MappingIdentity       = "identity"
	MappingAllPartitions  = "all_partitions"
	MappingStatic         = "static"
	MappingFilter         = "filter"
	MappingTrailingWindow = "trailing_window"
	MappingTimeWindow     = "time_window"
	MappingCustom         = "custom"
)

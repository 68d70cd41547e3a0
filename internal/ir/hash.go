package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm migration.
const (
	DomainMaterialization = "assetgraph/materialization/v1"
	DomainDeclaration     = "assetgraph/declaration/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MaterializationID computes the content-addressed ID of a materialization.
// The wall-clock timestamp is excluded so that replaying a run with the same
// logical clock yields the same IDs.
func MaterializationID(runID string, asset AssetKey, partitionKey, codeVersion string, seq int64) (string, error) {
	obj := map[string]any{
		"run_id":        runID,
		"asset_key":     asset,
		"partition_key": partitionKey,
		"code_version":  codeVersion,
		"seq":           seq,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("MaterializationID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMaterialization, canonical), nil
}

// DeclarationHash fingerprints a set of asset declarations.
// Declaration order does not matter; dependency order within an asset does.
func DeclarationHash(specs []*AssetSpec) (string, error) {
	assets := make(map[string]any, len(specs))
	for _, s := range specs {
		if _, dup := assets[string(s.Key)]; dup {
			return "", fmt.Errorf("DeclarationHash: duplicate asset %q", s.Key)
		}
		assets[string(s.Key)] = specObject(s)
	}

	canonical, err := MarshalCanonical(assets)
	if err != nil {
		return "", fmt.Errorf("DeclarationHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDeclaration, canonical), nil
}

func specObject(s *AssetSpec) map[string]any {
	obj := map[string]any{
		"description": s.Description,
		"version":     s.Version,
	}
	if p := s.Partitions; p != nil {
		part := map[string]any{
			"kind":       p.Kind,
			"keys":       p.Keys,
			"cadence":    p.Cadence,
			"start":      p.Start,
			"end":        p.End,
			"format":     p.Format,
			"timezone":   p.Timezone,
			"end_offset": p.EndOffset,
			"name":       p.Name,
		}
		if p.Keys == nil {
			part["keys"] = []string{}
		}
		obj["partitions"] = part
	}

	deps := make([]any, 0, len(s.Deps))
	for _, d := range s.Deps {
		dep := map[string]any{"asset": d.Asset}
		if m := d.Mapping; m != nil {
			table := make(map[string]any, len(m.Map))
			for k, v := range m.Map {
				table[k] = v
			}
			dep["mapping"] = map[string]any{
				"kind":         m.Kind,
				"name":         m.Name,
				"value":        m.Value,
				"separator":    m.Separator,
				"size":         m.Size,
				"start_offset": m.StartOffset,
				"end_offset":   m.EndOffset,
				"map":          table,
			}
		}
		deps = append(deps, dep)
	}
	obj["deps"] = deps
	return obj
}

// MustMaterializationID is like MaterializationID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustMaterializationID(runID string, asset AssetKey, partitionKey, codeVersion string, seq int64) string {
	id, err := MaterializationID(runID, asset, partitionKey, codeVersion, seq)
	if err != nil {
		panic(err)
	}
	return id
}

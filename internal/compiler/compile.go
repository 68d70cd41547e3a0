package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/assetgraph/internal/ir"
)

var (
	assetFields      = []string{"description", "version", "partitions", "deps"}
	dependencyFields = []string{"mapping"}
	partitionFields  = []string{"kind", "keys", "cadence", "start", "end", "format", "timezone", "end_offset", "name"}
	mappingFields    = []string{"kind", "name", "value", "separator", "size", "start_offset", "end_offset", "map"}
)

// CompileAssets compiles every declaration under the top-level "asset" field
// of v, in declaration order. It stops at the first error.
func CompileAssets(v cue.Value) ([]*ir.AssetSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	assets := v.LookupPath(cue.ParsePath("asset"))
	if !assets.Exists() {
		return nil, nil
	}
	iter, err := assets.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []*ir.AssetSpec
	for iter.Next() {
		spec, err := compileAsset(ir.AssetKey(iter.Selector().Unquoted()), iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// CompileAsset parses a CUE value into an AssetSpec. The asset key is the
// last label of the value's path:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`asset: "raw/events": { ... }`)
//	spec, err := CompileAsset(v.LookupPath(cue.MakePath(cue.Str("asset"), cue.Str("raw/events"))))
func CompileAsset(v cue.Value) (*ir.AssetSpec, error) {
	var key ir.AssetKey
	if sels := v.Path().Selectors(); len(sels) > 0 {
		if last := sels[len(sels)-1]; last.LabelType() == cue.StringLabel {
			key = ir.AssetKey(last.Unquoted())
		}
	}
	return compileAsset(key, v)
}

func compileAsset(key ir.AssetKey, v cue.Value) (*ir.AssetSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if key == "" {
		return nil, &CompileError{Field: "asset", Message: "asset key is required", Pos: v.Pos()}
	}
	field := "asset." + string(key)
	if err := checkFields(v, field, assetFields); err != nil {
		return nil, err
	}

	spec := &ir.AssetSpec{Key: key}
	var err error
	if spec.Description, err = optionalString(v, field, "description"); err != nil {
		return nil, err
	}
	if spec.Version, err = optionalString(v, field, "version"); err != nil {
		return nil, err
	}

	if pv := v.LookupPath(cue.ParsePath("partitions")); pv.Exists() {
		if err := checkFields(pv, field+".partitions", partitionFields); err != nil {
			return nil, err
		}
		spec.Partitions = &ir.PartitionsSpec{}
		if err := decode(pv, field+".partitions", spec.Partitions); err != nil {
			return nil, err
		}
	}

	if spec.Deps, err = parseDeps(v, field); err != nil {
		return nil, err
	}
	return spec, nil
}

// parseDeps reads the deps struct. Each label is an upstream asset key; an
// empty body means an identity dependency.
func parseDeps(v cue.Value, field string) ([]ir.DependencySpec, error) {
	dv := v.LookupPath(cue.ParsePath("deps"))
	if !dv.Exists() {
		return nil, nil
	}
	iter, err := dv.Fields()
	if err != nil {
		return nil, &CompileError{Field: field + ".deps", Message: "deps must be a struct keyed by upstream asset", Pos: dv.Pos()}
	}

	var deps []ir.DependencySpec
	for iter.Next() {
		upstream := iter.Selector().Unquoted()
		depField := fmt.Sprintf("%s.deps.%s", field, upstream)
		if err := checkFields(iter.Value(), depField, dependencyFields); err != nil {
			return nil, err
		}
		dep := ir.DependencySpec{Asset: ir.AssetKey(upstream)}

		if mv := iter.Value().LookupPath(cue.ParsePath("mapping")); mv.Exists() {
			if err := checkFields(mv, depField+".mapping", mappingFields); err != nil {
				return nil, err
			}
			dep.Mapping = &ir.MappingSpec{}
			if err := decode(mv, depField+".mapping", dep.Mapping); err != nil {
				return nil, err
			}
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

func checkFields(v cue.Value, field string, allowed []string) error {
	iter, err := v.Fields()
	if err != nil {
		return &CompileError{Field: field, Message: "must be a struct", Pos: v.Pos()}
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		if !slices.Contains(allowed, name) {
			return &CompileError{
				Field:   field + "." + name,
				Message: fmt.Sprintf("unknown field %q", name),
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}

func optionalString(v cue.Value, field, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field + "." + name, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

func decode(v cue.Value, field string, into any) error {
	if err := v.Decode(into); err != nil {
		var ce *CompileError
		if errors.As(formatCUEError(err), &ce) {
			return ce
		}
		return &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

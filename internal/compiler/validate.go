package compiler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"

	"github.com/roach88/assetgraph/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrInvalidAssetKey     = "E201" // empty key or malformed path segment
	ErrInvalidVersion      = "E202" // version is not strict semver
	ErrInvalidPartitions   = "E203" // bad partitions declaration
	ErrInvalidTimeWindow   = "E204" // time window that cannot be built
	ErrInvalidMapping      = "E205" // bad mapping kind or parameters
	ErrDuplicateDependency = "E206" // same upstream declared twice
	ErrSelfDependency      = "E207" // asset depends on itself
)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Asset   ir.AssetKey `json:"asset"`
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Asset, e.Field, e.Message)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks one declaration. It returns every problem found, not just
// the first. Cross-asset checks (unknown upstreams, cycles) belong to
// graph.New.
func Validate(spec *ir.AssetSpec) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Asset: spec.Key, Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	errs = append(errs, structErrors(spec)...)

	if err := spec.Key.Validate(); err != nil {
		add("key", ErrInvalidAssetKey, "%v", err)
	}
	if spec.Version != "" {
		if _, err := semver.StrictNewVersion(spec.Version); err != nil {
			add("version", ErrInvalidVersion, "version %q is not semver: %v", spec.Version, err)
		}
	}

	if p := spec.Partitions; p != nil {
		switch p.Kind {
		case ir.PartitionsStatic:
			if len(p.Keys) == 0 {
				add("partitions.keys", ErrInvalidPartitions, "static partitions need at least one key")
			}
		case ir.PartitionsTimeWindow:
			if p.Cadence == "" {
				add("partitions.cadence", ErrInvalidTimeWindow, "time window partitions need a cadence")
			} else if _, err := newTimeWindow(p); err != nil {
				add("partitions", ErrInvalidTimeWindow, "%v", err)
			}
		case ir.PartitionsDynamic:
			if p.Name == "" {
				add("partitions.name", ErrInvalidPartitions, "dynamic partitions need a name")
			}
		}
	}

	seen := make(map[ir.AssetKey]bool, len(spec.Deps))
	for i, d := range spec.Deps {
		field := fmt.Sprintf("deps[%d]", i)
		if d.Asset == spec.Key {
			add(field, ErrSelfDependency, "asset depends on itself")
		}
		if seen[d.Asset] {
			add(field, ErrDuplicateDependency, "duplicate dependency on %s", d.Asset)
		}
		seen[d.Asset] = true
		if d.Mapping != nil {
			if msg := mappingProblem(d.Mapping); msg != "" {
				add(field+".mapping", ErrInvalidMapping, "%s", msg)
			}
		}
	}
	return errs
}

// structErrors runs the struct tag rules of the ir types.
func structErrors(spec *ir.AssetSpec) []ValidationError {
	err := getValidator().Struct(spec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Asset: spec.Key, Field: "asset", Message: err.Error(), Code: ErrInvalidPartitions}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "AssetSpec.partitions.kind"; drop the type name.
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out = append(out, ValidationError{
			Asset:   spec.Key,
			Field:   field,
			Message: tagMessage(fe),
			Code:    codeForField(field),
		})
	}
	return out
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("value %q not recognized, only support %q", fe.Value(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s cannot be less than %s", fe.Field(), fe.Param())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", fe.Field())
	}
	return fe.Error()
}

func codeForField(field string) string {
	switch {
	case strings.HasPrefix(field, "partitions"):
		return ErrInvalidPartitions
	case strings.Contains(field, ".mapping"):
		return ErrInvalidMapping
	default:
		return ErrInvalidAssetKey
	}
}

// mappingProblem reports parameters a mapping kind cannot work without.
func mappingProblem(m *ir.MappingSpec) string {
	switch m.Kind {
	case ir.MappingStatic:
		if len(m.Map) == 0 {
			return "static mapping needs a non-empty map"
		}
	case ir.MappingFilter:
		if m.Value == "" {
			return "filter mapping needs a value"
		}
	case ir.MappingTrailingWindow:
		if m.Size < 1 {
			return fmt.Sprintf("trailing window size must be >= 1, got %d", m.Size)
		}
	case ir.MappingTimeWindow:
		if m.StartOffset > m.EndOffset {
			return fmt.Sprintf("start_offset %d is after end_offset %d", m.StartOffset, m.EndOffset)
		}
	case ir.MappingCustom:
		if m.Name == "" {
			return "custom mapping needs a registered name"
		}
	}
	return ""
}

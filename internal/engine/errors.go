package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/assetgraph/internal/ir"
)

// StepErrorCode categorizes step failures.
type StepErrorCode string

const (
	// ErrCodeResolution means an upstream selection could not be resolved.
	ErrCodeResolution StepErrorCode = "RESOLUTION_FAILED"

	// ErrCodeLoad means the IOManager failed to load an input.
	ErrCodeLoad StepErrorCode = "LOAD_FAILED"

	// ErrCodeCompute means the asset's compute function failed.
	ErrCodeCompute StepErrorCode = "COMPUTE_FAILED"

	// ErrCodeStore means the IOManager failed to store the output.
	ErrCodeStore StepErrorCode = "STORE_FAILED"

	// ErrCodeRecord means a materialization record could not be appended.
	ErrCodeRecord StepErrorCode = "RECORD_FAILED"
)

// StepError reports the step that stopped a run.
type StepError struct {
	Code  StepErrorCode
	Asset ir.AssetKey
	RunID string

	// Upstream is set for resolution and load failures.
	Upstream ir.AssetKey

	Err error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Upstream != "" {
		return fmt.Sprintf("%s: asset %s input %s (run=%s): %v", e.Code, e.Asset, e.Upstream, e.RunID, e.Err)
	}
	return fmt.Sprintf("%s: asset %s (run=%s): %v", e.Code, e.Asset, e.RunID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// IsStepError reports whether err is or wraps a StepError with the given code.
func IsStepError(err error, code StepErrorCode) bool {
	var se *StepError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

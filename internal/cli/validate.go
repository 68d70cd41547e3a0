package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/roach88/assetgraph/internal/compiler"
	"github.com/roach88/assetgraph/internal/graph"
	"github.com/roach88/assetgraph/internal/ir"
	"github.com/roach88/assetgraph/internal/mapping"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool `json:"valid"`
	Assets int  `json:"assets"`

	// Fingerprint is the declaration hash of a valid definitions directory.
	// It changes whenever a declaration changes.
	Fingerprint string `json:"fingerprint,omitempty"`

	Errors []Problem `json:"errors,omitempty"`
}

// Problem is one validation finding.
type Problem struct {
	Code    string `json:"code"`
	Asset   string `json:"asset,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	AsOf string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <defs-dir>",
		Short: "Validate asset declarations",
		Long: `Validate CUE asset declarations without running anything.

Checks every declaration (keys, versions, partitions, mapping parameters),
assembles the graph (unknown dependencies, cycles) and dry-runs every
partitioned edge to find mappings that cannot translate between the two
definitions, such as identity across different key sets.

Exit codes:
  0 - All declarations valid
  1 - Validation problems found
  2 - Command error (directory not found, no CUE files, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.AsOf, "as-of", "", "evaluation instant for time windows (RFC 3339 or YYYY-MM-DD, default now)")

	return cmd
}

func runValidate(opts *ValidateOptions, defsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	asOf, err := parseAsOf(opts.AsOf)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, err)
	}

	loadResult, loadErrors := compiler.LoadDir(defsDir, compiler.LoadModeCollectAll)

	// Nothing was loaded: directory not found, no files, CUE errors.
	if loadResult == nil {
		var le *compiler.LoadError
		if errors.As(loadErrors[0], &le) {
			return formatter.Fail(ExitCommandError, le.Code, errors.New(le.Message))
		}
		return formatter.Fail(ExitCommandError, compiler.ErrCodeGeneric, loadErrors[0])
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, defsDir)

	var problems []Problem
	for _, err := range loadErrors {
		problems = append(problems, problemFrom(err, ""))
	}
	for _, spec := range loadResult.Assets {
		formatter.VerboseLog("Validating asset: %s", spec.Key)
		for _, verr := range compiler.Validate(spec) {
			problems = append(problems, problemFrom(verr, ""))
		}
	}

	// Graph checks only make sense once every declaration is valid.
	if len(problems) == 0 {
		problems = append(problems, graphProblems(loadResult, asOf)...)
	}

	result := ValidationResult{Valid: len(problems) == 0, Assets: len(loadResult.Assets), Errors: problems}
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	if result.Fingerprint, err = ir.DeclarationHash(loadResult.Assets); err != nil {
		return formatter.Fail(ExitFailure, compiler.ErrCodeGeneric, err)
	}
	return formatter.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ All %d asset(s) valid\n", result.Assets)
		fmt.Fprintf(w, "  fingerprint %s\n", result.Fingerprint)
	})
}

func graphProblems(loaded *compiler.LoadResult, asOf time.Time) []Problem {
	g, err := compiler.Build(loaded.Assets)
	if err != nil {
		return flatten(err, ErrCodeGraph)
	}
	if err := g.Check(asOf); err != nil {
		return flatten(err, ErrCodeLint)
	}
	return nil
}

// flatten turns an aggregated error into one problem per cause.
func flatten(err error, code string) []Problem {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return []Problem{problemFrom(err, code)}
	}
	out := make([]Problem, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		out = append(out, problemFrom(e, code))
	}
	return out
}

func problemFrom(err error, code string) Problem {
	var (
		ve  compiler.ValidationError
		le  *compiler.LoadError
		de  *graph.DefinitionError
		ude *graph.UnknownDependencyError
		ume *mapping.UnsupportedMappingError
	)
	switch {
	case errors.As(err, &ve):
		return Problem{Code: ve.Code, Asset: string(ve.Asset), Field: ve.Field, Message: ve.Message}
	case errors.As(err, &le):
		p := Problem{Code: le.Code, Message: le.Message}
		if le.Pos.IsValid() {
			p.Line = le.Pos.Line()
		}
		return p
	case errors.As(err, &ude):
		return Problem{Code: code, Asset: string(ude.Asset), Message: err.Error()}
	case errors.As(err, &de):
		return Problem{Code: code, Asset: string(de.Asset), Field: de.Field, Message: de.Message}
	case errors.As(err, &ume):
		return Problem{Code: code, Asset: string(ume.DownstreamAsset), Message: err.Error()}
	}
	if code == "" {
		code = compiler.ErrCodeGeneric
	}
	return Problem{Code: code, Message: err.Error()}
}

// outputValidationErrors outputs every problem and fails with exit code 1.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    result.Errors[0].Code,
				Message: result.Errors[0].Message,
			},
		}
		if err := formatter.encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, p := range result.Errors {
		if p.Line > 0 {
			fmt.Fprintf(w, "line %d\n", p.Line)
		}
		switch {
		case p.Asset != "" && p.Field != "":
			fmt.Fprintf(w, "  %s: %s: %s: %s\n\n", p.Code, p.Asset, p.Field, p.Message)
		case p.Asset != "":
			fmt.Fprintf(w, "  %s: %s: %s\n\n", p.Code, p.Asset, p.Message)
		default:
			fmt.Fprintf(w, "  %s: %s\n\n", p.Code, p.Message)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}

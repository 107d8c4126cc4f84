package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/sigsync/internal/config"
	"github.com/roach88/sigsync/internal/harness"
)

// ErrCodeScenarioInvalid marks a scenario file that does not load.
const ErrCodeScenarioInvalid = "E_SCENARIO_INVALID"

// ValidationIssue is one problem found by validate.
type ValidationIssue struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Checked int               `json:"checked"`
	Errors  []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.cue | scenarios>",
		Short: "Validate a config file or scenario files",
		Long: `Validate a CUE server config or harness scenarios without running anything.

A .cue path is checked against the config schema. Any other path is searched
for .yaml/.yml scenario files, each of which must parse.

Exit codes:
  0 - Everything is valid
  1 - Validation errors found
  2 - Command error (path not found, etc.)

Examples:
  sigsync validate sigsync.cue
  sigsync validate ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var result ValidationResult
	if filepath.Ext(path) == ".cue" {
		result = validateConfig(path)
	} else {
		files, err := harness.FindScenarios(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		result = validateScenarios(files, formatter)
	}

	if formatter.isJSON() {
		var failed *CLIError
		if !result.Valid {
			failed = &CLIError{Code: result.Errors[0].Code, Message: "validation failed"}
		}
		if err := formatter.Result(result, failed); err != nil {
			return err
		}
	} else {
		outputValidateText(formatter, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func validateConfig(path string) ValidationResult {
	result := ValidationResult{Valid: true, Checked: 1}
	if _, err := config.Load(path); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, configIssue(path, err))
	}
	return result
}

func configIssue(path string, err error) ValidationIssue {
	issue := ValidationIssue{File: path, Code: ErrCodeInvalidConfig, Message: err.Error()}

	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		issue.Code = cfgErr.Code
		issue.Message = cfgErr.Message
		if cfgErr.Pos.IsValid() {
			issue.Line = cfgErr.Pos.Line()
		}
	}
	return issue
}

func validateScenarios(files []string, formatter *OutputFormatter) ValidationResult {
	result := ValidationResult{Valid: true, Checked: len(files)}
	for _, f := range files {
		formatter.VerboseLog("Checking %s", f)
		if _, err := harness.LoadScenario(f); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationIssue{
				File:    f,
				Code:    ErrCodeScenarioInvalid,
				Message: err.Error(),
			})
		}
	}
	return result
}

func outputValidateText(f *OutputFormatter, result ValidationResult) {
	if result.Valid {
		fmt.Fprintf(f.Writer, "✓ %d file(s) valid\n", result.Checked)
		return
	}

	for _, issue := range result.Errors {
		if issue.Line > 0 {
			fmt.Fprintf(f.Writer, "✗ %s:%d [%s] %s\n", issue.File, issue.Line, issue.Code, issue.Message)
			continue
		}
		fmt.Fprintf(f.Writer, "✗ %s [%s] %s\n", issue.File, issue.Code, issue.Message)
	}
	fmt.Fprintf(f.Writer, "\n%d of %d file(s) invalid\n", len(result.Errors), result.Checked)
}

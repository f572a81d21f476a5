package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plantops/shopcore/internal/rule"
)

// ValidationResult holds the result of validating a rules file.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Rules  int      `json:"rules"`
	Errors []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules-file>",
		Short: "Validate a YAML rules file without importing it",
		Long: `Check a rules file for structural problems and schema violations:
unknown trigger or action kinds, malformed condition and parameter
payloads, duplicate rule IDs. Collects every error rather than stopping
at the first.`,
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
	formatter := newFormatter(opts, cmd)

	rules, errs := rule.LoadFile(path, rule.LoadModeCollectAll)
	if rules == nil && len(errs) > 0 {
		// The file itself could not be read or parsed.
		formatter.Error("LOAD_FAILED", errs[0].Error(), nil)
		return WrapExitError(ExitCommandError, "loading rules file", errs[0])
	}
	formatter.VerboseLog("loaded %d rule(s) from %s", len(rules), path)

	result := ValidationResult{Valid: len(errs) == 0, Rules: len(rules)}
	for _, err := range errs {
		result.Errors = append(result.Errors, err.Error())
	}

	if !result.Valid {
		if opts.Format == "json" {
			formatter.Success(result)
		} else {
			var b strings.Builder
			fmt.Fprintf(&b, "%d error(s) in %s:\n", len(result.Errors), path)
			for _, msg := range result.Errors {
				fmt.Fprintf(&b, "  - %s\n", msg)
			}
			fmt.Fprint(formatter.Writer, b.String())
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	return formatter.SuccessText(fmt.Sprintf("%d rule(s) valid\n", result.Rules), result)
}

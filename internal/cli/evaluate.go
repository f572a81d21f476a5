package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plantops/shopcore/internal/engine"
)

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	var ruleID string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run a rule evaluation pass",
		Long: `Evaluate every enabled rule against the current shop state, dispatching
debounced actions. With --rule, evaluate a single rule (enabled or not)
and report which of the four outcomes it produced: fired, not triggered,
skipped, or error.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(rootOpts, ruleID, cmd)
		},
	}
	cmd.Flags().StringVar(&ruleID, "rule", "", "evaluate only this rule, regardless of enabled")
	return cmd
}

func runEvaluate(opts *RootOptions, ruleID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	st, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	eng, err := buildEngine(ctx, opts, st)
	if err != nil {
		return err
	}

	var outcomes []engine.Outcome
	if ruleID != "" {
		out, err := eng.TestRule(ctx, ruleID)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("testing rule %s", ruleID), err)
		}
		outcomes = []engine.Outcome{out}
	} else {
		outcomes, err = eng.EvaluatePass(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "evaluation pass", err)
		}
	}

	if err := formatter.SuccessText(renderOutcomes(outcomes), outcomes); err != nil {
		return err
	}
	for _, out := range outcomes {
		if out.Status == engine.StatusError {
			return NewExitError(ExitFailure, "one or more rules failed")
		}
	}
	return nil
}

func renderOutcomes(outcomes []engine.Outcome) string {
	var b strings.Builder
	for _, out := range outcomes {
		fmt.Fprintf(&b, "%-14s %s (%s): %s\n", out.Status, out.RuleID, out.RuleName, out.Message)
	}
	if len(outcomes) == 0 {
		b.WriteString("no enabled rules\n")
	}
	return b.String()
}

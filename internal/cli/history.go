package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var ruleID string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show execution records, newest first",
		Long: `List the append-only execution records written by rule firings. With
--rule, restrict the listing to one rule.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, ruleID, limit, cmd)
		},
	}
	cmd.Flags().StringVar(&ruleID, "rule", "", "show only this rule's records")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to show (0 for all)")
	return cmd
}

func runHistory(opts *RootOptions, ruleID string, limit int, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	st, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	executions, err := st.ListExecutions(ctx, ruleID, limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "listing executions", err)
	}

	var b strings.Builder
	for _, ex := range executions {
		fmt.Fprintf(&b, "%s  %-7s %-20s %s\n",
			ex.ExecutedAt.Format(time.RFC3339), ex.Status, ex.RuleID, ex.Message)
	}
	if len(executions) == 0 {
		b.WriteString("no execution records\n")
	}
	return formatter.SuccessText(b.String(), executions)
}

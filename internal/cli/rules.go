package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plantops/shopcore/internal/rule"
)

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage automation rules",
	}
	cmd.AddCommand(newRulesImportCommand(rootOpts))
	cmd.AddCommand(newRulesListCommand(rootOpts))
	return cmd
}

func newRulesImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <rules-file>",
		Short: "Import rules from a YAML file into the store",
		Long: `Validate a YAML rules file and upsert every rule into the store. The
file must be fully valid; a single bad rule rejects the whole import.
Re-importing an existing rule preserves its execution bookkeeping.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesImport(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runRulesImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	rules, errs := rule.LoadFile(path, rule.LoadModeFailFast)
	if len(errs) > 0 {
		formatter.Error("LOAD_FAILED", errs[0].Error(), nil)
		return WrapExitError(ExitFailure, "loading rules file", errs[0])
	}

	st, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	for i := range rules {
		if err := st.PutRule(ctx, &rules[i]); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("storing rule %s", rules[i].ID), err)
		}
		formatter.VerboseLog("imported rule %s (%s)", rules[i].ID, rules[i].Name)
	}
	return formatter.SuccessText(fmt.Sprintf("imported %d rule(s)\n", len(rules)),
		map[string]int{"imported": len(rules)})
}

func newRulesListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List stored rules",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesList(rootOpts, cmd)
		},
	}
	return cmd
}

func runRulesList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	st, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	rules, err := st.ListRules(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "listing rules", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-24s %-20s %-22s %8s %6s\n",
		"ID", "NAME", "TRIGGER", "ACTION", "DEBOUNCE", "FIRED")
	for i := range rules {
		r := &rules[i]
		state := ""
		if !r.Enabled {
			state = " (disabled)"
		}
		fmt.Fprintf(&b, "%-20s %-24s %-20s %-22s %8s %6d%s\n",
			r.ID, r.Name, r.Trigger.Kind, r.Action.Kind, r.DebounceWindow(), r.ExecutionCount, state)
	}
	if len(rules) == 0 {
		b.WriteString("no rules stored\n")
	}
	return formatter.SuccessText(b.String(), rules)
}

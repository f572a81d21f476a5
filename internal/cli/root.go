package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// DBPath selects the sqlite store. Postgres takes precedence when set.
	DBPath      string
	PostgresDSN string

	// RedisAddr selects a shared Redis debounce ledger. Empty means the
	// store itself arbitrates debounce claims.
	RedisAddr string

	// CapacityHours is the total production capacity over the planning
	// horizon, consumed by the capacity_shortage trigger.
	CapacityHours float64
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the shopcore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shopcore",
		Short: "Production scheduling and rule automation core",
		Long: `shopcore computes critical-path schedules over the production order
dependency graph and evaluates debounced automation rules against the
current shop state.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "shopcore.db", "sqlite database path")
	cmd.PersistentFlags().StringVar(&opts.PostgresDSN, "postgres", "", "postgres DSN (overrides --db)")
	cmd.PersistentFlags().StringVar(&opts.RedisAddr, "redis-ledger", "", "redis address for a shared debounce ledger")
	cmd.PersistentFlags().Float64Var(&opts.CapacityHours, "capacity", 0, "total capacity hours for capacity_shortage rules")

	cmd.AddCommand(NewScheduleCommand(opts))
	cmd.AddCommand(NewEvaluateCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

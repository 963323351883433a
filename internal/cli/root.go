// Package cli implements the ptasim command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/logger"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

// NewRootCommand builds the ptasim command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ptasim",
		Short: "Monte Carlo probability of target attainment for dosing regimens",
		Long: `ptasim simulates a virtual patient population to estimate, for each dosing
regimen, the probability of target attainment (PTA) at each MIC and the
cumulative fraction of response (CFR) over a susceptibility distribution.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger.SetDefault(logger.NewWithFormat(opts.logFormat, opts.logLevel, cmd.ErrOrStderr()))
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newOptimizeCommand())
	cmd.AddCommand(newScenarioCommand())
	cmd.AddCommand(newServeCommand())

	return cmd
}

// Execute runs the command line and exits non-zero on error
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/config"
)

func newScenarioCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Work with scenario files",
	}
	cmd.AddCommand(newScenarioInitCommand())
	cmd.AddCommand(newScenarioValidateCommand())
	return cmd
}

func newScenarioInitCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the reference scenario as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "" {
				return config.SaveScenario(output, config.DefaultScenario())
			}
			data, err := config.MarshalScenarioYAML(config.DefaultScenario())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	return cmd
}

func newScenarioValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a scenario file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.LoadScenario(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d regimens x %d MICs, %d patients\n", args[0], len(s.Regimens), len(s.MICs), s.NumPatients)
			return nil
		},
	}
}

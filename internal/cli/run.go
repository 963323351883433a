package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/ptasim-core/internal/engine"
	"github.com/GoSim-25-26J-441/ptasim-core/internal/report"
	"github.com/GoSim-25-26J-441/ptasim-core/internal/simulation"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/config"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/logger"
)

type runOptions struct {
	scenario string
	seed     int64
	workers  int
	ptaCSV   string
	cfrCSV   string
	asJSON   bool
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario locally and print PTA and CFR tables",
		Long: `Run a scenario file synchronously.

Examples:
  ptasim scenario init -o scenario.yaml
  ptasim run --scenario scenario.yaml
  ptasim run --scenario scenario.yaml --seed 42 --pta-csv pta_results_matrix.csv --cfr-csv cfr_results.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScenario(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scenario, "scenario", "s", "", "scenario YAML file (required)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed, overrides the scenario (0 = time-seeded)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "concurrent (MIC, regimen) pairs, overrides the scenario (0 = GOMAXPROCS)")
	cmd.Flags().StringVar(&opts.ptaCSV, "pta-csv", "", "write the PTA matrix to this CSV file")
	cmd.Flags().StringVar(&opts.cfrCSV, "cfr-csv", "", "write CFR per regimen to this CSV file")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print results as JSON instead of tables")
	_ = cmd.MarkFlagRequired("scenario")

	return cmd
}

func runScenario(cmd *cobra.Command, opts *runOptions) error {
	scenario, err := config.LoadScenario(opts.scenario)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		scenario.Seed = opts.seed
	}
	if cmd.Flags().Changed("workers") {
		scenario.Workers = opts.workers
	}

	eng := engine.NewEngine(scenario.Seed)
	eng.SetLogger(logger.Default)
	eng.SetWorkers(scenario.Workers)

	out, err := simulation.Simulate(cmd.Context(), eng, scenario.ToInput())
	if err != nil {
		return err
	}
	logger.Info("simulation finished",
		"pairs", out.Stats.Pairs,
		"evaluations", out.Stats.Evaluations,
		"seed", out.Stats.Seed,
		"duration", out.Stats.Duration)

	if opts.ptaCSV != "" {
		if err := writeFile(opts.ptaCSV, func(w io.Writer) error {
			return report.WritePTACSV(w, out.Attainment, out.Regimens)
		}); err != nil {
			return err
		}
	}
	if opts.cfrCSV != "" {
		if err := writeFile(opts.cfrCSV, func(w io.Writer) error {
			return report.WriteCFRCSV(w, out.Scores)
		}); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"pta":    report.PTAMatrix(out.Attainment, out.Regimens),
			"cfr":    out.Scores,
			"issues": out.Issues,
			"stats":  out.Stats,
		})
	}

	if err := report.WriteTable(w, out.Attainment, out.Scores); err != nil {
		return err
	}
	for _, issue := range out.Issues {
		fmt.Fprintf(w, "warning: %s\n", issue.Message)
	}
	return nil
}

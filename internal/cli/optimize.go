package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/ptasim-core/internal/improvement"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/config"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/utils"
)

type optimizeOptions struct {
	scenario      string
	objective     string
	targetCFR     float64
	startDose     float64
	startInterval float64
	maxIterations int
	doseStep      float64
	minDose       float64
	maxDose       float64
	intervals     []float64
	parallel      int
	convergence   string
	asJSON        bool
}

func newOptimizeCommand() *cobra.Command {
	opts := &optimizeOptions{}

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search for the regimen that best meets a CFR objective",
		Long: `Hill-climb over dose and interval, simulating every candidate against the
scenario's population and MIC distribution with the same virtual patients.

Objectives:
  min_daily_dose  lowest daily dose whose CFR reaches --target-cfr
  max_cfr         highest CFR within the dose range

Example:
  ptasim optimize --scenario scenario.yaml --target-cfr 90 --intervals 8,12,24`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOptimize(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scenario, "scenario", "s", "", "scenario YAML file with a mic_distribution (required)")
	cmd.Flags().StringVar(&opts.objective, "objective", string(improvement.ObjectiveMinimizeDailyDose), "min_daily_dose or max_cfr")
	cmd.Flags().Float64Var(&opts.targetCFR, "target-cfr", 90, "CFR (%) a regimen must reach for min_daily_dose")
	cmd.Flags().Float64Var(&opts.startDose, "start-dose", 0, "starting dose in mg (default: first scenario regimen)")
	cmd.Flags().Float64Var(&opts.startInterval, "start-interval", 0, "starting interval in h (default: first scenario regimen)")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iter", 20, "maximum hill-climbing iterations")
	cmd.Flags().Float64Var(&opts.doseStep, "dose-step", 250, "dose change per step in mg")
	cmd.Flags().Float64Var(&opts.minDose, "min-dose", 250, "smallest dose explored in mg")
	cmd.Flags().Float64Var(&opts.maxDose, "max-dose", 4000, "largest dose explored in mg")
	cmd.Flags().Float64SliceVar(&opts.intervals, "intervals", []float64{6, 8, 12, 24}, "allowed dosing intervals in h")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 2, "candidates simulated at once")
	cmd.Flags().StringVar(&opts.convergence, "convergence", "plateau", "stop rule: plateau or no_improvement")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("scenario")

	return cmd
}

func runOptimize(cmd *cobra.Command, opts *optimizeOptions) error {
	scenario, err := config.LoadScenario(opts.scenario)
	if err != nil {
		return err
	}

	start := scenario.Regimens[0]
	if opts.startDose > 0 {
		start.Dose = opts.startDose
	}
	if opts.startInterval > 0 {
		start.Interval = opts.startInterval
	}
	if start.Dose < opts.minDose || start.Dose > opts.maxDose {
		return fmt.Errorf("start dose %v mg is outside [%v, %v]", start.Dose, opts.minDose, opts.maxDose)
	}

	objective, err := improvement.NewObjectiveFunction(opts.objective, opts.targetCFR)
	if err != nil {
		return err
	}

	convergence, err := improvement.NewConvergenceStrategy(opts.convergence)
	if err != nil {
		return err
	}

	eval, err := improvement.NewSimulationEvaluator(scenario)
	if err != nil {
		if errors.Is(err, improvement.ErrNoDistribution) {
			return fmt.Errorf("%s: %w (optimization scores CFR)", opts.scenario, err)
		}
		return err
	}
	eval.SetParallel(opts.parallel)
	eval.SetLogger(logger.Default)

	explorer := improvement.NewDefaultExplorer().
		WithDoseStep(opts.doseStep).
		WithDoseRange(opts.minDose, opts.maxDose).
		WithIntervals(opts.intervals...)

	optimizer := improvement.NewOptimizer(objective, opts.maxIterations, 1.0).
		WithExplorer(explorer).
		WithConvergence(convergence).
		WithProgressReporter(func(iteration int, best improvement.OptimizationStep) {
			logger.Info("optimization progress",
				"iteration", iteration,
				"best", best.Regimen.Label(),
				"cfr", best.CFR)
		})

	result, err := optimizer.Optimize(cmd.Context(), start, eval)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if dd, ok := objective.(*improvement.DailyDoseObjective); ok && result.Best.CFR < dd.TargetCFR {
		fmt.Fprintf(w, "no regimen in range reached CFR %.2f%%\n", dd.TargetCFR)
	}
	fmt.Fprintf(w, "best: %s (daily %s mg), CFR %.2f%%\n",
		result.Best.Regimen.Label(), formatDose(result.Best.Regimen), utils.Round(result.Best.CFR, 2))
	fmt.Fprintf(w, "%d iterations, %d regimens simulated, stopped: %s\n\n",
		result.Iterations, result.Evaluations, result.ConvergenceReason)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Iteration\tRegimen\tCFR (%)")
	for _, step := range result.History {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\n", step.Iteration, step.Regimen.Label(), utils.Round(step.CFR, 2))
	}
	return tw.Flush()
}

func formatDose(r models.Regimen) string {
	return fmt.Sprintf("%g", utils.Round(r.DailyDose(), 1))
}

// Package simulation runs the Monte Carlo engine and the response aggregator as
// one synchronous call.
package simulation

import (
	"context"
	"log/slog"

	"github.com/GoSim-25-26J-441/ptasim-core/internal/engine"
	"github.com/GoSim-25-26J-441/ptasim-core/internal/metrics"
	"github.com/GoSim-25-26J-441/ptasim-core/internal/response"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// Outcome is a simulation result together with the tolerated configuration
// mismatches found while aggregating it.
type Outcome struct {
	*models.SimulationResult
	Issues []response.Issue
}

// Simulate estimates PTA for every (MIC, regimen) pair of input and, when a
// distribution is given, scores every regimen against it.
func Simulate(ctx context.Context, eng *engine.Engine, input *models.SimulationInput) (*Outcome, error) {
	return SimulateWithLogger(ctx, eng, input, logger.Default)
}

// SimulateWithLogger is Simulate with an explicit logger for warnings
func SimulateWithLogger(ctx context.Context, eng *engine.Engine, input *models.SimulationInput, log *slog.Logger) (*Outcome, error) {
	attainment, stats, err := eng.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	metrics.ObserveStats(stats)

	out := &Outcome{
		SimulationResult: &models.SimulationResult{
			Regimens:   response.Regimens(attainment),
			Attainment: attainment,
			Stats:      *stats,
		},
	}

	if stats.DomainErrors > 0 {
		log.Warn("exposure undefined for some patients, counted as not attaining",
			"domain_errors", stats.DomainErrors,
			"evaluations", stats.Evaluations)
	}

	// without a distribution every regimen still gets a score, all weights being 0
	out.Scores = response.Aggregate(attainment, input.Distribution)
	if len(input.Distribution) == 0 {
		return out, nil
	}

	out.Issues = response.CheckDistribution(attainment, input.Distribution)
	for _, issue := range out.Issues {
		log.Warn("susceptibility distribution mismatch",
			"kind", issue.Kind,
			"mic", issue.MIC,
			"detail", issue.Message)
	}

	return out, nil
}

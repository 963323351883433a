package improvement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoSim-25-26J-441/ptasim-core/internal/engine"
	"github.com/GoSim-25-26J-441/ptasim-core/internal/response"
	"github.com/GoSim-25-26J-441/ptasim-core/internal/simulation"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/config"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// ErrNoDistribution is returned when a scenario has no MIC distribution to
// compute CFR against.
var ErrNoDistribution = errors.New("scenario has no MIC distribution")

// SimulationEvaluator evaluates candidates against a base scenario. Every
// candidate is simulated alone with the same base seed, so all candidates see
// the same virtual patients and differences in CFR come from the regimen only.
type SimulationEvaluator struct {
	base     *config.Scenario
	engine   *engine.Engine
	parallel int
	log      *slog.Logger
}

// NewSimulationEvaluator creates an evaluator for base. A zero seed in base is
// replaced by one time-based seed shared by all candidates.
func NewSimulationEvaluator(base *config.Scenario) (*SimulationEvaluator, error) {
	if base == nil {
		return nil, errors.New("base scenario is required")
	}
	if len(base.MICDistribution) == 0 {
		return nil, ErrNoDistribution
	}

	seed := base.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	eng := engine.NewEngine(seed)
	eng.SetWorkers(base.Workers)

	return &SimulationEvaluator{
		base:     base,
		engine:   eng,
		parallel: 2,
		log:      logger.Default,
	}, nil
}

// SetParallel bounds how many candidates are simulated at once
func (e *SimulationEvaluator) SetParallel(n int) {
	if n > 0 {
		e.parallel = n
	}
}

// SetLogger sets the logger used for simulation warnings
func (e *SimulationEvaluator) SetLogger(l *slog.Logger) {
	e.log = l
	e.engine.SetLogger(l)
}

// Evaluate simulates each regimen and returns its CFR
func (e *SimulationEvaluator) Evaluate(ctx context.Context, regimens []models.Regimen) ([]Evaluation, error) {
	results := make([]Evaluation, len(regimens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for i, r := range regimens {
		g.Go(func() error {
			input := e.base.ToInput()
			input.Regimens = []models.Regimen{r}

			out, err := simulation.SimulateWithLogger(gctx, e.engine, input, e.log)
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", r.Label(), err)
			}
			results[i] = Evaluation{
				Regimen: r,
				CFR:     response.ScoreRegimen(out.Attainment, r, input.Distribution),
			}
			e.log.Debug("candidate evaluated", "regimen", r.Label(), "cfr", results[i].CFR)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

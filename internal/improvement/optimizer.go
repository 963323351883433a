package improvement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// Evaluator simulates candidate regimens. Results are returned in the order
// of regimens.
type Evaluator interface {
	Evaluate(ctx context.Context, regimens []models.Regimen) ([]Evaluation, error)
}

// Optimizer implements a hill-climbing search over regimens
type Optimizer struct {
	objective     ObjectiveFunction
	maxIterations int
	stepSize      float64
	explorer      RegimenExplorer
	convergence   ConvergenceStrategy
	progress      func(iteration int, best OptimizationStep)

	mu          sync.RWMutex
	best        OptimizationStep
	iteration   int
	history     []OptimizationStep
	evaluated   map[models.Regimen]OptimizationStep
	evaluations int
}

// OptimizationStep is the position of the search after one iteration
type OptimizationStep struct {
	Iteration int
	Regimen   models.Regimen
	CFR       float64
	Score     float64
}

// OptimizationResult contains the final optimization result
type OptimizationResult struct {
	Best              OptimizationStep
	Iterations        int
	Evaluations       int
	History           []OptimizationStep
	Converged         bool
	ConvergenceReason string
}

// NewOptimizer creates a new hill-climbing optimizer
func NewOptimizer(objective ObjectiveFunction, maxIterations int, stepSize float64) *Optimizer {
	if stepSize <= 0 {
		stepSize = 1.0
	}
	return &Optimizer{
		objective:     objective,
		maxIterations: maxIterations,
		stepSize:      stepSize,
		explorer:      NewDefaultExplorer(),
		convergence:   NewPlateauStrategy(nil),
		best:          OptimizationStep{Score: math.MaxFloat64},
	}
}

// WithExplorer sets a custom regimen exploration strategy
func (o *Optimizer) WithExplorer(explorer RegimenExplorer) *Optimizer {
	o.explorer = explorer
	return o
}

// WithConvergence sets the convergence strategy. nil disables it, leaving
// local optima and the iteration limit as the only stopping rules.
func (o *Optimizer) WithConvergence(c ConvergenceStrategy) *Optimizer {
	o.convergence = c
	return o
}

// WithProgressReporter registers fn to be called after every iteration
func (o *Optimizer) WithProgressReporter(fn func(iteration int, best OptimizationStep)) *Optimizer {
	o.progress = fn
	return o
}

// Optimize climbs from start until no neighbor improves the score, the
// convergence strategy fires, or maxIterations is reached. Every distinct
// regimen is simulated at most once.
func (o *Optimizer) Optimize(ctx context.Context, start models.Regimen, eval Evaluator) (*OptimizationResult, error) {
	if o.objective == nil {
		return nil, errors.New("objective function is required")
	}
	if eval == nil {
		return nil, errors.New("evaluator is required")
	}

	o.mu.Lock()
	o.iteration = 0
	o.history = make([]OptimizationStep, 0, o.maxIterations+1)
	o.evaluated = make(map[models.Regimen]OptimizationStep)
	o.evaluations = 0
	o.best = OptimizationStep{Score: math.MaxFloat64}
	o.mu.Unlock()

	steps, err := o.score(ctx, eval, []models.Regimen{start})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate starting regimen: %w", err)
	}
	current := steps[0]
	o.record(current)

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		neighbors := o.explorer.GenerateNeighbors(current.Regimen, o.stepSize)
		if len(neighbors) == 0 {
			return o.buildResult(true, "no valid neighbors"), nil
		}

		candidates, err := o.score(ctx, eval, neighbors)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration, err)
		}

		improved := false
		for _, c := range candidates {
			if c.Score < current.Score {
				current = c
				improved = true
			}
		}

		current.Iteration = iteration
		o.mu.Lock()
		o.iteration = iteration
		o.mu.Unlock()
		o.record(current)
		if o.progress != nil {
			o.progress(iteration, o.Best())
		}

		if !improved {
			return o.buildResult(true, "local optimum"), nil
		}
		if o.convergence != nil {
			if done, reason := o.convergence.CheckConvergence(o.History()); done {
				return o.buildResult(true, reason), nil
			}
		}
	}

	return o.buildResult(false, "max iterations reached"), nil
}

// score evaluates the regimens not seen before and returns steps for all of
// them in order.
func (o *Optimizer) score(ctx context.Context, eval Evaluator, regimens []models.Regimen) ([]OptimizationStep, error) {
	o.mu.RLock()
	fresh := make([]models.Regimen, 0, len(regimens))
	for _, r := range regimens {
		if _, ok := o.evaluated[r]; !ok {
			fresh = append(fresh, r)
		}
	}
	o.mu.RUnlock()

	if len(fresh) > 0 {
		results, err := eval.Evaluate(ctx, fresh)
		if err != nil {
			return nil, err
		}
		if len(results) != len(fresh) {
			return nil, fmt.Errorf("evaluator returned %d results for %d regimens", len(results), len(fresh))
		}

		o.mu.Lock()
		for _, res := range results {
			s, err := o.objective.Evaluate(res)
			if err != nil {
				o.mu.Unlock()
				return nil, err
			}
			o.evaluated[res.Regimen] = OptimizationStep{Regimen: res.Regimen, CFR: res.CFR, Score: s}
			o.evaluations++
		}
		o.mu.Unlock()
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]OptimizationStep, 0, len(regimens))
	for _, r := range regimens {
		step, ok := o.evaluated[r]
		if !ok {
			return nil, fmt.Errorf("no evaluation for %s", r.Label())
		}
		out = append(out, step)
	}
	return out, nil
}

func (o *Optimizer) record(step OptimizationStep) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, step)
	if step.Score < o.best.Score {
		o.best = step
	}
}

func (o *Optimizer) buildResult(converged bool, reason string) *OptimizationResult {
	o.mu.RLock()
	defer o.mu.RUnlock()

	history := make([]OptimizationStep, len(o.history))
	copy(history, o.history)
	return &OptimizationResult{
		Best:              o.best,
		Iterations:        o.iteration,
		Evaluations:       o.evaluations,
		History:           history,
		Converged:         converged,
		ConvergenceReason: reason,
	}
}

// Best returns the best step found so far
func (o *Optimizer) Best() OptimizationStep {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.best
}

// History returns a copy of the steps taken so far
func (o *Optimizer) History() []OptimizationStep {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]OptimizationStep, len(o.history))
	copy(out, o.history)
	return out
}

// Iteration returns the current iteration number
func (o *Optimizer) Iteration() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.iteration
}

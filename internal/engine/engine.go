package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoSim-25-26J-441/ptasim-core/internal/pkpd"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// ProgressReporter is called after each (MIC, regimen) pair completes
type ProgressReporter func(done, total int)

// Engine is the Monte Carlo PTA engine. An Engine holds only configuration and
// may be used for several runs, including concurrently.
type Engine struct {
	seed     int64
	workers  int
	logger   *slog.Logger
	progress ProgressReporter
}

// NewEngine creates an engine. A zero seed draws a time-based base seed per run.
func NewEngine(seed int64) *Engine {
	return &Engine{
		seed:    seed,
		workers: runtime.GOMAXPROCS(0),
		logger:  logger.Default,
	}
}

// SetLogger sets the engine's logger
func (e *Engine) SetLogger(l *slog.Logger) {
	e.logger = l
}

// SetWorkers bounds how many pairs are simulated at once. n <= 0 means GOMAXPROCS.
func (e *Engine) SetWorkers(n int) {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	e.workers = n
}

// WithProgressReporter sets the progress callback and returns the engine
func (e *Engine) WithProgressReporter(fn ProgressReporter) *Engine {
	e.progress = fn
	return e
}

// Workers returns the configured worker bound
func (e *Engine) Workers() int {
	return e.workers
}

// Run validates input, then estimates PTA for every (MIC, regimen) pair.
// Duplicate regimens are collapsed. Cancellation is observed between pairs;
// a cancelled run returns no result.
func (e *Engine) Run(ctx context.Context, input *models.SimulationInput) (*models.AttainmentResult, *models.RunStats, error) {
	if err := models.ValidateInput(input); err != nil {
		return nil, nil, err
	}

	started := time.Now()
	regimens := models.NewRegimenSet(input.Regimens...).Regimens()
	population := pkpd.ConvertPopulation(input.Population)

	seed := e.seed
	if seed == 0 {
		seed = started.UnixNano()
	}

	tasks := make([]pairTask, 0, len(input.Thresholds)*len(regimens))
	for _, mic := range input.Thresholds {
		for _, regimen := range regimens {
			tasks = append(tasks, pairTask{index: len(tasks), mic: mic, regimen: regimen})
		}
	}
	counts := make([]pairCount, len(tasks))

	e.logger.Debug("monte carlo run starting",
		"pairs", len(tasks),
		"patients", input.NumPatients,
		"workers", e.workers,
		"seed", seed)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	var done atomic.Int64

	for i := range tasks {
		if gctx.Err() != nil {
			break
		}
		task := tasks[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			counts[task.index] = simulatePair(task, population, input.NumPatients, input.Target, seed)
			n := done.Add(1)
			if e.progress != nil {
				e.progress(int(n), len(tasks))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("simulation aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("simulation aborted: %w", err)
	}

	result := &models.AttainmentResult{
		Thresholds:  append([]float64(nil), input.Thresholds...),
		ByThreshold: make(map[float64][]models.AttainmentEntry, len(input.Thresholds)),
	}
	stats := &models.RunStats{
		Pairs:       int64(len(tasks)),
		Evaluations: int64(len(tasks)) * int64(input.NumPatients),
		Seed:        seed,
	}
	for i, task := range tasks {
		result.ByThreshold[task.mic] = append(result.ByThreshold[task.mic], models.AttainmentEntry{
			Regimen:     task.regimen,
			Probability: counts[i].probability(input.NumPatients),
		})
		stats.DomainErrors += counts[i].domainErrors
	}
	stats.Duration = time.Since(started)

	e.logger.Debug("monte carlo run finished",
		"pairs", stats.Pairs,
		"evaluations", stats.Evaluations,
		"domain_errors", stats.DomainErrors,
		"duration", stats.Duration)

	return result, stats, nil
}

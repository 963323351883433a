package simd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/ptasim-core/internal/engine"
	"github.com/GoSim-25-26J-441/ptasim-core/internal/metrics"
	"github.com/GoSim-25-26J-441/ptasim-core/internal/simulation"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/config"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// RunExecutor manages asynchronous run execution and per-run cancellation.
type RunExecutor struct {
	store    *RunStore
	notifier *Notifier
	workers  int

	startMu sync.Mutex // serializes Start; never held by the eviction hook
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

var ErrRunIDMissing = errors.New("run_id is required")

// NewRunExecutor creates an executor over store. A nil notifier disables
// completion callbacks. Runs evicted from the store are cancelled.
func NewRunExecutor(store *RunStore, notifier *Notifier) *RunExecutor {
	e := &RunExecutor{
		store:    store,
		notifier: notifier,
		workers:  runtime.GOMAXPROCS(0),
		cancels:  make(map[string]context.CancelFunc),
	}
	store.SetEvictHook(e.cancel)
	return e
}

// SetWorkers sets the default pair concurrency for runs whose scenario does not
// choose one. n <= 0 means GOMAXPROCS.
func (e *RunExecutor) SetWorkers(n int) {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	e.workers = n
}

// Workers returns the default pair concurrency
func (e *RunExecutor) Workers() int {
	return e.workers
}

// Start begins executing a run asynchronously.
// Returns the updated run state (running) or an error.
func (e *RunExecutor) Start(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}

	e.startMu.Lock()
	defer e.startMu.Unlock()

	rec, ok := e.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	switch {
	case rec.Run.Status == models.RunStatusRunning:
		return rec, nil
	case rec.Run.Status.IsTerminal():
		return nil, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	// Registered before the status flips so Stop always finds it.
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if old, exists := e.cancels[runID]; exists {
		old()
	}
	e.cancels[runID] = cancel
	e.mu.Unlock()

	updated, err := e.store.SetStatus(runID, models.RunStatusRunning, "")
	if err != nil {
		e.cleanup(runID)
		return nil, err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runSimulation(ctx, runID)
	}()
	return updated, nil
}

// Stop requests cancellation for a run and marks it cancelled. Pending runs
// are cancelled without ever starting.
func (e *RunExecutor) Stop(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}

	updated, err := e.store.SetStatus(runID, models.RunStatusCancelled, "")
	if err != nil {
		return nil, err
	}
	e.cancel(runID)
	return updated, nil
}

// Shutdown cancels every active run and waits for them to wind down or for ctx
// to expire.
func (e *RunExecutor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		if e.notifier != nil {
			e.notifier.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *RunExecutor) cancel(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.cancels[runID]; ok {
		cancel()
	}
}

func (e *RunExecutor) cleanup(runID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[runID]; ok {
		cancel()
		delete(e.cancels, runID)
	}
	e.mu.Unlock()
}

func (e *RunExecutor) runSimulation(ctx context.Context, runID string) {
	defer e.cleanup(runID)

	log := logger.ForRun(runID)

	rec, ok := e.store.Get(runID)
	if !ok || rec.Input == nil || rec.Input.Scenario == nil {
		log.Error("run has no scenario")
		if _, err := e.store.SetStatus(runID, models.RunStatusFailed, "run has no scenario"); err != nil {
			log.Error("failed to set failed status", "error", err)
		}
		return
	}
	scenario := rec.Input.Scenario

	eng := newEngine(scenario, e.workers, log).WithProgressReporter(func(done, total int) {
		if err := e.store.SetProgress(runID, done, total); err != nil {
			log.Debug("progress not recorded", "error", err)
		}
	})

	metrics.RunStarted()
	started := time.Now()
	log.Info("starting simulation",
		"regimens", len(scenario.Regimens),
		"mics", len(scenario.MICs),
		"patients", scenario.NumPatients,
		"workers", eng.Workers())

	out, err := simulation.SimulateWithLogger(ctx, eng, scenario.ToInput(), log)
	elapsed := time.Since(started)

	var status models.RunStatus
	switch {
	case ctx.Err() != nil:
		status = models.RunStatusCancelled
		log.Info("simulation cancelled", "elapsed", elapsed)
		// Already cancelled when stopped through Stop; evictions and
		// shutdowns land here first.
		_, _ = e.store.SetStatus(runID, models.RunStatusCancelled, "")
	case err != nil:
		status = models.RunStatusFailed
		log.Error("simulation failed", "error", err)
		if _, setErr := e.store.SetStatus(runID, models.RunStatusFailed, err.Error()); setErr != nil {
			log.Error("failed to set failed status", "error", setErr)
		}
	default:
		status = models.RunStatusCompleted
		if setErr := e.store.SetResult(runID, out); setErr != nil {
			log.Error("failed to store result", "error", setErr)
		}
		if _, setErr := e.store.SetStatus(runID, models.RunStatusCompleted, ""); setErr != nil {
			// Lost a race with Stop; the result stays attached.
			status = models.RunStatusCancelled
			log.Info("run stopped before completion was recorded", "error", setErr)
		} else {
			log.Info("run completed",
				"pairs", out.Stats.Pairs,
				"evaluations", out.Stats.Evaluations,
				"domain_errors", out.Stats.DomainErrors,
				"elapsed", elapsed)
		}
	}
	metrics.RunFinished(status, elapsed)

	if e.notifier == nil {
		return
	}
	if final, ok := e.store.Get(runID); ok && final.Input != nil {
		e.notifier.Notify(final.Input.CallbackURL, getCallbackSecret(final), final)
	}
}

// newEngine builds an engine for a scenario. The scenario's own worker count
// wins over the daemon default.
func newEngine(scenario *config.Scenario, defaultWorkers int, log *slog.Logger) *engine.Engine {
	eng := engine.NewEngine(scenario.Seed)
	eng.SetLogger(log)
	workers := defaultWorkers
	if scenario.Workers > 0 {
		workers = scenario.Workers
	}
	eng.SetWorkers(workers)
	return eng
}

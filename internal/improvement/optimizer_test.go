package improvement

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// doseResponse is an evaluator whose CFR grows linearly with the daily dose,
// reaching 100% at 4000 mg/day.
type doseResponse struct {
	mu    sync.Mutex
	calls map[models.Regimen]int
	fail  bool
}

func newDoseResponse() *doseResponse {
	return &doseResponse{calls: make(map[models.Regimen]int)}
}

func (d *doseResponse) Evaluate(_ context.Context, regimens []models.Regimen) ([]Evaluation, error) {
	if d.fail {
		return nil, errors.New("simulation failed")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Evaluation, len(regimens))
	for i, r := range regimens {
		d.calls[r]++
		out[i] = Evaluation{Regimen: r, CFR: math.Min(100, r.DailyDose()/40)}
	}
	return out, nil
}

func TestOptimizerMinDailyDose(t *testing.T) {
	obj, _ := NewObjectiveFunction("min_daily_dose", 75)
	eval := newDoseResponse()

	result, err := NewOptimizer(obj, 10, 1.0).Optimize(context.Background(), models.Regimen{Dose: 1000, Interval: 12}, eval)
	if err != nil {
		t.Fatalf("Optimize error: %v", err)
	}

	want := models.Regimen{Dose: 1000, Interval: 8}
	if result.Best.Regimen != want {
		t.Fatalf("expected best %v, got %v", want, result.Best.Regimen)
	}
	if result.Best.CFR != 75 || result.Best.Score != 3000 {
		t.Fatalf("expected CFR 75 and score 3000, got %+v", result.Best)
	}
	if !result.Converged || result.ConvergenceReason != "local optimum" {
		t.Fatalf("expected local optimum, got converged=%v reason=%q", result.Converged, result.ConvergenceReason)
	}
	if result.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", result.Iterations)
	}
	// start + 4 neighbors + 3 new neighbors of 1000 mg q8h
	if result.Evaluations != 8 {
		t.Fatalf("expected 8 evaluations, got %d", result.Evaluations)
	}
	for r, n := range eval.calls {
		if n != 1 {
			t.Fatalf("regimen %v evaluated %d times", r, n)
		}
	}
}

func TestOptimizerMaxCFRStopsAtIterationLimit(t *testing.T) {
	obj, _ := NewObjectiveFunction("max_cfr", 0)

	var reported []int
	opt := NewOptimizer(obj, 3, 1.0).WithProgressReporter(func(iteration int, _ OptimizationStep) {
		reported = append(reported, iteration)
	})
	result, err := opt.Optimize(context.Background(), models.Regimen{Dose: 1000, Interval: 24}, newDoseResponse())
	if err != nil {
		t.Fatalf("Optimize error: %v", err)
	}

	if result.Converged {
		t.Fatalf("expected iteration limit, got %q", result.ConvergenceReason)
	}
	want := models.Regimen{Dose: 1000, Interval: 6}
	if result.Best.Regimen != want || result.Best.CFR != 100 {
		t.Fatalf("expected %v at 100%%, got %+v", want, result.Best)
	}
	if len(result.History) != 4 {
		t.Fatalf("expected 4 history steps, got %d", len(result.History))
	}
	if len(reported) != 3 || reported[2] != 3 {
		t.Fatalf("expected progress for iterations 1..3, got %v", reported)
	}
	if opt.Iteration() != 3 || opt.Best().Regimen != want {
		t.Fatalf("accessors disagree with result: %d %v", opt.Iteration(), opt.Best())
	}
}

func TestOptimizerErrors(t *testing.T) {
	obj, _ := NewObjectiveFunction("max_cfr", 0)
	start := models.Regimen{Dose: 1000, Interval: 12}

	if _, err := NewOptimizer(nil, 5, 1).Optimize(context.Background(), start, newDoseResponse()); err == nil {
		t.Fatalf("expected error without objective")
	}
	if _, err := NewOptimizer(obj, 5, 1).Optimize(context.Background(), start, nil); err == nil {
		t.Fatalf("expected error without evaluator")
	}

	failing := newDoseResponse()
	failing.fail = true
	if _, err := NewOptimizer(obj, 5, 1).Optimize(context.Background(), start, failing); err == nil {
		t.Fatalf("expected evaluator error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewOptimizer(obj, 5, 1).Optimize(ctx, start, newDoseResponse()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewOptimizerDefaults(t *testing.T) {
	opt := NewOptimizer(&CFRObjective{}, 10, 0)
	if opt.stepSize != 1.0 {
		t.Fatalf("expected default stepSize 1.0, got %f", opt.stepSize)
	}
	if opt.explorer == nil || opt.convergence == nil {
		t.Fatalf("expected default explorer and convergence strategy")
	}
	if opt.Best().Score != math.MaxFloat64 {
		t.Fatalf("expected initial best score to be MaxFloat64")
	}
}

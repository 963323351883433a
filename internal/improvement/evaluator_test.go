package improvement

import (
	"context"
	"errors"
	"testing"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/config"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

func smallScenario() *config.Scenario {
	s := config.DefaultScenario()
	s.NumPatients = 300
	s.Seed = 17
	s.Workers = 2
	return s
}

func TestSimulationEvaluatorRequiresDistribution(t *testing.T) {
	s := smallScenario()
	s.MICDistribution = nil
	if _, err := NewSimulationEvaluator(s); !errors.Is(err, ErrNoDistribution) {
		t.Fatalf("expected ErrNoDistribution, got %v", err)
	}
	if _, err := NewSimulationEvaluator(nil); err == nil {
		t.Fatalf("expected error for nil scenario")
	}
}

func TestSimulationEvaluatorCommonPatients(t *testing.T) {
	eval, err := NewSimulationEvaluator(smallScenario())
	if err != nil {
		t.Fatalf("NewSimulationEvaluator error: %v", err)
	}
	eval.SetParallel(3)

	low := models.Regimen{Dose: 1000, Interval: 24}
	high := models.Regimen{Dose: 2000, Interval: 24}

	first, err := eval.Evaluate(context.Background(), []models.Regimen{low, high})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if first[0].Regimen != low || first[1].Regimen != high {
		t.Fatalf("results out of order: %+v", first)
	}
	// same patients, larger dose: no patient can lose attainment
	if first[1].CFR < first[0].CFR {
		t.Fatalf("CFR fell with dose: %v -> %v", first[0].CFR, first[1].CFR)
	}

	// evaluation of a regimen does not depend on its batch
	again, err := eval.Evaluate(context.Background(), []models.Regimen{high})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if again[0].CFR != first[1].CFR {
		t.Fatalf("expected identical CFR for %v, got %v and %v", high, first[1].CFR, again[0].CFR)
	}
}

func TestSimulationEvaluatorInvalidRegimen(t *testing.T) {
	eval, err := NewSimulationEvaluator(smallScenario())
	if err != nil {
		t.Fatalf("NewSimulationEvaluator error: %v", err)
	}
	if _, err := eval.Evaluate(context.Background(), []models.Regimen{{Dose: 1000, Interval: 48}}); err == nil {
		t.Fatalf("expected validation error for 48 h interval")
	}
}

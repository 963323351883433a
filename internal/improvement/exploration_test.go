package improvement

import (
	"testing"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

func TestDefaultExplorer(t *testing.T) {
	explorer := NewDefaultExplorer()

	neighbors := explorer.GenerateNeighbors(models.Regimen{Dose: 1000, Interval: 12}, 1.0)
	want := []models.Regimen{
		{Dose: 750, Interval: 12},
		{Dose: 1250, Interval: 12},
		{Dose: 1000, Interval: 8},
		{Dose: 1000, Interval: 24},
	}
	if len(neighbors) != len(want) {
		t.Fatalf("expected %d neighbors, got %v", len(want), neighbors)
	}
	for i := range want {
		if neighbors[i] != want[i] {
			t.Fatalf("neighbor %d: expected %v, got %v", i, want[i], neighbors[i])
		}
	}
}

func TestDefaultExplorerBounds(t *testing.T) {
	explorer := NewDefaultExplorer().WithDoseRange(500, 1000).WithIntervals(12, 24)

	neighbors := explorer.GenerateNeighbors(models.Regimen{Dose: 500, Interval: 24}, 1.0)
	// 250 mg is below range, 750 mg is in, 12 h is the only shorter interval
	if len(neighbors) != 2 {
		t.Fatalf("expected 2 neighbors, got %v", neighbors)
	}
	for _, n := range neighbors {
		if n.Dose < 500 || n.Dose > 1000 {
			t.Fatalf("dose out of range: %v", n)
		}
		if n.Interval != 12 && n.Interval != 24 {
			t.Fatalf("interval not allowed: %v", n)
		}
	}
}

func TestDefaultExplorerStepSize(t *testing.T) {
	explorer := NewDefaultExplorer().WithDoseStep(100)

	neighbors := explorer.GenerateNeighbors(models.Regimen{Dose: 1000, Interval: 6}, 2.0)
	if neighbors[0].Dose != 800 || neighbors[1].Dose != 1200 {
		t.Fatalf("expected doses 800 and 1200, got %v", neighbors)
	}
	// 6 h is the shortest default interval
	if len(neighbors) != 3 || neighbors[2].Interval != 8 {
		t.Fatalf("expected only a longer interval neighbor, got %v", neighbors)
	}
}

func TestWithIntervalsDropsOutOfRange(t *testing.T) {
	explorer := NewDefaultExplorer().WithIntervals(0.5, 48, 12, 6)
	if len(explorer.intervals) != 2 || explorer.intervals[0] != 6 || explorer.intervals[1] != 12 {
		t.Fatalf("expected [6 12], got %v", explorer.intervals)
	}

	// nothing valid keeps the previous set
	explorer.WithIntervals(48)
	if len(explorer.intervals) != 2 {
		t.Fatalf("expected intervals unchanged, got %v", explorer.intervals)
	}
}

func TestAdjacentIntervalsOffGrid(t *testing.T) {
	explorer := NewDefaultExplorer()
	shorter, longer := explorer.adjacentIntervals(10)
	if shorter != 8 || longer != 12 {
		t.Fatalf("expected 8 and 12, got %v and %v", shorter, longer)
	}
}

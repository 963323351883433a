package improvement

import (
	"math"
	"sort"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// RegimenExplorer defines strategies for exploring the regimen space
type RegimenExplorer interface {
	// GenerateNeighbors creates neighboring regimens of base
	GenerateNeighbors(base models.Regimen, stepSize float64) []models.Regimen
	// Name returns the name of the exploration strategy
	Name() string
}

// DefaultExplorer moves the dose by a fixed step and the interval to the
// adjacent allowed interval.
type DefaultExplorer struct {
	doseStep  float64
	minDose   float64
	maxDose   float64
	intervals []float64
}

// NewDefaultExplorer creates an explorer over 250 mg dose steps from 250 to
// 4000 mg and the 6, 8, 12 and 24 h intervals.
func NewDefaultExplorer() *DefaultExplorer {
	return &DefaultExplorer{
		doseStep:  250,
		minDose:   250,
		maxDose:   4000,
		intervals: []float64{6, 8, 12, 24},
	}
}

// WithDoseStep sets the dose change per unit step size
func (e *DefaultExplorer) WithDoseStep(step float64) *DefaultExplorer {
	if step > 0 {
		e.doseStep = step
	}
	return e
}

// WithDoseRange bounds the explored doses
func (e *DefaultExplorer) WithDoseRange(min, max float64) *DefaultExplorer {
	if min > 0 && max >= min {
		e.minDose = min
		e.maxDose = max
	}
	return e
}

// WithIntervals sets the allowed dosing intervals. Values outside [1, 24] h
// are dropped.
func (e *DefaultExplorer) WithIntervals(intervals ...float64) *DefaultExplorer {
	kept := make([]float64, 0, len(intervals))
	for _, iv := range intervals {
		if iv >= 1 && iv <= 24 {
			kept = append(kept, iv)
		}
	}
	if len(kept) == 0 {
		return e
	}
	sort.Float64s(kept)
	e.intervals = kept
	return e
}

func (e *DefaultExplorer) Name() string {
	return "default"
}

// GenerateNeighbors returns, in a fixed order, base with the dose one step
// lower and higher, then base with the next shorter and next longer interval.
func (e *DefaultExplorer) GenerateNeighbors(base models.Regimen, stepSize float64) []models.Regimen {
	if stepSize <= 0 {
		stepSize = 1
	}
	set := models.NewRegimenSet()

	step := e.doseStep * stepSize
	if lower := base.Dose - step; lower >= e.minDose {
		set.Add(models.Regimen{Dose: lower, Interval: base.Interval})
	}
	if higher := base.Dose + step; higher <= e.maxDose {
		set.Add(models.Regimen{Dose: higher, Interval: base.Interval})
	}

	shorter, longer := e.adjacentIntervals(base.Interval)
	if shorter > 0 {
		set.Add(models.Regimen{Dose: base.Dose, Interval: shorter})
	}
	if longer > 0 {
		set.Add(models.Regimen{Dose: base.Dose, Interval: longer})
	}

	return set.Regimens()
}

// adjacentIntervals returns the closest allowed intervals strictly below and
// above iv, or 0 where none exists.
func (e *DefaultExplorer) adjacentIntervals(iv float64) (shorter, longer float64) {
	shorter, longer = 0, math.Inf(1)
	for _, candidate := range e.intervals {
		if candidate < iv && candidate > shorter {
			shorter = candidate
		}
		if candidate > iv && candidate < longer {
			longer = candidate
		}
	}
	if math.IsInf(longer, 1) {
		longer = 0
	}
	return shorter, longer
}

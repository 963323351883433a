package improvement

import (
	"fmt"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// Evaluation is the simulated response of one candidate regimen
type Evaluation struct {
	Regimen models.Regimen
	// CFR is the cumulative fraction of response in percent
	CFR float64
}

// ObjectiveFunction scores an evaluation. Lower scores are better.
type ObjectiveFunction interface {
	// Evaluate computes the objective value of one candidate
	Evaluate(e Evaluation) (float64, error)

	// Name returns the name of the objective function.
	Name() string

	// Direction returns whether the underlying quantity is minimized (true) or maximized (false).
	Direction() bool
}

// ObjectiveType represents the type of objective function
type ObjectiveType string

const (
	// ObjectiveMaximizeCFR maximizes CFR regardless of dose
	ObjectiveMaximizeCFR ObjectiveType = "max_cfr"
	// ObjectiveMinimizeDailyDose minimizes the daily dose among regimens reaching a target CFR
	ObjectiveMinimizeDailyDose ObjectiveType = "min_daily_dose"
)

// infeasiblePenalty puts every regimen below the target CFR behind every
// regimen that reaches it.
const infeasiblePenalty = 1e6

// NewObjectiveFunction creates an objective function from a type string.
// targetCFR is only used by min_daily_dose.
func NewObjectiveFunction(objType string, targetCFR float64) (ObjectiveFunction, error) {
	switch ObjectiveType(objType) {
	case ObjectiveMaximizeCFR:
		return &CFRObjective{}, nil
	case ObjectiveMinimizeDailyDose:
		if targetCFR <= 0 || targetCFR > 100 {
			return nil, fmt.Errorf("target CFR must be in (0, 100], got %v", targetCFR)
		}
		return &DailyDoseObjective{TargetCFR: targetCFR}, nil
	default:
		return nil, &UnknownObjectiveError{ObjectiveType: objType}
	}
}

// CFRObjective maximizes CFR
type CFRObjective struct{}

func (o *CFRObjective) Name() string {
	return string(ObjectiveMaximizeCFR)
}

func (o *CFRObjective) Direction() bool {
	return false // maximize
}

func (o *CFRObjective) Evaluate(e Evaluation) (float64, error) {
	return -e.CFR, nil
}

// DailyDoseObjective minimizes the daily dose subject to CFR >= TargetCFR.
// Candidates below the target are ranked by how far they fall short.
type DailyDoseObjective struct {
	TargetCFR float64
}

func (o *DailyDoseObjective) Name() string {
	return string(ObjectiveMinimizeDailyDose)
}

func (o *DailyDoseObjective) Direction() bool {
	return true // minimize
}

func (o *DailyDoseObjective) Evaluate(e Evaluation) (float64, error) {
	if e.Regimen.Interval <= 0 {
		return 0, fmt.Errorf("regimen %s has no valid interval", e.Regimen.Label())
	}
	daily := e.Regimen.DailyDose()
	if e.CFR >= o.TargetCFR {
		return daily, nil
	}
	return infeasiblePenalty + (o.TargetCFR-e.CFR)*infeasiblePenalty/100 + daily, nil
}

// UnknownObjectiveError is returned when an unknown objective type is requested
type UnknownObjectiveError struct {
	ObjectiveType string
}

func (e *UnknownObjectiveError) Error() string {
	return "unknown objective type: " + e.ObjectiveType
}

package pkpd

import (
	"math"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// Exposure is the result of one %fT>MIC evaluation: either a non-negative
// Value or a DomainError in Err.
type Exposure struct {
	Value float64
	Err   error
}

// OK reports whether the evaluation produced a value
func (e Exposure) OK() bool {
	return e.Err == nil
}

// Meets reports whether the exposure reaches target. Domain errors never do.
func (e Exposure) Meets(target float64) bool {
	return e.Err == nil && e.Value >= target
}

func domainFailure(reason string) Exposure {
	return Exposure{Err: &DomainError{Reason: reason}}
}

// FTimeAboveMIC approximates the percentage of the dosing interval during which
// the unbound concentration stays above mic:
//
//	ln(dose*fu / (Vd*mic)) * (Vd/CL) * (100/interval), floored at 0
func FTimeAboveMIC(regimen models.Regimen, patient models.PatientParameters, mic float64) Exposure {
	vd := patient.Volume
	cl := patient.Clearance

	if vd <= 0 {
		return domainFailure("volume of distribution is not positive")
	}
	if cl <= 0 {
		return domainFailure("clearance is not positive")
	}

	arg := (regimen.Dose * patient.UnboundFraction) / (vd * mic)
	if !(arg > 0) {
		return domainFailure("logarithm argument is not positive")
	}

	result := math.Log(arg) * (vd / cl) * (100 / regimen.Interval)
	if math.IsNaN(result) {
		return domainFailure("exposure is not a number")
	}

	return Exposure{Value: math.Max(result, 0)}
}

package pkpd

import (
	"math"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// Lognormal holds the parameters of the normal distribution whose exponential
// has a given arithmetic mean and standard deviation.
type Lognormal struct {
	Mu    float64
	Sigma float64
}

// LognormalParams converts an arithmetic (mean, std) into (mu, sigma).
// mean must be > 0 and std >= 0; callers validate this beforehand.
func LognormalParams(mean, std float64) (mu, sigma float64) {
	variance := std * std
	meanSq := mean * mean
	mu = math.Log(meanSq / math.Sqrt(variance+meanSq))
	sigma = math.Sqrt(math.Log(1 + variance/meanSq))
	return mu, sigma
}

// NewLognormal converts a population parameter
func NewLognormal(p models.PopulationParameter) Lognormal {
	mu, sigma := LognormalParams(p.Mean, p.StdDev)
	return Lognormal{Mu: mu, Sigma: sigma}
}

// PopulationLognormals is the converted form of a PopulationModel
type PopulationLognormals struct {
	UnboundFraction Lognormal
	Volume          Lognormal
	Clearance       Lognormal
}

// ConvertPopulation converts all three parameters of a population model
func ConvertPopulation(pop models.PopulationModel) PopulationLognormals {
	return PopulationLognormals{
		UnboundFraction: NewLognormal(pop.UnboundFraction),
		Volume:          NewLognormal(pop.Volume),
		Clearance:       NewLognormal(pop.Clearance),
	}
}

// Sampler draws lognormal values from a normal source
type Sampler interface {
	LogNormFloat64(mu, sigma float64) float64
}

// SamplePatient draws one virtual patient. Each value is clamped to >= 0.
func (p PopulationLognormals) SamplePatient(rng Sampler) models.PatientParameters {
	return models.PatientParameters{
		UnboundFraction: math.Max(rng.LogNormFloat64(p.UnboundFraction.Mu, p.UnboundFraction.Sigma), 0),
		Volume:          math.Max(rng.LogNormFloat64(p.Volume.Mu, p.Volume.Sigma), 0),
		Clearance:       math.Max(rng.LogNormFloat64(p.Clearance.Mu, p.Clearance.Sigma), 0),
	}
}

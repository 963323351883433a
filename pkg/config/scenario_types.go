package config

import (
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// Scenario is a complete simulation input as written in a YAML file
type Scenario struct {
	Regimens        []models.Regimen       `yaml:"regimens" json:"regimens"`
	MICs            []float64              `yaml:"mics" json:"mics"`
	Population      models.PopulationModel `yaml:"population" json:"population"`
	Target          float64                `yaml:"target" json:"target"`
	NumPatients     int                    `yaml:"num_patients" json:"num_patients"`
	MICDistribution []MICWeight            `yaml:"mic_distribution,omitempty" json:"mic_distribution,omitempty" validate:"dive"`

	// Seed 0 means time-seeded
	Seed int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
	// Workers 0 means GOMAXPROCS
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty" validate:"gte=0"`
}

// MICWeight is one entry of the susceptibility distribution
type MICWeight struct {
	MIC    float64 `yaml:"mic" json:"mic" validate:"gt=0"`
	Weight float64 `yaml:"weight" json:"weight" validate:"gte=0"`
}

// Distribution returns the scenario's susceptibility distribution, or nil
// when none is configured.
func (s *Scenario) Distribution() models.SusceptibilityDistribution {
	if len(s.MICDistribution) == 0 {
		return nil
	}
	dist := make(models.SusceptibilityDistribution, len(s.MICDistribution))
	for _, w := range s.MICDistribution {
		dist[w.MIC] = w.Weight
	}
	return dist
}

// ToInput converts the scenario to an engine input
func (s *Scenario) ToInput() *models.SimulationInput {
	return &models.SimulationInput{
		Regimens:     append([]models.Regimen(nil), s.Regimens...),
		Thresholds:   append([]float64(nil), s.MICs...),
		Population:   s.Population,
		Target:       s.Target,
		NumPatients:  s.NumPatients,
		Distribution: s.Distribution(),
	}
}

// DefaultScenario returns the reference scenario: 2000 mg q24h and 1000 mg q12h
// against MICs 0.125 to 32 mg/L with an isolate distribution concentrated at
// 2 to 4 mg/L.
func DefaultScenario() *Scenario {
	return &Scenario{
		Regimens: []models.Regimen{
			{Dose: 2000, Interval: 24},
			{Dose: 1000, Interval: 12},
		},
		MICs: []float64{0.125, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		Population: models.PopulationModel{
			UnboundFraction: models.PopulationParameter{Mean: 0.073, StdDev: 0.032},
			Volume:          models.PopulationParameter{Mean: 7.8, StdDev: 5.4},
			Clearance:       models.PopulationParameter{Mean: 0.83, StdDev: 0.83},
		},
		Target:      55,
		NumPatients: 5000,
		MICDistribution: []MICWeight{
			{MIC: 0.125, Weight: 0},
			{MIC: 0.25, Weight: 0},
			{MIC: 0.5, Weight: 0},
			{MIC: 1, Weight: 0.011},
			{MIC: 2, Weight: 0.338},
			{MIC: 4, Weight: 0.599},
			{MIC: 8, Weight: 0.023},
			{MIC: 16, Weight: 0.026},
			{MIC: 32, Weight: 0.003},
		},
	}
}

package models

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RunStatus represents the status of a simulation run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// ParseRunStatus parses a status name case-insensitively. Unknown names yield "".
func ParseRunStatus(s string) RunStatus {
	switch RunStatus(strings.ToLower(s)) {
	case RunStatusPending:
		return RunStatusPending
	case RunStatusRunning:
		return RunStatusRunning
	case RunStatusCompleted:
		return RunStatusCompleted
	case RunStatusFailed:
		return RunStatusFailed
	case RunStatusCancelled, "canceled":
		return RunStatusCancelled
	default:
		return ""
	}
}

// Regimen is a dosing regimen: a dose (mg) given every Interval hours.
// Regimens are compared and keyed by value.
type Regimen struct {
	Dose     float64 `json:"dose" yaml:"dose" validate:"gt=0"`
	Interval float64 `json:"interval" yaml:"interval" validate:"gte=1,lte=24"`
}

// Label renders the regimen the way reports name their columns
func (r Regimen) Label() string {
	return fmt.Sprintf("Dose: %s mg, Interval: %s h", formatNumber(r.Dose), formatNumber(r.Interval))
}

// DailyDose is the total amount given per 24 h
func (r Regimen) DailyDose() float64 {
	return r.Dose * 24 / r.Interval
}

// PopulationParameter describes a lognormally distributed physiological
// parameter by its arithmetic mean and standard deviation.
type PopulationParameter struct {
	Mean   float64 `json:"mean" yaml:"mean" validate:"gt=0"`
	StdDev float64 `json:"std" yaml:"std" validate:"gte=0"`
}

// PopulationModel groups the three sampled pharmacokinetic parameters
type PopulationModel struct {
	UnboundFraction PopulationParameter `json:"fu" yaml:"fu"`
	Volume          PopulationParameter `json:"vd" yaml:"vd"`
	Clearance       PopulationParameter `json:"clt" yaml:"clt"`
}

// PatientParameters holds one virtual patient's sampled values
type PatientParameters struct {
	UnboundFraction float64
	Volume          float64
	Clearance       float64
}

// SusceptibilityDistribution maps an MIC to its weight. Weights are not
// required to sum to 1.
type SusceptibilityDistribution map[float64]float64

// Weight returns the weight for mic, or 0 when mic is absent
func (d SusceptibilityDistribution) Weight(mic float64) float64 {
	return d[mic]
}

// Total returns the sum of all weights
func (d SusceptibilityDistribution) Total() float64 {
	total := 0.0
	for _, w := range d {
		total += w
	}
	return total
}

// MICs returns the distribution's MICs in ascending order
func (d SusceptibilityDistribution) MICs() []float64 {
	mics := make([]float64, 0, len(d))
	for mic := range d {
		mics = append(mics, mic)
	}
	sort.Float64s(mics)
	return mics
}

// SimulationInput is everything one simulation run needs
type SimulationInput struct {
	Regimens     []Regimen                  `validate:"required,min=1,dive"`
	Thresholds   []float64                  `validate:"required,min=1,dive,gt=0"`
	Population   PopulationModel
	Target       float64
	NumPatients  int                        `validate:"gte=1"`
	Distribution SusceptibilityDistribution `validate:"omitempty,dive,keys,gt=0,endkeys,gte=0"`
}

// AttainmentEntry is the PTA (0-100) of one regimen at one MIC
type AttainmentEntry struct {
	Regimen     Regimen `json:"regimen"`
	Probability float64 `json:"probability"`
}

// AttainmentResult holds PTA for every (MIC, regimen) pair of a run.
// Thresholds keeps the caller's MIC order; each entry list follows regimen order.
type AttainmentResult struct {
	Thresholds  []float64
	ByThreshold map[float64][]AttainmentEntry
}

// Probability looks up the PTA for a pair
func (r *AttainmentResult) Probability(mic float64, regimen Regimen) (float64, bool) {
	for _, e := range r.ByThreshold[mic] {
		if e.Regimen == regimen {
			return e.Probability, true
		}
	}
	return 0, false
}

// SortedThresholds returns the MICs in ascending order
func (r *AttainmentResult) SortedThresholds() []float64 {
	out := make([]float64, len(r.Thresholds))
	copy(out, r.Thresholds)
	sort.Float64s(out)
	return out
}

// ResponseScore is the CFR of one regimen
type ResponseScore struct {
	Regimen Regimen `json:"regimen"`
	Score   float64 `json:"score"`
}

// ResponseScores lists CFR values in regimen order
type ResponseScores []ResponseScore

// Lookup returns the score for a regimen
func (s ResponseScores) Lookup(regimen Regimen) (float64, bool) {
	for _, rs := range s {
		if rs.Regimen == regimen {
			return rs.Score, true
		}
	}
	return 0, false
}

// AsMap returns the scores keyed by regimen
func (s ResponseScores) AsMap() map[Regimen]float64 {
	out := make(map[Regimen]float64, len(s))
	for _, rs := range s {
		out[rs.Regimen] = rs.Score
	}
	return out
}

// RunStats describes the work done by one engine run
type RunStats struct {
	Pairs        int64         `json:"pairs"`
	Evaluations  int64         `json:"evaluations"`
	DomainErrors int64         `json:"domain_errors"`
	Seed         int64         `json:"seed"`
	Duration     time.Duration `json:"duration"`
}

// SimulationResult is the output of one complete simulation
type SimulationResult struct {
	Regimens   []Regimen
	Attainment *AttainmentResult
	Scores     ResponseScores
	Stats      RunStats
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

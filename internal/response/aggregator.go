// Package response collapses per-MIC attainment into a cumulative fraction
// response (CFR) per regimen.
package response

import (
	"fmt"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/utils"
)

// weightSumTolerance is how far the weight total may drift from 1 before
// CheckDistribution reports it.
const weightSumTolerance = 1e-6

// ScoreRegimen returns sum_t PTA(t, regimen) * weight(t) over the MICs present in
// result. MICs missing from dist weigh 0. The sum is deliberately not
// normalized by the total weight.
func ScoreRegimen(result *models.AttainmentResult, regimen models.Regimen, dist models.SusceptibilityDistribution) float64 {
	score := 0.0
	for _, mic := range result.Thresholds {
		pta, ok := result.Probability(mic, regimen)
		if !ok {
			continue
		}
		score += pta * dist.Weight(mic)
	}
	return score
}

// Aggregate scores every regimen found in result, in regimen order
func Aggregate(result *models.AttainmentResult, dist models.SusceptibilityDistribution) models.ResponseScores {
	regimens := Regimens(result)
	scores := make(models.ResponseScores, 0, len(regimens))
	for _, r := range regimens {
		scores = append(scores, models.ResponseScore{
			Regimen: r,
			Score:   ScoreRegimen(result, r, dist),
		})
	}
	return scores
}

// Regimens lists the distinct regimens of a result in first-seen order
func Regimens(result *models.AttainmentResult) []models.Regimen {
	set := models.NewRegimenSet()
	for _, mic := range result.Thresholds {
		for _, e := range result.ByThreshold[mic] {
			set.Add(e.Regimen)
		}
	}
	return set.Regimens()
}

// IssueKind classifies a tolerated mismatch between results and distribution
type IssueKind string

const (
	IssueWeightSum     IssueKind = "weight_sum"
	IssueUnweightedMIC IssueKind = "unweighted_mic"
	IssueUnknownMIC    IssueKind = "unknown_mic"
)

// Issue is a configuration mismatch that does not stop aggregation
type Issue struct {
	Kind    IssueKind `json:"kind"`
	MIC     float64   `json:"mic,omitempty"`
	Message string    `json:"message"`
}

// CheckDistribution reports weights that do not sum to 1, simulated MICs with no
// weight, and weighted MICs that were never simulated.
func CheckDistribution(result *models.AttainmentResult, dist models.SusceptibilityDistribution) []Issue {
	var issues []Issue

	if total := dist.Total(); !utils.AlmostEqual(total, 1, weightSumTolerance) {
		issues = append(issues, Issue{
			Kind:    IssueWeightSum,
			Message: fmt.Sprintf("weights sum to %g, scores are an unnormalized weighted sum", total),
		})
	}

	simulated := make(map[float64]bool, len(result.Thresholds))
	for _, mic := range result.SortedThresholds() {
		simulated[mic] = true
		if _, ok := dist[mic]; !ok {
			issues = append(issues, Issue{
				Kind:    IssueUnweightedMIC,
				MIC:     mic,
				Message: fmt.Sprintf("mic %g has no weight and contributes 0", mic),
			})
		}
	}

	for _, mic := range dist.MICs() {
		if !simulated[mic] {
			issues = append(issues, Issue{
				Kind:    IssueUnknownMIC,
				MIC:     mic,
				Message: fmt.Sprintf("weighted mic %g was not simulated", mic),
			})
		}
	}

	return issues
}

package engine

import (
	"github.com/GoSim-25-26J-441/ptasim-core/internal/pkpd"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/utils"
)

// pairTask is one (MIC, regimen) cell of the PTA grid
type pairTask struct {
	index   int
	mic     float64
	regimen models.Regimen
}

// pairCount is the private accumulator of one pair
type pairCount struct {
	successes    int64
	domainErrors int64
}

// probability converts the success count to a 0-100 PTA
func (c pairCount) probability(n int) float64 {
	return 100 * float64(c.successes) / float64(n)
}

// simulatePair draws n patients for one pair from its own random stream.
// The stream depends only on the base seed and the pair index, so results do
// not depend on scheduling.
func simulatePair(task pairTask, pop pkpd.PopulationLognormals, n int, target float64, baseSeed int64) pairCount {
	rng := utils.NewRandSource(utils.DeriveSeed(baseSeed, uint64(task.index)))

	var c pairCount
	for i := 0; i < n; i++ {
		exposure := pkpd.FTimeAboveMIC(task.regimen, pop.SamplePatient(rng), task.mic)
		if !exposure.OK() {
			c.domainErrors++
			continue
		}
		if exposure.Meets(target) {
			c.successes++
		}
	}
	return c
}

package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

var defaultPopulation = models.PopulationModel{
	UnboundFraction: models.PopulationParameter{Mean: 0.073, StdDev: 0.032},
	Volume:          models.PopulationParameter{Mean: 7.8, StdDev: 5.4},
	Clearance:       models.PopulationParameter{Mean: 0.83, StdDev: 0.83},
}

func newInput(regimens []models.Regimen, mics []float64, n int) *models.SimulationInput {
	return &models.SimulationInput{
		Regimens:    regimens,
		Thresholds:  mics,
		Population:  defaultPopulation,
		Target:      55,
		NumPatients: n,
	}
}

func TestEngineRunProducesEveryPair(t *testing.T) {
	regimens := []models.Regimen{{Dose: 2000, Interval: 24}, {Dose: 1000, Interval: 12}}
	mics := []float64{4, 1, 0.5}

	res, stats, err := NewEngine(1).Run(context.Background(), newInput(regimens, mics, 200))
	require.NoError(t, err)

	assert.Equal(t, mics, res.Thresholds)
	require.Len(t, res.ByThreshold, 3)
	for _, mic := range mics {
		entries := res.ByThreshold[mic]
		require.Len(t, entries, 2)
		assert.Equal(t, regimens[0], entries[0].Regimen)
		assert.Equal(t, regimens[1], entries[1].Regimen)
		for _, e := range entries {
			assert.GreaterOrEqual(t, e.Probability, 0.0)
			assert.LessOrEqual(t, e.Probability, 100.0)
		}
	}

	assert.Equal(t, int64(6), stats.Pairs)
	assert.Equal(t, int64(1200), stats.Evaluations)
	assert.Equal(t, int64(1), stats.Seed)
}

func TestEngineDeduplicatesRegimens(t *testing.T) {
	r := models.Regimen{Dose: 2000, Interval: 24}
	res, stats, err := NewEngine(3).Run(context.Background(), newInput([]models.Regimen{r, r, r}, []float64{1}, 50))
	require.NoError(t, err)
	assert.Len(t, res.ByThreshold[1], 1)
	assert.Equal(t, int64(1), stats.Pairs)
}

func TestEngineDeterministicUnderSeed(t *testing.T) {
	in := newInput([]models.Regimen{{Dose: 2000, Interval: 24}, {Dose: 500, Interval: 6}}, []float64{0.5, 2, 8}, 500)

	a := NewEngine(42)
	a.SetWorkers(1)
	b := NewEngine(42)
	b.SetWorkers(8)

	resA, _, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	resB, _, err := b.Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, resA.ByThreshold, resB.ByThreshold, "worker count must not change seeded results")

	resC, _, err := NewEngine(43).Run(context.Background(), in)
	require.NoError(t, err)
	assert.NotEqual(t, resA.ByThreshold, resC.ByThreshold)
}

func TestEngineDoseScenario(t *testing.T) {
	low := models.Regimen{Dose: 2000, Interval: 24}
	high := models.Regimen{Dose: 4000, Interval: 24}

	res, _, err := NewEngine(7).Run(context.Background(), newInput([]models.Regimen{low, high}, []float64{1.0}, 5000))
	require.NoError(t, err)

	pLow, ok := res.Probability(1.0, low)
	require.True(t, ok)
	pHigh, ok := res.Probability(1.0, high)
	require.True(t, ok)

	assert.Greater(t, pLow, 0.0)
	assert.LessOrEqual(t, pLow, 100.0)
	assert.GreaterOrEqual(t, pHigh, pLow)
}

func TestEngineAttainmentNonIncreasingInMIC(t *testing.T) {
	regimen := models.Regimen{Dose: 2000, Interval: 24}
	mics := []float64{0.125, 0.25, 0.5, 1, 2, 4, 8, 16, 32}

	res, _, err := NewEngine(11).Run(context.Background(), newInput([]models.Regimen{regimen}, mics, 5000))
	require.NoError(t, err)

	prev := 100.0
	for _, mic := range mics {
		p, _ := res.Probability(mic, regimen)
		// independent streams per pair: allow Monte Carlo noise
		assert.LessOrEqual(t, p, prev+2.0, "mic=%v", mic)
		prev = p
	}
	first, _ := res.Probability(0.125, regimen)
	last, _ := res.Probability(32, regimen)
	assert.Greater(t, first, last+50)
}

func TestEngineDegenerateTargets(t *testing.T) {
	regimen := models.Regimen{Dose: 2000, Interval: 24}

	in := newInput([]models.Regimen{regimen}, []float64{1}, 300)
	in.Target = 0
	res, stats, err := NewEngine(5).Run(context.Background(), in)
	require.NoError(t, err)
	p, _ := res.Probability(1, regimen)
	assert.Equal(t, 100.0, p, "exposure is floored at 0, so target 0 is always met")
	assert.Zero(t, stats.DomainErrors)

	in.Target = 1e12
	res, _, err = NewEngine(5).Run(context.Background(), in)
	require.NoError(t, err)
	p, _ = res.Probability(1, regimen)
	assert.Equal(t, 0.0, p)
}

func TestEngineRejectsInvalidInput(t *testing.T) {
	in := newInput([]models.Regimen{{Dose: 2000, Interval: 24}}, []float64{1}, 0)
	res, stats, err := NewEngine(1).Run(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
	assert.Nil(t, res)
	assert.Nil(t, stats)
}

func TestEngineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := newInput([]models.Regimen{{Dose: 2000, Interval: 24}}, []float64{1, 2, 4}, 100)
	res, _, err := NewEngine(1).Run(ctx, in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, res)
}

func TestEngineCancelMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	eng := NewEngine(9).WithProgressReporter(func(done, total int) {
		if calls.Add(1) == 1 {
			cancel()
		}
	})
	eng.SetWorkers(1)

	mics := []float64{0.125, 0.25, 0.5, 1, 2, 4, 8, 16, 32}
	_, _, err := eng.Run(ctx, newInput([]models.Regimen{{Dose: 2000, Interval: 24}}, mics, 1000))
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls.Load(), int64(len(mics)), "remaining pairs should not be scheduled")
}

func TestEngineProgressReporter(t *testing.T) {
	var last, total atomic.Int64
	eng := NewEngine(2).WithProgressReporter(func(done, n int) {
		if int64(done) > last.Load() {
			last.Store(int64(done))
		}
		total.Store(int64(n))
	})

	_, _, err := eng.Run(context.Background(), newInput(
		[]models.Regimen{{Dose: 2000, Interval: 24}, {Dose: 1000, Interval: 12}},
		[]float64{1, 2}, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(4), last.Load())
	assert.Equal(t, int64(4), total.Load())
}

func TestEngineSetWorkersDefault(t *testing.T) {
	eng := NewEngine(1)
	eng.SetWorkers(3)
	assert.Equal(t, 3, eng.Workers())
	eng.SetWorkers(0)
	assert.Greater(t, eng.Workers(), 0)
}

package simd

import (
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/config"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

const testScenarioYAML = `
regimens:
  - {dose: 2000, interval: 24}
  - {dose: 1000, interval: 12}
mics: [1, 2, 4]
population:
  fu: {mean: 0.073, std: 0.032}
  vd: {mean: 7.8, std: 5.4}
  clt: {mean: 0.83, std: 0.83}
target: 55
num_patients: 200
mic_distribution:
  - {mic: 1, weight: 0.2}
  - {mic: 2, weight: 0.5}
  - {mic: 4, weight: 0.3}
seed: 7
workers: 2
`

// slowScenarioYAML takes long enough to be stopped mid-run
const slowScenarioYAML = `
regimens:
  - {dose: 2000, interval: 24}
mics: [0.125, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64, 128, 256]
population:
  fu: {mean: 0.073, std: 0.032}
  vd: {mean: 7.8, std: 5.4}
  clt: {mean: 0.83, std: 0.83}
target: 55
num_patients: 2000000
workers: 1
`

func testScenario(t *testing.T) *config.Scenario {
	t.Helper()
	s, err := config.ParseScenarioYAMLString(testScenarioYAML)
	if err != nil {
		t.Fatalf("parse test scenario: %v", err)
	}
	return s
}

func waitForStatus(t *testing.T, store *RunStore, runID string, want models.RunStatus) *RunRecord {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec, ok := store.Get(runID)
		if ok && rec.Run.Status == want {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, _ := store.Get(runID)
	if rec != nil {
		t.Fatalf("run %s did not reach %s, last status %s (%s)", runID, want, rec.Run.Status, rec.Run.Error)
	}
	t.Fatalf("run %s not found", runID)
	return nil
}

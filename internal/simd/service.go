package simd

import (
	"errors"
	"fmt"

	"github.com/GoSim-25-26J-441/ptasim-core/internal/report"
	"github.com/GoSim-25-26J-441/ptasim-core/internal/response"
	"github.com/GoSim-25-26J-441/ptasim-core/internal/simulation"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/config"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrResultsNotReady = errors.New("results not available")
)

// CreateRunRequest is the body of a run creation call. Exactly one of
// ScenarioYAML and Scenario must be set.
type CreateRunRequest struct {
	RunID          string           `json:"run_id,omitempty"`
	ScenarioYAML   string           `json:"scenario_yaml,omitempty"`
	Scenario       *config.Scenario `json:"scenario,omitempty"`
	CallbackURL    string           `json:"callback_url,omitempty"`
	CallbackSecret string           `json:"callback_secret,omitempty"`
	Start          bool             `json:"start,omitempty"`
}

// SimulateRequest is the body of a synchronous simulation call
type SimulateRequest struct {
	ScenarioYAML string           `json:"scenario_yaml,omitempty"`
	Scenario     *config.Scenario `json:"scenario,omitempty"`
}

// ResultsView is the wire form of a finished simulation
type ResultsView struct {
	Run    *Run                   `json:"run,omitempty"`
	PTA    *report.Matrix         `json:"pta"`
	CFR    []models.ResponseScore `json:"cfr"`
	Issues []response.Issue       `json:"issues"`
	Stats  models.RunStats        `json:"stats"`
}

func resolveScenario(yamlText string, scenario *config.Scenario) (*config.Scenario, error) {
	switch {
	case yamlText != "" && scenario != nil:
		return nil, fmt.Errorf("%w: set either scenario_yaml or scenario, not both", ErrInvalidRequest)
	case yamlText != "":
		s, err := config.ParseScenarioYAMLString(yamlText)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return s, nil
	case scenario != nil:
		if err := config.ValidateScenario(scenario); err != nil {
			return nil, fmt.Errorf("%w: invalid scenario: %w", ErrInvalidRequest, err)
		}
		return scenario, nil
	default:
		return nil, fmt.Errorf("%w: scenario_yaml or scenario is required", ErrInvalidRequest)
	}
}

// createRun validates req, stores the run and optionally starts it
func createRun(store *RunStore, executor *RunExecutor, req *CreateRunRequest) (*RunRecord, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: body is required", ErrInvalidRequest)
	}
	scenario, err := resolveScenario(req.ScenarioYAML, req.Scenario)
	if err != nil {
		return nil, err
	}
	if req.CallbackURL != "" {
		if err := validateCallbackURL(req.CallbackURL); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	rec, err := store.Create(req.RunID, &RunInput{
		Scenario:       scenario,
		CallbackURL:    req.CallbackURL,
		CallbackSecret: req.CallbackSecret,
	})
	if err != nil {
		if errors.Is(err, ErrRunExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	logger.Info("run created", "run_id", rec.Run.ID, "pairs", rec.Run.PairsTotal)

	if !req.Start {
		return rec, nil
	}
	return executor.Start(rec.Run.ID)
}

// runResults returns the results of a completed run
func runResults(store *RunStore, runID string) (*ResultsView, error) {
	rec, ok := store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status != models.RunStatusCompleted || rec.Result == nil {
		return nil, fmt.Errorf("%w: run %s is %s", ErrResultsNotReady, runID, rec.Run.Status)
	}
	view := newResultsView(rec.Result)
	view.Run = rec.Run
	return view, nil
}

func newResultsView(out *simulation.Outcome) *ResultsView {
	view := &ResultsView{
		PTA:    report.PTAMatrix(out.Attainment, out.Regimens),
		CFR:    out.Scores,
		Issues: out.Issues,
		Stats:  out.Stats,
	}
	if view.CFR == nil {
		view.CFR = []models.ResponseScore{}
	}
	if view.Issues == nil {
		view.Issues = []response.Issue{}
	}
	return view
}

package improvement

import (
	"fmt"
	"math"
)

// ConvergenceStrategy defines how to detect convergence
type ConvergenceStrategy interface {
	// CheckConvergence checks if optimization has converged based on history
	CheckConvergence(history []OptimizationStep) (bool, string)
	// Name returns the name of the convergence strategy
	Name() string
}

// ConvergenceConfig holds configuration for convergence detection
type ConvergenceConfig struct {
	// NoImprovementIterations is the number of iterations without improvement before stopping
	NoImprovementIterations int
	// ScoreTolerance is the absolute tolerance for score changes to be considered equal
	ScoreTolerance float64
	// MinIterations is the minimum number of iterations before convergence can be detected
	MinIterations int
	// PlateauIterations is the number of iterations with similar scores (plateau) before stopping
	PlateauIterations int
}

// DefaultConvergenceConfig returns a default convergence configuration
func DefaultConvergenceConfig() *ConvergenceConfig {
	return &ConvergenceConfig{
		NoImprovementIterations: 3,
		ScoreTolerance:          0.01,
		MinIterations:           3,
		PlateauIterations:       4,
	}
}

// NewConvergenceStrategy returns the strategy registered under name with the
// default configuration.
func NewConvergenceStrategy(name string) (ConvergenceStrategy, error) {
	switch name {
	case "plateau":
		return NewPlateauStrategy(nil), nil
	case "no_improvement":
		return NewNoImprovementStrategy(nil), nil
	default:
		return nil, fmt.Errorf("unknown convergence strategy %q (want plateau or no_improvement)", name)
	}
}

// NoImprovementStrategy detects convergence when there's no improvement for N iterations
type NoImprovementStrategy struct {
	config *ConvergenceConfig
}

// NewNoImprovementStrategy creates a new no-improvement convergence strategy
func NewNoImprovementStrategy(config *ConvergenceConfig) *NoImprovementStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &NoImprovementStrategy{config: config}
}

func (s *NoImprovementStrategy) Name() string {
	return "no_improvement"
}

func (s *NoImprovementStrategy) CheckConvergence(history []OptimizationStep) (converged bool, reason string) {
	if len(history) < s.config.MinIterations {
		return false, ""
	}

	bestScore := math.MaxFloat64
	bestIteration := -1
	for i, step := range history {
		if step.Score < bestScore {
			bestScore = step.Score
			bestIteration = i
		}
	}
	if bestIteration < 0 {
		return false, ""
	}

	iterationsSinceBest := len(history) - 1 - bestIteration
	if iterationsSinceBest >= s.config.NoImprovementIterations {
		return true, fmt.Sprintf("no improvement for %d iterations (best at iteration %d)", iterationsSinceBest, bestIteration)
	}
	return false, ""
}

// PlateauStrategy detects convergence when the last scores stay within tolerance
type PlateauStrategy struct {
	config *ConvergenceConfig
}

// NewPlateauStrategy creates a new plateau convergence strategy
func NewPlateauStrategy(config *ConvergenceConfig) *PlateauStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &PlateauStrategy{config: config}
}

func (s *PlateauStrategy) Name() string {
	return "plateau"
}

func (s *PlateauStrategy) CheckConvergence(history []OptimizationStep) (converged bool, reason string) {
	if len(history) < s.config.MinIterations || len(history) < s.config.PlateauIterations {
		return false, ""
	}

	recent := history[len(history)-s.config.PlateauIterations:]
	minScore, maxScore := recent[0].Score, recent[0].Score
	for _, step := range recent {
		minScore = math.Min(minScore, step.Score)
		maxScore = math.Max(maxScore, step.Score)
	}

	if scoreRange := maxScore - minScore; scoreRange <= s.config.ScoreTolerance {
		return true, fmt.Sprintf("score plateaued for %d iterations (range: %.6f)", s.config.PlateauIterations, scoreRange)
	}
	return false, ""
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadScenario loads and parses a scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	scenario, err := ParseScenarioYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}
	return scenario, nil
}

// SaveScenario writes a scenario as YAML to path
func SaveScenario(path string, s *Scenario) error {
	data, err := MarshalScenarioYAML(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scenario file %s: %w", path, err)
	}
	return nil
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return structError(err)
	}

	if _, err := cfg.Callback.GetTimeout(); err != nil {
		return err
	}
	if _, err := cfg.Callback.GetBaseDelay(); err != nil {
		return err
	}

	return nil
}

// ValidateScenario checks the scenario's own fields, then the simulation input
// it produces. Input failures wrap models.ErrInvalidParameter.
func ValidateScenario(s *Scenario) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidParameter, structError(err))
	}

	seen := make(map[float64]bool, len(s.MICDistribution))
	for _, w := range s.MICDistribution {
		if seen[w.MIC] {
			return fmt.Errorf("%w: mic_distribution lists mic %g more than once", models.ErrInvalidParameter, w.MIC)
		}
		seen[w.MIC] = true
	}

	return models.ValidateInput(s.ToInput())
}

func structError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

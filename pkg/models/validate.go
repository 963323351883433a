package models

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidParameter marks inputs rejected before any sampling happens.
var ErrInvalidParameter = errors.New("invalid parameter")

// inputValidate is the validator instance for simulation inputs.
var inputValidate = validator.New()

// ValidateInput checks a simulation input at the boundary, before any sampling.
// Every failure wraps ErrInvalidParameter.
func ValidateInput(in *SimulationInput) error {
	if in == nil {
		return invalidf("input is required")
	}

	if err := inputValidate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return invalidf("%s", describe(verrs))
		}
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	for name, p := range map[string]PopulationParameter{
		"fu":  in.Population.UnboundFraction,
		"vd":  in.Population.Volume,
		"clt": in.Population.Clearance,
	} {
		if !finite(p.Mean) || !finite(p.StdDev) {
			return invalidf("%s mean and std must be finite", name)
		}
	}

	for _, r := range in.Regimens {
		if !finite(r.Dose) {
			return invalidf("dose must be finite, got %v", r.Dose)
		}
	}

	seen := make(map[float64]bool, len(in.Thresholds))
	for _, mic := range in.Thresholds {
		if !finite(mic) {
			return invalidf("mic must be finite, got %v", mic)
		}
		if seen[mic] {
			return invalidf("duplicate mic %v", mic)
		}
		seen[mic] = true
	}

	for mic, w := range in.Distribution {
		if !finite(w) {
			return invalidf("weight for mic %v must be finite", mic)
		}
	}

	if math.IsNaN(in.Target) || math.IsInf(in.Target, 0) {
		return invalidf("target must be finite, got %v", in.Target)
	}

	return nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func describe(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "SimulationInput.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s needs at least %s entries", field, fe.Param()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be > %s, got %v", field, fe.Param(), fe.Value()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be >= %s, got %v", field, fe.Param(), fe.Value()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be <= %s, got %v", field, fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

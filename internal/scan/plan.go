package scan

import (
	"errors"
	"fmt"
	"io"

	"device_tuner/internal/models"

	"gopkg.in/yaml.v3"
)

// Plan is an offline scan description read from yaml:
//
//	sequence: furnace-a
//	overrides:
//	  "F1:SOAK": 120
//	dimensions:
//	  - key: "F1:TARGET"
//	    start: 600
//	    end: 900
//	    steps: 4
type Plan struct {
	Sequence   string                         `yaml:"sequence"`
	Overrides  map[models.PropertyKey]float64 `yaml:"overrides"`
	Dimensions []PlanDimension                `yaml:"dimensions"`
}

// PlanDimension binds a dimension to the property it sweeps.
type PlanDimension struct {
	Key              models.PropertyKey `yaml:"key"`
	models.Dimension `yaml:",inline"`
}

// LoadPlan decodes and validates a plan.
func LoadPlan(r io.Reader) (Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return Plan{}, errors.New("scan plan is empty")
		}
		return Plan{}, fmt.Errorf("decode scan plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Validate checks that every dimension is usable and bound to a distinct key.
func (p Plan) Validate() error {
	if p.Sequence == "" {
		return errors.New("scan plan: sequence is required")
	}
	if len(p.Dimensions) == 0 {
		return ErrNoDimensions
	}
	seen := make(map[models.PropertyKey]bool, len(p.Dimensions))
	for i, d := range p.Dimensions {
		if d.Key == "" {
			return fmt.Errorf("scan plan: dimension %d has no key", i)
		}
		if seen[d.Key] {
			return fmt.Errorf("scan plan: property %s scanned twice", d.Key)
		}
		seen[d.Key] = true
		if err := Validate(d.Dimension); err != nil {
			return fmt.Errorf("scan plan: dimension %s: %w", d.Key, err)
		}
	}
	return nil
}

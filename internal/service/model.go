package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"device_tuner/internal/config"
	"device_tuner/internal/models"
)

// Property names the thermal model understands.
const (
	InputAmbient        = "ambient_c"
	InputTarget         = "target_temp_c"
	InputRampUp         = "ramp_up_c_per_s"
	InputRampDown       = "ramp_down_c_per_s"
	InputSoak           = "soak_s"
	InputSampleInterval = "sample_interval_s"
)

const maxModelSamples = 100_000

var (
	ErrOverheat          = errors.New("thermal model: target exceeds safe temperature")
	ErrInvalidModelInput = errors.New("thermal model: invalid input")
)

// ThermalModel is the simulation oracle of a furnace program: heat from
// ambient to target, soak, cool back to ambient. The result is the furnace
// temperature sampled every sample_interval_s seconds up to the horizon.
type ThermalModel struct {
	defaults config.ModelConfig
}

func NewThermalModel(defaults config.ModelConfig) *ThermalModel {
	return &ThermalModel{defaults: defaults}
}

type thermalParams struct {
	ambient, target, rampUp, rampDown, soak, interval float64
}

// params overlays the snapshot values on the configured defaults.
// Snapshots with unknown names are ignored.
func (m *ThermalModel) params(inputs []models.PropertySnapshot) (thermalParams, error) {
	p := thermalParams{
		ambient:  m.defaults.AmbientC,
		target:   m.defaults.TargetTempC,
		rampUp:   m.defaults.RampUpCPerSec,
		rampDown: m.defaults.RampDownCPerSec,
		soak:     m.defaults.SoakS,
		interval: m.defaults.SampleIntervalS,
	}
	for _, in := range inputs {
		if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
			return p, fmt.Errorf("%w: %s is %v", ErrInvalidModelInput, in.PropertyName, in.Value)
		}
		switch in.PropertyName {
		case InputAmbient:
			p.ambient = in.Value
		case InputTarget:
			p.target = in.Value
		case InputRampUp:
			p.rampUp = in.Value
		case InputRampDown:
			p.rampDown = in.Value
		case InputSoak:
			p.soak = in.Value
		case InputSampleInterval:
			p.interval = in.Value
		}
	}

	switch {
	case p.rampUp <= 0 || p.rampDown <= 0:
		return p, fmt.Errorf("%w: ramps must be positive, got up=%v down=%v", ErrInvalidModelInput, p.rampUp, p.rampDown)
	case p.interval <= 0:
		return p, fmt.Errorf("%w: sample interval must be positive, got %v", ErrInvalidModelInput, p.interval)
	case p.soak < 0:
		return p, fmt.Errorf("%w: soak must not be negative, got %v", ErrInvalidModelInput, p.soak)
	case p.target > m.defaults.MaxSafeC:
		return p, fmt.Errorf("%w: %.1f°C > %.1f°C", ErrOverheat, p.target, m.defaults.MaxSafeC)
	}
	return p, nil
}

func (m *ThermalModel) Evaluate(ctx context.Context, inputs []models.PropertySnapshot) (models.PositionSeries, error) {
	p, err := m.params(inputs)
	if err != nil {
		return nil, err
	}
	horizon := m.defaults.HorizonS
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %v", ErrInvalidModelInput, horizon)
	}
	n := int(math.Floor(horizon/p.interval)) + 1
	if n > maxModelSamples {
		return nil, fmt.Errorf("%w: %d samples over %vs, limit is %d", ErrInvalidModelInput, n, horizon, maxModelSamples)
	}

	out := make(models.PositionSeries, n)
	for i := range out {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		t := float64(i) * p.interval
		out[i] = models.Point{Position: t, Value: p.temperatureAt(t)}
	}
	return out, nil
}

// temperatureAt is the piecewise program: ramp toward target, hold for the
// soak time, ramp back toward ambient.
func (p thermalParams) temperatureAt(t float64) float64 {
	rampIn := p.rampUp
	if p.target < p.ambient {
		rampIn = p.rampDown
	}
	tReach := math.Abs(p.target-p.ambient) / rampIn
	switch {
	case t <= tReach:
		return approach(p.ambient, p.target, rampIn*t)
	case t <= tReach+p.soak:
		return p.target
	default:
		rampOut := p.rampDown
		if p.target < p.ambient {
			rampOut = p.rampUp
		}
		return approach(p.target, p.ambient, rampOut*(t-tReach-p.soak))
	}
}

// approach moves from cur toward target by at most step without overshooting.
func approach(cur, target, step float64) float64 {
	if cur < target {
		return minFloat(cur+step, target)
	}
	return maxFloat(cur-step, target)
}

func maxFloat(a, b float64) float64 {
	if a >= b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a <= b {
		return a
	}
	return b
}

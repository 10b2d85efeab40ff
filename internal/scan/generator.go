// Package scan expands per-property scan bounds into the cartesian set of
// spots a parameter scan evaluates.
package scan

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"device_tuner/internal/models"

	"gonum.org/v1/gonum/floats"
)

// MaximumCapacity bounds the number of spots of one scan. A scan whose spot
// count reaches it is rejected before anything is allocated.
const MaximumCapacity = 100

var (
	ErrCapacityExceeded = errors.New("scan: spot count exceeds capacity")
	ErrInvalidDimension = errors.New("scan: invalid dimension")
	ErrNoDimensions     = errors.New("scan: no dimension enabled for scanning")
)

// EffectiveSteps is the number of samples a dimension yields.
// Equal bounds collapse to a single sample whatever Steps says.
func EffectiveSteps(d models.Dimension) int {
	if d.Start == d.End {
		return 1
	}
	return d.Steps
}

// Validate reports ErrInvalidDimension for non-finite bounds or, when the
// bounds differ, fewer than one step.
func Validate(d models.Dimension) error {
	if !isFinite(d.Start) || !isFinite(d.End) {
		return fmt.Errorf("%w: bounds must be finite, got [%v, %v]", ErrInvalidDimension, d.Start, d.End)
	}
	if d.Start != d.End && d.Steps < 1 {
		return fmt.Errorf("%w: steps must be >= 1, got %d", ErrInvalidDimension, d.Steps)
	}
	return nil
}

// Samples materializes the ordered sample set of d:
// start when there is one step, else start + i*(end-start)/(steps-1).
// A dimension that alone reaches MaximumCapacity is rejected unallocated.
func Samples(d models.Dimension) ([]float64, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}
	n := EffectiveSteps(d)
	if n >= MaximumCapacity {
		return nil, capacityError(n)
	}
	if n == 1 {
		return []float64{d.Start}, nil
	}
	return floats.Span(make([]float64, n), d.Start, d.End), nil
}

// Generate returns every combination of the dimensions' samples in row-major
// order: the first dimension varies slowest, the last varies every spot.
func Generate(dims []models.Dimension) ([]models.ScanSpot, error) {
	if len(dims) == 0 {
		return nil, ErrNoDimensions
	}

	total, err := SpotCount(dims)
	if err != nil {
		return nil, err
	}

	sampleSets := make([][]float64, len(dims))
	for i, d := range dims {
		s, err := Samples(d)
		if err != nil {
			return nil, fmt.Errorf("dimension %d: %w", i, err)
		}
		sampleSets[i] = s
	}

	// stride[d] is how many consecutive spots share dimension d's sample.
	strides := make([]int, len(sampleSets))
	stride := 1
	for d := len(sampleSets) - 1; d >= 0; d-- {
		strides[d] = stride
		stride *= len(sampleSets[d])
	}

	spots := make([]models.ScanSpot, total)
	for i := range spots {
		values := make([]float64, len(sampleSets))
		indices := make([]int, len(sampleSets))
		for d, set := range sampleSets {
			k := (i / strides[d]) % len(set)
			values[d] = set[k]
			indices[d] = k + 1
		}
		spots[i] = models.ScanSpot{Values: values, Indices: indices}
	}
	return spots, nil
}

// SpotCount multiplies the effective step counts without materializing any
// sample, failing with ErrCapacityExceeded as soon as the product reaches
// MaximumCapacity. Invalid dimensions are reported first.
func SpotCount(dims []models.Dimension) (int, error) {
	for i, d := range dims {
		if err := Validate(d); err != nil {
			return 0, fmt.Errorf("dimension %d: %w", i, err)
		}
	}
	total := 1
	for _, d := range dims {
		n := EffectiveSteps(d)
		// total < MaximumCapacity here, so the product cannot overflow
		if n >= MaximumCapacity {
			return 0, capacityError(n)
		}
		total *= n
		if total >= MaximumCapacity {
			return 0, capacityError(total)
		}
	}
	return total, nil
}

func capacityError(atLeast int) error {
	return fmt.Errorf("%w: at least %d spots, limit is %d", ErrCapacityExceeded, atLeast, MaximumCapacity)
}

// Label names the run of one spot, e.g. "Scan 3:[1.2.1]".
func Label(spotNumber int, indices []int) string {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = strconv.Itoa(idx)
	}
	return fmt.Sprintf("Scan %d:[%s]", spotNumber, strings.Join(parts, "."))
}

// ParseDimension parses "start:end:steps".
func ParseDimension(s string) (models.Dimension, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return models.Dimension{}, fmt.Errorf("%w: %q, expected start:end:steps", ErrInvalidDimension, s)
	}

	start, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return models.Dimension{}, fmt.Errorf("invalid start value %q: %w", parts[0], err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return models.Dimension{}, fmt.Errorf("invalid end value %q: %w", parts[1], err)
	}
	steps, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return models.Dimension{}, fmt.Errorf("invalid steps value %q: %w", parts[2], err)
	}

	d := models.Dimension{Start: start, End: end, Steps: steps}
	if err := Validate(d); err != nil {
		return models.Dimension{}, err
	}
	return d, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

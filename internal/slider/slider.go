// Package slider models the numeric generation settings shown as range sliders.
package slider

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidStep indicates a step that is not a positive decimal number.
	ErrInvalidStep = errors.New("slider step must be a positive decimal")
	// ErrInvalidRange indicates min > max or a default outside [min, max].
	ErrInvalidRange = errors.New("invalid slider range")
)

// Setting is a single slider: its current value, the default captured at
// construction, and the display precision derived from the step.
type Setting struct {
	Name      string
	Min       float64
	Max       float64
	Step      float64
	Default   float64
	Precision int

	value float64
}

// New creates a Setting. step is kept as text because precision is the
// number of digits after its decimal point ("0.05" → 2).
func New(name string, minValue, maxValue, defaultValue float64, step string) (*Setting, error) {
	stepValue, err := strconv.ParseFloat(strings.TrimSpace(step), 64)
	if err != nil || stepValue <= 0 {
		return nil, fmt.Errorf("%w: %s step %q", ErrInvalidStep, name, step)
	}

	if minValue > maxValue || defaultValue < minValue || defaultValue > maxValue {
		return nil, fmt.Errorf("%w: %s default %v not within [%v, %v]",
			ErrInvalidRange, name, defaultValue, minValue, maxValue)
	}

	return &Setting{
		Name:      name,
		Min:       minValue,
		Max:       maxValue,
		Step:      stepValue,
		Default:   defaultValue,
		Precision: Precision(step),
		value:     defaultValue,
	}, nil
}

// Precision returns the number of decimals in a step string.
func Precision(step string) int {
	_, decimals, found := strings.Cut(strings.TrimSpace(step), ".")
	if !found {
		return 0
	}

	return len(decimals)
}

// Value returns the current value.
func (s *Setting) Value() float64 {
	return s.value
}

// Set moves the slider, clamping to [Min, Max] and snapping to the step grid.
func (s *Setting) Set(value float64) {
	if math.IsNaN(value) {
		return
	}

	value = math.Max(s.Min, math.Min(s.Max, value))
	steps := math.Round((value - s.Min) / s.Step)
	snapped := s.Min + steps*s.Step

	s.value = math.Min(s.Max, roundTo(snapped, s.Precision))
}

// Reset restores the default value.
func (s *Setting) Reset() {
	s.value = s.Default
}

// Display renders the value with the slider's precision.
func (s *Setting) Display() string {
	return strconv.FormatFloat(s.value, 'f', s.Precision, 64)
}

func roundTo(value float64, precision int) float64 {
	scale := math.Pow(10, float64(precision))

	return math.Round(value*scale) / scale
}

package models

import "strings"

// PropertyKey identifies one controllable quantity as "device:attribute".
type PropertyKey string

func NewPropertyKey(device, attribute string) PropertyKey {
	return PropertyKey(device + ":" + attribute)
}

// Device returns the part of the key before the first colon.
func (k PropertyKey) Device() string {
	d, _, _ := strings.Cut(string(k), ":")
	return d
}

// Attribute returns the part of the key after the first colon, or "" when absent.
func (k PropertyKey) Attribute() string {
	_, a, _ := strings.Cut(string(k), ":")
	return a
}

// PropertyDef is one catalog entry of a sequence: what to control and its design value.
type PropertyDef struct {
	Device    string  `json:"device" mapstructure:"device" yaml:"device"`
	Attribute string  `json:"attribute" mapstructure:"attribute" yaml:"attribute"`
	Name      string  `json:"name" mapstructure:"name" yaml:"name"`
	Design    float64 `json:"design" mapstructure:"design" yaml:"design"`
}

func (d PropertyDef) Key() PropertyKey { return NewPropertyKey(d.Device, d.Attribute) }

// Dimension is one scan axis. Steps < 1 is invalid unless Start == End.
type Dimension struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Steps int     `json:"steps" yaml:"steps"`
}

// ScanConfig is the scan setup attached to one property.
type ScanConfig struct {
	Dimension
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// ScanSpot is one point of the cartesian product of all dimensions.
// Indices are 1-based and parallel to Values.
type ScanSpot struct {
	Values  []float64 `json:"values"`
	Indices []int     `json:"indices"`
}

// PropertyView is the read model of one property served to clients.
// Live and Test are nil when the underlying value is NaN.
type PropertyView struct {
	Key       PropertyKey `json:"key"`
	Name      string      `json:"name"`
	Design    float64     `json:"design_value"`
	Live      *float64    `json:"live_value"`
	Test      *float64    `json:"test_value"`
	Effective float64     `json:"effective_value"`
	Source    string      `json:"source"` // DESIGN | TEST
	LiveState string      `json:"live_state"`
	Scan      *ScanConfig `json:"scan,omitempty"`
}

// Sequence is a named set of properties selected together.
type Sequence struct {
	Name       string        `json:"name" mapstructure:"name" yaml:"name"`
	Properties []PropertyDef `json:"properties" mapstructure:"properties" yaml:"properties"`
}

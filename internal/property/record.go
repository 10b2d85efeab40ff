// Package property binds controllable quantities to their design value,
// live cache, operator override and scan bounds.
package property

import (
	"math"
	"sync"
	"sync/atomic"

	"device_tuner/internal/live"
	"device_tuner/internal/models"
	"device_tuner/internal/scan"
)

// ValueSource tells which value feeds a simulation input.
type ValueSource int

const (
	SourceDesign ValueSource = iota
	SourceTest
)

func (s ValueSource) String() string {
	if s == SourceTest {
		return "TEST"
	}
	return "DESIGN"
}

// Record is one controllable quantity. The test override is stored as float
// bits in an atomic so display readers can call EffectiveValue while a scan
// rewrites it. NaN means no override; NaN is never a physical value here.
type Record struct {
	def   models.PropertyDef
	cache *live.Cache

	test        atomic.Uint64
	scanEnabled atomic.Bool

	mu  sync.RWMutex
	dim *models.Dimension
}

// NewRecord creates a record with no override. A nil cache gets a fresh one.
func NewRecord(def models.PropertyDef, cache *live.Cache) *Record {
	if cache == nil {
		cache = live.NewCache(def.Key())
	}
	r := &Record{def: def, cache: cache}
	r.test.Store(math.Float64bits(math.NaN()))
	return r
}

func (r *Record) Key() models.PropertyKey { return r.def.Key() }

// Name is the property name the oracle understands.
func (r *Record) Name() string { return r.def.Name }

func (r *Record) DesignValue() float64 { return r.def.Design }

func (r *Record) Cache() *live.Cache { return r.cache }

// LiveValue is the last pushed process value, NaN when unknown.
func (r *Record) LiveValue() float64 { return r.cache.Read() }

func (r *Record) TestValue() float64 {
	return math.Float64frombits(r.test.Load())
}

func (r *Record) SetTestValue(v float64) {
	r.test.Store(math.Float64bits(v))
}

func (r *Record) ClearTestValue() {
	r.test.Store(math.Float64bits(math.NaN()))
}

// Resolve returns the simulation input and where it came from:
// the test value when set, otherwise the design value.
func (r *Record) Resolve() (float64, ValueSource) {
	if t := r.TestValue(); !math.IsNaN(t) {
		return t, SourceTest
	}
	return r.def.Design, SourceDesign
}

func (r *Record) EffectiveValue() float64 {
	v, _ := r.Resolve()
	return v
}

// ConfigureScan stores the scan bounds. Equal bounds are accepted and scan as
// a single sample whatever steps is.
func (r *Record) ConfigureScan(start, end float64, steps int) error {
	d := models.Dimension{Start: start, End: end, Steps: steps}
	if err := scan.Validate(d); err != nil {
		return err
	}
	r.mu.Lock()
	r.dim = &d
	r.mu.Unlock()
	return nil
}

func (r *Record) ClearScan() {
	r.mu.Lock()
	r.dim = nil
	r.mu.Unlock()
	r.scanEnabled.Store(false)
}

func (r *Record) Dimension() (models.Dimension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.dim == nil {
		return models.Dimension{}, false
	}
	return *r.dim, true
}

func (r *Record) SetScanEnabled(enabled bool) { r.scanEnabled.Store(enabled) }

func (r *Record) ScanEnabled() bool { return r.scanEnabled.Load() }

// ScanConfig returns the bounds and enabled flag, false when never configured.
func (r *Record) ScanConfig() (models.ScanConfig, bool) {
	d, ok := r.Dimension()
	if !ok {
		return models.ScanConfig{}, false
	}
	return models.ScanConfig{Dimension: d, Enabled: r.ScanEnabled()}, true
}

// Snapshot captures the effective input now.
func (r *Record) Snapshot() models.PropertySnapshot {
	return models.PropertySnapshot{
		Key:          r.Key(),
		PropertyName: r.def.Name,
		Value:        r.EffectiveValue(),
	}
}

// View is the read model served to clients.
func (r *Record) View() models.PropertyView {
	v, src := r.Resolve()
	view := models.PropertyView{
		Key:       r.Key(),
		Name:      r.def.Name,
		Design:    r.def.Design,
		Live:      finiteOrNil(r.LiveValue()),
		Test:      finiteOrNil(r.TestValue()),
		Effective: v,
		Source:    src.String(),
		LiveState: r.cache.State().String(),
	}
	if cfg, ok := r.ScanConfig(); ok {
		view.Scan = &cfg
	}
	return view
}

func finiteOrNil(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

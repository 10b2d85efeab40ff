package property

import (
	"math"
	"sync"
	"testing"

	"device_tuner/internal/live"
	"device_tuner/internal/models"
	"device_tuner/internal/scan"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(design float64) *Record {
	return NewRecord(models.PropertyDef{Device: "F1", Attribute: "TARGET", Name: "target_temp_c", Design: design}, nil)
}

func TestRecord_ValuePrecedence(t *testing.T) {
	r := newTestRecord(3.0)
	assert.True(t, math.IsNaN(r.TestValue()))
	assert.Equal(t, 3.0, r.EffectiveValue())

	r.SetTestValue(7.0)
	v, src := r.Resolve()
	assert.Equal(t, 7.0, v)
	assert.Equal(t, SourceTest, src)

	r.ClearTestValue()
	v, src = r.Resolve()
	assert.Equal(t, 3.0, v)
	assert.Equal(t, SourceDesign, src)
}

func TestRecord_TestValueAcceptsAnything(t *testing.T) {
	r := newTestRecord(1)
	r.SetTestValue(-1e9)
	assert.Equal(t, -1e9, r.EffectiveValue())
	r.SetTestValue(math.NaN())
	assert.Equal(t, 1.0, r.EffectiveValue(), "NaN override means no override")
}

func TestRecord_LiveValueDelegatesToCache(t *testing.T) {
	r := newTestRecord(1)
	assert.True(t, math.IsNaN(r.LiveValue()))

	r.Cache().OnConnect()
	r.Cache().OnValue(812)
	assert.Equal(t, 812.0, r.LiveValue())
	assert.Equal(t, 1.0, r.EffectiveValue(), "live values never feed the simulation")

	r.Cache().OnDisconnect()
	assert.True(t, math.IsNaN(r.LiveValue()))
}

func TestRecord_ConfigureScan(t *testing.T) {
	r := newTestRecord(1)
	_, ok := r.Dimension()
	assert.False(t, ok)

	require.NoError(t, r.ConfigureScan(0, 10, 5))
	d, ok := r.Dimension()
	require.True(t, ok)
	assert.Equal(t, models.Dimension{Start: 0, End: 10, Steps: 5}, d)

	require.NoError(t, r.ConfigureScan(5, 5, 10))
	d, _ = r.Dimension()
	samples, err := scan.Samples(d)
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, samples)

	err = r.ConfigureScan(0, 1, 0)
	require.ErrorIs(t, err, scan.ErrInvalidDimension)
	d, _ = r.Dimension()
	assert.Equal(t, 5.0, d.Start, "rejected config leaves the previous one")

	r.SetScanEnabled(true)
	cfg, ok := r.ScanConfig()
	require.True(t, ok)
	assert.True(t, cfg.Enabled)

	r.ClearScan()
	_, ok = r.ScanConfig()
	assert.False(t, ok)
	assert.False(t, r.ScanEnabled())
}

func TestRecord_SnapshotAndView(t *testing.T) {
	r := newTestRecord(850)
	r.SetTestValue(900)
	snap := r.Snapshot()
	assert.Equal(t, models.PropertySnapshot{Key: "F1:TARGET", PropertyName: "target_temp_c", Value: 900}, snap)

	view := r.View()
	assert.Equal(t, models.PropertyKey("F1:TARGET"), view.Key)
	assert.Nil(t, view.Live)
	require.NotNil(t, view.Test)
	assert.Equal(t, 900.0, *view.Test)
	assert.Equal(t, "TEST", view.Source)
	assert.Equal(t, live.Disconnected.String(), view.LiveState)
	assert.Nil(t, view.Scan)
}

func TestRecord_EffectiveValueDuringConcurrentWrites(t *testing.T) {
	r := newTestRecord(1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			r.SetTestValue(float64(i%2 + 10))
			r.ClearTestValue()
		}
	}()
	for i := 0; i < 5000; i++ {
		v := r.EffectiveValue()
		require.Contains(t, []float64{1, 10, 11}, v)
	}
	wg.Wait()
}

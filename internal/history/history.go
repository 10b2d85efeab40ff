// Package history runs the simulation oracle against the current property
// values and keeps the completed runs, most recent first.
package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"device_tuner/internal/logger"
	"device_tuner/internal/models"
	"device_tuner/internal/property"
	"device_tuner/internal/scan"

	"github.com/google/uuid"
)

// Oracle evaluates one set of inputs into a result trajectory. It must not
// keep the inputs slice and must return positions strictly ascending.
type Oracle interface {
	Evaluate(ctx context.Context, inputs []models.PropertySnapshot) (models.PositionSeries, error)
}

type OracleFunc func(ctx context.Context, inputs []models.PropertySnapshot) (models.PositionSeries, error)

func (f OracleFunc) Evaluate(ctx context.Context, inputs []models.PropertySnapshot) (models.PositionSeries, error) {
	return f(ctx, inputs)
}

// RecordSource supplies the records whose effective values feed a run.
type RecordSource interface {
	Records() []*property.Record
}

type Option func(*History)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *History) { h.now = now }
}

func WithIDs(newID func() string) Option {
	return func(h *History) { h.newID = newID }
}

func WithLogger(log *logger.Logger) Option {
	return func(h *History) { h.log = logger.OrNop(log) }
}

type entry struct {
	rec models.HistoryRecord
	// enabledAt orders the comparison set; 0 while disabled.
	enabledAt uint64
}

// History is safe for concurrent use. The oracle is always called without
// holding the lock so readers are never blocked by a slow evaluation.
type History struct {
	oracle  Oracle
	records RecordSource
	log     *logger.Logger
	now     func() time.Time
	newID   func() string

	mu        sync.RWMutex
	entries   []*entry
	last      time.Time
	enableSeq uint64

	runSeq   atomic.Uint64
	scanning atomic.Bool
	// single runs share runMu; a scan holds it for its whole sweep
	runMu sync.RWMutex

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

func New(oracle Oracle, records RecordSource, opts ...Option) *History {
	h := &History{
		oracle:  oracle,
		records: records,
		log:     logger.Nop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RunOnce snapshots every record, evaluates and stores the result enabled.
// An empty label becomes "Run N". It is refused while a scan is running since
// the scan owns the test values.
func (h *History) RunOnce(ctx context.Context, label string) (models.HistoryRecord, error) {
	if !h.runMu.TryRLock() {
		return models.HistoryRecord{}, ErrScanInProgress
	}
	defer h.runMu.RUnlock()
	if h.scanning.Load() {
		return models.HistoryRecord{}, ErrScanInProgress
	}
	return h.run(ctx, label)
}

func (h *History) run(ctx context.Context, label string) (models.HistoryRecord, error) {
	if label == "" {
		label = fmt.Sprintf("Run %d", h.runSeq.Add(1))
	}
	if err := ctx.Err(); err != nil {
		return models.HistoryRecord{}, &OracleError{Label: label, Err: err}
	}

	recs := h.records.Records()
	snaps := make([]models.PropertySnapshot, 0, len(recs))
	for _, r := range recs {
		snaps = append(snaps, r.Snapshot())
	}

	result, err := h.oracle.Evaluate(ctx, append([]models.PropertySnapshot(nil), snaps...))
	if err == nil {
		err = checkSeries(result)
	}
	if err != nil {
		h.log.Warnw("run_failed", "label", label, "err", err)
		return models.HistoryRecord{}, &OracleError{Label: label, Err: err}
	}

	h.mu.Lock()
	ts := h.now().UTC()
	if !ts.After(h.last) {
		ts = h.last.Add(time.Nanosecond)
	}
	h.last = ts
	h.enableSeq++
	e := &entry{
		rec: models.HistoryRecord{
			ID:        h.newID(),
			Timestamp: ts,
			Label:     label,
			Snapshots: snaps,
			Result:    append(models.PositionSeries(nil), result...),
			Enabled:   true,
		},
		enabledAt: h.enableSeq,
	}
	h.entries = append([]*entry{e}, h.entries...)
	out := e.rec.Clone()
	h.mu.Unlock()

	h.log.Debugw("run_recorded", "id", out.ID, "label", label, "points", len(out.Result))
	return out, nil
}

func checkSeries(s models.PositionSeries) error {
	for i := 1; i < len(s); i++ {
		if !(s[i].Position > s[i-1].Position) {
			return fmt.Errorf("%w: %v after %v", ErrUnorderedSeries, s[i].Position, s[i-1].Position)
		}
	}
	return nil
}

// RunScan sweeps the scan bounds of records. Configuration errors abort the
// scan before the first run. Every spot is run even when some fail; the
// failures come back joined after the last spot. Cancelling ctx (or calling
// Cancel) stops after the current spot. Test values are restored in all cases.
func (h *History) RunScan(ctx context.Context, records []*property.Record) ([]models.HistoryRecord, error) {
	if !h.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer h.scanning.Store(false)
	// wait for single runs already past their check
	h.runMu.Lock()
	defer h.runMu.Unlock()

	if len(records) == 0 {
		return nil, scan.ErrNoDimensions
	}
	dims := make([]models.Dimension, len(records))
	for i, r := range records {
		d, ok := r.Dimension()
		if !ok {
			return nil, fmt.Errorf("%s: %w: no scan bounds", r.Key(), scan.ErrInvalidDimension)
		}
		dims[i] = d
	}
	spots, err := scan.Generate(dims)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	h.setCancel(cancel)
	defer func() {
		h.setCancel(nil)
		cancel()
	}()

	saved := make([]float64, len(records))
	for i, r := range records {
		saved[i] = r.TestValue()
	}
	defer func() {
		for i, r := range records {
			if math.IsNaN(saved[i]) {
				r.ClearTestValue()
			} else {
				r.SetTestValue(saved[i])
			}
		}
	}()

	h.log.Infow("scan_started", "dimensions", len(dims), "spots", len(spots))
	var (
		out  []models.HistoryRecord
		errs []error
	)
	for n, spot := range spots {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		for i, r := range records {
			r.SetTestValue(spot.Values[i])
		}
		rec, err := h.run(ctx, scan.Label(n+1, spot.Indices))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, rec)
	}
	h.log.Infow("scan_finished", "runs", len(out), "failures", len(errs))
	return out, errors.Join(errs...)
}

func (h *History) setCancel(c context.CancelFunc) {
	h.cancelMu.Lock()
	h.cancel = c
	h.cancelMu.Unlock()
}

// Cancel stops the running scan after its current spot. It reports whether a scan was running.
func (h *History) Cancel() bool {
	h.cancelMu.Lock()
	defer h.cancelMu.Unlock()
	if h.cancel == nil {
		return false
	}
	h.cancel()
	return true
}

func (h *History) Scanning() bool { return h.scanning.Load() }

// List returns copies of every record, most recent first.
func (h *History) List() []models.HistoryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.HistoryRecord, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.rec.Clone()
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *History) Get(id string) (models.HistoryRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, _, err := h.find(id)
	if err != nil {
		return models.HistoryRecord{}, err
	}
	return e.rec.Clone(), nil
}

func (h *History) find(id string) (*entry, int, error) {
	for i, e := range h.entries {
		if e.rec.ID == id {
			return e, i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// SetEnabled moves a record in or out of the comparison set. Enabling an
// already enabled record keeps its place.
func (h *History) SetEnabled(id string, enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, _, err := h.find(id)
	if err != nil {
		return err
	}
	switch {
	case enabled && !e.rec.Enabled:
		h.enableSeq++
		e.enabledAt = h.enableSeq
	case !enabled:
		e.enabledAt = 0
	}
	e.rec.Enabled = enabled
	return nil
}

func (h *History) SetLabel(id, label string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, _, err := h.find(id)
	if err != nil {
		return err
	}
	e.rec.Label = label
	return nil
}

func (h *History) Remove(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, i, err := h.find(id)
	if err != nil {
		return err
	}
	h.entries = append(h.entries[:i], h.entries[i+1:]...)
	return nil
}

// Clear drops every record. Timestamps keep increasing across a clear.
func (h *History) Clear() {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()
}

// Comparison returns the two most recently enabled records, newer first.
func (h *History) Comparison() (a, b models.HistoryRecord, err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var enabled []*entry
	for _, e := range h.entries {
		if e.rec.Enabled {
			enabled = append(enabled, e)
		}
	}
	if len(enabled) < 2 {
		return a, b, ErrNotEnoughEnabled
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].enabledAt > enabled[j].enabledAt })
	return enabled[0].rec.Clone(), enabled[1].rec.Clone(), nil
}

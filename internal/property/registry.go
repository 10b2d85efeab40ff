package property

import (
	"fmt"
	"sync"

	"device_tuner/internal/live"
	"device_tuner/internal/logger"
	"device_tuner/internal/models"
)

// Registry owns the records of the selected sequence. Selecting another
// sequence tears the old records down: their subscriptions are cancelled and
// their caches invalidated.
type Registry struct {
	design DesignSource
	source live.Source
	log    *logger.Logger

	mu       sync.RWMutex
	sequence string
	records  []*Record
	byKey    map[models.PropertyKey]*Record
	cancels  []func()
}

// NewRegistry wires the design source and the live feed. A nil source
// leaves every cache disconnected.
func NewRegistry(design DesignSource, source live.Source, log *logger.Logger) *Registry {
	return &Registry{
		design: design,
		source: source,
		log:    logger.OrNop(log),
		byKey:  make(map[models.PropertyKey]*Record),
	}
}

// Select fetches the sequence's design values once and builds fresh records.
func (r *Registry) Select(sequence string) error {
	defs, err := r.design.Properties(sequence)
	if err != nil {
		return err
	}

	records := make([]*Record, 0, len(defs))
	byKey := make(map[models.PropertyKey]*Record, len(defs))
	cancels := make([]func(), 0, len(defs))
	for _, def := range defs {
		rec := NewRecord(def, nil)
		records = append(records, rec)
		byKey[rec.Key()] = rec
		if cancel := r.subscribe(rec); cancel != nil {
			cancels = append(cancels, cancel)
		}
	}

	r.mu.Lock()
	oldRecords, oldCancels := r.records, r.cancels
	r.sequence, r.records, r.byKey, r.cancels = sequence, records, byKey, cancels
	r.mu.Unlock()

	release(oldRecords, oldCancels)
	r.log.Infow("sequence_selected", "sequence", sequence, "properties", len(records))
	return nil
}

// subscribe attaches the record's cache to the live source. Failures are
// logged and swallowed: live values are advisory and the cache stays disconnected.
func (r *Registry) subscribe(rec *Record) func() {
	if r.source == nil {
		return nil
	}
	cancel, err := r.source.Subscribe(rec.Key(), rec.Cache())
	if err != nil {
		r.log.Warnw("live_subscribe_failed", "key", rec.Key(), "err", err)
		return nil
	}
	return cancel
}

func (r *Registry) Sequence() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sequence
}

// Records returns the records in catalog order.
func (r *Registry) Records() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Record(nil), r.records...)
}

func (r *Registry) Get(key models.PropertyKey) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.sequence == "" {
		return nil, ErrNoSequence
	}
	rec, ok := r.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, key)
	}
	return rec, nil
}

// ScanRecords returns, in catalog order, the records enabled for scanning
// that carry scan bounds.
func (r *Registry) ScanRecords() []*Record {
	var out []*Record
	for _, rec := range r.Records() {
		if _, ok := rec.Dimension(); ok && rec.ScanEnabled() {
			out = append(out, rec)
		}
	}
	return out
}

// Close releases every record and forgets the sequence.
func (r *Registry) Close() {
	r.mu.Lock()
	oldRecords, oldCancels := r.records, r.cancels
	r.sequence, r.records, r.cancels = "", nil, nil
	r.byKey = make(map[models.PropertyKey]*Record)
	r.mu.Unlock()

	release(oldRecords, oldCancels)
}

func release(records []*Record, cancels []func()) {
	for _, cancel := range cancels {
		cancel()
	}
	for _, rec := range records {
		rec.Cache().Invalidate()
	}
}

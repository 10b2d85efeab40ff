package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"device_tuner/internal/diff"
	"device_tuner/internal/history"
	"device_tuner/internal/logger"
	"device_tuner/internal/metrics"
	"device_tuner/internal/models"
	"device_tuner/internal/property"
	"device_tuner/internal/repository"
	"device_tuner/internal/scan"
)

// TuningService is the operator-facing orchestration: it edits the records of
// the selected sequence, runs the oracle through the history, and keeps the
// session row and the event log in step.
type TuningService struct {
	catalog  *property.Catalog
	registry *property.Registry
	history  *history.History
	sessions repository.SessionRepo
	events   eventWriter
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time

	// editMu orders edits against the start of a scan; scanning is set
	// under it before the scan saves the test values it will restore.
	editMu   sync.Mutex
	scanning bool
}

func NewTuningService(
	catalog *property.Catalog,
	registry *property.Registry,
	hist *history.History,
	sessions repository.SessionRepo,
	events repository.EventRepo,
	m *metrics.Metrics,
	log *logger.Logger,
) *TuningService {
	log = logger.OrNop(log)
	if m == nil {
		m = metrics.New()
	}
	return &TuningService{
		catalog:  catalog,
		registry: registry,
		history:  hist,
		sessions: sessions,
		events:   eventWriter{repo: events, log: log, now: time.Now},
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

func operatorMeta(operatorID int, kv ...any) map[string]any {
	meta := map[string]any{"operator": operatorID}
	for i := 0; i+1 < len(kv); i += 2 {
		meta[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return meta
}

// Restore selects the saved sequence (or defaultSequence when nothing was
// saved or the saved one no longer exists) and reapplies saved edits.
// Edits for properties the sequence no longer has are dropped.
func (s *TuningService) Restore(ctx context.Context, defaultSequence string) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	st, err := s.sessions.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	seq := st.Sequence
	if seq != "" {
		if _, err := s.catalog.Properties(seq); err != nil {
			s.log.Warnw("session_sequence_unknown", "sequence", seq, "fallback", defaultSequence)
			seq, st = "", models.SessionState{}
		}
	}
	if seq == "" {
		seq = defaultSequence
	}
	if seq == "" {
		return nil
	}
	if err := s.registry.Select(seq); err != nil {
		return err
	}
	s.history.Clear()
	s.metrics.HistorySize(0)

	for key, v := range st.Overrides {
		rec, err := s.registry.Get(key)
		if err != nil {
			s.log.Warnw("session_override_dropped", "key", key, "err", err)
			continue
		}
		rec.SetTestValue(v)
	}
	for key, cfg := range st.Scans {
		rec, err := s.registry.Get(key)
		if err == nil {
			err = rec.ConfigureScan(cfg.Start, cfg.End, cfg.Steps)
		}
		if err != nil {
			s.log.Warnw("session_scan_dropped", "key", key, "err", err)
			continue
		}
		rec.SetScanEnabled(cfg.Enabled)
	}
	s.log.Infow("session_restored", "sequence", seq, "overrides", len(st.Overrides), "scans", len(st.Scans))
	return nil
}

func (s *TuningService) Sequences() []string { return s.catalog.Sequences() }

// SelectSequence rebuilds the records and clears the history.
func (s *TuningService) SelectSequence(ctx context.Context, operatorID int, name string) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	if s.scanActive() {
		return history.ErrScanInProgress
	}
	if err := s.registry.Select(name); err != nil {
		return err
	}
	s.history.Clear()
	s.metrics.HistorySize(0)
	s.saveSession(ctx)
	s.events.write(ctx, models.EventSequence, fmt.Sprintf("Sequence %s selected", name),
		operatorMeta(operatorID, "sequence", name))
	return nil
}

// scanActive must be called with editMu held.
func (s *TuningService) scanActive() bool {
	return s.scanning || s.history.Scanning()
}

// editable returns the record for key unless a scan currently owns the test
// values. Callers hold editMu until the edit is applied and saved.
func (s *TuningService) editable(key models.PropertyKey) (*property.Record, error) {
	if s.scanActive() {
		return nil, history.ErrScanInProgress
	}
	return s.registry.Get(key)
}

func (s *TuningService) SetTestValue(ctx context.Context, operatorID int, key models.PropertyKey, v float64) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	rec, err := s.editable(key)
	if err != nil {
		return err
	}
	rec.SetTestValue(v)
	s.saveSession(ctx)
	s.events.write(ctx, models.EventTestValue, fmt.Sprintf("%s test value set to %g", key, v),
		operatorMeta(operatorID, "key", key, "value", v))
	return nil
}

func (s *TuningService) ClearTestValue(ctx context.Context, operatorID int, key models.PropertyKey) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	rec, err := s.editable(key)
	if err != nil {
		return err
	}
	rec.ClearTestValue()
	s.saveSession(ctx)
	s.events.write(ctx, models.EventTestValue, fmt.Sprintf("%s test value cleared", key),
		operatorMeta(operatorID, "key", key))
	return nil
}

func (s *TuningService) ConfigureScan(ctx context.Context, operatorID int, key models.PropertyKey, p ScanParams) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	rec, err := s.editable(key)
	if err != nil {
		return err
	}
	if err := rec.ConfigureScan(p.Start, p.End, p.Steps); err != nil {
		return err
	}
	rec.SetScanEnabled(p.Enabled)
	s.saveSession(ctx)
	s.events.write(ctx, models.EventScanConfig,
		fmt.Sprintf("%s scan %g..%g in %d steps (enabled=%t)", key, p.Start, p.End, p.Steps, p.Enabled),
		operatorMeta(operatorID, "key", key, "start", p.Start, "end", p.End, "steps", p.Steps, "enabled", p.Enabled))
	return nil
}

// Run evaluates the current effective values once.
func (s *TuningService) Run(ctx context.Context, operatorID int, label string) (models.HistoryRecord, error) {
	if s.registry.Sequence() == "" {
		return models.HistoryRecord{}, property.ErrNoSequence
	}
	s.editMu.Lock()
	busy := s.scanActive()
	s.editMu.Unlock()
	if busy {
		return models.HistoryRecord{}, history.ErrScanInProgress
	}
	rec, err := s.history.RunOnce(ctx, label)
	if errors.Is(err, history.ErrScanInProgress) {
		return rec, err
	}
	s.metrics.Run(err == nil)
	if err != nil {
		s.events.write(ctx, models.EventRunFailed, err.Error(), operatorMeta(operatorID))
		return rec, err
	}
	s.metrics.HistorySize(s.history.Len())
	s.events.write(ctx, models.EventRun, fmt.Sprintf("%s recorded", rec.Label),
		operatorMeta(operatorID, "record", rec.ID, "points", len(rec.Result)))
	return rec, nil
}

// Scan sweeps every property enabled for scanning. Configuration problems
// (nothing enabled, an invalid dimension, too many spots, a scan already
// running) are returned before anything runs. Otherwise the report lists the
// recorded runs and the failed spots; the error joins the spot failures.
func (s *TuningService) Scan(ctx context.Context, operatorID int) (ScanReport, error) {
	if s.registry.Sequence() == "" {
		return ScanReport{}, property.ErrNoSequence
	}
	s.editMu.Lock()
	records := s.registry.ScanRecords()
	spots, err := s.plan(records)
	if err != nil {
		s.editMu.Unlock()
		s.metrics.Scan(metrics.ScanRejected, 0)
		return ScanReport{}, err
	}
	s.scanning = true
	s.editMu.Unlock()
	defer func() {
		s.editMu.Lock()
		s.scanning = false
		s.editMu.Unlock()
	}()

	keys := make([]models.PropertyKey, len(records))
	for i, r := range records {
		keys[i] = r.Key()
	}
	s.events.write(ctx, models.EventScanStarted, fmt.Sprintf("Scan of %d spots over %v", spots, keys),
		operatorMeta(operatorID, "spots", spots, "keys", keys))

	recs, err := s.history.RunScan(ctx, records)
	if errors.Is(err, history.ErrScanInProgress) && recs == nil {
		s.metrics.Scan(metrics.ScanRejected, 0)
		return ScanReport{}, err
	}

	report := ScanReport{Spots: spots, Records: recs}
	if report.Records == nil {
		report.Records = []models.HistoryRecord{}
	}
	var oracleErr *history.OracleError
	for _, e := range history.SplitErrors(err) {
		switch {
		case errors.Is(e, context.Canceled), errors.Is(e, context.DeadlineExceeded):
			report.Cancelled = true
		case errors.As(e, &oracleErr):
			report.Failures = append(report.Failures, e.Error())
			s.metrics.Run(false)
		}
	}
	for range recs {
		s.metrics.Run(true)
	}
	s.metrics.HistorySize(s.history.Len())

	// the request context may already be cancelled
	ctx = context.WithoutCancel(ctx)
	meta := operatorMeta(operatorID, "spots", spots, "recorded", len(recs), "failed", len(report.Failures))
	if report.Cancelled {
		s.metrics.Scan(metrics.ScanAborted, spots)
		s.events.write(ctx, models.EventScanAborted, fmt.Sprintf("Scan cancelled after %d runs", len(recs)), meta)
	} else {
		s.metrics.Scan(metrics.ScanCompleted, spots)
		s.events.write(ctx, models.EventScanCompleted,
			fmt.Sprintf("Scan finished: %d recorded, %d failed", len(recs), len(report.Failures)), meta)
	}
	return report, err
}

// plan checks the scan configuration without running anything. It counts
// the spots instead of generating them. editMu is held.
func (s *TuningService) plan(records []*property.Record) (int, error) {
	if s.scanActive() {
		return 0, history.ErrScanInProgress
	}
	if len(records) == 0 {
		return 0, scan.ErrNoDimensions
	}
	dims := make([]models.Dimension, len(records))
	for i, r := range records {
		d, ok := r.Dimension()
		if !ok {
			return 0, fmt.Errorf("%s: %w: no scan bounds", r.Key(), scan.ErrInvalidDimension)
		}
		dims[i] = d
	}
	return scan.SpotCount(dims)
}

func (s *TuningService) CancelScan() bool { return s.history.Cancel() }

func (s *TuningService) History() []models.HistoryRecord { return s.history.List() }

func (s *TuningService) SetLabel(id, label string) error { return s.history.SetLabel(id, label) }

func (s *TuningService) SetEnabled(id string, enabled bool) error {
	return s.history.SetEnabled(id, enabled)
}

func (s *TuningService) RemoveRecord(id string) error {
	if err := s.history.Remove(id); err != nil {
		return err
	}
	s.metrics.HistorySize(s.history.Len())
	return nil
}

func (s *TuningService) ClearHistory() {
	s.history.Clear()
	s.metrics.HistorySize(0)
}

// Compare diffs record a minus record b. With both ids empty it compares the
// two most recently enabled records, newer minus older.
func (s *TuningService) Compare(a, b string) (models.Comparison, error) {
	if a == "" && b == "" {
		ra, rb, err := s.history.Comparison()
		if err != nil {
			return models.Comparison{}, err
		}
		return diff.Compare(ra, rb), nil
	}
	if a == "" || b == "" {
		return models.Comparison{}, fmt.Errorf("%w: give both record ids or none", history.ErrNotFound)
	}
	ra, err := s.history.Get(a)
	if err != nil {
		return models.Comparison{}, err
	}
	rb, err := s.history.Get(b)
	if err != nil {
		return models.Comparison{}, err
	}
	return diff.Compare(ra, rb), nil
}

// saveSession persists the sequence and the operator's edits. Failures are
// logged: the in-memory state stays authoritative.
func (s *TuningService) saveSession(ctx context.Context) {
	st := models.SessionState{
		ID:        1,
		Sequence:  s.registry.Sequence(),
		Overrides: make(map[models.PropertyKey]float64),
		Scans:     make(map[models.PropertyKey]models.ScanConfig),
		UpdatedAt: s.now(),
	}
	for _, rec := range s.registry.Records() {
		if v := rec.TestValue(); !math.IsNaN(v) {
			st.Overrides[rec.Key()] = v
		}
		if cfg, ok := rec.ScanConfig(); ok {
			st.Scans[rec.Key()] = cfg
		}
	}
	if err := s.sessions.Save(ctx, st); err != nil {
		s.log.Warnw("session_save_failed", "err", err)
	}
}

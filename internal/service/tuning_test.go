package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"device_tuner/internal/history"
	"device_tuner/internal/live"
	"device_tuner/internal/metrics"
	"device_tuner/internal/models"
	"device_tuner/internal/property"
	"device_tuner/internal/scan"
)

type fakeSessionRepo struct {
	state   models.SessionState
	loadErr error
	saveErr error
	saved   []models.SessionState
	onSave  func()
}

func (f *fakeSessionRepo) Load(ctx context.Context) (models.SessionState, error) {
	return f.state, f.loadErr
}

func (f *fakeSessionRepo) Save(ctx context.Context, st models.SessionState) error {
	if f.onSave != nil {
		f.onSave()
	}
	f.saved = append(f.saved, st)
	return f.saveErr
}

func (f *fakeSessionRepo) last(t *testing.T) models.SessionState {
	t.Helper()
	if len(f.saved) == 0 {
		t.Fatalf("session was never saved")
	}
	return f.saved[len(f.saved)-1]
}

type tuningFixture struct {
	svc      *TuningService
	registry *property.Registry
	history  *history.History
	sessions *fakeSessionRepo
	events   *fakeEventRepo
}

func newTuningFixture(t *testing.T, oracle history.Oracle) *tuningFixture {
	t.Helper()
	catalog := testCatalog(t)
	if oracle == nil {
		oracle = NewThermalModel(testModelConfig())
	}
	reg := property.NewRegistry(catalog, live.NewHub(), nil)
	hist := history.New(oracle, reg)
	f := &tuningFixture{
		registry: reg,
		history:  hist,
		sessions: &fakeSessionRepo{},
		events:   &fakeEventRepo{},
	}
	f.svc = NewTuningService(catalog, reg, hist, f.sessions, f.events, metrics.New(), nil)
	return f
}

func (f *tuningFixture) eventTypes() []string {
	out := make([]string, len(f.events.appended))
	for i, e := range f.events.appended {
		out[i] = e.Type
	}
	return out
}

func TestTuning_RestoreAppliesSavedEdits(t *testing.T) {
	f := newTuningFixture(t, nil)
	f.sessions.state = models.SessionState{
		Sequence: "furnace-b",
		Overrides: map[models.PropertyKey]float64{
			"F2:TARGET": 60,
			"F1:TARGET": 99, // not in furnace-b
		},
		Scans: map[models.PropertyKey]models.ScanConfig{
			"F2:TARGET": {Dimension: models.Dimension{Start: 50, End: 70, Steps: 3}, Enabled: true},
		},
	}

	if err := f.svc.Restore(context.Background(), "furnace-a"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := f.registry.Sequence(); got != "furnace-b" {
		t.Fatalf("sequence = %q, want furnace-b", got)
	}
	rec, err := f.registry.Get("F2:TARGET")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.TestValue() != 60 {
		t.Fatalf("test value = %v, want 60", rec.TestValue())
	}
	if cfg, ok := rec.ScanConfig(); !ok || !cfg.Enabled || cfg.Steps != 3 {
		t.Fatalf("scan config not restored: %+v %v", cfg, ok)
	}
}

func TestTuning_RestoreFallsBackToDefault(t *testing.T) {
	f := newTuningFixture(t, nil)
	f.sessions.state = models.SessionState{
		Sequence:  "retired",
		Overrides: map[models.PropertyKey]float64{"F1:TARGET": 99},
	}

	if err := f.svc.Restore(context.Background(), "furnace-a"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := f.registry.Sequence(); got != "furnace-a" {
		t.Fatalf("sequence = %q, want furnace-a", got)
	}
	rec, _ := f.registry.Get("F1:TARGET")
	if !math.IsNaN(rec.TestValue()) {
		t.Fatalf("overrides of an unknown sequence must be dropped, got %v", rec.TestValue())
	}
}

func TestTuning_RestoreErrors(t *testing.T) {
	f := newTuningFixture(t, nil)
	f.sessions.loadErr = errors.New("disk")
	if err := f.svc.Restore(context.Background(), "furnace-a"); err == nil || !strings.Contains(err.Error(), "disk") {
		t.Fatalf("expected load error, got %v", err)
	}

	f = newTuningFixture(t, nil)
	if err := f.svc.Restore(context.Background(), ""); err != nil {
		t.Fatalf("empty session and no default: %v", err)
	}
	if f.registry.Sequence() != "" {
		t.Fatalf("nothing should be selected")
	}
}

func TestTuning_EditsAreSavedAndLogged(t *testing.T) {
	f := newTuningFixture(t, nil)
	ctx := context.Background()
	if err := f.svc.SelectSequence(ctx, 7, "furnace-a"); err != nil {
		t.Fatalf("SelectSequence: %v", err)
	}
	if err := f.svc.SetTestValue(ctx, 7, "F1:TARGET", 70); err != nil {
		t.Fatalf("SetTestValue: %v", err)
	}
	if err := f.svc.ConfigureScan(ctx, 7, "F1:SOAK", ScanParams{Start: 0, End: 60, Steps: 4, Enabled: true}); err != nil {
		t.Fatalf("ConfigureScan: %v", err)
	}

	st := f.sessions.last(t)
	if st.Sequence != "furnace-a" || st.ID != 1 {
		t.Fatalf("unexpected session: %+v", st)
	}
	if st.Overrides["F1:TARGET"] != 70 || len(st.Overrides) != 1 {
		t.Fatalf("overrides = %v", st.Overrides)
	}
	if cfg := st.Scans["F1:SOAK"]; cfg.Steps != 4 || !cfg.Enabled {
		t.Fatalf("scans = %v", st.Scans)
	}

	if err := f.svc.ClearTestValue(ctx, 7, "F1:TARGET"); err != nil {
		t.Fatalf("ClearTestValue: %v", err)
	}
	if len(f.sessions.last(t).Overrides) != 0 {
		t.Fatalf("cleared override still saved")
	}

	want := []string{models.EventSequence, models.EventTestValue, models.EventScanConfig, models.EventTestValue}
	got := f.eventTypes()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}
	meta, _ := f.events.appended[1].Metadata.(map[string]any)
	if meta["operator"] != 7 {
		t.Fatalf("operator missing from metadata: %#v", f.events.appended[1].Metadata)
	}
}

func TestTuning_EditErrors(t *testing.T) {
	f := newTuningFixture(t, nil)
	ctx := context.Background()

	if err := f.svc.SetTestValue(ctx, 1, "F1:TARGET", 1); !errors.Is(err, property.ErrNoSequence) {
		t.Fatalf("expected ErrNoSequence, got %v", err)
	}
	if err := f.svc.SelectSequence(ctx, 1, "nope"); !errors.Is(err, property.ErrUnknownSequence) {
		t.Fatalf("expected ErrUnknownSequence, got %v", err)
	}
	_ = f.svc.SelectSequence(ctx, 1, "furnace-a")
	if err := f.svc.ClearTestValue(ctx, 1, "F9:X"); !errors.Is(err, property.ErrUnknownProperty) {
		t.Fatalf("expected ErrUnknownProperty, got %v", err)
	}
	err := f.svc.ConfigureScan(ctx, 1, "F1:SOAK", ScanParams{Start: 0, End: 10, Steps: 0})
	if !errors.Is(err, scan.ErrInvalidDimension) {
		t.Fatalf("expected ErrInvalidDimension, got %v", err)
	}
	if _, err := f.svc.Run(ctx, 1, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestTuning_RunAndCompare(t *testing.T) {
	f := newTuningFixture(t, nil)
	ctx := context.Background()
	_ = f.svc.SelectSequence(ctx, 1, "furnace-a")

	if _, err := f.svc.Compare("", ""); !errors.Is(err, history.ErrNotEnoughEnabled) {
		t.Fatalf("expected ErrNotEnoughEnabled, got %v", err)
	}

	first, err := f.svc.Run(ctx, 1, "baseline")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.Label != "baseline" || len(first.Snapshots) != 2 || first.Snapshots[0].Value != 85 {
		t.Fatalf("unexpected record: %+v", first)
	}

	_ = f.svc.SetTestValue(ctx, 1, "F1:TARGET", 55)
	second, err := f.svc.Run(ctx, 1, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	cmp, err := f.svc.Compare("", "")
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if cmp.A != second.ID || cmp.B != first.ID {
		t.Fatalf("expected newer minus older, got %s - %s", cmp.ALabel, cmp.BLabel)
	}
	// t=10: 55 vs 55, t=20: 55 vs 85
	if cmp.Diff[1].Value != 0 || cmp.Diff[2].Value != -30 {
		t.Fatalf("unexpected diff: %+v", cmp.Diff[:3])
	}

	explicit, err := f.svc.Compare(first.ID, second.ID)
	if err != nil {
		t.Fatalf("Compare by id: %v", err)
	}
	if explicit.Diff[2].Value != 30 {
		t.Fatalf("explicit diff = %+v", explicit.Diff[2])
	}
	if _, err := f.svc.Compare(first.ID, ""); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a single id, got %v", err)
	}

	if err := f.svc.RemoveRecord(first.ID); err != nil {
		t.Fatalf("RemoveRecord: %v", err)
	}
	if len(f.svc.History()) != 1 {
		t.Fatalf("expected one record left")
	}
	f.svc.ClearHistory()
	if len(f.svc.History()) != 0 {
		t.Fatalf("history not cleared")
	}
}

func TestTuning_RunFailureIsLogged(t *testing.T) {
	f := newTuningFixture(t, nil)
	ctx := context.Background()
	_ = f.svc.SelectSequence(ctx, 1, "furnace-a")
	_ = f.svc.SetTestValue(ctx, 1, "F1:TARGET", 5000)

	_, err := f.svc.Run(ctx, 1, "")
	if !errors.Is(err, ErrOverheat) {
		t.Fatalf("expected ErrOverheat, got %v", err)
	}
	types := f.eventTypes()
	if types[len(types)-1] != models.EventRunFailed {
		t.Fatalf("expected RUN_FAILED last, got %v", types)
	}
	if len(f.svc.History()) != 0 {
		t.Fatalf("failed run must not be recorded")
	}
}

func TestTuning_Scan(t *testing.T) {
	f := newTuningFixture(t, nil)
	ctx := context.Background()
	_ = f.svc.SelectSequence(ctx, 1, "furnace-a")
	_ = f.svc.SetTestValue(ctx, 1, "F1:TARGET", 70)
	_ = f.svc.ConfigureScan(ctx, 1, "F1:TARGET", ScanParams{Start: 60, End: 90, Steps: 3, Enabled: true})
	_ = f.svc.ConfigureScan(ctx, 1, "F1:SOAK", ScanParams{Start: 0, End: 30, Steps: 2, Enabled: true})

	report, err := f.svc.Scan(ctx, 1)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Spots != 6 || len(report.Records) != 6 || report.Cancelled || len(report.Failures) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Records[5].Label != "Scan 6:[3.2]" {
		t.Fatalf("last label = %q", report.Records[5].Label)
	}

	rec, _ := f.registry.Get("F1:TARGET")
	if rec.TestValue() != 70 {
		t.Fatalf("test value not restored: %v", rec.TestValue())
	}
	types := f.eventTypes()
	if types[len(types)-2] != models.EventScanStarted || types[len(types)-1] != models.EventScanCompleted {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestTuning_ScanWithFailures(t *testing.T) {
	f := newTuningFixture(t, nil)
	ctx := context.Background()
	_ = f.svc.SelectSequence(ctx, 1, "furnace-a")
	_ = f.svc.ConfigureScan(ctx, 1, "F1:TARGET", ScanParams{Start: 900, End: 1100, Steps: 3, Enabled: true})

	report, err := f.svc.Scan(ctx, 1)
	if !errors.Is(err, ErrOverheat) {
		t.Fatalf("expected ErrOverheat, got %v", err)
	}
	if len(report.Records) != 2 || len(report.Failures) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !strings.HasPrefix(report.Failures[0], "Scan 3:[3]") {
		t.Fatalf("failure = %q", report.Failures[0])
	}
}

func TestTuning_ScanRejectsBadConfiguration(t *testing.T) {
	f := newTuningFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.Scan(ctx, 1); !errors.Is(err, property.ErrNoSequence) {
		t.Fatalf("expected ErrNoSequence, got %v", err)
	}
	_ = f.svc.SelectSequence(ctx, 1, "furnace-a")

	if _, err := f.svc.Scan(ctx, 1); !errors.Is(err, scan.ErrNoDimensions) {
		t.Fatalf("expected ErrNoDimensions, got %v", err)
	}
	_ = f.svc.ConfigureScan(ctx, 1, "F1:TARGET", ScanParams{Start: 0, End: 1, Steps: 20, Enabled: true})
	_ = f.svc.ConfigureScan(ctx, 1, "F1:SOAK", ScanParams{Start: 0, End: 1, Steps: 5, Enabled: true})
	before := len(f.events.appended)
	if _, err := f.svc.Scan(ctx, 1); !errors.Is(err, scan.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if len(f.events.appended) != before || len(f.svc.History()) != 0 {
		t.Fatalf("rejected scan must not log or run")
	}

	// steps far beyond anything allocatable are refused, not expanded
	if err := f.svc.ConfigureScan(ctx, 1, "F1:TARGET", ScanParams{Start: 0, End: 1, Steps: 1 << 50, Enabled: true}); err != nil {
		t.Fatalf("ConfigureScan: %v", err)
	}
	if _, err := f.svc.Scan(ctx, 1); !errors.Is(err, scan.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded for 1<<50 steps, got %v", err)
	}
	if len(f.svc.History()) != 0 {
		t.Fatalf("rejected scan must not run")
	}
}

func TestTuning_CancelScanAndEditsDuringScan(t *testing.T) {
	started := make(chan struct{}, 1)
	blocking := history.OracleFunc(func(ctx context.Context, _ []models.PropertySnapshot) (models.PositionSeries, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	f := newTuningFixture(t, blocking)
	ctx := context.Background()
	_ = f.svc.SelectSequence(ctx, 1, "furnace-a")
	_ = f.svc.ConfigureScan(ctx, 1, "F1:TARGET", ScanParams{Start: 60, End: 90, Steps: 4, Enabled: true})

	type result struct {
		report ScanReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := f.svc.Scan(ctx, 1)
		done <- result{r, err}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("scan did not start")
	}

	if err := f.svc.SetTestValue(ctx, 1, "F1:TARGET", 1); !errors.Is(err, history.ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}
	if _, err := f.svc.Run(ctx, 1, ""); !errors.Is(err, history.ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress from Run, got %v", err)
	}
	if !f.svc.CancelScan() {
		t.Fatalf("CancelScan should report a running scan")
	}

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("scan did not stop")
	}
	if !errors.Is(res.err, context.Canceled) || !res.report.Cancelled {
		t.Fatalf("expected cancelled report, got %+v, %v", res.report, res.err)
	}
	if len(res.report.Records) != 0 {
		t.Fatalf("no spot should complete, got %d", len(res.report.Records))
	}
	types := f.eventTypes()
	if types[len(types)-1] != models.EventScanAborted {
		t.Fatalf("expected SCAN_ABORTED, got %v", types)
	}
	if f.svc.CancelScan() {
		t.Fatalf("no scan should be running")
	}
}

func TestTuning_ScanWaitsForEditInFlight(t *testing.T) {
	f := newTuningFixture(t, nil)
	ctx := context.Background()
	_ = f.svc.SelectSequence(ctx, 1, "furnace-a")
	_ = f.svc.ConfigureScan(ctx, 1, "F1:TARGET", ScanParams{Start: 60, End: 90, Steps: 2, Enabled: true})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.sessions.onSave = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	edited := make(chan error, 1)
	go func() { edited <- f.svc.SetTestValue(ctx, 1, "F1:TARGET", 75) }()
	<-entered

	scanned := make(chan error, 1)
	go func() {
		_, err := f.svc.Scan(ctx, 1)
		scanned <- err
	}()
	select {
	case err := <-scanned:
		t.Fatalf("scan finished while an edit was being saved: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-edited; err != nil {
		t.Fatalf("SetTestValue: %v", err)
	}
	if err := <-scanned; err != nil {
		t.Fatalf("Scan: %v", err)
	}

	rec, _ := f.registry.Get("F1:TARGET")
	if rec.TestValue() != 75 {
		t.Fatalf("scan must restore the edit, got %v", rec.TestValue())
	}
	if got := f.sessions.last(t).Overrides["F1:TARGET"]; got != 75 {
		t.Fatalf("saved override %v does not match memory", got)
	}
	if n := len(f.svc.History()); n != 2 {
		t.Fatalf("want 2 scan runs, got %d", n)
	}
}

func TestTuning_SessionSaveFailureDoesNotFailEdit(t *testing.T) {
	f := newTuningFixture(t, nil)
	f.sessions.saveErr = errors.New("readonly")
	ctx := context.Background()
	_ = f.svc.SelectSequence(ctx, 1, "furnace-a")
	if err := f.svc.SetTestValue(ctx, 1, "F1:SOAK", 10); err != nil {
		t.Fatalf("save failure leaked: %v", err)
	}
}

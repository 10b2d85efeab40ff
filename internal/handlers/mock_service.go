package handlers

import (
	"context"
	"net/http"
	"time"

	"device_tuner/internal/models"
	"device_tuner/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

// mockTuning records the last call of each kind and answers with the
// configured values.
type mockTuning struct {
	err error

	sequences  []string
	runRecord  models.HistoryRecord
	scanReport service.ScanReport
	history    []models.HistoryRecord
	comparison models.Comparison
	cancelled  bool

	lastOperator int
	lastSequence string
	lastKey      models.PropertyKey
	lastValue    float64
	lastScan     service.ScanParams
	lastLabel    string
	lastID       string
	lastEnabled  *bool
	lastCompare  [2]string
	calls        map[string]int
}

func (m *mockTuning) called(name string) {
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

func (m *mockTuning) Restore(ctx context.Context, defaultSequence string) error {
	m.called("Restore")
	return m.err
}
func (m *mockTuning) Sequences() []string { return m.sequences }
func (m *mockTuning) SelectSequence(ctx context.Context, operatorID int, name string) error {
	m.called("SelectSequence")
	m.lastOperator, m.lastSequence = operatorID, name
	return m.err
}
func (m *mockTuning) SetTestValue(ctx context.Context, operatorID int, key models.PropertyKey, v float64) error {
	m.called("SetTestValue")
	m.lastOperator, m.lastKey, m.lastValue = operatorID, key, v
	return m.err
}
func (m *mockTuning) ClearTestValue(ctx context.Context, operatorID int, key models.PropertyKey) error {
	m.called("ClearTestValue")
	m.lastOperator, m.lastKey = operatorID, key
	return m.err
}
func (m *mockTuning) ConfigureScan(ctx context.Context, operatorID int, key models.PropertyKey, p service.ScanParams) error {
	m.called("ConfigureScan")
	m.lastOperator, m.lastKey, m.lastScan = operatorID, key, p
	return m.err
}
func (m *mockTuning) Run(ctx context.Context, operatorID int, label string) (models.HistoryRecord, error) {
	m.called("Run")
	m.lastOperator, m.lastLabel = operatorID, label
	return m.runRecord, m.err
}
func (m *mockTuning) Scan(ctx context.Context, operatorID int) (service.ScanReport, error) {
	m.called("Scan")
	m.lastOperator = operatorID
	return m.scanReport, m.err
}
func (m *mockTuning) CancelScan() bool {
	m.called("CancelScan")
	return m.cancelled
}
func (m *mockTuning) History() []models.HistoryRecord { return m.history }
func (m *mockTuning) SetLabel(id, label string) error {
	m.called("SetLabel")
	m.lastID, m.lastLabel = id, label
	return m.err
}
func (m *mockTuning) SetEnabled(id string, enabled bool) error {
	m.called("SetEnabled")
	m.lastID, m.lastEnabled = id, &enabled
	return m.err
}
func (m *mockTuning) RemoveRecord(id string) error {
	m.called("RemoveRecord")
	m.lastID = id
	return m.err
}
func (m *mockTuning) ClearHistory() { m.called("ClearHistory") }
func (m *mockTuning) Compare(a, b string) (models.Comparison, error) {
	m.called("Compare")
	m.lastCompare = [2]string{a, b}
	return m.comparison, m.err
}

type mockMonitoring struct {
	sequence string
	views    []models.PropertyView
}

func (m *mockMonitoring) Sequence() string                  { return m.sequence }
func (m *mockMonitoring) Properties() []models.PropertyView { return m.views }

type mockEventLog struct {
	resp     []models.TuningEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.TuningEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

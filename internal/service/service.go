package service

import (
	"context"
	"time"

	"device_tuner/internal/config"
	"device_tuner/internal/history"
	"device_tuner/internal/live"
	"device_tuner/internal/logger"
	"device_tuner/internal/metrics"
	"device_tuner/internal/models"
	"device_tuner/internal/property"
	"device_tuner/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Tuning exposes operator edits, runs, scans and the run history.
// operatorID only annotates the event log.
type Tuning interface {
	Restore(ctx context.Context, defaultSequence string) error
	Sequences() []string
	SelectSequence(ctx context.Context, operatorID int, name string) error
	SetTestValue(ctx context.Context, operatorID int, key models.PropertyKey, v float64) error
	ClearTestValue(ctx context.Context, operatorID int, key models.PropertyKey) error
	ConfigureScan(ctx context.Context, operatorID int, key models.PropertyKey, p ScanParams) error
	Run(ctx context.Context, operatorID int, label string) (models.HistoryRecord, error)
	Scan(ctx context.Context, operatorID int) (ScanReport, error)
	CancelScan() bool
	History() []models.HistoryRecord
	SetLabel(id, label string) error
	SetEnabled(id string, enabled bool) error
	RemoveRecord(id string) error
	ClearHistory()
	Compare(a, b string) (models.Comparison, error)
}

// Monitoring exposes read-only property state (design, live, test, effective).
type Monitoring interface {
	Sequence() string
	Properties() []models.PropertyView
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.TuningEvent, error)
}

// Plant runs the in-process device that feeds live values.
// Stop via context cancellation in main() for graceful shutdown.
type Plant interface {
	Run(ctx context.Context, tick time.Duration)
}

// Service aggregates all sub-services.
type Service struct {
	Tuning
	Monitoring
	EventLog
	Plant
	Authorization
}

// Deps are the collaborators built in main next to the repositories.
// Hub is nil when live values come from an external feed; Source is what the
// registry subscribes to.
type Deps struct {
	Catalog *property.Catalog
	Source  live.Source
	Hub     *live.Hub
	Config  *config.Config
	Metrics *metrics.Metrics
	Log     *logger.Logger
}

func NewService(repos *repository.Repository, d Deps) *Service {
	log := logger.OrNop(d.Log)
	registry := property.NewRegistry(d.Catalog, d.Source, log.Named("registry"))
	model := NewThermalModel(d.Config.Model)
	hist := history.New(timedOracle(model, d.Metrics), registry, history.WithLogger(log.Named("history")))

	return &Service{
		Tuning:        NewTuningService(d.Catalog, registry, hist, repos.SessionRepo, repos.EventRepo, d.Metrics, log.Named("tuning")),
		Monitoring:    NewMonitoringService(registry),
		EventLog:      NewEventLogService(repos.EventRepo),
		Plant:         NewPlantService(d.Hub, registry, d.Config.Live.RampPerSec, log.Named("plant")),
		Authorization: NewAuthService(repos.Auth, d.Config.Auth, log.Named("auth")),
	}
}

func timedOracle(o history.Oracle, m *metrics.Metrics) history.Oracle {
	if m == nil {
		return o
	}
	return history.OracleFunc(func(ctx context.Context, in []models.PropertySnapshot) (models.PositionSeries, error) {
		start := time.Now()
		defer func() { m.ObserveOracle(time.Since(start).Seconds()) }()
		return o.Evaluate(ctx, in)
	})
}

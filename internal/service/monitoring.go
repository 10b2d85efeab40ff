package service

import (
	"device_tuner/internal/models"
	"device_tuner/internal/property"
)

// RecordLister is the read side of the property registry.
type RecordLister interface {
	Sequence() string
	Records() []*property.Record
}

type MonitoringService struct {
	registry RecordLister
}

func NewMonitoringService(registry RecordLister) *MonitoringService {
	return &MonitoringService{registry: registry}
}

func (s *MonitoringService) Sequence() string { return s.registry.Sequence() }

// Properties returns one view per record of the selected sequence, in
// configured order. It is empty until a sequence is selected.
func (s *MonitoringService) Properties() []models.PropertyView {
	recs := s.registry.Records()
	out := make([]models.PropertyView, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.View())
	}
	return out
}

package service

import (
	"context"
	"time"

	"device_tuner/internal/live"
	"device_tuner/internal/logger"
	"device_tuner/internal/models"
)

// PlantService is the in-process device behind the live feed. Every tick it
// moves each selected property's process value toward the property's
// effective value and publishes it on the hub. Without a hub it does nothing.
type PlantService struct {
	hub        *live.Hub
	registry   RecordLister
	rampPerSec float64
	log        *logger.Logger

	values map[models.PropertyKey]float64
	last   time.Time
}

func NewPlantService(hub *live.Hub, registry RecordLister, rampPerSec float64, log *logger.Logger) *PlantService {
	return &PlantService{
		hub:        hub,
		registry:   registry,
		rampPerSec: rampPerSec,
		log:        logger.OrNop(log),
		values:     make(map[models.PropertyKey]float64),
	}
}

// Run ticks at the given interval until ctx is canceled, then disconnects
// every channel it connected.
func (s *PlantService) Run(ctx context.Context, tick time.Duration) {
	if s.hub == nil {
		return
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	defer s.shutdown()

	s.step(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.step(now)
		}
	}
}

// step advances the plant to now. Keys seen for the first time start at their
// design value; keys no longer selected are disconnected.
func (s *PlantService) step(now time.Time) {
	elapsed := 0.0
	if !s.last.IsZero() {
		elapsed = now.Sub(s.last).Seconds()
	}
	s.last = now

	seen := make(map[models.PropertyKey]bool)
	for _, rec := range s.registry.Records() {
		key := rec.Key()
		seen[key] = true

		cur, ok := s.values[key]
		if !ok {
			cur = rec.DesignValue()
			s.hub.Connect(key)
			s.log.Debugw("plant_channel_connected", "key", key)
		}
		cur = approach(cur, rec.EffectiveValue(), s.rampPerSec*elapsed)
		s.values[key] = cur
		s.hub.Publish(key, cur)
	}

	for key := range s.values {
		if !seen[key] {
			delete(s.values, key)
			s.hub.Disconnect(key)
			s.log.Debugw("plant_channel_disconnected", "key", key)
		}
	}
}

func (s *PlantService) shutdown() {
	for key := range s.values {
		s.hub.Disconnect(key)
	}
	clear(s.values)
	s.log.Infow("plant_stopped")
}

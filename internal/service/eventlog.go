package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"device_tuner/internal/logger"
	"device_tuner/internal/models"
	"device_tuner/internal/repository"

	"github.com/google/uuid"
)

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var errInvalidTimeRange = errors.New("invalid time range: From must be <= To")

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}
	return from, to, normalizeEventType(f.Type), nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.TuningEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, typ)
}

// eventWriter appends operator actions to the log. A failed append is logged
// and never fails the action itself.
type eventWriter struct {
	repo repository.EventRepo
	log  *logger.Logger
	now  func() time.Time
}

func (w eventWriter) write(ctx context.Context, typ, description string, meta map[string]any) {
	if w.repo == nil {
		return
	}
	err := w.repo.Append(ctx, models.TuningEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  w.now().UTC(),
		Type:        typ,
		Description: description,
		Metadata:    meta,
	})
	if err != nil {
		w.log.Warnw("event_append_failed", "type", typ, "err", err)
	}
}

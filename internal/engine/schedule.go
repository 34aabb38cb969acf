package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/Priya8975/envelope-relay/internal/envelope"
	"github.com/Priya8975/envelope-relay/internal/metrics"
)

// Enqueuer accepts classified events for dispatch.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev *domain.Event) error
}

// LevelClassificationError reports an item whose severity could not be
// determined. Only that item is skipped.
type LevelClassificationError struct {
	ItemID string
	Level  any
	Reason string
}

func (e *LevelClassificationError) Error() string {
	if e.Level != nil {
		return fmt.Sprintf("item %s: unknown level %v: %s", e.ItemID, e.Level, e.Reason)
	}
	return fmt.Sprintf("item %s: %s", e.ItemID, e.Reason)
}

// ScheduleResult describes one Schedule call.
type ScheduleResult struct {
	Enqueued int                         `json:"enqueued"`
	Failures []*LevelClassificationError `json:"-"`
}

// FailureMessages renders the per-item failures for API responses.
func (r ScheduleResult) FailureMessages() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Error())
	}
	return out
}

// Scheduler turns stored envelope items into events on the dispatch queue.
type Scheduler struct {
	queue  Enqueuer
	logger *slog.Logger
}

func NewScheduler(queue Enqueuer, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		queue:  queue,
		logger: logger,
	}
}

// Schedule classifies every item of env and enqueues one event per item, in
// item order. Items that cannot be classified are reported in the result and
// in the joined error without affecting their siblings. An enqueue failure
// stops the batch.
func (s *Scheduler) Schedule(ctx context.Context, env *domain.Envelope, project domain.Project, users []domain.User) (ScheduleResult, error) {
	var result ScheduleResult

	for _, item := range env.Items {
		payload, level, classErr := classify(item)
		if classErr != nil {
			result.Failures = append(result.Failures, classErr)
			metrics.ClassificationFailuresTotal.Inc()
			s.logger.Warn("failed to classify item",
				"envelope_id", env.ID,
				"item_id", item.ItemID,
				"item_type", item.Type,
				"error", classErr,
			)
			continue
		}

		ev := &domain.Event{
			Level:      level,
			EventID:    item.ItemID,
			EnvelopeID: env.ID,
			Project:    project,
			Payload:    payload,
			Users:      users,
			SentAt:     env.SentAt,
		}
		if err := s.queue.Enqueue(ctx, ev); err != nil {
			return result, fmt.Errorf("enqueueing item %s: %w", item.ItemID, err)
		}
		result.Enqueued++
		metrics.EventsEnqueuedTotal.WithLabelValues(level.String()).Inc()
	}

	s.logger.Debug("envelope scheduled",
		"envelope_id", env.ID,
		"project_id", project.ID,
		"enqueued", result.Enqueued,
		"failures", len(result.Failures),
	)

	if len(result.Failures) == 0 {
		return result, nil
	}
	errs := make([]error, 0, len(result.Failures))
	for _, f := range result.Failures {
		errs = append(errs, f)
	}
	return result, errors.Join(errs...)
}

func classify(item domain.EnvelopeItem) (map[string]any, domain.Level, *LevelClassificationError) {
	parsed, err := envelope.ParseJSON(item.Payload)
	if err != nil {
		return nil, 0, &LevelClassificationError{ItemID: item.ItemID, Reason: "payload is not JSON: " + err.Error()}
	}
	payload, ok := parsed.(map[string]any)
	if !ok {
		return nil, 0, &LevelClassificationError{ItemID: item.ItemID, Reason: fmt.Sprintf("payload is %T, not an object", parsed)}
	}

	raw, ok := payload["level"]
	if !ok {
		return nil, 0, &LevelClassificationError{ItemID: item.ItemID, Reason: "payload has no level"}
	}
	name, ok := raw.(string)
	if !ok {
		return nil, 0, &LevelClassificationError{ItemID: item.ItemID, Level: raw, Reason: "level is not a string"}
	}
	level, err := domain.ParseLevel(name)
	if err != nil {
		return nil, 0, &LevelClassificationError{ItemID: item.ItemID, Level: name, Reason: err.Error()}
	}
	return payload, level, nil
}

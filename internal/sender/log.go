package sender

import (
	"context"
	"log/slog"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/Priya8975/envelope-relay/internal/logging"
)

// LogSender writes one structured log line per event.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Name() string {
	return "log"
}

func (l *LogSender) Send(ctx context.Context, ev *domain.Event) error {
	l.logger.LogAttrs(ctx, slog.LevelInfo, "event dispatched",
		slog.String("event_level", ev.Level.String()),
		logging.ItemID(ev.EventID),
		logging.EnvelopeID(ev.EnvelopeID),
		logging.ProjectID(ev.Project.ID),
		slog.String("project", ev.Project.Name),
		slog.String("message", ev.Message()),
		slog.Int("recipients", len(ev.Users)),
	)
	return nil
}

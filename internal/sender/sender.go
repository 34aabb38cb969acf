// Package sender holds the notification channels dispatched events are
// delivered through.
package sender

import (
	"fmt"

	"github.com/Priya8975/envelope-relay/internal/domain"
)

// TransportError is returned when the remote end rejects a delivery.
type TransportError struct {
	Sender     string
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Sender, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Sender, e.StatusCode, e.Body)
}

// formatText renders the short human readable notification used by chat
// transports.
func formatText(ev *domain.Event) string {
	msg := ev.Message()
	if msg == "" {
		msg = "(no message)"
	}
	project := ev.Project.Name
	if project == "" {
		project = fmt.Sprintf("project %d", ev.Project.ID)
	}
	return fmt.Sprintf("[%s] %s: %s\nenvelope %s, item %s",
		ev.Level.String(), project, msg, ev.EnvelopeID, ev.EventID)
}

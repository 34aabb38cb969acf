package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Level is the severity of a classified event.
type Level int

const (
	LevelNotSet Level = iota
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelFatal
	LevelCritical
)

var levelNames = map[Level]string{
	LevelNotSet:   "notset",
	LevelDebug:    "debug",
	LevelInfo:     "info",
	LevelWarning:  "warning",
	LevelError:    "error",
	LevelFatal:    "fatal",
	LevelCritical: "critical",
}

// Levels returns every level from most to least severe.
func Levels() []Level {
	return []Level{LevelCritical, LevelFatal, LevelError, LevelWarning, LevelInfo, LevelDebug, LevelNotSet}
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// ParseLevel maps a level name to a Level. Matching is case-insensitive and
// "warn" is accepted for warning.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warn" {
		return LevelWarning, nil
	}
	for level, n := range levelNames {
		if n == name {
			return level, nil
		}
	}
	return LevelNotSet, fmt.Errorf("unknown level %q", s)
}

// ParseLevels parses a list of level names, rejecting the first unknown one.
func ParseLevels(names []string) ([]Level, error) {
	levels := make([]Level, 0, len(names))
	for _, name := range names {
		level, err := ParseLevel(name)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	level, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// Event is one classified envelope item on its way to the senders. It lives
// only in the dispatch queue and is consumed once.
type Event struct {
	Level      Level          `json:"level"`
	EventID    string         `json:"event_id"`
	EnvelopeID string         `json:"envelope_id"`
	Project    Project        `json:"project"`
	Payload    map[string]any `json:"payload"`
	Users      []User         `json:"users"`
	SentAt     *time.Time     `json:"sent_at,omitempty"`
}

// Message picks a human readable summary out of the event payload.
func (e *Event) Message() string {
	if msg, ok := e.Payload["message"].(string); ok && msg != "" {
		return msg
	}
	if entry, ok := e.Payload["logentry"].(map[string]any); ok {
		if msg, ok := entry["formatted"].(string); ok && msg != "" {
			return msg
		}
		if msg, ok := entry["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if exc, ok := e.Payload["exception"].(map[string]any); ok {
		if values, ok := exc["values"].([]any); ok && len(values) > 0 {
			if last, ok := values[len(values)-1].(map[string]any); ok {
				typ, _ := last["type"].(string)
				val, _ := last["value"].(string)
				switch {
				case typ != "" && val != "":
					return typ + ": " + val
				case typ != "":
					return typ
				case val != "":
					return val
				}
			}
		}
	}
	return ""
}

// Encode returns the full JSON form of the event, recipients included. It
// is meant for the internal queue only.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Notification is what external endpoints receive for an event. It leaves
// out the recipients and the project key.
type Notification struct {
	Level       Level          `json:"level"`
	EventID     string         `json:"event_id"`
	EnvelopeID  string         `json:"envelope_id"`
	ProjectID   int64          `json:"project_id"`
	ProjectName string         `json:"project_name"`
	Message     string         `json:"message,omitempty"`
	Payload     map[string]any `json:"payload"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
}

func (e *Event) Notification() Notification {
	return Notification{
		Level:       e.Level,
		EventID:     e.EventID,
		EnvelopeID:  e.EnvelopeID,
		ProjectID:   e.Project.ID,
		ProjectName: e.Project.Name,
		Message:     e.Message(),
		Payload:     e.Payload,
		SentAt:      e.SentAt,
	}
}

// EncodeNotification returns the JSON form sent to webhooks and brokers.
func (e *Event) EncodeNotification() ([]byte, error) {
	return json.Marshal(e.Notification())
}

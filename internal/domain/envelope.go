package domain

import "time"

type Envelope struct {
	ID        string         `json:"id"`
	ProjectID int64          `json:"project_id"`
	Payload   []byte         `json:"-"`
	EventID   *string        `json:"event_id,omitempty"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
	DSN       *string        `json:"dsn,omitempty"`
	Size      int            `json:"size"`
	CreatedAt time.Time      `json:"created_at"`
	Items     []EnvelopeItem `json:"items,omitempty"`
}

type EnvelopeItem struct {
	ID          string    `json:"id"`
	EnvelopeID  string    `json:"envelope_id"`
	ItemID      string    `json:"item_id"`
	Type        string    `json:"type"`
	ContentType string    `json:"content_type"`
	Payload     []byte    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}

type EnvelopeFilter struct {
	ProjectID *int64
	Limit     int
	Offset    int
}

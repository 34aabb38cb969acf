package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/Priya8975/envelope-relay/internal/envelope"
	"github.com/Priya8975/envelope-relay/internal/metrics"
)

// EnvelopeStore persists an envelope together with its items in one
// transaction and returns the stored record.
type EnvelopeStore interface {
	CreateEnvelope(ctx context.Context, env *domain.Envelope) (*domain.Envelope, error)
}

// IngestService decodes request bodies and persists them as envelopes.
type IngestService struct {
	decoder *envelope.Decoder
	store   EnvelopeStore
	logger  *slog.Logger
}

func NewIngestService(decoder *envelope.Decoder, store EnvelopeStore, logger *slog.Logger) *IngestService {
	if decoder == nil {
		decoder = envelope.NewDecoder()
	}
	return &IngestService{
		decoder: decoder,
		store:   store,
		logger:  logger,
	}
}

// Store decodes body and persists it for projectID. Decode failures are
// returned unchanged so callers can map them with errors.Is / errors.As.
// Identical bodies are stored as independent envelopes.
func (s *IngestService) Store(ctx context.Context, body []byte, contentEncoding string, projectID int64) (*domain.Envelope, error) {
	start := time.Now()
	defer func() {
		metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}()

	encodingLabel := strings.ToLower(strings.TrimSpace(contentEncoding))
	if encodingLabel == "" {
		encodingLabel = "none"
	}
	metrics.EnvelopeBytesTotal.WithLabelValues(encodingLabel).Add(float64(len(body)))

	decoded, err := s.decoder.Decode(body, contentEncoding)
	if err != nil {
		metrics.EnvelopesTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn("failed to decode envelope",
			"project_id", projectID,
			"content_encoding", contentEncoding,
			"bytes", len(body),
			"error", err,
		)
		return nil, err
	}

	record := &domain.Envelope{
		ProjectID: projectID,
		Payload:   body,
		Size:      len(body),
		EventID:   optional(decoded.EventID()),
		DSN:       optional(decoded.DSN()),
	}
	if raw := decoded.SentAt(); raw != "" {
		sentAt, err := ParseSentAt(raw)
		if err != nil {
			s.logger.Warn("ignoring unparsable sent_at",
				"project_id", projectID,
				"sent_at", raw,
				"error", err,
			)
		} else {
			record.SentAt = &sentAt
		}
	}

	record.Items = make([]domain.EnvelopeItem, 0, len(decoded.Items))
	for i, item := range decoded.Items {
		record.Items = append(record.Items, domain.EnvelopeItem{
			ItemID:      strconv.Itoa(i),
			Type:        item.Type(),
			ContentType: item.ContentType(),
			Payload:     item.Payload,
		})
		metrics.ItemsDecodedTotal.WithLabelValues(item.Type()).Inc()
	}

	stored, err := s.store.CreateEnvelope(ctx, record)
	if err != nil {
		metrics.EnvelopesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("storing envelope: %w", err)
	}

	metrics.EnvelopesTotal.WithLabelValues("accepted").Inc()
	s.logger.Info("envelope stored",
		"envelope_id", stored.ID,
		"project_id", projectID,
		"description", decoded.Description(),
		"bytes", len(body),
	)
	return stored, nil
}

var sentAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseSentAt parses an ISO-8601 timestamp. Values without a zone are UTC.
func ParseSentAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range sentAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/Priya8975/envelope-relay/internal/engine"
	"github.com/Priya8975/envelope-relay/internal/envelope"
	"github.com/Priya8975/envelope-relay/internal/logging"
	"github.com/Priya8975/envelope-relay/internal/metrics"
	ws "github.com/Priya8975/envelope-relay/internal/websocket"
	"github.com/go-chi/chi/v5"
)

// IngestLimits bounds what a single client may send.
type IngestLimits struct {
	MaxBodyBytes int64
	// RateLimit is the number of envelopes a project may send per window.
	// Zero disables limiting.
	RateLimit  int
	RetryAfter time.Duration
}

type EnvelopeHandler struct {
	projects  ProjectStore
	users     UserStore
	envelopes EnvelopeReader
	ingest    *engine.IngestService
	scheduler *engine.Scheduler
	limiter   RateLimiter
	feed      Feed
	limits    IngestLimits
	logger    *slog.Logger
}

type ingestResponse struct {
	ID                     string   `json:"id"`
	EnvelopeID             string   `json:"envelope_id"`
	Items                  int      `json:"items"`
	EventsQueued           int      `json:"events_queued"`
	ClassificationFailures []string `json:"classification_failures"`
}

// Ingest accepts an envelope for the project in the URL, stores it and
// schedules its events for dispatch.
func (h *EnvelopeHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx, h.logger)

	projectID, ok := parseID(chi.URLParam(r, "project_id"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	project, err := h.projects.GetProject(ctx, projectID)
	if err != nil {
		logger.Error("failed to look up project", logging.ProjectID(projectID), logging.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to look up project")
		return
	}
	if project == nil {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}

	if h.limiter != nil && h.limits.RateLimit > 0 {
		key := "project:" + strconv.FormatInt(projectID, 10)
		decision := h.limiter.Reserve(ctx, key, h.limits.RateLimit)
		if decision.Remaining >= 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.limits.RateLimit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		}
		if !decision.Allowed {
			metrics.RateLimitHits.WithLabelValues(strconv.FormatInt(projectID, 10)).Inc()
			if secs := retryAfterSeconds(decision.RetryAfter, h.limits.RetryAfter); secs > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	body := r.Body
	if h.limits.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.limits.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.EnvelopesTotal.WithLabelValues("rejected").Inc()
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	stored, err := h.ingest.Store(ctx, data, r.Header.Get("Content-Encoding"), projectID)
	if err != nil {
		status, message := ingestErrorStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error("failed to store envelope", logging.ProjectID(projectID), logging.Error(err))
		}
		respondError(w, status, message)
		return
	}

	if h.feed != nil {
		h.feed.Broadcast(ws.FeedMessage{
			Type:       ws.TypeEnvelopeReceived,
			EnvelopeID: stored.ID,
			ProjectID:  projectID,
			Items:      len(stored.Items),
			Timestamp:  time.Now().UTC(),
		})
	}

	resp := ingestResponse{
		ID:                     stored.ID,
		EnvelopeID:             stored.ID,
		Items:                  len(stored.Items),
		ClassificationFailures: []string{},
	}
	if stored.EventID != nil {
		resp.ID = *stored.EventID
	}

	users, err := h.users.ListUsers(ctx)
	if err != nil {
		// The envelope is stored; notifications are best effort.
		logger.Error("failed to load recipients", logging.EnvelopeID(stored.ID), logging.Error(err))
		respondJSON(w, http.StatusOK, resp)
		return
	}

	result, err := h.scheduler.Schedule(ctx, stored, *project, users)
	resp.EventsQueued = result.Enqueued
	resp.ClassificationFailures = result.FailureMessages()
	if err != nil {
		var classErr *engine.LevelClassificationError
		if !errors.As(err, &classErr) {
			logger.Error("failed to schedule events", logging.EnvelopeID(stored.ID), logging.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// ingestErrorStatus maps an ingestion failure to a response.
func ingestErrorStatus(err error) (int, string) {
	var decodeErr *envelope.DecodeError
	switch {
	case errors.Is(err, envelope.ErrCompressionUnavailable):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, envelope.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "decompressed envelope too large"
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, fmt.Sprintf("invalid envelope: %v", decodeErr)
	default:
		return http.StatusInternalServerError, "failed to store envelope"
	}
}

func (h *EnvelopeHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := domain.EnvelopeFilter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if s := r.URL.Query().Get("project_id"); s != "" {
		id, ok := parseID(s)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid project_id")
			return
		}
		filter.ProjectID = &id
	}

	envelopes, err := h.envelopes.ListEnvelopes(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list envelopes")
		return
	}

	respondJSON(w, http.StatusOK, envelopes)
}

func (h *EnvelopeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	env, err := h.envelopes.GetEnvelope(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get envelope")
		return
	}
	if env == nil {
		respondError(w, http.StatusNotFound, "envelope not found")
		return
	}

	respondJSON(w, http.StatusOK, env)
}

// retryAfterSeconds rounds the limiter's wait up to whole seconds, falling
// back to the configured window when the limiter gave none.
func retryAfterSeconds(wait, fallback time.Duration) int {
	if wait <= 0 {
		wait = fallback
	}
	if wait <= 0 {
		return 0
	}
	return int((wait + time.Second - 1) / time.Second)
}

package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/Priya8975/envelope-relay/internal/engine"
	"github.com/Priya8975/envelope-relay/internal/store"
	"github.com/Priya8975/envelope-relay/internal/worker"
)

// Pipeline exposes the live state of the dispatch side.
type Pipeline interface {
	Len(ctx context.Context) (int64, error)
	Stats() worker.DispatchStats
	Routes() map[string][]string
}

// CircuitReader reports a sender's circuit breaker state.
type CircuitReader interface {
	GetState(ctx context.Context, name string) engine.CircuitBreakerState
}

// PoolReporter reports Redis connection pool usage.
type PoolReporter interface {
	PoolStats() store.RedisPoolStats
}

// ClientCounter reports connected live feed clients.
type ClientCounter interface {
	ClientCount() int
}

type StatsHandler struct {
	store    StatsStore
	pipeline Pipeline
	circuits CircuitReader
	clients  ClientCounter
	redis    PoolReporter
}

type statsResponse struct {
	store.Stats
	QueueDepth       int64                        `json:"queue_depth"`
	WebSocketClients int                          `json:"websocket_clients"`
	Dispatcher       worker.DispatchStats         `json:"dispatcher"`
	Routes           map[string][]string          `json:"routes"`
	Circuits         []engine.CircuitBreakerState `json:"circuits,omitempty"`
	Redis            *store.RedisPoolStats        `json:"redis,omitempty"`
}

// Stats returns aggregate counts and dispatcher state for the dashboard.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.store.GetStats(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	resp := statsResponse{Stats: *stats}

	if h.pipeline != nil {
		// A queue read failure reports zero rather than failing the request.
		if depth, err := h.pipeline.Len(ctx); err == nil {
			resp.QueueDepth = depth
		}
		resp.Dispatcher = h.pipeline.Stats()
		resp.Routes = h.pipeline.Routes()
	}
	if h.clients != nil {
		resp.WebSocketClients = h.clients.ClientCount()
	}
	if h.circuits != nil {
		for _, name := range senderNames(resp.Routes) {
			resp.Circuits = append(resp.Circuits, h.circuits.GetState(ctx, name))
		}
	}

	if h.redis != nil {
		pool := h.redis.PoolStats()
		resp.Redis = &pool
	}

	respondJSON(w, http.StatusOK, resp)
}

func senderNames(routes map[string][]string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, senders := range routes {
		for _, name := range senders {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

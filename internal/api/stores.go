package api

import (
	"context"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/Priya8975/envelope-relay/internal/engine"
	"github.com/Priya8975/envelope-relay/internal/store"
	ws "github.com/Priya8975/envelope-relay/internal/websocket"
)

// ProjectStore is the project repository the handlers need.
type ProjectStore interface {
	GetProject(ctx context.Context, id int64) (*domain.Project, error)
	CreateProject(ctx context.Context, req domain.CreateProjectRequest) (*domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
}

// UserStore is the user repository the handlers need.
type UserStore interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	CreateUser(ctx context.Context, name, passwordHash string, telegramChatID *string) (*domain.User, error)
	UpdateUser(ctx context.Context, id int64, upd store.UserUpdate) (*domain.User, error)
}

// EnvelopeReader reads stored envelopes.
type EnvelopeReader interface {
	GetEnvelope(ctx context.Context, id string) (*domain.Envelope, error)
	ListEnvelopes(ctx context.Context, filter domain.EnvelopeFilter) ([]domain.Envelope, error)
}

// StatsStore reports aggregate counts.
type StatsStore interface {
	GetStats(ctx context.Context) (*store.Stats, error)
}

// RateLimiter admits or rejects a request for key.
type RateLimiter interface {
	Reserve(ctx context.Context, key string, limit int) engine.Decision
}

// Feed receives live updates for dashboard clients.
type Feed interface {
	Broadcast(msg ws.FeedMessage)
}

package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/Priya8975/envelope-relay/internal/engine"
	"github.com/Priya8975/envelope-relay/internal/store"
	ws "github.com/Priya8975/envelope-relay/internal/websocket"
	"github.com/Priya8975/envelope-relay/internal/worker"
	"github.com/google/uuid"
)

type memoryStore struct {
	mu        sync.Mutex
	projects  map[int64]*domain.Project
	users     map[int64]*domain.User
	envelopes map[string]*domain.Envelope
	order     []string
	nextID    int64
	failUsers bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		projects:  make(map[int64]*domain.Project),
		users:     make(map[int64]*domain.User),
		envelopes: make(map[string]*domain.Envelope),
	}
}

func (m *memoryStore) GetProject(_ context.Context, id int64) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memoryStore) CreateProject(_ context.Context, req domain.CreateProjectRequest) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p := &domain.Project{ID: m.nextID, Name: req.Name, Platform: req.Platform, PublicKey: "abc123", CreatedAt: time.Now()}
	m.projects[p.ID] = p
	return p, nil
}

func (m *memoryStore) ListProjects(_ context.Context) ([]domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Project{}
	for _, p := range m.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUsers {
		return nil, errors.New("db down")
	}
	out := []domain.User{}
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) GetUser(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memoryStore) CreateUser(_ context.Context, name, hash string, chatID *string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u := &domain.User{ID: m.nextID, Name: name, PasswordHash: hash, TelegramChatID: chatID, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryStore) UpdateUser(_ context.Context, id int64, upd store.UserUpdate) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.TelegramChatID != nil {
		if *upd.TelegramChatID == "" {
			u.TelegramChatID = nil
		} else {
			chat := *upd.TelegramChatID
			u.TelegramChatID = &chat
		}
	}
	cp := *u
	return &cp, nil
}

func (m *memoryStore) CreateEnvelope(_ context.Context, env *domain.Envelope) (*domain.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *env
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now()
	stored.Items = make([]domain.EnvelopeItem, len(env.Items))
	for i, item := range env.Items {
		item.ID = uuid.NewString()
		item.EnvelopeID = stored.ID
		stored.Items[i] = item
	}
	m.envelopes[stored.ID] = &stored
	m.order = append(m.order, stored.ID)
	return &stored, nil
}

func (m *memoryStore) GetEnvelope(_ context.Context, id string) (*domain.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	env, ok := m.envelopes[id]
	if !ok {
		return nil, nil
	}
	cp := *env
	return &cp, nil
}

func (m *memoryStore) ListEnvelopes(_ context.Context, filter domain.EnvelopeFilter) ([]domain.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Envelope{}
	for i := len(m.order) - 1; i >= 0; i-- {
		env := m.envelopes[m.order[i]]
		if filter.ProjectID != nil && env.ProjectID != *filter.ProjectID {
			continue
		}
		summary := *env
		summary.Items = nil
		out = append(out, summary)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *memoryStore) GetStats(_ context.Context) (*store.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &store.Stats{
		Projects:  len(m.projects),
		Users:     len(m.users),
		Envelopes: len(m.envelopes),
	}
	for _, env := range m.envelopes {
		st.Items += len(env.Items)
	}
	return st, nil
}

type fakeLimiter struct {
	mu         sync.Mutex
	allowed    map[string]int
	retryAfter time.Duration
}

func (f *fakeLimiter) Reserve(_ context.Context, key string, limit int) engine.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allowed == nil {
		f.allowed = make(map[string]int)
	}
	if f.allowed[key] >= limit {
		return engine.Decision{RetryAfter: f.retryAfter}
	}
	f.allowed[key]++
	return engine.Decision{Allowed: true, Remaining: limit - f.allowed[key]}
}

type recordingFeed struct {
	mu       sync.Mutex
	messages []ws.FeedMessage
}

func (f *recordingFeed) Broadcast(msg ws.FeedMessage) {
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
}

type fakePool struct{}

func (fakePool) PoolStats() store.RedisPoolStats {
	return store.RedisPoolStats{Addr: "redis:6379", TotalConns: 3, IdleConns: 2}
}

type fakeCircuits struct{}

func (fakeCircuits) GetState(_ context.Context, name string) engine.CircuitBreakerState {
	return engine.CircuitBreakerState{Name: name, State: engine.StateClosed}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires the router to in-memory collaborators.
type testEnv struct {
	store    *memoryStore
	queue    *worker.MemoryQueue
	registry *worker.Registry
	limiter  *fakeLimiter
	feed     *recordingFeed
	deps     Deps
}

func newTestEnv() *testEnv {
	st := newMemoryStore()
	queue := worker.NewMemoryQueue()
	registry := worker.NewRegistry()
	logger := testLogger()

	env := &testEnv{
		store:    st,
		queue:    queue,
		registry: registry,
		limiter:  &fakeLimiter{},
		feed:     &recordingFeed{},
	}
	env.deps = Deps{
		Projects:  st,
		Users:     st,
		Envelopes: st,
		Stats:     st,
		Ingest:    engine.NewIngestService(nil, st, logger),
		Scheduler: engine.NewScheduler(queue, logger),
		Limiter:   env.limiter,
		Limits:    IngestLimits{MaxBodyBytes: 1 << 20},
		Pipeline:  worker.NewDispatcher(queue, registry, time.Second, logger),
		Circuits:  fakeCircuits{},
		DSNScheme: "https",
		DSNHost:   "relay.example.com",
		Logger:    logger,
	}
	return env
}

func (e *testEnv) addProject(name string) int64 {
	p, _ := e.store.CreateProject(context.Background(), domain.CreateProjectRequest{Name: name})
	return p.ID
}

func projectPath(id int64) string {
	return "/api/" + strconv.FormatInt(id, 10) + "/envelope/"
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Priya8975/envelope-relay/internal/domain"
)

// ErrRegistryFrozen is returned by Register once the dispatcher has started.
var ErrRegistryFrozen = errors.New("sender registry is frozen")

// Sender delivers a dispatched event to one notification channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, ev *domain.Event) error
}

// Registry maps each level to the senders that handle it, in registration
// order.
type Registry struct {
	mu      sync.RWMutex
	senders map[domain.Level][]Sender
	frozen  bool
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[domain.Level][]Sender)}
}

// Register appends s to the senders for level. The same sender may be
// registered at several levels.
func (r *Registry) Register(level domain.Level, s Sender) error {
	if !level.Valid() {
		return fmt.Errorf("registering sender: invalid level %d", int(level))
	}
	if s == nil {
		return errors.New("registering sender: nil sender")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	r.senders[level] = append(r.senders[level], s)
	return nil
}

// Senders returns the senders registered for level.
func (r *Registry) Senders(level domain.Level) []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sender, len(r.senders[level]))
	copy(out, r.senders[level])
	return out
}

// Routes lists sender names per level for diagnostics.
func (r *Registry) Routes() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	routes := make(map[string][]string, len(r.senders))
	for level, senders := range r.senders {
		names := make([]string, 0, len(senders))
		for _, s := range senders {
			names = append(names, s.Name())
		}
		routes[level.String()] = names
	}
	return routes
}

func (r *Registry) freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

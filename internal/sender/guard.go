package sender

import (
	"context"
	"errors"
	"net/http"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/Priya8975/envelope-relay/internal/metrics"
	"github.com/Priya8975/envelope-relay/internal/worker"
)

// ErrCircuitOpen is returned instead of sending while a sender's circuit is
// open.
var ErrCircuitOpen = errors.New("circuit open")

// Breaker is the circuit breaker the guard consults, keyed by sender name.
type Breaker interface {
	AllowRequest(ctx context.Context, name string) (string, bool)
	RecordSuccess(ctx context.Context, name string)
	RecordFailure(ctx context.Context, name string)
}

// Guard wraps a sender with a circuit breaker.
type Guard struct {
	next    worker.Sender
	breaker Breaker
}

func NewGuard(next worker.Sender, breaker Breaker) *Guard {
	return &Guard{next: next, breaker: breaker}
}

func (g *Guard) Name() string {
	return g.next.Name()
}

func (g *Guard) Send(ctx context.Context, ev *domain.Event) error {
	if _, allowed := g.breaker.AllowRequest(ctx, g.Name()); !allowed {
		metrics.CircuitOpenTotal.WithLabelValues(g.Name()).Inc()
		return ErrCircuitOpen
	}

	err := g.next.Send(ctx, ev)
	if err != nil && TransportDown(err) {
		g.breaker.RecordFailure(ctx, g.Name())
		return err
	}
	// A rejected recipient still proves the transport answers.
	g.breaker.RecordSuccess(ctx, g.Name())
	return err
}

// TransportDown reports whether err means the transport itself is failing:
// network errors, 5xx and 429 responses. Other 4xx responses concern a
// single request or recipient. A joined error is down if any part is.
func TransportDown(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if TransportDown(e) {
				return true
			}
		}
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode >= 500 || te.StatusCode == http.StatusTooManyRequests
	}
	return true
}

package sender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/Priya8975/envelope-relay/internal/engine"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySender struct {
	calls int
	err   error
}

func (f *flakySender) Name() string { return "flaky" }

func (f *flakySender) Send(context.Context, *domain.Event) error {
	f.calls++
	return f.err
}

func newBreaker(t *testing.T, threshold int) *engine.CircuitBreaker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return engine.NewCircuitBreaker(client, threshold, time.Minute, quietLogger())
}

func TestGuard_OpensAfterFailures(t *testing.T) {
	inner := &flakySender{err: errors.New("down")}
	g := NewGuard(inner, newBreaker(t, 2))
	ctx := context.Background()

	assert.Error(t, g.Send(ctx, errorEvent()))
	assert.Error(t, g.Send(ctx, errorEvent()))

	err := g.Send(ctx, errorEvent())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls, "open circuit must not reach the transport")
	assert.Equal(t, "flaky", g.Name())
}

func TestGuard_SuccessKeepsCircuitClosed(t *testing.T) {
	inner := &flakySender{}
	breaker := newBreaker(t, 2)
	g := NewGuard(inner, breaker)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, g.Send(ctx, errorEvent()))
	}
	assert.Equal(t, 5, inner.calls)
	assert.Equal(t, engine.StateClosed, breaker.GetState(ctx, "flaky").State)
}

func TestGuard_RejectedRecipientDoesNotOpenCircuit(t *testing.T) {
	server, calls := fakeTelegram(t, func(chatID string) int {
		if chatID == "bad" {
			return http.StatusBadRequest
		}
		return http.StatusOK
	})
	breaker := newBreaker(t, 5)
	g := NewGuard(NewTelegramSender("123:ABC", server.URL, 5*time.Second, quietLogger()), breaker)
	ctx := context.Background()

	ev := errorEvent(
		domain.User{Name: "b", TelegramChatID: strPtr("bad")},
		domain.User{Name: "o", TelegramChatID: strPtr("ok")},
	)
	for i := 0; i < 10; i++ {
		err := g.Send(ctx, ev)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrCircuitOpen, "event %d", i)
	}

	delivered := 0
	for _, c := range calls() {
		if c.chatID == "ok" {
			delivered++
		}
	}
	assert.Equal(t, 10, delivered)
	assert.Equal(t, engine.StateClosed, breaker.GetState(ctx, "telegram").State)
}

func TestGuard_ServerErrorsOpenCircuit(t *testing.T) {
	server, calls := fakeTelegram(t, func(string) int { return http.StatusBadGateway })
	g := NewGuard(NewTelegramSender("123:ABC", server.URL, 5*time.Second, quietLogger()), newBreaker(t, 2))
	ctx := context.Background()
	ev := errorEvent(domain.User{Name: "o", TelegramChatID: strPtr("ok")})

	assert.Error(t, g.Send(ctx, ev))
	assert.Error(t, g.Send(ctx, ev))
	assert.ErrorIs(t, g.Send(ctx, ev), ErrCircuitOpen)
	assert.Len(t, calls(), 2)
}

func TestTransportDown(t *testing.T) {
	rejected := &TransportError{Sender: "telegram", StatusCode: http.StatusBadRequest}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "network", err: errors.New("connection refused"), want: true},
		{name: "bad request", err: rejected, want: false},
		{name: "forbidden wrapped", err: fmt.Errorf("user a: %w", &TransportError{StatusCode: http.StatusForbidden}), want: false},
		{name: "too many requests", err: &TransportError{StatusCode: http.StatusTooManyRequests}, want: true},
		{name: "server error", err: &TransportError{StatusCode: http.StatusServiceUnavailable}, want: true},
		{name: "joined rejections", err: errors.Join(rejected, rejected), want: false},
		{name: "joined with outage", err: errors.Join(rejected, errors.New("timeout")), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TransportDown(tt.err))
		})
	}
}

func TestLogSender_WritesLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, s.Send(context.Background(), errorEvent()))
	assert.Contains(t, buf.String(), `"msg":"event dispatched"`)
	assert.Contains(t, buf.String(), `"message":"payment failed"`)
	assert.Contains(t, buf.String(), `"project":"billing"`)
	assert.Equal(t, "log", s.Name())
}

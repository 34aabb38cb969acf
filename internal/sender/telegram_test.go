package sender

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func errorEvent(users ...domain.User) *domain.Event {
	return &domain.Event{
		Level:      domain.LevelError,
		EventID:    "0",
		EnvelopeID: "3f2a",
		Project:    domain.Project{ID: 1, Name: "billing"},
		Payload:    map[string]any{"level": "error", "message": "payment failed"},
		Users:      users,
	}
}

type telegramCall struct {
	path   string
	chatID string
	text   string
}

func fakeTelegram(t *testing.T, status func(chatID string) int) (*httptest.Server, func() []telegramCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []telegramCall
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		call := telegramCall{path: r.URL.Path, chatID: r.PostForm.Get("chat_id"), text: r.PostForm.Get("text")}
		mu.Lock()
		calls = append(calls, call)
		mu.Unlock()

		code := status(call.chatID)
		w.WriteHeader(code)
		if code == http.StatusOK {
			io.WriteString(w, `{"ok":true}`)
		} else {
			io.WriteString(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
		}
	}))
	t.Cleanup(server.Close)

	return server, func() []telegramCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]telegramCall(nil), calls...)
	}
}

func TestTelegramSender_SendsToUsersWithChatID(t *testing.T) {
	server, calls := fakeTelegram(t, func(string) int { return http.StatusOK })
	s := NewTelegramSender("123:ABC", server.URL, 5*time.Second, quietLogger())

	ev := errorEvent(
		domain.User{Name: "alice", TelegramChatID: strPtr("111")},
		domain.User{Name: "bob"},
		domain.User{Name: "carol", TelegramChatID: strPtr("")},
		domain.User{Name: "dave", TelegramChatID: strPtr("222")},
	)

	require.NoError(t, s.Send(context.Background(), ev))

	got := calls()
	require.Len(t, got, 2)
	assert.Equal(t, "/bot123:ABC/sendMessage", got[0].path)
	assert.Equal(t, "111", got[0].chatID)
	assert.Equal(t, "222", got[1].chatID)
	assert.Contains(t, got[0].text, "[error] billing: payment failed")
	assert.Equal(t, "telegram", s.Name())
}

func TestTelegramSender_NoRecipients(t *testing.T) {
	server, calls := fakeTelegram(t, func(string) int { return http.StatusOK })
	s := NewTelegramSender("token", server.URL, time.Second, quietLogger())

	require.NoError(t, s.Send(context.Background(), errorEvent(domain.User{Name: "nobody"})))
	assert.Empty(t, calls())
}

func TestTelegramSender_Non200IsTransportError(t *testing.T) {
	server, calls := fakeTelegram(t, func(chatID string) int {
		if chatID == "bad" {
			return http.StatusBadRequest
		}
		return http.StatusOK
	})
	s := NewTelegramSender("token", server.URL, time.Second, quietLogger())

	ev := errorEvent(
		domain.User{Name: "broken", TelegramChatID: strPtr("bad")},
		domain.User{Name: "fine", TelegramChatID: strPtr("good")},
	)
	err := s.Send(context.Background(), ev)
	require.Error(t, err)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusBadRequest, transportErr.StatusCode)
	assert.Contains(t, transportErr.Body, "chat not found")

	// The second recipient is still messaged.
	assert.Len(t, calls(), 2)
}

func TestTelegramSender_ErrorHidesToken(t *testing.T) {
	s := NewTelegramSender("secret-token", "http://127.0.0.1:1", time.Second, quietLogger())

	err := s.SendMessage(context.Background(), "1", "hi")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")

	var urlErr *url.Error
	assert.False(t, errors.As(err, &urlErr))
}

func TestFormatText_Fallbacks(t *testing.T) {
	ev := &domain.Event{Level: domain.LevelFatal, EventID: "2", EnvelopeID: "e", Project: domain.Project{ID: 9}}
	assert.Equal(t, "[fatal] project 9: (no message)\nenvelope e, item 2", formatText(ev))
}

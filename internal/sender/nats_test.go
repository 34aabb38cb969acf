package sender

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestNATSSender_PublishesByLevel(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATSSender(pub, "alerts")

	ev := errorEvent()
	require.NoError(t, s.Send(context.Background(), ev))

	ev.Level = domain.LevelWarning
	require.NoError(t, s.Send(context.Background(), ev))

	assert.Equal(t, []string{"alerts.error", "alerts.warning"}, pub.subjects)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.Equal(t, "error", decoded["level"])
	assert.Equal(t, "3f2a", decoded["envelope_id"])
	assert.NotContains(t, decoded, "users")
}

func TestNATSSender_PayloadOmitsRecipients(t *testing.T) {
	pub := &fakePublisher{}
	ev := errorEvent(domain.User{Name: "alice", TelegramChatID: strPtr("555001")})

	require.NoError(t, NewNATSSender(pub, "alerts").Send(context.Background(), ev))
	assert.NotContains(t, string(pub.payloads[0]), "555001")
	assert.NotContains(t, string(pub.payloads[0]), "alice")
}

func TestNATSSender_DefaultPrefix(t *testing.T) {
	s := NewNATSSender(&fakePublisher{}, "")
	assert.Equal(t, "relay.events.critical", s.Subject(domain.LevelCritical))
	assert.Equal(t, "nats", s.Name())
}

func TestNATSSender_PublishError(t *testing.T) {
	s := NewNATSSender(&fakePublisher{err: errors.New("nats: connection closed")}, "alerts")
	err := s.Send(context.Background(), errorEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alerts.error")
}

func TestNATSSender_CancelledContext(t *testing.T) {
	pub := &fakePublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewNATSSender(pub, "alerts").Send(ctx, errorEvent())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.subjects)
}

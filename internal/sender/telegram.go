package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
)

// DefaultTelegramURL is the public Bot API endpoint.
const DefaultTelegramURL = "https://api.telegram.org"

// TelegramSender messages every recipient that has a Telegram chat id.
type TelegramSender struct {
	token   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewTelegramSender creates a sender for the bot identified by token. An
// empty baseURL means DefaultTelegramURL.
func NewTelegramSender(token, baseURL string, timeout time.Duration, logger *slog.Logger) *TelegramSender {
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}
	return &TelegramSender{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (t *TelegramSender) Name() string {
	return "telegram"
}

// Send posts one sendMessage per recipient, in order. Recipients without a
// chat id are skipped. A failed recipient does not prevent the others from
// being messaged; all failures are returned together.
func (t *TelegramSender) Send(ctx context.Context, ev *domain.Event) error {
	text := formatText(ev)

	var errs []error
	for _, user := range ev.Users {
		if user.TelegramChatID == nil || *user.TelegramChatID == "" {
			continue
		}
		if err := t.SendMessage(ctx, *user.TelegramChatID, text); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", user.Name, err))
			continue
		}
		t.logger.Debug("telegram message sent",
			"user", user.Name,
			"event_id", ev.EventID,
			"envelope_id", ev.EnvelopeID,
		)
	}
	return errors.Join(errs...)
}

// SendMessage calls the Bot API sendMessage method.
func (t *TelegramSender) SendMessage(ctx context.Context, chatID, text string) error {
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &TransportError{Sender: t.Name(), StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

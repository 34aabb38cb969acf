package sender

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>". The MAC covers
// "<t>." followed by the raw body.
const SignatureHeader = "X-Relay-Signature"

// DefaultSignatureTolerance is how far a signature timestamp may drift
// from the receiver's clock.
const DefaultSignatureTolerance = 5 * time.Minute

var (
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrSignatureExpired   = errors.New("signature timestamp outside tolerance")
)

// WebhookSender POSTs each event as JSON to one URL.
type WebhookSender struct {
	url    string
	secret string
	client *http.Client
	now    func() time.Time
}

func NewWebhookSender(url, secret string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (w *WebhookSender) Name() string {
	return "webhook"
}

func (w *WebhookSender) Send(ctx context.Context, ev *domain.Event) error {
	body, err := ev.EncodeNotification()
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	h := req.Header
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", "envelope-relay/1.0")
	h.Set("X-Relay-Level", ev.Level.String())
	h.Set("X-Relay-Envelope", ev.EnvelopeID)
	h.Set("X-Relay-Item", ev.EventID)
	h.Set("X-Relay-Project", strconv.FormatInt(ev.Project.ID, 10))
	if w.secret != "" {
		h.Set(SignatureHeader, Sign(body, w.secret, w.now()))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &TransportError{Sender: w.Name(), StatusCode: resp.StatusCode, Body: string(snippet)}
}

// Sign returns the signature header value for body sent at t.
func Sign(body []byte, secret string, t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return "t=" + ts + ",v1=" + mac(ts, body, secret)
}

// VerifySignature checks a header produced by Sign. A non-positive
// tolerance skips the timestamp check.
func VerifySignature(header string, body []byte, secret string, now time.Time, tolerance time.Duration) error {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformedSignature
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return ErrMalformedSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMalformedSignature
	}

	want, err := hex.DecodeString(mac(ts, body, secret))
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(got, want) {
		return ErrSignatureMismatch
	}

	if tolerance > 0 {
		drift := now.Sub(time.Unix(unix, 0))
		if drift < -tolerance || drift > tolerance {
			return ErrSignatureExpired
		}
	}
	return nil
}

func mac(ts string, body []byte, secret string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(ts))
	m.Write([]byte{'.'})
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

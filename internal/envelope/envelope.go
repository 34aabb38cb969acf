// Package envelope implements the line-oriented envelope wire format used by
// error-reporting SDKs: one JSON header line followed by self-describing items,
// each framed either by an explicit byte length or by a trailing newline.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Item types the relay treats specially.
const (
	ItemTypeEvent       = "event"
	ItemTypeTransaction = "transaction"
)

const (
	defaultItemType    = "unknown"
	defaultContentType = "application/octet-stream"
	jsonContentType    = "application/json"
)

// Envelope is a decoded envelope: its headers and its items in wire order.
type Envelope struct {
	Headers map[string]any
	Items   []*Item
}

// EventID returns the event_id header, or "" when absent.
func (e *Envelope) EventID() string {
	return stringHeader(e.Headers, "event_id")
}

// SentAt returns the raw sent_at header, or "" when absent.
func (e *Envelope) SentAt() string {
	return stringHeader(e.Headers, "sent_at")
}

// DSN returns the dsn header, or "" when absent.
func (e *Envelope) DSN() string {
	return stringHeader(e.Headers, "dsn")
}

// Description summarizes the envelope for logs.
func (e *Envelope) Description() string {
	types := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		types = append(types, item.Type())
	}
	return fmt.Sprintf("envelope with %d items (%s)", len(e.Items), strings.Join(types, ", "))
}

// EventItem returns the first item of type "event", if any.
func (e *Envelope) EventItem() *Item {
	return e.firstOfType(ItemTypeEvent)
}

// TransactionItem returns the first item of type "transaction", if any.
func (e *Envelope) TransactionItem() *Item {
	return e.firstOfType(ItemTypeTransaction)
}

func (e *Envelope) firstOfType(itemType string) *Item {
	for _, item := range e.Items {
		if item.Type() == itemType {
			return item
		}
	}
	return nil
}

// Item is one part of an envelope.
type Item struct {
	Headers map[string]any
	Payload []byte

	parsed  any
	hasJSON bool
}

// NewItem builds an item and eagerly parses JSON payloads. A payload that does
// not parse leaves the JSON value absent.
func NewItem(headers map[string]any, payload []byte) *Item {
	if headers == nil {
		headers = map[string]any{}
	}
	item := &Item{Headers: headers, Payload: payload}
	if strings.HasPrefix(item.ContentType(), jsonContentType) {
		if v, err := ParseJSON(payload); err == nil {
			item.parsed = v
			item.hasJSON = true
		}
	}
	return item
}

// Type returns the item type, "unknown" when not given.
func (i *Item) Type() string {
	if t := stringHeader(i.Headers, "type"); t != "" {
		return t
	}
	return defaultItemType
}

// ContentType returns the declared content type, application/octet-stream by default.
func (i *Item) ContentType() string {
	if ct := stringHeader(i.Headers, "content_type"); ct != "" {
		return ct
	}
	return defaultContentType
}

// Filename returns the filename header, or "" when absent.
func (i *Item) Filename() string {
	return stringHeader(i.Headers, "filename")
}

// Length returns the declared length, falling back to the payload size.
func (i *Item) Length() int {
	if n, ok := resolveLength(i.Headers["length"]); ok {
		return n
	}
	return len(i.Payload)
}

// JSON returns the parsed payload when the item carries JSON that decoded.
func (i *Item) JSON() (any, bool) {
	return i.parsed, i.hasJSON
}

func (i *Item) String() string {
	return fmt.Sprintf("<EnvelopeItem type=%s content_type=%s length=%d>", i.Type(), i.ContentType(), len(i.Payload))
}

func stringHeader(headers map[string]any, key string) string {
	if s, ok := headers[key].(string); ok {
		return s
	}
	return ""
}

// resolveLength reports the explicit payload length of an item header value.
// Integers and numeric strings that are non-negative qualify. Lengths beyond
// the int range saturate so framing reports them as truncated.
func resolveLength(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return resolveLength(float64(i))
		}
		if f, err := n.Float64(); err == nil {
			return resolveLength(f)
		}
		return 0, false
	case float64:
		if n < 0 || n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		if n >= math.MaxInt {
			return math.MaxInt, true
		}
		return int(n), true
	case int:
		return n, n >= 0
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(strings.TrimSpace(n), "-") {
			return math.MaxInt, true
		}
		if err != nil || parsed < 0 {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

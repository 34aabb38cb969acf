package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Encode serializes env in wire form. Every item is written with an explicit
// length, so payloads may contain newlines.
func Encode(env *Envelope) ([]byte, error) {
	var buf bytes.Buffer

	headers := env.Headers
	if headers == nil {
		headers = map[string]any{}
	}
	line, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope headers: %w", err)
	}
	buf.Write(line)
	buf.WriteByte('\n')

	for i, item := range env.Items {
		h := maps.Clone(item.Headers)
		if h == nil {
			h = map[string]any{}
		}
		h["length"] = len(item.Payload)

		line, err := json.Marshal(h)
		if err != nil {
			return nil, fmt.Errorf("encoding item %d headers: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
		buf.Write(item.Payload)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// DefaultMaxSize bounds the decompressed size of a single envelope.
const DefaultMaxSize int64 = 20 << 20

// Decoder turns request bodies into envelopes. The zero value is not usable;
// build one with NewDecoder.
type Decoder struct {
	codecs  map[string]Codec
	maxSize int64
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxSize caps the decompressed body size.
func WithMaxSize(n int64) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxSize = n
		}
	}
}

// WithEncodings restricts the decoder to the named content encodings.
// Bodies using any other encoding fail with ErrCompressionUnavailable.
func WithEncodings(names ...string) Option {
	return func(d *Decoder) {
		all := defaultCodecs()
		enabled := make(map[string]Codec, len(names))
		for _, name := range names {
			for _, enc := range normalizeEncodings(name) {
				if codec, ok := all[enc]; ok {
					enabled[enc] = codec
				}
			}
		}
		d.codecs = enabled
	}
}

// NewDecoder returns a decoder with every known codec enabled.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		codecs:  defaultCodecs(),
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var defaultDecoder = NewDecoder()

// Decode decodes body with the default decoder.
func Decode(body []byte, contentEncoding string) (*Envelope, error) {
	return defaultDecoder.Decode(body, contentEncoding)
}

// Decode decompresses body according to contentEncoding, or by sniffing magic
// bytes when no encoding is given, and parses the envelope it contains.
func (d *Decoder) Decode(body []byte, contentEncoding string) (*Envelope, error) {
	data, err := d.decompress(body, contentEncoding)
	if err != nil {
		return nil, err
	}
	return parse(data)
}

func (d *Decoder) decompress(body []byte, contentEncoding string) ([]byte, error) {
	encodings := normalizeEncodings(contentEncoding)
	if strings.TrimSpace(contentEncoding) == "" {
		if enc := sniff(body); enc != "" {
			encodings = []string{enc}
		}
	}

	// Validate every coding before touching the body.
	for _, enc := range encodings {
		if _, ok := d.codecs[enc]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrCompressionUnavailable, enc)
		}
	}

	data := body
	for i := len(encodings) - 1; i >= 0; i-- {
		out, err := d.inflate(d.codecs[encodings[i]], data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", encodings[i], err)
		}
		data = out
	}

	if int64(len(data)) > d.maxSize {
		return nil, &DecodeError{Err: ErrTooLarge}
	}
	return data, nil
}

func (d *Decoder) inflate(codec Codec, data []byte) ([]byte, error) {
	r, err := codec.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, d.maxSize+1))
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
	}
	if int64(len(out)) > d.maxSize {
		return nil, &DecodeError{Err: ErrTooLarge}
	}
	return out, nil
}

// ParseJSON decodes b as UTF-8, replacing invalid sequences, and parses a
// single JSON value. Numbers are kept as json.Number.
func ParseJSON(b []byte) (any, error) {
	text, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return nil, fmt.Errorf("decoding utf-8: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

func parseObject(b []byte) (map[string]any, error) {
	v, err := ParseJSON(b)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", v)
	}
	return obj, nil
}

// cursor walks a decompressed envelope body.
type cursor struct {
	data []byte
	pos  int
	line int
}

// readLine returns the next line without its terminating newline. At the end
// of the buffer it returns an empty line.
func (c *cursor) readLine() []byte {
	if c.pos >= len(c.data) {
		return nil
	}
	c.line++
	rest := c.data[c.pos:]
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		c.pos += i + 1
		return rest[:i]
	}
	c.pos = len(c.data)
	return rest
}

// readN returns exactly n bytes and then consumes one newline if it follows.
func (c *cursor) readN(n int) ([]byte, error) {
	if len(c.data)-c.pos < n {
		return nil, ErrTruncated
	}
	out := c.data[c.pos : c.pos+n]
	c.pos += n
	c.line += bytes.Count(out, []byte{'\n'})
	if c.pos < len(c.data) && c.data[c.pos] == '\n' {
		c.pos++
		c.line++
	}
	return out, nil
}

func parse(data []byte) (*Envelope, error) {
	c := &cursor{data: data}

	headers := map[string]any{}
	if line := c.readLine(); len(bytes.TrimSpace(line)) > 0 {
		h, err := parseObject(line)
		if err != nil {
			return nil, &DecodeError{Line: c.line, Err: fmt.Errorf("%w: %v", ErrMalformedHeader, err)}
		}
		headers = h
	}

	env := &Envelope{Headers: headers, Items: []*Item{}}
	for {
		line := c.readLine()
		if len(bytes.TrimSpace(line)) == 0 {
			break
		}
		itemHeaders, err := parseObject(line)
		if err != nil {
			// A garbled trailing header ends the envelope; earlier items stand.
			break
		}

		var payload []byte
		if n, ok := resolveLength(itemHeaders["length"]); ok {
			payload, err = c.readN(n)
			if err != nil {
				return nil, &DecodeError{Line: c.line, Err: err}
			}
		} else {
			payload = c.readLine()
		}

		env.Items = append(env.Items, NewItem(itemHeaders, bytes.Clone(payload)))
	}
	return env, nil
}

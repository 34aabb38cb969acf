package envelope

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Content-Encoding tokens understood by the decoder.
const (
	EncodingIdentity = "identity"
	EncodingGzip     = "gzip"
	EncodingBrotli   = "br"
	EncodingZstd     = "zstd"
	EncodingDeflate  = "deflate"
)

var (
	gzipMagic   = []byte{0x1f, 0x8b}
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	brotliMagic = []byte{0x42, 0x5a}
)

// Codec pairs a decompressing reader with its compressing writer.
type Codec struct {
	NewReader func(r io.Reader) (io.ReadCloser, error)
	NewWriter func(w io.Writer) (io.WriteCloser, error)
}

func defaultCodecs() map[string]Codec {
	return map[string]Codec{
		EncodingGzip: {
			NewReader: func(r io.Reader) (io.ReadCloser, error) {
				return gzip.NewReader(r)
			},
			NewWriter: func(w io.Writer) (io.WriteCloser, error) {
				return gzip.NewWriter(w), nil
			},
		},
		EncodingBrotli: {
			NewReader: func(r io.Reader) (io.ReadCloser, error) {
				return io.NopCloser(brotli.NewReader(r)), nil
			},
			NewWriter: func(w io.Writer) (io.WriteCloser, error) {
				return brotli.NewWriter(w), nil
			},
		},
		EncodingZstd: {
			NewReader: func(r io.Reader) (io.ReadCloser, error) {
				dec, err := zstd.NewReader(r)
				if err != nil {
					return nil, err
				}
				return dec.IOReadCloser(), nil
			},
			NewWriter: func(w io.Writer) (io.WriteCloser, error) {
				return zstd.NewWriter(w)
			},
		},
		EncodingDeflate: {
			NewReader: func(r io.Reader) (io.ReadCloser, error) {
				return zlib.NewReader(r)
			},
			NewWriter: func(w io.Writer) (io.WriteCloser, error) {
				return zlib.NewWriter(w), nil
			},
		},
	}
}

// normalizeEncodings splits a Content-Encoding header into the codings applied,
// in the order they were applied. identity entries are dropped.
func normalizeEncodings(header string) []string {
	var out []string
	for _, part := range strings.Split(header, ",") {
		enc := strings.ToLower(strings.TrimSpace(part))
		if enc == "" || enc == EncodingIdentity {
			continue
		}
		out = append(out, enc)
	}
	return out
}

func sniff(data []byte) string {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return EncodingGzip
	case bytes.HasPrefix(data, zstdMagic):
		return EncodingZstd
	case bytes.HasPrefix(data, brotliMagic):
		return EncodingBrotli
	default:
		return ""
	}
}

// Compress encodes data with the named content encoding. identity and ""
// return data unchanged.
func Compress(data []byte, encoding string) ([]byte, error) {
	encodings := normalizeEncodings(encoding)
	codecs := defaultCodecs()
	for _, enc := range encodings {
		codec, ok := codecs[enc]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrCompressionUnavailable, enc)
		}
		var buf bytes.Buffer
		w, err := codec.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("creating %s writer: %w", enc, err)
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, fmt.Errorf("compressing with %s: %w", enc, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("flushing %s writer: %w", enc, err)
		}
		data = buf.Bytes()
	}
	return data, nil
}

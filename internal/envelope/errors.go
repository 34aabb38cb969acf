package envelope

import (
	"errors"
	"fmt"
)

var (
	// ErrCompressionUnavailable is returned when the body uses an encoding the
	// decoder has no codec for. Nothing of the envelope is decoded.
	ErrCompressionUnavailable = errors.New("envelope: compression unavailable")

	ErrMalformedHeader = errors.New("envelope: malformed envelope header")
	ErrTruncated       = errors.New("envelope: item payload shorter than declared length")
	ErrTooLarge        = errors.New("envelope: decompressed body exceeds size limit")
	ErrCorrupt         = errors.New("envelope: corrupt compressed body")
)

// DecodeError reports where in the decompressed body decoding failed.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding envelope at line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

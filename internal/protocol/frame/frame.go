package frame

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// HeaderWidth is the fixed width of the ASCII decimal length header.
const HeaderWidth = 16

var (
	ErrConnectionClosed = errors.New("frame: connection closed")
	ErrMalformedHeader  = fmt.Errorf("%w: malformed length header", ErrConnectionClosed)
	ErrPayloadTooLarge  = fmt.Errorf("%w: payload too large", ErrConnectionClosed)
	ErrHeaderOverflow   = errors.New("frame: payload length does not fit header width")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 64 * 1024 * 1024,
	}
}

// WithDefaults fills zero limits from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	if l.MaxPayloadBytes == 0 {
		l.MaxPayloadBytes = DefaultLimits().MaxPayloadBytes
	}
	return l
}

// EncodeHeader renders n right-justified in HeaderWidth bytes, padded with leading spaces.
func EncodeHeader(n uint64) ([]byte, error) {
	digits := strconv.FormatUint(n, 10)
	if len(digits) > HeaderWidth {
		return nil, ErrHeaderOverflow
	}
	buf := make([]byte, HeaderWidth)
	pad := HeaderWidth - len(digits)
	for i := 0; i < pad; i++ {
		buf[i] = ' '
	}
	copy(buf[pad:], digits)
	return buf, nil
}

// ParseHeader parses one fixed-width header into a payload byte count.
func ParseHeader(b []byte) (uint64, error) {
	if len(b) != HeaderWidth {
		return 0, fmt.Errorf("%w: width %d", ErrMalformedHeader, len(b))
	}
	raw := strings.TrimSpace(string(b))
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrMalformedHeader)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedHeader, raw)
	}
	return n, nil
}

// ReadFrame reads one header and exactly the payload it announces.
// Short reads are accumulated; EOF or a socket error before the frame is
// complete is reported as ErrConnectionClosed, never as a partial payload.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	limits = limits.WithDefaults()
	var head [HeaderWidth]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, closed(err)
	}
	n, err := ParseHeader(head[:])
	if err != nil {
		return nil, err
	}
	if n > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, n, limits.MaxPayloadBytes)
	}
	payload := make([]byte, n)
	if n == 0 {
		return payload, nil
	}
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, closed(err)
	}
	return payload, nil
}

// WriteFrame writes header and payload with a single Write call.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	limits = limits.WithDefaults()
	if uint64(len(payload)) > limits.MaxPayloadBytes {
		return fmt.Errorf("frame: payload too large: %d > %d", len(payload), limits.MaxPayloadBytes)
	}
	buf, err := Append(make([]byte, 0, HeaderWidth+len(payload)), payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return closed(err)
	}
	return nil
}

// Append appends header||payload to dst.
func Append(dst []byte, payload []byte) ([]byte, error) {
	head, err := EncodeHeader(uint64(len(payload)))
	if err != nil {
		return nil, err
	}
	dst = append(dst, head...)
	return append(dst, payload...), nil
}

func closed(err error) error {
	if errors.Is(err, ErrConnectionClosed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
}

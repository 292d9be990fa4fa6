package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/relayctl/internal/protocol/frame"
	"github.com/danmuck/relayctl/internal/protocol/schema"
	"github.com/danmuck/relayctl/internal/protocol/tlv"
)

// ErrInvalidMessage reports a complete frame whose payload is not a Message.
// The stream is still aligned on the next frame boundary.
var ErrInvalidMessage = errors.New("protocol: invalid message payload")

// MarshalPayload serializes msg without the frame header.
func MarshalPayload(msg Message) ([]byte, error) {
	if !msg.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(msg.Kind))
	}
	return tlv.EncodeFields([]tlv.Field{
		tlv.String(schema.FieldAuthor, msg.Author),
		tlv.String(schema.FieldKind, msg.Kind.String()),
		tlv.String(schema.FieldContent, msg.Content),
	})
}

// UnmarshalPayload parses one frame payload into a Message.
func UnmarshalPayload(payload []byte) (Message, error) {
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := schema.Validate(fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	author, _ := tlv.GetField(fields, schema.FieldAuthor)
	kindField, _ := tlv.GetField(fields, schema.FieldKind)
	content, _ := tlv.GetField(fields, schema.FieldContent)

	kind, err := ParseKind(string(kindField.Value))
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return Message{
		Author:  text(author.Value),
		Kind:    kind,
		Content: text(content.Value),
	}, nil
}

// Encode returns header||payload for msg.
func Encode(msg Message) ([]byte, error) {
	payload, err := MarshalPayload(msg)
	if err != nil {
		return nil, err
	}
	return frame.Append(make([]byte, 0, frame.HeaderWidth+len(payload)), payload)
}

// Decode reads exactly one framed Message from r using default limits.
func Decode(r io.Reader) (Message, error) {
	return ReadMessage(r, frame.DefaultLimits())
}

// WriteMessage frames msg onto w in a single write.
func WriteMessage(w io.Writer, msg Message, limits frame.Limits) error {
	payload, err := MarshalPayload(msg)
	if err != nil {
		return err
	}
	return frame.WriteFrame(w, payload, limits)
}

// ReadMessage reads one frame and decodes its payload.
// Transport failures satisfy errors.Is(err, frame.ErrConnectionClosed).
func ReadMessage(r io.Reader, limits frame.Limits) (Message, error) {
	payload, err := frame.ReadFrame(r, limits)
	if err != nil {
		return Message{}, err
	}
	return UnmarshalPayload(payload)
}

// IsConnectionClosed reports whether err ends the connection it came from.
func IsConnectionClosed(err error) bool {
	return errors.Is(err, frame.ErrConnectionClosed)
}

func text(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

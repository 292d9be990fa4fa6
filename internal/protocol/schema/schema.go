package schema

import (
	"fmt"

	"github.com/danmuck/relayctl/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Field IDs of the message payload.
const (
	FieldAuthor  uint16 = 1
	FieldKind    uint16 = 2
	FieldContent uint16 = 3
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	FieldID uint16
	Reason  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("schema: field=%d: %s", e.FieldID, e.Reason)
}

var messageRequirements = []Requirement{
	{FieldAuthor, tlv.TypeString},
	{FieldKind, tlv.TypeString},
	{FieldContent, tlv.TypeString},
}

// Validate enforces required fields and field types for a message payload.
// Unknown fields are ignored.
func Validate(fields []tlv.Field) error {
	for _, req := range messageRequirements {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().Uint16("field_id", req.ID).Msg("schema.Validate missing field")
			return ValidationError{FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}

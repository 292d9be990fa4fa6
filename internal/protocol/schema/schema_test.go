package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/relayctl/internal/protocol/tlv"
)

func TestValidateAcceptsCompleteMessage(t *testing.T) {
	fields := []tlv.Field{
		tlv.String(FieldAuthor, "hub"),
		tlv.String(FieldKind, "MESSAGE"),
		tlv.String(FieldContent, ""),
		{ID: 77, Type: tlv.TypeBytes, Value: []byte{1}},
	}
	if err := Validate(fields); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateMissingField(t *testing.T) {
	fields := []tlv.Field{
		tlv.String(FieldAuthor, "hub"),
		tlv.String(FieldContent, "hello"),
	}
	err := Validate(fields)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.FieldID != FieldKind {
		t.Fatalf("unexpected field id: %d", verr.FieldID)
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	fields := []tlv.Field{
		tlv.String(FieldAuthor, "hub"),
		{ID: FieldKind, Type: tlv.TypeU8, Value: []byte{1}},
		tlv.String(FieldContent, ""),
	}
	var verr ValidationError
	if err := Validate(fields); !errors.As(err, &verr) || verr.Reason != "type mismatch" {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

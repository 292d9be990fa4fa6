package protocol

import (
	"errors"
	"fmt"
)

var ErrUnknownKind = errors.New("protocol: unknown message kind")

// Kind is the closed set of message types exchanged between hub and agent.
type Kind uint8

const (
	kindInvalid Kind = iota
	KindAlias
	KindCommand
	KindCommandOutput
	KindCommandError
	KindDisconnect
	KindMessage
)

var kindNames = [...]string{
	kindInvalid:       "",
	KindAlias:         "ALIAS",
	KindCommand:       "COMMAND",
	KindCommandOutput: "COMMAND_OUTPUT",
	KindCommandError:  "COMMAND_ERROR",
	KindDisconnect:    "DISCONNECT",
	KindMessage:       "MESSAGE",
}

// Kinds lists every valid kind in wire order.
func Kinds() []Kind {
	return []Kind{KindAlias, KindCommand, KindCommandOutput, KindCommandError, KindDisconnect, KindMessage}
}

func (k Kind) Valid() bool {
	return k > kindInvalid && int(k) < len(kindNames)
}

// String returns the wire name of k.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// ParseKind maps a wire name to its Kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if kindNames[k] == name {
			return k, nil
		}
	}
	return kindInvalid, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

package protocol

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrMalformed     = errors.New("malformed payload")
	ErrStringTooLong = errors.New("string exceeds 65535 bytes")
)

// Command identifies a request type.
type Command int32

// Command codes.
const (
	CmdRegister         Command = 1
	CmdLogin            Command = 2
	CmdAddEvent         Command = 10
	CmdNextDay          Command = 11
	CmdGetQuantity      Command = 20
	CmdGetVolume        Command = 21
	CmdGetPriceStats    Command = 22
	CmdGetEvents        Command = 23
	CmdWaitSimultaneous Command = 30
	CmdWaitConsecutive  Command = 31
)

// Status is the leading code of every response.
type Status int32

// Response status codes.
const (
	StatusSuccess Status = 100
	StatusFailure Status = 101
)

// MaxProductsPerRequest bounds the product list of a GET_EVENTS request.
const MaxProductsPerRequest = 1 << 16

var commandNames = map[Command]string{
	CmdRegister:         "REGISTER",
	CmdLogin:            "LOGIN",
	CmdAddEvent:         "ADD_EVENT",
	CmdNextDay:          "NEXT_DAY",
	CmdGetQuantity:      "GET_QUANTITY",
	CmdGetVolume:        "GET_VOLUME",
	CmdGetPriceStats:    "GET_PRICE_STATS",
	CmdGetEvents:        "GET_EVENTS",
	CmdWaitSimultaneous: "WAIT_SIMULTANEOUS",
	CmdWaitConsecutive:  "WAIT_CONSECUTIVE",
}

// String returns the protocol name of the command.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(c))
}

// Known reports whether c is a defined command code.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// AllowedUnauthenticated reports whether c may be issued before LOGIN succeeds.
func (c Command) AllowedUnauthenticated() bool {
	return c == CmdRegister || c == CmdLogin
}

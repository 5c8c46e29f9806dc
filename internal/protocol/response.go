package protocol

import (
	"errors"
	"fmt"
	"io"

	"github.com/rickgao/salestore/internal/model"
)

// StatusError is an ERROR response received from the server.
type StatusError struct {
	Message string
}

func (e *StatusError) Error() string {
	return "server error: " + e.Message
}

// WriteSuccess writes the SUCCESS status. The caller writes the payload.
func WriteSuccess(e *Encoder) {
	e.WriteInt32(int32(StatusSuccess))
}

// WriteError writes an ERROR status followed by msg.
func WriteError(e *Encoder, msg string) {
	e.WriteInt32(int32(StatusFailure))
	e.WriteString(msg)
}

// ReadStatus reads a response status. For ERROR responses the message is
// consumed and returned as a *StatusError.
func ReadStatus(d *Decoder) error {
	code, err := d.ReadInt32()
	if err != nil {
		return err
	}
	switch Status(code) {
	case StatusSuccess:
		return nil
	case StatusFailure:
		msg, err := d.ReadString()
		if err != nil {
			return unexpected(err)
		}
		return &StatusError{Message: msg}
	default:
		return fmt.Errorf("%w: status %d", ErrMalformed, code)
	}
}

// WriteEvents writes the GET_EVENTS payload: a count followed by
// product, quantity and price of each event.
func WriteEvents(e *Encoder, events []model.Event) {
	e.WriteInt32(int32(len(events)))
	for _, ev := range events {
		e.WriteString(ev.Product)
		e.WriteInt64(ev.Quantity)
		e.WriteFloat64(ev.Price)
	}
}

// ReadEvents reads a GET_EVENTS payload. Timestamps are not on the wire
// and are left zero.
func ReadEvents(d *Decoder) ([]model.Event, error) {
	n, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: event count %d", ErrMalformed, n)
	}
	events := make([]model.Event, 0, min(int(n), 1024))
	for i := int32(0); i < n; i++ {
		var ev model.Event
		if ev.Product, err = d.ReadString(); err != nil {
			return nil, unexpected(err)
		}
		if ev.Quantity, err = d.ReadInt64(); err != nil {
			return nil, unexpected(err)
		}
		if ev.Price, err = d.ReadFloat64(); err != nil {
			return nil, unexpected(err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// unexpected converts io.EOF in the middle of a message to io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

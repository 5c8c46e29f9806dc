package protocol

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/rickgao/salestore/internal/model"
)

func TestReadRequest_AllCommands(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "register", req: &RegisterRequest{Username: "alice", Password: "secret"}},
		{name: "login", req: &LoginRequest{Username: "alice", Password: "secret"}},
		{name: "add event", req: &AddEventRequest{Product: "Milk", Quantity: 10, Price: 2.0}},
		{name: "next day", req: &NextDayRequest{}},
		{name: "quantity", req: &AggregateRequest{Cmd: CmdGetQuantity, Product: "Milk", DaysLookback: 3}},
		{name: "volume", req: &AggregateRequest{Cmd: CmdGetVolume, Product: "Milk", DaysLookback: 0}},
		{name: "price stats", req: &AggregateRequest{Cmd: CmdGetPriceStats, Product: "Milk", DaysLookback: 7}},
		{name: "events", req: &GetEventsRequest{DayOffset: 1, Products: []string{"Milk", "Bread"}}},
		{name: "events no products", req: &GetEventsRequest{DayOffset: 0, Products: []string{}}},
		{name: "wait simultaneous", req: &WaitSimultaneousRequest{Product1: "A", Product2: "B"}},
		{name: "wait consecutive", req: &WaitConsecutiveRequest{Count: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteRequest(NewEncoder(&buf), tt.req); err != nil {
				t.Fatalf("WriteRequest() error = %v", err)
			}

			got, err := ReadRequest(NewDecoder(&buf))
			if err != nil {
				t.Fatalf("ReadRequest() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.req) {
				t.Errorf("ReadRequest() = %#v, want %#v", got, tt.req)
			}
			if buf.Len() != 0 {
				t.Errorf("%d bytes left unread", buf.Len())
			}
		})
	}
}

func TestReadRequest_Unknown(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	e.WriteInt32(99)
	e.WriteInt32(12345)

	got, err := ReadRequest(NewDecoder(&buf))
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}
	unk, ok := got.(*UnknownRequest)
	if !ok {
		t.Fatalf("ReadRequest() = %T, want *UnknownRequest", got)
	}
	if unk.Code != 99 || unk.Command().Known() {
		t.Errorf("Code = %d, Known = %v", unk.Code, unk.Command().Known())
	}
	if buf.Len() != 4 {
		t.Errorf("payload of unknown command was consumed, %d bytes left", buf.Len())
	}
}

func TestReadRequest_Truncated(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	e.WriteInt32(int32(CmdAddEvent))
	e.WriteString("Milk")
	e.WriteInt64(10)
	// price missing

	_, err := ReadRequest(NewDecoder(&buf))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadRequest() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReadRequest_CleanEOF(t *testing.T) {
	_, err := ReadRequest(NewDecoder(bytes.NewReader(nil)))
	if err != io.EOF {
		t.Errorf("ReadRequest() error = %v, want io.EOF", err)
	}
}

func TestReadRequest_BadProductCount(t *testing.T) {
	for _, n := range []int32{-1, MaxProductsPerRequest + 1} {
		var buf bytes.Buffer
		e := NewEncoder(&buf)
		e.WriteInt32(int32(CmdGetEvents))
		e.WriteInt32(0)
		e.WriteInt32(n)

		_, err := ReadRequest(NewDecoder(&buf))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("count %d: ReadRequest() error = %v, want ErrMalformed", n, err)
		}
	}
}

func TestCommand_String(t *testing.T) {
	if CmdGetPriceStats.String() != "GET_PRICE_STATS" {
		t.Errorf("String() = %q", CmdGetPriceStats.String())
	}
	if Command(7).String() != "UNKNOWN(7)" {
		t.Errorf("String() = %q", Command(7).String())
	}
	if !CmdLogin.AllowedUnauthenticated() || CmdAddEvent.AllowedUnauthenticated() {
		t.Error("AllowedUnauthenticated mismatch")
	}
}

func TestResponses(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)

	WriteError(e, "Not authenticated")
	WriteSuccess(e)
	WriteEvents(e, []model.Event{
		{Product: "Milk", Quantity: 10, Price: 2.0, Timestamp: 123},
		{Product: "Bread", Quantity: 5, Price: 1.5},
	})

	d := NewDecoder(&buf)

	err := ReadStatus(d)
	var se *StatusError
	if !errors.As(err, &se) || se.Message != "Not authenticated" {
		t.Fatalf("ReadStatus() error = %v, want StatusError", err)
	}

	if err := ReadStatus(d); err != nil {
		t.Fatalf("ReadStatus() error = %v, want nil", err)
	}
	events, err := ReadEvents(d)
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}
	want := []model.Event{
		{Product: "Milk", Quantity: 10, Price: 2.0},
		{Product: "Bread", Quantity: 5, Price: 1.5},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("ReadEvents() = %v, want %v", events, want)
	}
}

func TestReadStatus_UnknownCode(t *testing.T) {
	var buf bytes.Buffer
	NewEncoder(&buf).WriteInt32(7)

	if err := ReadStatus(NewDecoder(&buf)); !errors.Is(err, ErrMalformed) {
		t.Errorf("ReadStatus() error = %v, want ErrMalformed", err)
	}
}

func TestStatusCodesOnWire(t *testing.T) {
	tests := []struct {
		name  string
		write func(*Encoder)
		want  []byte
	}{
		{name: "success", write: WriteSuccess, want: []byte{0, 0, 0, 100}},
		{name: "failure", write: func(e *Encoder) { WriteError(e, "x") }, want: []byte{0, 0, 0, 101, 0, 1, 'x'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.write(NewEncoder(&buf))
			if !bytes.Equal(buf.Bytes(), tt.want) {
				t.Errorf("bytes = %v, want %v", buf.Bytes(), tt.want)
			}
		})
	}
}

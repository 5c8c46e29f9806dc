package protocol

import (
	"fmt"
)

// Request is a decoded client request.
type Request interface {
	// Command returns the request's command code.
	Command() Command

	encode(e *Encoder)
	decode(d *Decoder) error
}

// RegisterRequest creates a user account.
type RegisterRequest struct {
	Username string
	Password string
}

// LoginRequest authenticates the connection.
type LoginRequest struct {
	Username string
	Password string
}

// AddEventRequest records a sale on the current day.
type AddEventRequest struct {
	Product  string
	Quantity int64
	Price    float64
}

// NextDayRequest advances the logical day. It has no payload.
type NextDayRequest struct{}

// AggregateRequest is shared by GET_QUANTITY, GET_VOLUME and GET_PRICE_STATS.
type AggregateRequest struct {
	Cmd          Command
	Product      string
	DaysLookback int32
}

// GetEventsRequest lists events of one day filtered by product.
type GetEventsRequest struct {
	DayOffset int32
	Products  []string
}

// WaitSimultaneousRequest blocks until both products sold today.
type WaitSimultaneousRequest struct {
	Product1 string
	Product2 string
}

// WaitConsecutiveRequest blocks until some product sells Count times in a row.
type WaitConsecutiveRequest struct {
	Count int32
}

// UnknownRequest carries an unrecognized command code. Its payload, if any,
// is not consumed.
type UnknownRequest struct {
	Code Command
}

func (RegisterRequest) Command() Command         { return CmdRegister }
func (LoginRequest) Command() Command            { return CmdLogin }
func (AddEventRequest) Command() Command         { return CmdAddEvent }
func (NextDayRequest) Command() Command          { return CmdNextDay }
func (r AggregateRequest) Command() Command      { return r.Cmd }
func (GetEventsRequest) Command() Command        { return CmdGetEvents }
func (WaitSimultaneousRequest) Command() Command { return CmdWaitSimultaneous }
func (WaitConsecutiveRequest) Command() Command  { return CmdWaitConsecutive }
func (r UnknownRequest) Command() Command        { return r.Code }

func (r *RegisterRequest) encode(e *Encoder) {
	e.WriteString(r.Username)
	e.WriteString(r.Password)
}

func (r *RegisterRequest) decode(d *Decoder) (err error) {
	if r.Username, err = d.ReadString(); err != nil {
		return err
	}
	r.Password, err = d.ReadString()
	return err
}

func (r *LoginRequest) encode(e *Encoder) {
	e.WriteString(r.Username)
	e.WriteString(r.Password)
}

func (r *LoginRequest) decode(d *Decoder) (err error) {
	if r.Username, err = d.ReadString(); err != nil {
		return err
	}
	r.Password, err = d.ReadString()
	return err
}

func (r *AddEventRequest) encode(e *Encoder) {
	e.WriteString(r.Product)
	e.WriteInt64(r.Quantity)
	e.WriteFloat64(r.Price)
}

func (r *AddEventRequest) decode(d *Decoder) (err error) {
	if r.Product, err = d.ReadString(); err != nil {
		return err
	}
	if r.Quantity, err = d.ReadInt64(); err != nil {
		return err
	}
	r.Price, err = d.ReadFloat64()
	return err
}

func (*NextDayRequest) encode(*Encoder)       {}
func (*NextDayRequest) decode(*Decoder) error { return nil }

func (r *AggregateRequest) encode(e *Encoder) {
	e.WriteString(r.Product)
	e.WriteInt32(r.DaysLookback)
}

func (r *AggregateRequest) decode(d *Decoder) (err error) {
	if r.Product, err = d.ReadString(); err != nil {
		return err
	}
	r.DaysLookback, err = d.ReadInt32()
	return err
}

func (r *GetEventsRequest) encode(e *Encoder) {
	e.WriteInt32(r.DayOffset)
	e.WriteInt32(int32(len(r.Products)))
	for _, p := range r.Products {
		e.WriteString(p)
	}
}

func (r *GetEventsRequest) decode(d *Decoder) (err error) {
	if r.DayOffset, err = d.ReadInt32(); err != nil {
		return err
	}
	n, err := d.ReadInt32()
	if err != nil {
		return err
	}
	if n < 0 || n > MaxProductsPerRequest {
		return fmt.Errorf("%w: product count %d", ErrMalformed, n)
	}
	r.Products = make([]string, 0, n)
	for i := int32(0); i < n; i++ {
		p, err := d.ReadString()
		if err != nil {
			return err
		}
		r.Products = append(r.Products, p)
	}
	return nil
}

func (r *WaitSimultaneousRequest) encode(e *Encoder) {
	e.WriteString(r.Product1)
	e.WriteString(r.Product2)
}

func (r *WaitSimultaneousRequest) decode(d *Decoder) (err error) {
	if r.Product1, err = d.ReadString(); err != nil {
		return err
	}
	r.Product2, err = d.ReadString()
	return err
}

func (r *WaitConsecutiveRequest) encode(e *Encoder) {
	e.WriteInt32(r.Count)
}

func (r *WaitConsecutiveRequest) decode(d *Decoder) (err error) {
	r.Count, err = d.ReadInt32()
	return err
}

func (*UnknownRequest) encode(*Encoder)       {}
func (*UnknownRequest) decode(*Decoder) error { return nil }

// ReadRequest reads one command code and its full payload.
// An io.EOF before the command code means the peer closed cleanly; a
// truncated payload yields io.ErrUnexpectedEOF.
func ReadRequest(d *Decoder) (Request, error) {
	code, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}

	var req Request
	switch cmd := Command(code); cmd {
	case CmdRegister:
		req = &RegisterRequest{}
	case CmdLogin:
		req = &LoginRequest{}
	case CmdAddEvent:
		req = &AddEventRequest{}
	case CmdNextDay:
		req = &NextDayRequest{}
	case CmdGetQuantity, CmdGetVolume, CmdGetPriceStats:
		req = &AggregateRequest{Cmd: cmd}
	case CmdGetEvents:
		req = &GetEventsRequest{}
	case CmdWaitSimultaneous:
		req = &WaitSimultaneousRequest{}
	case CmdWaitConsecutive:
		req = &WaitConsecutiveRequest{}
	default:
		return &UnknownRequest{Code: cmd}, nil
	}

	if err := req.decode(d); err != nil {
		return nil, unexpected(err)
	}
	return req, nil
}

// WriteRequest encodes req including its command code. It does not flush.
func WriteRequest(e *Encoder, req Request) error {
	e.WriteInt32(int32(req.Command()))
	req.encode(e)
	return e.Err()
}

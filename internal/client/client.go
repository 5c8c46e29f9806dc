// Package client is a synchronous client for the salestore wire protocol.
// Each method performs one request/response round trip.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/salestore/internal/model"
	"github.com/rickgao/salestore/internal/protocol"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("client closed")

// Client is a connection to a salestore server. It is safe for concurrent
// use; round trips are serialized.
type Client struct {
	conn net.Conn
	dec  *protocol.Decoder
	enc  *protocol.Encoder

	mu     sync.Mutex // serializes round trips
	closed atomic.Bool
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{
		conn: conn,
		dec:  protocol.NewDecoder(bufio.NewReader(conn)),
		enc:  protocol.NewEncoder(bufio.NewWriter(conn)),
	}
}

// Close closes the connection. A round trip in progress fails.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// Register creates an account and returns the server message.
func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	var msg string
	err := c.roundTrip(ctx, &protocol.RegisterRequest{Username: username, Password: password}, func(d *protocol.Decoder) (err error) {
		msg, err = d.ReadString()
		return err
	})
	return msg, err
}

// Login authenticates the connection and returns the server message.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var msg string
	err := c.roundTrip(ctx, &protocol.LoginRequest{Username: username, Password: password}, func(d *protocol.Decoder) (err error) {
		msg, err = d.ReadString()
		return err
	})
	return msg, err
}

// AddEvent records a sale on the current day.
func (c *Client) AddEvent(ctx context.Context, product string, quantity int64, price float64) error {
	return c.roundTrip(ctx, &protocol.AddEventRequest{Product: product, Quantity: quantity, Price: price}, func(d *protocol.Decoder) error {
		_, err := d.ReadString()
		return err
	})
}

// NextDay advances the server to the next day and returns it.
func (c *Client) NextDay(ctx context.Context) (int, error) {
	var day int32
	err := c.roundTrip(ctx, &protocol.NextDayRequest{}, func(d *protocol.Decoder) (err error) {
		day, err = d.ReadInt32()
		return err
	})
	return int(day), err
}

// Quantity returns the total quantity of product over the lookback window.
func (c *Client) Quantity(ctx context.Context, product string, daysLookback int) (int64, error) {
	var total int64
	err := c.roundTrip(ctx, aggregate(protocol.CmdGetQuantity, product, daysLookback), func(d *protocol.Decoder) (err error) {
		total, err = d.ReadInt64()
		return err
	})
	return total, err
}

// Volume returns the total price*quantity of product over the lookback window.
func (c *Client) Volume(ctx context.Context, product string, daysLookback int) (float64, error) {
	var total float64
	err := c.roundTrip(ctx, aggregate(protocol.CmdGetVolume, product, daysLookback), func(d *protocol.Decoder) (err error) {
		total, err = d.ReadFloat64()
		return err
	})
	return total, err
}

// PriceStats returns the price statistics of product over the lookback window.
func (c *Client) PriceStats(ctx context.Context, product string, daysLookback int) (model.PriceStats, error) {
	var stats model.PriceStats
	err := c.roundTrip(ctx, aggregate(protocol.CmdGetPriceStats, product, daysLookback), func(d *protocol.Decoder) (err error) {
		if stats.Average, err = d.ReadFloat64(); err != nil {
			return err
		}
		stats.Maximum, err = d.ReadFloat64()
		return err
	})
	return stats, err
}

// Events returns the events of the day dayOffset days before the current
// day, filtered to products. Timestamps are not transmitted.
func (c *Client) Events(ctx context.Context, dayOffset int, products ...string) ([]model.Event, error) {
	var events []model.Event
	req := &protocol.GetEventsRequest{DayOffset: int32(dayOffset), Products: products}
	err := c.roundTrip(ctx, req, func(d *protocol.Decoder) (err error) {
		events, err = protocol.ReadEvents(d)
		return err
	})
	return events, err
}

// WaitSimultaneous blocks until both products sold today or the server's
// wait timeout elapses.
func (c *Client) WaitSimultaneous(ctx context.Context, product1, product2 string) (bool, error) {
	var ok bool
	req := &protocol.WaitSimultaneousRequest{Product1: product1, Product2: product2}
	err := c.roundTrip(ctx, req, func(d *protocol.Decoder) (err error) {
		ok, err = d.ReadBool()
		return err
	})
	return ok, err
}

// WaitConsecutive blocks until some product sells count times in a row.
// Returns "" when the server's wait timeout elapses first.
func (c *Client) WaitConsecutive(ctx context.Context, count int) (string, error) {
	var product string
	err := c.roundTrip(ctx, &protocol.WaitConsecutiveRequest{Count: int32(count)}, func(d *protocol.Decoder) (err error) {
		product, err = d.ReadString()
		return err
	})
	return product, err
}

// Send issues an arbitrary request and returns the response status.
// Success payloads are left unread, so it is only useful for requests
// that fail or carry no payload.
func (c *Client) Send(ctx context.Context, req protocol.Request) error {
	return c.roundTrip(ctx, req, nil)
}

func aggregate(cmd protocol.Command, product string, daysLookback int) *protocol.AggregateRequest {
	return &protocol.AggregateRequest{Cmd: cmd, Product: product, DaysLookback: int32(daysLookback)}
}

// roundTrip writes req, reads the status and, on success, the payload.
// ctx bounds the whole exchange through the connection deadline.
func (c *Client) roundTrip(ctx context.Context, req protocol.Request, payload func(*protocol.Decoder) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	err := c.exchange(req, payload)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Client) exchange(req protocol.Request, payload func(*protocol.Decoder) error) error {
	if err := protocol.WriteRequest(c.enc, req); err != nil {
		return fmt.Errorf("write %s: %w", req.Command(), err)
	}
	if err := c.enc.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", req.Command(), err)
	}

	if err := protocol.ReadStatus(c.dec); err != nil {
		var serr *protocol.StatusError
		if errors.As(err, &serr) {
			return serr
		}
		return fmt.Errorf("read %s status: %w", req.Command(), err)
	}
	if payload == nil {
		return nil
	}
	if err := payload(c.dec); err != nil {
		return fmt.Errorf("read %s response: %w", req.Command(), err)
	}
	return nil
}

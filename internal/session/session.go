package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/salestore/internal/auth"
	"github.com/rickgao/salestore/internal/model"
	"github.com/rickgao/salestore/internal/protocol"
)

// Response messages.
const (
	msgRegistered       = "registration successful"
	msgUserExists       = "user already exists"
	msgInvalidUsername  = "invalid username"
	msgLoggedIn         = "login successful"
	msgBadCredentials   = "invalid username or password"
	msgEventAdded       = "event added"
	msgNotAuthenticated = "not authenticated"
	msgInvalidCount     = "count must be positive"
	msgInternal         = "internal error"
)

// Session serves one client connection.
type Session struct {
	id     string
	conn   net.Conn
	svc    *Services
	logger *slog.Logger

	r   *bufio.Reader
	dec *protocol.Decoder
	enc *protocol.Encoder

	user string // empty until LOGIN succeeds
}

// New creates a session for conn. The caller owns conn and closes it after
// Serve returns.
func New(conn net.Conn, svc *Services) *Session {
	id := uuid.NewString()
	r := bufio.NewReader(conn)
	return &Session{
		id:   id,
		conn: conn,
		svc:  svc,
		logger: svc.logger().With(
			"session", id,
			"remote", conn.RemoteAddr().String(),
		),
		r:   r,
		dec: protocol.NewDecoder(r),
		enc: protocol.NewEncoder(bufio.NewWriter(conn)),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// User returns the authenticated username, or "" before LOGIN.
func (s *Session) User() string {
	return s.user
}

// Serve reads and answers requests until the peer disconnects, the stream
// is corrupt or ctx is done. A clean disconnect returns nil.
func (s *Session) Serve(ctx context.Context) error {
	s.logger.Debug("session started")

	for {
		req, err := protocol.ReadRequest(s.dec)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				s.logger.Debug("session closed", "user", s.user)
				return nil
			}
			s.logger.Warn("session terminated", "user", s.user, "error", err)
			return fmt.Errorf("read request: %w", err)
		}

		s.handle(ctx, req)

		if err := s.enc.Flush(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("failed to write response",
				"command", req.Command().String(),
				"error", err,
			)
			return fmt.Errorf("write %s response: %w", req.Command(), err)
		}
	}
}

// handle writes the response to req into the encoder without flushing.
func (s *Session) handle(ctx context.Context, req protocol.Request) {
	cmd := req.Command()
	if !cmd.Known() {
		s.logger.Warn("unknown command", "code", int32(cmd))
		protocol.WriteError(s.enc, fmt.Sprintf("unknown command %d", int32(cmd)))
		return
	}
	if s.user == "" && !cmd.AllowedUnauthenticated() {
		protocol.WriteError(s.enc, msgNotAuthenticated)
		return
	}

	start := time.Now()
	defer func() {
		s.logger.Debug("handled request",
			"command", cmd.String(),
			"duration", time.Since(start),
		)
	}()

	switch r := req.(type) {
	case *protocol.RegisterRequest:
		s.register(r)
	case *protocol.LoginRequest:
		s.login(r)
	case *protocol.AddEventRequest:
		s.svc.Registry.AddEvent(r.Product, r.Quantity, r.Price)
		protocol.WriteSuccess(s.enc)
		s.enc.WriteString(msgEventAdded)
	case *protocol.NextDayRequest:
		day := s.svc.Registry.AdvanceDay(ctx)
		protocol.WriteSuccess(s.enc)
		s.enc.WriteInt32(int32(day))
	case *protocol.AggregateRequest:
		s.aggregate(ctx, r)
	case *protocol.GetEventsRequest:
		s.events(ctx, r)
	case *protocol.WaitSimultaneousRequest:
		s.waitSimultaneous(ctx, r)
	case *protocol.WaitConsecutiveRequest:
		s.waitConsecutive(ctx, r)
	default:
		protocol.WriteError(s.enc, fmt.Sprintf("unsupported command %s", cmd))
	}
}

func (s *Session) register(r *protocol.RegisterRequest) {
	err := s.svc.Users.Register(r.Username, r.Password)
	switch {
	case err == nil:
		s.logger.Info("user registered", "user", r.Username)
		protocol.WriteSuccess(s.enc)
		s.enc.WriteString(msgRegistered)
	case errors.Is(err, auth.ErrUserExists):
		protocol.WriteError(s.enc, msgUserExists)
	case errors.Is(err, auth.ErrInvalidUsername):
		protocol.WriteError(s.enc, msgInvalidUsername)
	default:
		s.logger.Error("failed to register user", "user", r.Username, "error", err)
		protocol.WriteError(s.enc, msgInternal)
	}
}

func (s *Session) login(r *protocol.LoginRequest) {
	if !s.svc.Users.Authenticate(r.Username, r.Password) {
		s.logger.Info("login failed", "user", r.Username)
		protocol.WriteError(s.enc, msgBadCredentials)
		return
	}
	s.user = r.Username
	s.logger.Info("user logged in", "user", r.Username)
	protocol.WriteSuccess(s.enc)
	s.enc.WriteString(msgLoggedIn)
}

func (s *Session) aggregate(ctx context.Context, r *protocol.AggregateRequest) {
	reg := s.svc.Registry
	lookback := int(r.DaysLookback)

	switch r.Cmd {
	case protocol.CmdGetQuantity:
		total, err := reg.QuantityOverLastNDays(ctx, r.Product, lookback)
		if s.failed(r.Cmd, err) {
			return
		}
		protocol.WriteSuccess(s.enc)
		s.enc.WriteInt64(total)
	case protocol.CmdGetVolume:
		total, err := reg.VolumeOverLastNDays(ctx, r.Product, lookback)
		if s.failed(r.Cmd, err) {
			return
		}
		protocol.WriteSuccess(s.enc)
		s.enc.WriteFloat64(total)
	case protocol.CmdGetPriceStats:
		stats, err := reg.PriceStatsOverLastNDays(ctx, r.Product, lookback)
		if s.failed(r.Cmd, err) {
			return
		}
		protocol.WriteSuccess(s.enc)
		s.enc.WriteFloat64(stats.Average)
		s.enc.WriteFloat64(stats.Maximum)
	}
}

func (s *Session) events(ctx context.Context, r *protocol.GetEventsRequest) {
	events, err := s.svc.Registry.EventsForDay(ctx, int(r.DayOffset), model.NewProductSet(r.Products...))
	if s.failed(protocol.CmdGetEvents, err) {
		return
	}
	protocol.WriteSuccess(s.enc)
	protocol.WriteEvents(s.enc, events)
}

func (s *Session) waitSimultaneous(ctx context.Context, r *protocol.WaitSimultaneousRequest) {
	wctx, stop := s.watch(ctx)
	ok := s.svc.Hub.WaitForSimultaneous(wctx, r.Product1, r.Product2, s.svc.waitTimeout())
	stop()

	protocol.WriteSuccess(s.enc)
	s.enc.WriteBool(ok)
}

func (s *Session) waitConsecutive(ctx context.Context, r *protocol.WaitConsecutiveRequest) {
	if r.Count < 1 {
		protocol.WriteError(s.enc, msgInvalidCount)
		return
	}

	wctx, stop := s.watch(ctx)
	product, _ := s.svc.Hub.WaitForConsecutive(wctx, int(r.Count), s.svc.waitTimeout())
	stop()

	protocol.WriteSuccess(s.enc)
	s.enc.WriteString(product)
}

// failed writes an ERROR response and reports true when err is non-nil.
func (s *Session) failed(cmd protocol.Command, err error) bool {
	if err == nil {
		return false
	}
	s.logger.Error("request failed", "command", cmd.String(), "error", err)
	protocol.WriteError(s.enc, msgInternal)
	return true
}

// watch returns a context that is cancelled when ctx is done or the peer
// closes the connection during a blocking wait. The returned stop function
// must be called before the next read from the connection.
func (s *Session) watch(ctx context.Context) (context.Context, func()) {
	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		if _, err := s.r.Peek(1); err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			cancel()
		}
	}()

	return wctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
		<-done
		_ = s.conn.SetReadDeadline(time.Time{})
		cancel()
	}
}

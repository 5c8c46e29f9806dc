package session

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/salestore/internal/auth"
	"github.com/rickgao/salestore/internal/client"
	"github.com/rickgao/salestore/internal/notify"
	"github.com/rickgao/salestore/internal/protocol"
	"github.com/rickgao/salestore/internal/series"
)

func newTestServices(t *testing.T, waitTimeout time.Duration) *Services {
	t.Helper()

	dir := t.TempDir()
	archive, err := series.NewFileArchive(dir)
	if err != nil {
		t.Fatalf("NewFileArchive() error = %v", err)
	}
	users, err := auth.Open(filepath.Join(dir, auth.UsersFile), nil)
	if err != nil {
		t.Fatalf("auth.Open() error = %v", err)
	}

	hub := notify.NewHub()
	reg := series.NewRegistry(series.Config{MaxDays: 30, MaxInMemory: 5}, archive, series.WithObservers(hub))

	return &Services{
		Registry:    reg,
		Users:       users,
		Hub:         hub,
		WaitTimeout: waitTimeout,
	}
}

// startSession serves one end of a pipe and returns the other end.
// The returned channel receives Serve's result.
func startSession(t *testing.T, svc *Services) (net.Conn, <-chan error) {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		err := New(serverConn, svc).Serve(ctx)
		serverConn.Close()
		done <- err
	}()

	t.Cleanup(func() {
		cancel()
		clientConn.Close()
	})
	return clientConn, done
}

func newClient(t *testing.T, svc *Services) *client.Client {
	t.Helper()
	conn, _ := startSession(t, svc)
	c := client.New(conn)
	t.Cleanup(func() { c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func login(t *testing.T, ctx context.Context, c *client.Client, name string) {
	t.Helper()
	if _, err := c.Register(ctx, name, "secret"); err != nil {
		var serr *protocol.StatusError
		if !errors.As(err, &serr) || serr.Message != msgUserExists {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}
	if _, err := c.Login(ctx, name, "secret"); err != nil {
		t.Fatalf("Login(%s) error = %v", name, err)
	}
}

func wantStatusError(t *testing.T, err error, want string) {
	t.Helper()
	var serr *protocol.StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want StatusError %q", err, want)
	}
	if !strings.Contains(serr.Message, want) {
		t.Errorf("error message = %q, want %q", serr.Message, want)
	}
}

func TestSession_RejectsUnauthenticated(t *testing.T) {
	svc := newTestServices(t, time.Second)
	c := newClient(t, svc)
	ctx := testContext(t)

	err := c.AddEvent(ctx, "Milk", 10, 2.0)
	wantStatusError(t, err, msgNotAuthenticated)

	_, err = c.NextDay(ctx)
	wantStatusError(t, err, msgNotAuthenticated)

	_, err = c.Quantity(ctx, "Milk", 0)
	wantStatusError(t, err, msgNotAuthenticated)

	store, err := svc.Registry.Day(ctx, 0)
	if err != nil {
		t.Fatalf("Day(0) error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("day 0 has %d events after rejected ADD_EVENT", store.Len())
	}
	if svc.Registry.CurrentDay() != 0 {
		t.Errorf("CurrentDay() = %d after rejected NEXT_DAY", svc.Registry.CurrentDay())
	}

	// The connection stays usable.
	login(t, ctx, c, "alice")
	if err := c.AddEvent(ctx, "Milk", 10, 2.0); err != nil {
		t.Fatalf("AddEvent() after login error = %v", err)
	}
}

func TestSession_RegisterAndLogin(t *testing.T) {
	svc := newTestServices(t, time.Second)
	c := newClient(t, svc)
	ctx := testContext(t)

	msg, err := c.Register(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if msg != msgRegistered {
		t.Errorf("Register() = %q, want %q", msg, msgRegistered)
	}

	_, err = c.Register(ctx, "alice", "other")
	wantStatusError(t, err, msgUserExists)

	_, err = c.Register(ctx, "a:b", "pw")
	wantStatusError(t, err, msgInvalidUsername)

	_, err = c.Login(ctx, "alice", "wrong")
	wantStatusError(t, err, msgBadCredentials)

	_, err = c.Login(ctx, "bob", "pw")
	wantStatusError(t, err, msgBadCredentials)

	msg, err = c.Login(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if msg != msgLoggedIn {
		t.Errorf("Login() = %q, want %q", msg, msgLoggedIn)
	}
}

func TestSession_Scenario(t *testing.T) {
	svc := newTestServices(t, time.Second)
	c := newClient(t, svc)
	ctx := testContext(t)
	login(t, ctx, c, "alice")

	if err := c.AddEvent(ctx, "Milk", 10, 2.0); err != nil {
		t.Fatalf("AddEvent(Milk) error = %v", err)
	}
	if err := c.AddEvent(ctx, "Bread", 5, 1.5); err != nil {
		t.Fatalf("AddEvent(Bread) error = %v", err)
	}

	qty, err := c.Quantity(ctx, "Milk", 0)
	if err != nil || qty != 10 {
		t.Errorf("Quantity(Milk, 0) = %d, %v; want 10", qty, err)
	}
	vol, err := c.Volume(ctx, "Bread", 0)
	if err != nil || vol != 7.5 {
		t.Errorf("Volume(Bread, 0) = %v, %v; want 7.5", vol, err)
	}

	day, err := c.NextDay(ctx)
	if err != nil || day != 1 {
		t.Fatalf("NextDay() = %d, %v; want 1", day, err)
	}

	qty, err = c.Quantity(ctx, "Milk", 1)
	if err != nil || qty != 10 {
		t.Errorf("Quantity(Milk, 1) = %d, %v; want 10", qty, err)
	}
	qty, err = c.Quantity(ctx, "Milk", 0)
	if err != nil || qty != 0 {
		t.Errorf("Quantity(Milk, 0) on day 1 = %d, %v; want 0", qty, err)
	}
}

func TestSession_PriceStats(t *testing.T) {
	svc := newTestServices(t, time.Second)
	c := newClient(t, svc)
	ctx := testContext(t)
	login(t, ctx, c, "alice")

	for _, price := range []float64{2, 4} {
		if err := c.AddEvent(ctx, "Eggs", 1, price); err != nil {
			t.Fatalf("AddEvent() error = %v", err)
		}
	}
	if _, err := c.NextDay(ctx); err != nil {
		t.Fatalf("NextDay() error = %v", err)
	}
	if err := c.AddEvent(ctx, "Eggs", 1, 9); err != nil {
		t.Fatalf("AddEvent() error = %v", err)
	}

	stats, err := c.PriceStats(ctx, "Eggs", 1)
	if err != nil {
		t.Fatalf("PriceStats() error = %v", err)
	}
	// Mean of the daily averages 3 and 9.
	if stats.Average != 6 || stats.Maximum != 9 {
		t.Errorf("PriceStats() = %+v, want {Average:6 Maximum:9}", stats)
	}

	stats, err = c.PriceStats(ctx, "Nothing", 1)
	if err != nil {
		t.Fatalf("PriceStats(Nothing) error = %v", err)
	}
	if stats.Average != 0 || stats.Maximum != 0 {
		t.Errorf("PriceStats(Nothing) = %+v, want zero", stats)
	}
}

func TestSession_Events(t *testing.T) {
	svc := newTestServices(t, time.Second)
	c := newClient(t, svc)
	ctx := testContext(t)
	login(t, ctx, c, "alice")

	for _, p := range []string{"Milk", "Bread", "Milk", "Jam"} {
		if err := c.AddEvent(ctx, p, 1, 1.0); err != nil {
			t.Fatalf("AddEvent(%s) error = %v", p, err)
		}
	}

	events, err := c.Events(ctx, 0, "Milk", "Jam")
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	var got []string
	for _, ev := range events {
		got = append(got, ev.Product)
	}
	if strings.Join(got, ",") != "Milk,Milk,Jam" {
		t.Errorf("Events() products = %v, want [Milk Milk Jam]", got)
	}

	events, err = c.Events(ctx, 5, "Milk")
	if err != nil {
		t.Fatalf("Events(offset 5) error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Events(offset 5) = %v, want empty", events)
	}
}

func TestSession_UnknownCommandKeepsConnection(t *testing.T) {
	svc := newTestServices(t, time.Second)
	c := newClient(t, svc)
	ctx := testContext(t)

	err := c.Send(ctx, &protocol.UnknownRequest{Code: 99})
	wantStatusError(t, err, "unknown command 99")

	login(t, ctx, c, "alice")

	err = c.Send(ctx, &protocol.UnknownRequest{Code: 12})
	wantStatusError(t, err, "unknown command 12")

	if _, err := c.NextDay(ctx); err != nil {
		t.Errorf("NextDay() after unknown command error = %v", err)
	}
}

func TestSession_WaitSimultaneous(t *testing.T) {
	svc := newTestServices(t, 5*time.Second)
	waiter := newClient(t, svc)
	seller := newClient(t, svc)
	ctx := testContext(t)
	login(t, ctx, waiter, "alice")
	login(t, ctx, seller, "bob")

	result := make(chan bool, 1)
	go func() {
		ok, err := waiter.WaitSimultaneous(ctx, "A", "B")
		if err != nil {
			t.Errorf("WaitSimultaneous() error = %v", err)
		}
		result <- ok
	}()
	waitForWaiters(t, svc.Hub, 1)

	if err := seller.AddEvent(ctx, "A", 1, 1); err != nil {
		t.Fatalf("AddEvent(A) error = %v", err)
	}
	if err := seller.AddEvent(ctx, "B", 1, 1); err != nil {
		t.Fatalf("AddEvent(B) error = %v", err)
	}

	select {
	case ok := <-result:
		if !ok {
			t.Error("WaitSimultaneous() = false, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by sales on another connection")
	}

	// Already satisfied: answered without blocking.
	ok, err := waiter.WaitSimultaneous(ctx, "B", "A")
	if err != nil || !ok {
		t.Errorf("WaitSimultaneous() = %v, %v; want true", ok, err)
	}
}

func TestSession_WaitConsecutive(t *testing.T) {
	svc := newTestServices(t, 50*time.Millisecond)
	c := newClient(t, svc)
	ctx := testContext(t)
	login(t, ctx, c, "alice")

	product, err := c.WaitConsecutive(ctx, 2)
	if err != nil {
		t.Fatalf("WaitConsecutive() error = %v", err)
	}
	if product != "" {
		t.Errorf("WaitConsecutive() = %q on timeout, want empty", product)
	}

	for range 3 {
		if err := c.AddEvent(ctx, "X", 1, 1); err != nil {
			t.Fatalf("AddEvent() error = %v", err)
		}
	}
	product, err = c.WaitConsecutive(ctx, 3)
	if err != nil || product != "X" {
		t.Errorf("WaitConsecutive(3) = %q, %v; want X", product, err)
	}

	_, err = c.WaitConsecutive(ctx, 0)
	wantStatusError(t, err, msgInvalidCount)

	// NEXT_DAY resets the streaks.
	if _, err := c.NextDay(ctx); err != nil {
		t.Fatalf("NextDay() error = %v", err)
	}
	product, err = c.WaitConsecutive(ctx, 1)
	if err != nil || product != "" {
		t.Errorf("WaitConsecutive(1) after NextDay = %q, %v; want empty", product, err)
	}
}

func TestSession_DisconnectReleasesWaiter(t *testing.T) {
	svc := newTestServices(t, time.Minute)
	conn, done := startSession(t, svc)
	c := client.New(conn)
	ctx := testContext(t)
	login(t, ctx, c, "alice")

	go func() {
		_, _ = c.WaitSimultaneous(context.Background(), "A", "B")
	}()
	waitForWaiters(t, svc.Hub, 1)

	c.Close()

	waitForWaiters(t, svc.Hub, 0)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after disconnect")
	}
}

func TestSession_TruncatedRequestEndsSession(t *testing.T) {
	svc := newTestServices(t, time.Second)
	conn, done := startSession(t, svc)

	w := bufio.NewWriter(conn)
	_ = binary.Write(w, binary.BigEndian, int32(protocol.CmdRegister))
	_ = binary.Write(w, binary.BigEndian, uint16(5))
	_, _ = w.WriteString("al")
	if err := w.Flush(); err != nil {
		t.Fatalf("write partial request: %v", err)
	}
	conn.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("Serve() error = %v, want ErrUnexpectedEOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	if svc.Users.Len() != 0 {
		t.Errorf("Users.Len() = %d after truncated REGISTER", svc.Users.Len())
	}
}

func TestSession_CleanDisconnect(t *testing.T) {
	svc := newTestServices(t, time.Second)
	conn, done := startSession(t, svc)
	conn.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}

func waitForWaiters(t *testing.T, h *notify.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Waiters() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Waiters() = %d, want %d", h.Waiters(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSession_Identity(t *testing.T) {
	svc := newTestServices(t, time.Second)
	ctx := testContext(t)

	serverConn, clientConn := net.Pipe()
	sess := New(serverConn, svc)
	if _, err := uuid.Parse(sess.ID()); err != nil {
		t.Errorf("ID() = %q, not a UUID: %v", sess.ID(), err)
	}
	if other := New(serverConn, svc); other.ID() == sess.ID() {
		t.Errorf("two sessions share ID %q", sess.ID())
	}
	if sess.User() != "" {
		t.Errorf("User() = %q before login, want empty", sess.User())
	}

	done := make(chan error, 1)
	go func() { done <- sess.Serve(ctx) }()

	c := client.New(clientConn)
	login(t, ctx, c, "alice")
	c.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after disconnect")
	}
	serverConn.Close()

	if sess.User() != "alice" {
		t.Errorf("User() = %q after login, want alice", sess.User())
	}
}

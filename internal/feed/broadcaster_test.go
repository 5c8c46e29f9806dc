package feed

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/salestore/internal/model"
)

func startFeed(t *testing.T, cfg Config) (*Broadcaster, string) {
	t.Helper()
	b := NewBroadcaster(cfg, nil)
	server := httptest.NewServer(b)
	t.Cleanup(func() {
		b.Close()
		server.Close()
	})
	return b, "ws" + strings.TrimPrefix(server.URL, "http")
}

func subscribe(t *testing.T, b *Broadcaster, url string) *websocket.Conn {
	t.Helper()

	want := b.Stats().Subscribers + 1
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(time.Second)
	for b.Stats().Subscribers < want {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not registered")
		}
		time.Sleep(time.Millisecond)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", data, err)
	}
	return msg
}

func TestBroadcaster_DeliversSalesAndDays(t *testing.T) {
	b, url := startFeed(t, DefaultConfig())
	conn := subscribe(t, b, url)

	b.OnEvent(3, model.Event{Product: "Milk", Quantity: 10, Price: 2.5, Timestamp: 1700000000000})
	b.OnDayAdvance(4)

	sale := readMessage(t, conn)
	want := Message{Type: TypeSale, Day: 3, Product: "Milk", Quantity: 10, Price: 2.5, Timestamp: 1700000000000}
	if sale != want {
		t.Errorf("sale message = %+v, want %+v", sale, want)
	}

	day := readMessage(t, conn)
	if day.Type != TypeDay || day.Day != 4 {
		t.Errorf("day message = %+v, want type day, day 4", day)
	}
}

func TestBroadcaster_FansOut(t *testing.T) {
	b, url := startFeed(t, DefaultConfig())
	first := subscribe(t, b, url)
	second := subscribe(t, b, url)

	b.OnEvent(0, model.Event{Product: "Jam", Quantity: 1, Price: 3})

	for _, conn := range []*websocket.Conn{first, second} {
		if msg := readMessage(t, conn); msg.Product != "Jam" {
			t.Errorf("message = %+v, want Jam sale", msg)
		}
	}
	if got := b.Stats().Published; got != 1 {
		t.Errorf("Published = %d, want 1", got)
	}
}

func TestBroadcaster_PublishWithoutSubscribers(t *testing.T) {
	b := NewBroadcaster(DefaultConfig(), nil)
	b.OnEvent(0, model.Event{Product: "Milk", Quantity: 1, Price: 1})
	b.OnDayAdvance(1)

	stats := b.Stats()
	if stats.Published != 2 || stats.Dropped != 0 {
		t.Errorf("Stats() = %+v, want 2 published, 0 dropped", stats)
	}
}

func TestBroadcaster_FullQueueDrops(t *testing.T) {
	b := NewBroadcaster(Config{BufferSize: 2}, nil)

	// A subscriber with no writer draining its queue.
	sub := &subscriber{send: make(chan []byte, 2), done: make(chan struct{})}
	b.add(sub)

	for i := 0; i < 5; i++ {
		b.OnEvent(0, model.Event{Product: "Milk", Quantity: 1, Price: 1})
	}

	if got := b.Stats().Dropped; got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
	if len(sub.send) != 2 {
		t.Errorf("queued = %d, want 2", len(sub.send))
	}
}

func TestBroadcaster_UnsubscribeOnDisconnect(t *testing.T) {
	b, url := startFeed(t, DefaultConfig())
	conn := subscribe(t, b, url)

	conn.Close()

	deadline := time.Now().Add(time.Second)
	for b.Stats().Subscribers != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Subscribers = %d after disconnect, want 0", b.Stats().Subscribers)
		}
		time.Sleep(time.Millisecond)
	}
}

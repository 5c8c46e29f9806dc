// Package feed pushes sales and day changes to WebSocket subscribers.
package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/salestore/internal/model"
)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Broadcaster is a series observer that fans messages out to WebSocket
// subscribers. Publishing never blocks: a subscriber whose queue is full
// misses the message.
type Broadcaster struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[*subscriber]struct{}

	published atomic.Int64
	dropped   atomic.Int64
}

// NewBroadcaster creates a broadcaster.
func NewBroadcaster(cfg Config, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}

	return &Broadcaster{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// OnEvent implements series.Observer.
func (b *Broadcaster) OnEvent(day int, ev model.Event) {
	b.publish(saleMessage(day, ev))
}

// OnDayAdvance implements series.Observer.
func (b *Broadcaster) OnDayAdvance(day int) {
	b.publish(Message{Type: TypeDay, Day: day})
}

func (b *Broadcaster) publish(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to encode feed message", "error", err)
		return
	}
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.send <- data:
		default:
			b.dropped.Add(1)
		}
	}
}

// ServeHTTP upgrades the request and streams messages until the client
// disconnects or the broadcaster is closed.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("feed upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, b.cfg.BufferSize),
		done: make(chan struct{}),
	}
	b.add(sub)
	b.logger.Debug("feed subscriber connected", "remote", r.RemoteAddr)

	go b.writeLoop(sub)

	// Subscribers do not send data; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.remove(sub)
	close(sub.done)
	conn.Close()
	b.logger.Debug("feed subscriber disconnected", "remote", r.RemoteAddr)
}

func (b *Broadcaster) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(b.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return
		case data := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				sub.conn.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(b.cfg.WriteTimeout)
			if err := sub.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				sub.conn.Close()
				return
			}
		}
	}
}

func (b *Broadcaster) add(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[sub] = struct{}{}
}

func (b *Broadcaster) remove(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

// Close disconnects every subscriber.
func (b *Broadcaster) Close() {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		deadline := time.Now().Add(time.Second)
		sub.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			deadline,
		)
		sub.conn.Close()
	}
}

// Stats returns broadcaster statistics.
func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()

	return Stats{
		Subscribers: n,
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
	}
}

package feed

import (
	"time"

	"github.com/rickgao/salestore/internal/model"
)

// Message types.
const (
	TypeSale = "sale"
	TypeDay  = "day"
)

// Message is one JSON frame pushed to subscribers.
type Message struct {
	Type      string  `json:"type"`
	Day       int     `json:"day"`
	Product   string  `json:"product,omitempty"`
	Quantity  int64   `json:"quantity,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"` // unix milliseconds
}

func saleMessage(day int, ev model.Event) Message {
	return Message{
		Type:      TypeSale,
		Day:       day,
		Product:   ev.Product,
		Quantity:  ev.Quantity,
		Price:     ev.Price,
		Timestamp: ev.Timestamp,
	}
}

// Config holds broadcaster settings.
type Config struct {
	BufferSize   int           // per-subscriber queue; full queues drop messages
	WriteTimeout time.Duration // per-frame write deadline
	PingInterval time.Duration // keepalive ping period
}

// DefaultConfig returns default broadcaster settings.
func DefaultConfig() Config {
	return Config{
		BufferSize:   256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Stats contains broadcaster statistics.
type Stats struct {
	Subscribers int
	Published   int64
	Dropped     int64
}

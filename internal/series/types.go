package series

import (
	"context"
	"errors"

	"github.com/rickgao/salestore/internal/model"
)

// Errors
var (
	ErrDayNotFound = errors.New("day not found")
	ErrCorruptDay  = errors.New("corrupt day file")
)

// AggregateStore is a concurrency-safe view of one day's events.
// *DayStore is the only implementation; aggregation code depends on this
// interface so each day carries its own lock.
type AggregateStore interface {
	Day() int
	Len() int
	Events() []model.Event
	EventsFor(products model.ProductSet) []model.Event
	Quantity(product string, asOfDay int) int64
	Volume(product string, asOfDay int) float64
	PriceStats(product string, asOfDay int) model.PriceStats
}

// Observer is notified of registry mutations. Callbacks run inside the
// registry's critical sections and must not block or call back into the Registry.
type Observer interface {
	// OnEvent is called after ev was appended to day.
	OnEvent(day int, ev model.Event)

	// OnDayAdvance is called once per advance with the new current day.
	OnDayAdvance(day int)
}

// Archive stores evicted days. Implementations must be safe for concurrent use.
type Archive interface {
	// Store persists the full event list of a day, replacing any previous copy.
	// A failed Store must not leave a partially written day behind.
	Store(ctx context.Context, day int, events []model.Event) error

	// Load returns the events of a stored day, or ErrDayNotFound.
	Load(ctx context.Context, day int) ([]model.Event, error)

	// LastDay returns the highest stored day. ok is false when nothing is stored.
	LastDay(ctx context.Context) (day int, ok bool, err error)
}

// Config holds Registry configuration.
type Config struct {
	MaxDays     int // Advisory retention horizon, reported only
	MaxInMemory int // Hard cap on resident days
}

// DefaultConfig returns the default registry settings.
func DefaultConfig() Config {
	return Config{
		MaxDays:     30,
		MaxInMemory: 5,
	}
}

// Stats contains registry statistics.
type Stats struct {
	CurrentDay       int
	ResidentDays     []int
	Evictions        int64
	EvictionFailures int64
	MaxDays          int
	MaxInMemory      int
}

// CacheStats counts aggregate cache lookups on a DayStore.
type CacheStats struct {
	Hits   int64
	Misses int64
}

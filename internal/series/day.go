package series

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/rickgao/salestore/internal/model"
)

// cached is an aggregate value tagged with the day it was computed at.
type cached[T any] struct {
	value T
	day   int
}

// DayStore holds all events of one logical day.
//
// Events are append-only. Aggregates are computed lazily per product and
// cached with the asOfDay they were requested for; appending an event for a
// product drops that product's cache entries.
type DayStore struct {
	day int

	mu     sync.RWMutex
	events []model.Event

	quantityCache   map[string]cached[int64]
	volumeCache     map[string]cached[float64]
	priceStatsCache map[string]cached[model.PriceStats]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewDayStore creates an empty store for day.
func NewDayStore(day int) *DayStore {
	return &DayStore{
		day:             day,
		quantityCache:   make(map[string]cached[int64]),
		volumeCache:     make(map[string]cached[float64]),
		priceStatsCache: make(map[string]cached[model.PriceStats]),
	}
}

// newDayStoreFrom rebuilds a store from persisted events.
func newDayStoreFrom(day int, events []model.Event) *DayStore {
	s := NewDayStore(day)
	s.events = append(make([]model.Event, 0, len(events)), events...)
	return s
}

var _ AggregateStore = (*DayStore)(nil)

// Day returns the day number.
func (s *DayStore) Day() int {
	return s.day
}

// Len returns the number of events.
func (s *DayStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Append adds an event and invalidates the cached aggregates of its product.
func (s *DayStore) Append(ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
	delete(s.quantityCache, ev.Product)
	delete(s.volumeCache, ev.Product)
	delete(s.priceStatsCache, ev.Product)
}

// Events returns a copy of all events in arrival order.
func (s *DayStore) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Event(nil), s.events...)
}

// EventsFor returns the events whose product is in products, in arrival order.
func (s *DayStore) EventsFor(products model.ProductSet) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Event, 0)
	for _, ev := range s.events {
		if products.Contains(ev.Product) {
			result = append(result, ev)
		}
	}
	return result
}

// Quantity returns the total quantity sold of product on this day.
func (s *DayStore) Quantity(product string, asOfDay int) int64 {
	return lookup(s, s.quantityCache, product, asOfDay, func() int64 {
		var total int64
		for _, ev := range s.events {
			if ev.Product == product {
				total += ev.Quantity
			}
		}
		return total
	})
}

// Volume returns the total price*quantity of product on this day.
func (s *DayStore) Volume(product string, asOfDay int) float64 {
	return lookup(s, s.volumeCache, product, asOfDay, func() float64 {
		var total float64
		for _, ev := range s.events {
			if ev.Product == product {
				total += ev.Volume()
			}
		}
		return total
	})
}

// PriceStats returns the average and maximum unit price of product on this day.
// Without sales the average is 0 and the maximum is -math.MaxFloat64.
func (s *DayStore) PriceStats(product string, asOfDay int) model.PriceStats {
	return lookup(s, s.priceStatsCache, product, asOfDay, func() model.PriceStats {
		var sum float64
		var count int64
		maximum := -math.MaxFloat64
		for _, ev := range s.events {
			if ev.Product == product {
				sum += ev.Price
				maximum = math.Max(maximum, ev.Price)
				count++
			}
		}
		stats := model.PriceStats{Maximum: maximum}
		if count > 0 {
			stats.Average = sum / float64(count)
		}
		return stats
	})
}

// CacheStats returns cache hit/miss counters.
func (s *DayStore) CacheStats() CacheStats {
	return CacheStats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}

// lookup serves a cache entry computed at asOfDay, or recomputes it under the
// write lock. Concurrent misses may both recompute; the last writer wins.
func lookup[T any](s *DayStore, cache map[string]cached[T], product string, asOfDay int, compute func() T) T {
	s.mu.RLock()
	c, ok := cache[product]
	s.mu.RUnlock()
	if ok && c.day == asOfDay {
		s.hits.Add(1)
		return c.value
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.misses.Add(1)

	v := compute()
	cache[product] = cached[T]{value: v, day: asOfDay}
	return v
}

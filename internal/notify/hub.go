// Package notify tracks today's sales and lets callers block until a
// cross-product or streak condition holds.
//
// The Hub is a monitor: one mutex guards all state and one condition
// variable is broadcast on every mutation. Waiters re-check their predicate
// in a loop against their own deadline.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rickgao/salestore/internal/model"
)

// Hub holds the sales state of the current day.
type Hub struct {
	mu   sync.Mutex
	cond *sync.Cond

	sold   map[string]struct{} // products with at least one sale today
	last   string              // most recently sold product
	streak int                 // consecutive sales of last; 0 before the first sale

	waiters int
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	h := &Hub{sold: make(map[string]struct{})}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// RecordSale registers a sale of product and wakes all waiters.
// A sale of the last sold product extends its streak; any other product
// starts a new streak of 1.
func (h *Hub) RecordSale(product string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sold[product] = struct{}{}
	if h.streak > 0 && product == h.last {
		h.streak++
	} else {
		h.last = product
		h.streak = 1
	}

	h.cond.Broadcast()
}

// Reset clears all state for a new day and wakes all waiters.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clear(h.sold)
	h.last = ""
	h.streak = 0

	h.cond.Broadcast()
}

// OnEvent implements series.Observer.
func (h *Hub) OnEvent(_ int, ev model.Event) {
	h.RecordSale(ev.Product)
}

// OnDayAdvance implements series.Observer.
func (h *Hub) OnDayAdvance(int) {
	h.Reset()
}

// WaitForSimultaneous blocks until both p1 and p2 sold today, the timeout
// elapses or ctx is done. Returns whether both sold.
func (h *Hub) WaitForSimultaneous(ctx context.Context, p1, p2 string, timeout time.Duration) bool {
	return h.wait(ctx, timeout, func() bool {
		_, ok1 := h.sold[p1]
		_, ok2 := h.sold[p2]
		return ok1 && ok2
	})
}

// WaitForConsecutive blocks until the most recently sold product has a
// streak of at least count sales. Returns the product, or "" and false on
// timeout or cancellation.
func (h *Hub) WaitForConsecutive(ctx context.Context, count int, timeout time.Duration) (string, bool) {
	var product string
	ok := h.wait(ctx, timeout, func() bool {
		if h.streak > 0 && h.streak >= count {
			product = h.last
			return true
		}
		return false
	})
	return product, ok
}

// wait evaluates pred under the lock until it holds. A timeout <= 0 or an
// already satisfied predicate returns without blocking. The deadline timer
// and ctx cancellation broadcast so sleeping waiters notice them.
func (h *Hub) wait(ctx context.Context, timeout time.Duration, pred func() bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if pred() {
		return true
	}
	if timeout <= 0 || ctx.Err() != nil {
		return false
	}

	expired := false
	timer := time.AfterFunc(timeout, func() {
		h.mu.Lock()
		expired = true
		h.cond.Broadcast()
		h.mu.Unlock()
	})
	defer timer.Stop()

	stop := context.AfterFunc(ctx, func() {
		h.mu.Lock()
		h.cond.Broadcast()
		h.mu.Unlock()
	})
	defer stop()

	h.waiters++
	defer func() { h.waiters-- }()

	for !pred() {
		if expired || ctx.Err() != nil {
			return false
		}
		h.cond.Wait()
	}
	return true
}

// SoldToday reports whether product has sold since the last reset.
func (h *Hub) SoldToday(product string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sold[product]
	return ok
}

// Streak returns the current streak of product, which is 0 unless product
// was the most recent sale.
func (h *Hub) Streak(product string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streak == 0 || product != h.last {
		return 0
	}
	return h.streak
}

// Waiters returns the number of goroutines currently blocked in a wait.
func (h *Hub) Waiters() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waiters
}

package model

import "fmt"

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// Event represents a single sale. Events are immutable once created.
type Event struct {
	Product   string  // Product name
	Quantity  int64   // Units sold
	Price     float64 // Unit price
	Timestamp int64   // Server receive time (ms since epoch)
}

// Volume returns the monetary volume of the sale (price * quantity).
func (e Event) Volume() float64 {
	return e.Price * float64(e.Quantity)
}

// String formats the event for logs.
func (e Event) String() string {
	return fmt.Sprintf("Event{product=%s, qty=%d, price=%.2f, ts=%d}",
		e.Product, e.Quantity, e.Price, e.Timestamp)
}

// -----------------------------------------------------------------------------
// Aggregate Types
// -----------------------------------------------------------------------------

// PriceStats holds price statistics for a product.
type PriceStats struct {
	Average float64 // Mean unit price (0 when there were no sales)
	Maximum float64 // Highest unit price
}

// ProductSet is a set of product names used to filter events.
type ProductSet map[string]struct{}

// NewProductSet builds a ProductSet from names. Duplicates collapse.
func NewProductSet(names ...string) ProductSet {
	set := make(ProductSet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Contains reports whether name is in the set.
func (s ProductSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

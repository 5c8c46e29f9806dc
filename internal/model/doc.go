// Package model defines shared data types used across the sales event store.
//
// Conventions:
//   - Quantities: int64 units sold (not validated, negative values are stored as-is)
//   - Prices: float64 per-unit price
//   - Timestamps: int64 milliseconds since Unix epoch
//   - Days: int logical day numbers, starting at 0
package model

// Package series implements the per-day time-series store.
//
// Components:
//   - DayStore: all events of one logical day with lazily cached per-product aggregates
//   - Registry: the bounded set of resident days, day advance and FIFO eviction
//   - Archive: persistent storage for evicted days (FileArchive, or the
//     Postgres archive in package database)
//
// Each DayStore has its own RWMutex; the Registry's day map has another.
// A read of day D-1 never blocks a write to day D.
package series

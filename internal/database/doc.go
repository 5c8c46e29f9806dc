// Package database stores archived days in PostgreSQL.
//
// Two tables hold the archive:
//   - series_days: one row per stored day with its event count
//   - series_events: the events of each day in append order
//
// A day is written in a single transaction, so a reader sees either the
// previous contents of the day or the new ones.
package database

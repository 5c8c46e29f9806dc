// Package server accepts TCP connections and serves each one on a fixed
// pool of worker goroutines. Connections beyond the pool size wait in an
// unbounded queue until a worker frees up.
package server

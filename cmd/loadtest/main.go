// loadtest drives a salesd instance with concurrent clients and reports
// throughput and latency.
// Usage: go run ./cmd/loadtest -addr localhost:7575 -clients 50 -ops 1000 -read-ratio 0.5
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/salestore/internal/client"
)

// Config describes one load run.
type Config struct {
	Addr      string
	Clients   int
	Ops       int     // operations per client
	ReadRatio float64 // fraction of operations that are aggregate queries
	Products  []string
}

// Result summarizes a load run.
type Result struct {
	Ops      int
	Reads    int
	Writes   int
	Errors   int
	Duration time.Duration
	P50      time.Duration
	P99      time.Duration
}

// Throughput returns operations per second.
func (r Result) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Ops) / r.Duration.Seconds()
}

func main() {
	addr := flag.String("addr", "localhost:7575", "server address")
	clients := flag.Int("clients", 10, "concurrent clients")
	ops := flag.Int("ops", 1000, "operations per client")
	readRatio := flag.Float64("read-ratio", 0.5, "fraction of reads")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := Config{
		Addr:      *addr,
		Clients:   *clients,
		Ops:       *ops,
		ReadRatio: *readRatio,
		Products:  []string{"Milk", "Bread", "Eggs", "Butter", "Cheese", "Jam"},
	}

	logger.Info("starting load test",
		"addr", cfg.Addr,
		"clients", cfg.Clients,
		"ops_per_client", cfg.Ops,
		"read_ratio", cfg.ReadRatio,
	)

	res, err := run(ctx, cfg)
	if err != nil {
		logger.Error("load test failed", "error", err)
		os.Exit(1)
	}

	logger.Info("load test complete",
		"ops", res.Ops,
		"reads", res.Reads,
		"writes", res.Writes,
		"errors", res.Errors,
		"duration", res.Duration,
		"ops_per_sec", fmt.Sprintf("%.0f", res.Throughput()),
		"p50", res.P50,
		"p99", res.P99,
	)
}

// run connects cfg.Clients clients, each under its own fresh account, and
// issues cfg.Ops mixed operations per client.
func run(ctx context.Context, cfg Config) (Result, error) {
	var (
		mu        sync.Mutex
		res       Result
		latencies []time.Duration
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < cfg.Clients; i++ {
		g.Go(func() error {
			c, err := client.Dial(gctx, cfg.Addr)
			if err != nil {
				return err
			}
			defer c.Close()

			user := "load-" + uuid.NewString()
			if _, err := c.Register(gctx, user, "load"); err != nil {
				return fmt.Errorf("register %s: %w", user, err)
			}
			if _, err := c.Login(gctx, user, "load"); err != nil {
				return fmt.Errorf("login %s: %w", user, err)
			}

			var local Result
			var lat []time.Duration
			for n := 0; n < cfg.Ops; n++ {
				if gctx.Err() != nil {
					break
				}
				product := cfg.Products[rand.IntN(len(cfg.Products))]

				opStart := time.Now()
				if rand.Float64() < cfg.ReadRatio {
					_, err = c.Quantity(gctx, product, 1)
					local.Reads++
				} else {
					err = c.AddEvent(gctx, product, int64(1+rand.IntN(10)), 0.5+rand.Float64()*10)
					local.Writes++
				}
				lat = append(lat, time.Since(opStart))
				local.Ops++
				if err != nil {
					local.Errors++
				}
			}

			mu.Lock()
			res.Ops += local.Ops
			res.Reads += local.Reads
			res.Writes += local.Writes
			res.Errors += local.Errors
			latencies = append(latencies, lat...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res.Duration = time.Since(start)
	res.P50 = percentile(latencies, 0.50)
	res.P99 = percentile(latencies, 0.99)
	return res, nil
}

// percentile returns the p-th percentile of ds. ds is sorted in place.
func percentile(ds []time.Duration, p float64) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	slices.Sort(ds)
	idx := int(p * float64(len(ds)-1))
	return ds[idx]
}

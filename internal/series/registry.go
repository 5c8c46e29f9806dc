package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/salestore/internal/model"
)

// Registry owns the resident days, the current day counter and eviction.
type Registry struct {
	cfg       Config
	archive   Archive
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time

	mu               sync.RWMutex
	currentDay       int
	days             map[int]*DayStore
	order            dayQueue
	evictions        int64
	evictionFailures int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithObservers registers observers for events and day advances.
func WithObservers(obs ...Observer) Option {
	return func(r *Registry) {
		r.observers = append(r.observers, obs...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the wall clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a registry starting at day 0 with an empty resident day.
func NewRegistry(cfg Config, archive Archive, opts ...Option) *Registry {
	if cfg.MaxInMemory < 1 {
		cfg.MaxInMemory = 1
	}
	r := &Registry{
		cfg:     cfg,
		archive: archive,
		logger:  slog.Default(),
		now:     time.Now,
		days:    make(map[int]*DayStore),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.days[0] = NewDayStore(0)
	r.order.push(0)
	return r
}

// Open creates a registry that resumes from the archive: if days were stored
// by a previous run, the highest stored day becomes the current day and is
// loaded back as resident.
func Open(ctx context.Context, cfg Config, archive Archive, opts ...Option) (*Registry, error) {
	r := NewRegistry(cfg, archive, opts...)

	last, ok, err := archive.LastDay(ctx)
	if err != nil {
		return nil, fmt.Errorf("find last stored day: %w", err)
	}
	if !ok {
		return r, nil
	}

	events, err := archive.Load(ctx, last)
	if err != nil {
		return nil, fmt.Errorf("load day %d: %w", last, err)
	}

	r.currentDay = last
	r.days = map[int]*DayStore{last: newDayStoreFrom(last, events)}
	r.order = dayQueue{}
	r.order.push(last)

	r.logger.Info("resumed series from archive",
		"current_day", last,
		"events", len(events),
	)
	return r, nil
}

// CurrentDay returns the current logical day.
func (r *Registry) CurrentDay() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentDay
}

// MaxDays returns the advisory retention horizon.
func (r *Registry) MaxDays() int {
	return r.cfg.MaxDays
}

// AddEvent appends a new event, timestamped now, to the current day and
// notifies observers. The read lock keeps the day from advancing meanwhile,
// so observers never see a sale after the reset of the following day.
func (r *Registry) AddEvent(product string, quantity int64, price float64) model.Event {
	ev := model.Event{
		Product:   product,
		Quantity:  quantity,
		Price:     price,
		Timestamp: r.now().UnixMilli(),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	r.days[r.currentDay].Append(ev)
	for _, o := range r.observers {
		o.OnEvent(r.currentDay, ev)
	}
	return ev
}

// AdvanceDay moves to the next day and evicts the oldest resident days while
// more than MaxInMemory are resident. Returns the new current day.
func (r *Registry) AdvanceDay(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.currentDay++
	r.days[r.currentDay] = NewDayStore(r.currentDay)
	r.order.push(r.currentDay)

	for _, o := range r.observers {
		o.OnDayAdvance(r.currentDay)
	}

	r.evictLocked(ctx)

	r.logger.Info("day advanced",
		"current_day", r.currentDay,
		"resident", r.order.len(),
	)
	return r.currentDay
}

// evictLocked flushes the oldest resident days to the archive. A day whose
// write fails stays resident; the next advance retries it. Must be called
// with the write lock held.
func (r *Registry) evictLocked(ctx context.Context) {
	for r.order.len() > r.cfg.MaxInMemory {
		oldest, _ := r.order.front()
		if oldest == r.currentDay {
			return
		}
		store := r.days[oldest]

		if err := r.archive.Store(ctx, oldest, store.Events()); err != nil {
			r.evictionFailures++
			r.logger.Error("failed to evict day, keeping it resident",
				"day", oldest,
				"resident", r.order.len(),
				"max_in_memory", r.cfg.MaxInMemory,
				"error", err,
			)
			return
		}

		r.order.popFront()
		delete(r.days, oldest)
		r.evictions++

		r.logger.Debug("evicted day",
			"day", oldest,
			"events", store.Len(),
		)
	}
}

// Day returns the store for day: the resident instance, or a fresh instance
// rebuilt from the archive. Returns ErrDayNotFound when the day was never
// created or is absent from the archive.
func (r *Registry) Day(ctx context.Context, day int) (*DayStore, error) {
	r.mu.RLock()
	store, ok := r.days[day]
	current := r.currentDay
	r.mu.RUnlock()

	if ok {
		return store, nil
	}
	if day < 0 || day > current {
		return nil, ErrDayNotFound
	}

	events, err := r.archive.Load(ctx, day)
	if err != nil {
		if errors.Is(err, ErrDayNotFound) {
			return nil, ErrDayNotFound
		}
		r.logger.Error("failed to load day", "day", day, "error", err)
		return nil, fmt.Errorf("load day %d: %w", day, err)
	}
	return newDayStoreFrom(day, events), nil
}

// IsResident reports whether day is held in memory.
func (r *Registry) IsResident(day int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.days[day]
	return ok
}

// Flush writes every resident day to the archive without evicting it.
// Used at shutdown so the next Open can resume.
func (r *Registry) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, day := range r.order.snapshot() {
		if err := r.archive.Store(ctx, day, r.days[day].Events()); err != nil {
			errs = append(errs, fmt.Errorf("flush day %d: %w", day, err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of registry statistics.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		CurrentDay:       r.currentDay,
		ResidentDays:     r.order.snapshot(),
		Evictions:        r.evictions,
		EvictionFailures: r.evictionFailures,
		MaxDays:          r.cfg.MaxDays,
		MaxInMemory:      r.cfg.MaxInMemory,
	}
}

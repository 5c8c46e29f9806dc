package series

import (
	"context"
	"errors"

	"github.com/rickgao/salestore/internal/model"
)

// QuantityOverLastNDays sums the quantity of product over the current day and
// the daysLookback days before it. Missing days count as empty.
func (r *Registry) QuantityOverLastNDays(ctx context.Context, product string, daysLookback int) (int64, error) {
	current := r.CurrentDay()

	var total int64
	err := r.eachDay(ctx, current, daysLookback, func(s AggregateStore) {
		total += s.Quantity(product, current)
	})
	return total, err
}

// VolumeOverLastNDays sums price*quantity of product over the lookback window.
func (r *Registry) VolumeOverLastNDays(ctx context.Context, product string, daysLookback int) (float64, error) {
	current := r.CurrentDay()

	var total float64
	err := r.eachDay(ctx, current, daysLookback, func(s AggregateStore) {
		total += s.Volume(product, current)
	})
	return total, err
}

// PriceStatsOverLastNDays combines per-day price statistics over the lookback
// window. Only days with a positive maximum (at least one sale) contribute.
// The average is the mean of per-day averages, not weighted by sale count.
func (r *Registry) PriceStatsOverLastNDays(ctx context.Context, product string, daysLookback int) (model.PriceStats, error) {
	current := r.CurrentDay()

	var sumAvg, maxPrice float64
	var days int
	err := r.eachDay(ctx, current, daysLookback, func(s AggregateStore) {
		stats := s.PriceStats(product, current)
		if stats.Maximum > 0 {
			sumAvg += stats.Average
			maxPrice = max(maxPrice, stats.Maximum)
			days++
		}
	})
	if err != nil {
		return model.PriceStats{}, err
	}

	return model.PriceStats{
		Average: sumAvg / float64(max(days, 1)),
		Maximum: maxPrice,
	}, nil
}

// EventsForDay returns the events of day (current - dayOffset) whose product
// is in products. A missing day yields an empty list.
func (r *Registry) EventsForDay(ctx context.Context, dayOffset int, products model.ProductSet) ([]model.Event, error) {
	store, err := r.Day(ctx, r.CurrentDay()-dayOffset)
	if errors.Is(err, ErrDayNotFound) {
		return []model.Event{}, nil
	}
	if err != nil {
		return nil, err
	}
	return store.EventsFor(products), nil
}

// eachDay visits days current, current-1, ..., current-daysLookback, stopping
// before day 0 is passed. Days that do not exist are skipped.
func (r *Registry) eachDay(ctx context.Context, current, daysLookback int, fn func(AggregateStore)) error {
	for i := 0; i <= daysLookback; i++ {
		day := current - i
		if day < 0 {
			break
		}

		store, err := r.Day(ctx, day)
		if errors.Is(err, ErrDayNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		fn(store)
	}
	return nil
}

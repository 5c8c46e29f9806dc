package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/salestore/internal/model"
	"github.com/rickgao/salestore/internal/series"
)

const schema = `
CREATE TABLE IF NOT EXISTS series_days (
	day         INTEGER PRIMARY KEY,
	event_count INTEGER NOT NULL,
	stored_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS series_events (
	day      INTEGER NOT NULL REFERENCES series_days (day) ON DELETE CASCADE,
	seq      INTEGER NOT NULL,
	product  TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	price    DOUBLE PRECISION NOT NULL,
	ts       BIGINT NOT NULL,
	PRIMARY KEY (day, seq)
);
`

// Archive implements series.Archive on PostgreSQL.
type Archive struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewArchive creates an archive on db. Call Migrate before first use.
func NewArchive(db *pgxpool.Pool, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{db: db, logger: logger}
}

// Migrate creates the archive tables if they do not exist.
func (a *Archive) Migrate(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create archive tables: %w", err)
	}
	return nil
}

// Store replaces the stored contents of day with events.
func (a *Archive) Store(ctx context.Context, day int, events []model.Event) error {
	start := time.Now()

	tx, err := a.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM series_days WHERE day = $1`, day); err != nil {
		return fmt.Errorf("clear day %d: %w", day, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO series_days (day, event_count) VALUES ($1, $2)`,
		day, len(events),
	); err != nil {
		return fmt.Errorf("insert day %d: %w", day, err)
	}

	if len(events) > 0 {
		if err := insertEvents(ctx, tx, day, events); err != nil {
			return fmt.Errorf("insert events of day %d: %w", day, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit day %d: %w", day, err)
	}

	a.logger.Debug("stored day",
		"day", day,
		"events", len(events),
		"duration", time.Since(start),
	)
	return nil
}

// insertEvents queues one INSERT per event using pgx.Batch.
func insertEvents(ctx context.Context, tx pgx.Tx, day int, events []model.Event) error {
	batch := &pgx.Batch{}
	for seq, ev := range events {
		batch.Queue(`
			INSERT INTO series_events (day, seq, product, quantity, price, ts)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, day, seq, ev.Product, ev.Quantity, ev.Price, ev.Timestamp)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

// Load returns the events of day in append order, or series.ErrDayNotFound.
func (a *Archive) Load(ctx context.Context, day int) ([]model.Event, error) {
	var count int
	err := a.db.QueryRow(ctx, `SELECT event_count FROM series_days WHERE day = $1`, day).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, series.ErrDayNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query day %d: %w", day, err)
	}

	rows, err := a.db.Query(ctx, `
		SELECT product, quantity, price, ts
		FROM series_events
		WHERE day = $1
		ORDER BY seq
	`, day)
	if err != nil {
		return nil, fmt.Errorf("query events of day %d: %w", day, err)
	}
	defer rows.Close()

	events := make([]model.Event, 0, count)
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.Product, &ev.Quantity, &ev.Price, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event of day %d: %w", day, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events of day %d: %w", day, err)
	}

	if len(events) != count {
		return nil, fmt.Errorf("%w: day %d has %d events, header says %d", series.ErrCorruptDay, day, len(events), count)
	}
	return events, nil
}

// LastDay returns the highest stored day.
func (a *Archive) LastDay(ctx context.Context) (int, bool, error) {
	var last *int32
	if err := a.db.QueryRow(ctx, `SELECT max(day) FROM series_days`).Scan(&last); err != nil {
		return 0, false, fmt.Errorf("query last day: %w", err)
	}
	if last == nil {
		return 0, false, nil
	}
	return int(*last), true, nil
}

var _ series.Archive = (*Archive)(nil)

// Package events moves appointment events from the event_logs table to Kafka.
// Rows are written in the same transaction as the booking or cancel they
// describe; the relay publishes them afterwards, at least once.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/db"
)

type Event struct {
	ID            int64
	EventType     string
	AppointmentID uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}

type Relay struct {
	pool      db.Beginner
	publisher Publisher
	batchSize int
	log       zerolog.Logger
}

func NewRelay(pool db.Beginner, publisher Publisher, batchSize int, log zerolog.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{pool: pool, publisher: publisher, batchSize: batchSize, log: log}
}

// RunOnce publishes up to one batch of unpublished events and marks them published.
// Rows are claimed with SKIP LOCKED so several relays can run side by side. If
// publishing fails the transaction rolls back and the batch is retried next run.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	var published int

	err := db.WithTx(ctx, r.pool, db.TxOptions{}, func(tx pgx.Tx) error {
		batch, err := fetchUnpublished(ctx, tx, r.batchSize)
		if err != nil {
			return fmt.Errorf("fetch unpublished events: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		if err := r.publisher.Publish(ctx, batch); err != nil {
			return fmt.Errorf("publish %d events: %w", len(batch), err)
		}

		ids := make([]int64, 0, len(batch))
		for _, ev := range batch {
			ids = append(ids, ev.ID)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE event_logs
			SET published_at = now()
			WHERE id = ANY($1)
		`, ids); err != nil {
			return fmt.Errorf("mark events published: %w", err)
		}

		published = len(batch)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

// Run calls RunOnce on every tick until ctx is done. A full batch triggers an
// immediate follow-up run instead of waiting for the next tick.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.drain(ctx)

		select {
		case <-ctx.Done():
			r.log.Info().Msg("outbox relay stopping")
			return
		case <-ticker.C:
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		start := time.Now()
		n, err := r.RunOnce(runCtx)
		cancel()

		if err != nil {
			r.log.Error().Err(err).Msg("outbox relay run failed")
			return
		}
		if n > 0 {
			r.log.Info().Int("published", n).Dur("took", time.Since(start)).Msg("outbox relay run complete")
		}
		if n < r.batchSize {
			return
		}
	}
}

func fetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Event, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_type, appointment_id, payload, created_at
		FROM event_logs
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

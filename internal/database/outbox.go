package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"reward-ledger-go/internal/models"
)

// insertEvent writes a domain event to the outbox inside tx. The relay
// delivers it after commit.
func insertEvent(ctx context.Context, tx *sql.Tx, eventType models.EventType, aggregateId string, payload any, now time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	if _, err := tx.ExecContext(ctx, queryInsertEvent, string(eventType), aggregateId, string(body), toNanos(now)); err != nil {
		return fmt.Errorf("failed to write %s event: %w", eventType, err)
	}
	return nil
}

// PendingEvents returns up to limit undelivered events in commit order.
func (s *Service) PendingEvents(ctx context.Context, limit int) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, queryPendingEvents, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	defer closeRows(rows)

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var eventType, payload string
		var createdAt int64
		if err := rows.Scan(&e.Seq, &eventType, &e.AggregateId, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = models.EventType(eventType)
		e.Payload = json.RawMessage(payload)
		e.CreatedAt = fromNanos(createdAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox rows: %w", err)
	}
	return events, nil
}

// MarkEventsDelivered stamps the given events as delivered.
func (s *Service) MarkEventsDelivered(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	now := toNanos(s.Now())
	for _, seq := range seqs {
		if _, err := tx.ExecContext(ctx, queryMarkEventDelivered, now, seq); err != nil {
			return fmt.Errorf("failed to mark event %d delivered: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outbox update: %w", err)
	}
	return nil
}

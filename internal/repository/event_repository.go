package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// EventRepository хранит идентификаторы обработанных событий платёжного провайдера.
type EventRepository struct {
	db *sqlx.DB
}

func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// IsProcessed сообщает, обработано ли событие ранее.
func (r *EventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)`, eventID); err != nil {
		return false, fmt.Errorf("event repository: is processed %w", err)
	}
	return exists, nil
}

// MarkProcessed фиксирует событие. Возвращает false, если оно уже было отмечено.
func (r *EventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("event repository: mark processed %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

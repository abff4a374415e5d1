package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/bounty-backend/internal/models"
)

// ActivityRepository хранит ленту активности пользователей.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository создаёт экземпляр репозитория.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create сохраняет запись активности.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	query := `
		INSERT INTO activities (user_id, event, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		activity.UserID,
		activity.Event,
		activity.Payload,
	).Scan(&activity.ID, &activity.CreatedAt); err != nil {
		return fmt.Errorf("activity repository: create %w", err)
	}

	return nil
}

// List возвращает ленту пользователя с пагинацией.
func (r *ActivityRepository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Activity, error) {
	query := `SELECT * FROM activities WHERE user_id = $1 ORDER BY created_at DESC`
	args := []interface{}{userID}

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}

	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, query, args...); err != nil {
		return nil, fmt.Errorf("activity repository: list %w", err)
	}

	return activities, nil
}

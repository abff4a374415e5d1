package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/repository/common"
)

// UserRepository отвечает за работу с таблицей users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт нового пользователя с пустым кошельком.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, username, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, is_active, balance, points, lifetime_earned, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		user.Email, user.Username, user.PasswordHash, user.Role,
	).Scan(&user.ID, &user.IsActive, &user.Balance, &user.Points, &user.LifetimeEarned, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if common.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("user repository: create %w", err)
	}

	return nil
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return common.GetByField[models.User](ctx, r.db, "users", "email", email, ErrUserNotFound)
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return common.GetByID[models.User](ctx, r.db, "users", id, ErrUserNotFound)
}

// GetWallet возвращает баланс, баллы и заработок пользователя.
func (r *UserRepository) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.GetContext(ctx, &wallet, `SELECT id, balance, points, lifetime_earned FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get wallet %w", err)
	}
	return &wallet, nil
}

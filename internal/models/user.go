package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User описывает пользователя платформы вместе с его кошельком.
// Balance, Points и LifetimeEarned меняются только через операции леджера.
type User struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Email          string          `db:"email" json:"email"`
	Username       string          `db:"username" json:"username"`
	PasswordHash   string          `db:"password_hash" json:"-"`
	Role           string          `db:"role" json:"role"`
	IsActive       bool            `db:"is_active" json:"is_active"`
	Balance        decimal.Decimal `db:"balance" json:"balance"`
	Points         int64           `db:"points" json:"points"`
	LifetimeEarned decimal.Decimal `db:"lifetime_earned" json:"lifetime_earned"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Wallet — срез денежных полей пользователя, который возвращается после операций.
type Wallet struct {
	UserID         uuid.UUID       `db:"id" json:"user_id"`
	Balance        decimal.Decimal `db:"balance" json:"balance"`
	Points         int64           `db:"points" json:"points"`
	LifetimeEarned decimal.Decimal `db:"lifetime_earned" json:"lifetime_earned"`
}

// Wallet возвращает текущее состояние кошелька пользователя.
func (u *User) Wallet() Wallet {
	return Wallet{
		UserID:         u.ID,
		Balance:        u.Balance,
		Points:         u.Points,
		LifetimeEarned: u.LifetimeEarned,
	}
}

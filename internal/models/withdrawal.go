package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusCompleted  = "completed"
	WithdrawalStatusRejected   = "rejected"
)

// Withdrawal — заявка на вывод средств. Баланс списывается сразу при создании заявки.
type Withdrawal struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Status      string          `db:"status" json:"status"`
	Destination *string         `db:"destination" json:"destination,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Типы транзакций
const (
	TransactionTypeEscrowHold    = "escrow_hold"
	TransactionTypeEscrowRelease = "escrow_release"
	TransactionTypeRefund        = "refund"
	TransactionTypeBountyReward  = "bounty_reward"
	TransactionTypePointPurchase = "point_purchase"
	TransactionTypeSpending      = "spending"
	TransactionTypeWithdrawal    = "withdrawal"
	TransactionTypeEarning       = "earning"
	TransactionTypeDeposit       = "deposit"
)

// Статусы транзакций
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Источники доходов платформы
const (
	RevenueSourceBountyExpiry     = "bounty_expiry"
	RevenueSourceBountyCompletion = "bounty_completion"
	RevenueSourceDepositFee       = "deposit_fee"
	RevenueSourcePointPurchase    = "point_purchase"
	RevenueSourcePointRefund      = "point_refund"
)

// Transaction — неизменяемая запись леджера. Amount — деньги, Points — изменение баллов со знаком.
type Transaction struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	BountyID    *uuid.UUID      `db:"bounty_id" json:"bounty_id,omitempty"`
	Type        string          `db:"type" json:"type"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Points      int64           `db:"points" json:"points"`
	Status      string          `db:"status" json:"status"`
	ExternalRef *string         `db:"external_ref" json:"external_ref,omitempty"`
	Description *string         `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// PlatformRevenue фиксирует удержанную платформой комиссию.
type PlatformRevenue struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Source        string          `db:"source" json:"source"`
	BountyID      *uuid.UUID      `db:"bounty_id" json:"bounty_id,omitempty"`
	TransactionID *uuid.UUID      `db:"transaction_id" json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Deposit — пополнение баланса через платёжного провайдера за вычетом комиссии.
type Deposit struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	GrossAmount decimal.Decimal `db:"gross_amount" json:"gross_amount"`
	Fee         decimal.Decimal `db:"fee" json:"fee"`
	NetAmount   decimal.Decimal `db:"net_amount" json:"net_amount"`
	ExternalRef string          `db:"external_ref" json:"external_ref"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// События ленты активности
const (
	ActivityUserRegistered    = "user_registered"
	ActivityBountyPosted      = "bounty_posted"
	ActivityBountyApplied     = "bounty_applied"
	ActivityApplicationStatus = "application_status"
	ActivityBountyCompleted   = "bounty_completed"
	ActivityBountyExpired     = "bounty_expired"
	ActivityBountyDeleted     = "bounty_deleted"
	ActivityBountyBoosted     = "bounty_boosted"
	ActivityPointsEarned      = "points_earned"
	ActivityPointsRefunded    = "points_refunded"
	ActivityBalanceDeposited  = "balance_deposited"
	ActivityPaymentFailed     = "payment_failed"
)

// Activity — запись ленты активности, которую может разослать внешний слой сообщений.
type Activity struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Event     string          `db:"event" json:"event"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/bounty-backend/internal/domain/valueobject"
)

// Bounty описывает платное задание. Награда удерживается с баланса автора при создании.
type Bounty struct {
	ID             uuid.UUID                `db:"id" json:"id"`
	AuthorID       uuid.UUID                `db:"author_id" json:"author_id"`
	Title          string                   `db:"title" json:"title"`
	Description    string                   `db:"description" json:"description"`
	Reward         decimal.Decimal          `db:"reward" json:"reward"`
	Status         valueobject.BountyStatus `db:"status" json:"status"`
	DurationDays   int                      `db:"duration_days" json:"duration_days"`
	ClaimedBy      *uuid.UUID               `db:"claimed_by" json:"claimed_by,omitempty"`
	BoostLevel     int                      `db:"boost_level" json:"boost_level"`
	BoostExpiresAt *time.Time               `db:"boost_expires_at" json:"boost_expires_at,omitempty"`
	CreatedAt      time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time                `db:"updated_at" json:"updated_at"`
	ClosedAt       *time.Time               `db:"closed_at" json:"closed_at,omitempty"`
}

// ExpiresAt возвращает момент, после которого задание считается просроченным.
func (b *Bounty) ExpiresAt() time.Time {
	return b.CreatedAt.AddDate(0, 0, b.DurationDays)
}

// IsOverdue сообщает, истёк ли срок активного задания.
func (b *Bounty) IsOverdue(now time.Time) bool {
	return b.Status == BountyStatusActive && now.After(b.ExpiresAt())
}

// ActiveBoostLevel возвращает уровень буста с учётом времени его окончания.
func (b *Bounty) ActiveBoostLevel(now time.Time) int {
	if b.BoostLevel <= 0 || b.BoostExpiresAt == nil || !now.Before(*b.BoostExpiresAt) {
		return 0
	}
	return b.BoostLevel
}

// BountyApplication — отклик исполнителя на задание.
type BountyApplication struct {
	ID          uuid.UUID `db:"id" json:"id"`
	BountyID    uuid.UUID `db:"bounty_id" json:"bounty_id"`
	ApplicantID uuid.UUID `db:"applicant_id" json:"applicant_id"`
	Message     string    `db:"message" json:"message"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// BoostHistory — неизменяемая запись о покупке буста.
type BoostHistory struct {
	ID            uuid.UUID `db:"id" json:"id"`
	BountyID      uuid.UUID `db:"bounty_id" json:"bounty_id"`
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	BoostLevel    int       `db:"boost_level" json:"boost_level"`
	PointsCost    int64     `db:"points_cost" json:"points_cost"`
	DurationHours int       `db:"duration_hours" json:"duration_hours"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ConservationReport сверяет удержанную награду с выплатами, возвратами и комиссией.
type ConservationReport struct {
	BountyID uuid.UUID                `db:"bounty_id" json:"bounty_id"`
	Status   valueobject.BountyStatus `db:"status" json:"status"`
	Reward   decimal.Decimal          `db:"reward" json:"reward"`
	Held     decimal.Decimal          `db:"held" json:"held"`
	PaidOut  decimal.Decimal          `db:"paid_out" json:"paid_out"`
	Refunded decimal.Decimal          `db:"refunded" json:"refunded"`
	FeeTaken decimal.Decimal          `db:"fee_taken" json:"fee_taken"`
}

// Balanced сообщает, сходится ли закрытое задание: held == paid_out + refunded + fee.
func (r *ConservationReport) Balanced() bool {
	if r.Status == BountyStatusActive {
		return r.Held.Equal(r.Reward)
	}
	return r.Held.Equal(r.PaidOut.Add(r.Refunded).Add(r.FeeTaken))
}

package valueobject

import "github.com/ignatzorin/bounty-backend/internal/pkg/apperror"

type BountyStatus string

const (
	BountyStatusActive    BountyStatus = "active"
	BountyStatusCompleted BountyStatus = "completed"
	BountyStatusExpired   BountyStatus = "expired"
	BountyStatusDeleted   BountyStatus = "deleted"
)

func (s BountyStatus) IsValid() bool {
	switch s {
	case BountyStatusActive, BountyStatusCompleted, BountyStatusExpired, BountyStatusDeleted:
		return true
	}
	return false
}

// IsTerminal сообщает, что из статуса больше нет переходов.
func (s BountyStatus) IsTerminal() bool {
	return s.IsValid() && s != BountyStatusActive
}

// CanTransitionTo — из active можно перейти в любой терминальный статус, обратно нельзя.
func (s BountyStatus) CanTransitionTo(newStatus BountyStatus) bool {
	transitions := map[BountyStatus][]BountyStatus{
		BountyStatusActive:    {BountyStatusCompleted, BountyStatusExpired, BountyStatusDeleted},
		BountyStatusCompleted: {},
		BountyStatusExpired:   {},
		BountyStatusDeleted:   {},
	}

	allowed, ok := transitions[s]
	if !ok {
		return false
	}

	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusAccepted ApplicationStatus = "accepted"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

func (s ApplicationStatus) IsValid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusAccepted, ApplicationStatusRejected:
		return true
	}
	return false
}

// NewApplicationDecision разбирает решение автора по отклику: только accepted или rejected.
func NewApplicationDecision(status string) (ApplicationStatus, error) {
	s := ApplicationStatus(status)
	if s != ApplicationStatusAccepted && s != ApplicationStatusRejected {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус отклика")
	}
	return s, nil
}

// BoostTier описывает стоимость и длительность уровня буста.
type BoostTier struct {
	Level         int   `json:"level"`
	PointsCost    int64 `json:"points_cost"`
	DurationHours int   `json:"duration_hours"`
}

var boostTiers = map[int]BoostTier{
	1: {Level: 1, PointsCost: 2, DurationHours: 6},
	2: {Level: 2, PointsCost: 5, DurationHours: 12},
	3: {Level: 3, PointsCost: 10, DurationHours: 24},
}

// NewBoostTier возвращает параметры буста для уровня 1-3.
func NewBoostTier(level int) (BoostTier, error) {
	tier, ok := boostTiers[level]
	if !ok {
		return BoostTier{}, apperror.New(apperror.ErrCodeValidation, "уровень буста должен быть от 1 до 3")
	}
	return tier, nil
}

// BoostTiers возвращает все уровни буста по возрастанию.
func BoostTiers() []BoostTier {
	return []BoostTier{boostTiers[1], boostTiers[2], boostTiers[3]}
}

package models

import "github.com/ignatzorin/bounty-backend/internal/domain/valueobject"

// BountyStatus константы статусов заданий
const (
	BountyStatusActive    = valueobject.BountyStatusActive
	BountyStatusCompleted = valueobject.BountyStatusCompleted
	BountyStatusExpired   = valueobject.BountyStatusExpired
	BountyStatusDeleted   = valueobject.BountyStatusDeleted
)

// ApplicationStatus константы статусов откликов
const (
	ApplicationStatusPending  = "pending"
	ApplicationStatusAccepted = "accepted"
	ApplicationStatusRejected = "rejected"
)

// Роли пользователей
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// PostingCostPoints — стоимость публикации задания в баллах.
const PostingCostPoints int64 = 5

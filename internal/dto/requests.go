package dto

import "github.com/shopspring/decimal"

// RegisterRequest — тело POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username"`
}

// LoginRequest — тело POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// PostBountyRequest — публикация задания. Reward принимается строкой или числом.
type PostBountyRequest struct {
	Title        string          `json:"title" binding:"required"`
	Description  string          `json:"description"`
	Reward       decimal.Decimal `json:"reward"`
	DurationDays int             `json:"duration_days" binding:"required"`
}

type ApplyRequest struct {
	Message string `json:"message"`
}

// ApplicationStatusRequest — решение автора по отклику.
type ApplicationStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=accepted rejected"`
}

// CompleteBountyRequest указывает исполнителя, которому уходит награда.
type CompleteBountyRequest struct {
	CompletedBy string `json:"completed_by" binding:"required,uuid"`
}

type BoostRequest struct {
	Level int `json:"level" binding:"required,min=1,max=3"`
}

type PurchasePointsRequest struct {
	PackageID string `json:"package_id" binding:"required"`
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type ConfirmPaymentRequest struct {
	IntentID string `json:"intent_id" binding:"required"`
}

type WithdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Назначение платежа, хранится в метаданных намерения.
const (
	KindPoints  = "point_purchase"
	KindDeposit = "deposit"
)

// Статусы намерения платежа.
const (
	IntentStatusSucceeded       = "succeeded"
	IntentStatusProcessing      = "processing"
	IntentStatusRequiresPayment = "requires_payment_method"
	IntentStatusCanceled        = "canceled"
)

// Типы событий провайдера, которые разбирает сверка платежей.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded   = "charge.refunded"
	EventSetupSucceeded   = "setup_intent.succeeded"
	EventAccountUpdated   = "account.updated"
)

var (
	ErrInvalidSignature = errors.New("payment: invalid event signature")
	ErrMalformedEvent   = errors.New("payment: malformed event payload")
	ErrIntentNotFound   = errors.New("payment: intent not found")
)

// Intent — намерение платежа у провайдера. Amount хранится в валюте, а не в центах.
type Intent struct {
	ID           string
	Status       string
	Amount       decimal.Decimal
	Currency     string
	UserID       uuid.UUID
	Kind         string
	PackageID    string
	ClientSecret string
	FailureCode  string
}

// Succeeded сообщает, что деньги получены.
func (i *Intent) Succeeded() bool {
	return i.Status == IntentStatusSucceeded
}

// CreateIntentParams — параметры нового намерения платежа.
type CreateIntentParams struct {
	UserID         uuid.UUID
	Kind           string
	PackageID      string
	Points         int64
	Amount         decimal.Decimal
	IdempotencyKey string
}

// Event — проверенное событие вебхука.
type Event struct {
	ID   string
	Type string
	// Intent заполнен для событий payment_intent.*
	Intent *Intent
	// RefundedIntentID заполнен для charge.refunded.
	RefundedIntentID string
	RefundedAmount   decimal.Decimal
}

// Provider — драйвер платёжного провайдера.
type Provider interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	Refund(ctx context.Context, intentID, idempotencyKey string) error
	// VerifyEvent проверяет подпись и разбирает тело вебхука.
	VerifyEvent(payload []byte, signature string) (*Event, error)
}

// ToCents переводит сумму в минимальные единицы валюты.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromCents переводит минимальные единицы валюты в сумму.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

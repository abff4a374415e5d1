package repository

import "errors"

// Ошибки леджера. Сервисный слой переводит их в apperror.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrBountyNotFound      = errors.New("bounty not found")
	ErrApplicationNotFound = errors.New("application not found")
	ErrPurchaseNotFound    = errors.New("point purchase not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrBountyNotActive     = errors.New("bounty is not active")
	ErrNotBountyAuthor     = errors.New("caller is not the bounty author")
	ErrNotOverdue          = errors.New("bounty has not reached its deadline")
	ErrAlreadyApplied      = errors.New("application already exists")
	ErrApplicationDecided  = errors.New("application already decided")
	ErrEmailTaken          = errors.New("email already registered")
	ErrFeeMismatch         = errors.New("fee breakdown does not match bounty reward")
	ErrChargeRefunded      = errors.New("external charge was refunded before it was credited")
	ErrBoostDowngrade      = errors.New("a higher boost level is still running")
)

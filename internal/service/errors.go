package service

import (
	"errors"

	"github.com/ignatzorin/bounty-backend/internal/payment"
	"github.com/ignatzorin/bounty-backend/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-backend/internal/pkg/retry"
	"github.com/ignatzorin/bounty-backend/internal/repository"
	"github.com/ignatzorin/bounty-backend/internal/repository/common"
)

var (
	errNotOverdue        = apperror.New(apperror.ErrCodeConflict, "срок задания ещё не истёк")
	errApplicationClosed = apperror.New(apperror.ErrCodeConflict, "решение по отклику уже принято")
	errEmailTaken        = apperror.New(apperror.ErrCodeConflict, "email уже зарегистрирован")
)

// translateError переводит ошибки хранилища и провайдера в apperror.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrBountyNotFound):
		return apperror.ErrBountyNotFound
	case errors.Is(err, repository.ErrApplicationNotFound):
		return apperror.ErrApplicationNotFound
	case errors.Is(err, repository.ErrPurchaseNotFound):
		return apperror.ErrPurchaseNotFound
	case errors.Is(err, repository.ErrUserNotFound):
		return apperror.ErrUserNotFound
	case errors.Is(err, repository.ErrInsufficientFunds):
		return apperror.ErrInsufficientFunds
	case errors.Is(err, repository.ErrInsufficientPoints):
		return apperror.ErrInsufficientPoints
	case errors.Is(err, repository.ErrBountyNotActive):
		return apperror.ErrNotActive
	case errors.Is(err, repository.ErrNotBountyAuthor):
		return apperror.ErrNotAuthor
	case errors.Is(err, repository.ErrNotOverdue):
		return errNotOverdue
	case errors.Is(err, repository.ErrAlreadyApplied):
		return apperror.ErrAlreadyApplied
	case errors.Is(err, repository.ErrApplicationDecided):
		return errApplicationClosed
	case errors.Is(err, repository.ErrEmailTaken):
		return errEmailTaken
	case errors.Is(err, repository.ErrChargeRefunded):
		return apperror.ErrChargeRefunded
	case errors.Is(err, repository.ErrBoostDowngrade):
		return apperror.ErrBoostDowngrade
	case errors.Is(err, repository.ErrFeeMismatch):
		return apperror.Wrap(err, apperror.ErrCodeInvariant, "комиссия не совпадает с суммой задания")
	case common.IsCheckViolation(err):
		return apperror.Wrap(err, apperror.ErrCodeInvariant, apperror.ErrNegativeBalance.Message)
	case errors.Is(err, payment.ErrInvalidSignature):
		return apperror.Wrap(err, apperror.ErrCodeInvalidSignature, apperror.ErrInvalidSignature.Message)
	case errors.Is(err, payment.ErrIntentNotFound):
		return apperror.Wrap(err, apperror.ErrCodeNotFound, "платёж не найден")
	case retry.IsTimeout(err):
		return apperror.Wrap(err, apperror.ErrCodeExternal, "внешний сервис не ответил вовремя")
	default:
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "ошибка базы данных")
	}
}

// providerError оборачивает ошибку платёжного провайдера.
func providerError(err error, message string) error {
	if errors.Is(err, payment.ErrIntentNotFound) {
		return translateError(err)
	}
	return apperror.Wrap(err, apperror.ErrCodeExternal, message)
}

package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError      ErrorCode = "DATABASE_ERROR"
	ErrCodeInsufficientFunds  ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeInsufficientPoints ErrorCode = "INSUFFICIENT_POINTS"
	ErrCodeNotAuthor          ErrorCode = "NOT_AUTHOR"
	ErrCodeNotActive          ErrorCode = "NOT_ACTIVE"
	ErrCodeInvalidSignature   ErrorCode = "INVALID_SIGNATURE"
	ErrCodeExternal           ErrorCode = "EXTERNAL_ERROR"
	ErrCodeInvariant          ErrorCode = "INVARIANT_VIOLATION"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду, чтобы errors.Is работал с обёрнутыми копиями сентинелов.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// Validation создаёт ошибку валидации с текстом, который отдаётся клиенту как есть.
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized, ErrCodeInvalidSignature:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodeNotAuthor:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeNotActive:
		return http.StatusConflict
	case ErrCodeInsufficientFunds, ErrCodeInsufficientPoints:
		return http.StatusPaymentRequired
	case ErrCodeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf возвращает код ошибки или ErrCodeInternal для неизвестных ошибок.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeForbidden || code == ErrCodeNotAuthor
}

func IsValidation(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}

var (
	ErrBountyNotFound       = New(ErrCodeNotFound, "задание не найдено")
	ErrApplicationNotFound  = New(ErrCodeNotFound, "отклик не найден")
	ErrPurchaseNotFound     = New(ErrCodeNotFound, "покупка не найдена")
	ErrUserNotFound         = New(ErrCodeNotFound, "пользователь не найден")
	ErrUnauthorized         = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden            = New(ErrCodeForbidden, "недостаточно прав")
	ErrInvalidCredentials   = New(ErrCodeUnauthorized, "неверные учетные данные")
	ErrInsufficientFunds    = New(ErrCodeInsufficientFunds, "недостаточно средств на балансе")
	ErrInsufficientPoints   = New(ErrCodeInsufficientPoints, "недостаточно баллов")
	ErrNotAuthor            = New(ErrCodeNotAuthor, "действие доступно только автору задания")
	ErrNotActive            = New(ErrCodeNotActive, "задание уже закрыто")
	ErrAlreadyApplied       = New(ErrCodeConflict, "вы уже откликнулись на это задание")
	ErrInvalidSignature     = New(ErrCodeInvalidSignature, "неверная подпись события")
	ErrPaymentNotSucceeded  = New(ErrCodeConflict, "платёж ещё не подтверждён")
	ErrPaymentOwnerMismatch = New(ErrCodeForbidden, "платёж принадлежит другому пользователю")
	ErrNegativeBalance      = New(ErrCodeInvariant, "операция привела бы к отрицательному балансу")
	ErrChargeRefunded       = New(ErrCodeConflict, "платёж уже возвращён и не может быть зачислен")
	ErrBoostDowngrade       = New(ErrCodeConflict, "у задания действует буст более высокого уровня")
)

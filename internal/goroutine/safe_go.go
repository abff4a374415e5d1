package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/ignatzorin/bounty-backend/internal/logger"
)

// Logger интерфейс для логирования ошибок
type Logger interface {
	Errorf(format string, args ...interface{})
}

// RecoveryHandler обрабатывает panic в горутинах
type RecoveryHandler struct {
	logger Logger
}

// NewRecoveryHandler создает новый обработчик
func NewRecoveryHandler(logger Logger) *RecoveryHandler {
	return &RecoveryHandler{logger: logger}
}

// SafeGo запускает горутину с обработкой panic
func (rh *RecoveryHandler) SafeGo(fn func()) {
	go func() {
		defer rh.recover("goroutine")
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic
func (rh *RecoveryHandler) SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer rh.recover("goroutine (with context)")
		fn(ctx)
	}()
}

func (rh *RecoveryHandler) recover(where string) {
	if r := recover(); r != nil {
		rh.logger.Errorf("panic in %s: %v\nstack trace:\n%s", where, r, debug.Stack())
	}
}

// logrusLogger берёт глобальный логгер в момент записи: logger.Init может заменить его после старта.
type logrusLogger struct{}

func (logrusLogger) Errorf(format string, args ...interface{}) {
	logger.WithComponent("goroutine").Errorf(format, args...)
}

// DefaultRecoveryHandler - глобальный обработчик, пишет в структурированный лог
var DefaultRecoveryHandler = NewRecoveryHandler(logrusLogger{})

// SafeGo - упрощенная функция для запуска безопасной горутины
func SafeGo(fn func()) {
	DefaultRecoveryHandler.SafeGo(fn)
}

// SafeGoWithContext - упрощенная функция для запуска безопасной горутины с контекстом
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	DefaultRecoveryHandler.SafeGoWithContext(ctx, fn)
}

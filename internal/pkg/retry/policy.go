package retry

import (
	"context"
	"errors"
	"time"
)

// Policy — единая политика таймаутов и повторов для внешних вызовов (БД, платёжный провайдер).
type Policy struct {
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
	// Retryable решает, стоит ли повторять вызов после ошибки. Если не задан, повторяются
	// только таймауты отдельной попытки.
	Retryable func(error) bool
}

// DefaultPolicy — 15 секунд на вызов, три попытки.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:  15 * time.Second,
		Attempts: 3,
		Backoff:  200 * time.Millisecond,
	}
}

// WithTimeout ограничивает контекст таймаутом политики.
func (p Policy) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}

// Once выполняет вызов один раз с таймаутом политики. Используется для операций,
// которые нельзя повторять без подтверждения побочного эффекта.
func (p Policy) Once(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := p.WithTimeout(ctx)
	defer cancel()
	return fn(callCtx)
}

// Do выполняет вызов с таймаутом на каждую попытку и повторяет его, пока ошибка retryable.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = p.Once(ctx, fn)
		if err == nil {
			return nil
		}
		if attempt == attempts || !p.shouldRetry(ctx, err) {
			return err
		}

		wait := p.Backoff * time.Duration(attempt)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
	return err
}

func (p Policy) shouldRetry(ctx context.Context, err error) bool {
	// Отмена родительского контекста не лечится повтором.
	if ctx.Err() != nil {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsTimeout сообщает, что ошибка вызвана истечением таймаута.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

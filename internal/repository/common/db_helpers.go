package common

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/bounty-backend/internal/pkg/retry"
)

// Коды ошибок PostgreSQL, которые гарантируют откат транзакции и допускают повтор.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
	pqCheckViolation       = "23514"
)

// GetByID - универсальная функция для получения сущности по ID
func GetByID[T any](ctx context.Context, db sqlx.QueryerContext, table string, id interface{}, notFoundErr error) (*T, error) {
	var entity T
	query := fmt.Sprintf("SELECT * FROM %s WHERE id = $1", table)

	if err := sqlx.GetContext(ctx, db, &entity, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundErr
		}
		return nil, fmt.Errorf("get by id from %s: %w", table, err)
	}

	return &entity, nil
}

// GetByField - универсальная функция для получения сущности по любому полю
func GetByField[T any](ctx context.Context, db sqlx.QueryerContext, table, field string, value interface{}, notFoundErr error) (*T, error) {
	var entity T
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", table, field)

	if err := sqlx.GetContext(ctx, db, &entity, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundErr
		}
		return nil, fmt.Errorf("get by %s from %s: %w", field, table, err)
	}

	return &entity, nil
}

// WithTransaction выполняет функцию внутри транзакции с правильной обработкой ошибок
func WithTransaction(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// RunInTx выполняет денежную операцию в транзакции под политикой вызовов.
// Повтор допускается только при конфликте сериализации или дедлоке: в этих случаях
// PostgreSQL гарантирует откат. Таймаут не повторяется, потому что коммит мог пройти.
func RunInTx(ctx context.Context, db *sqlx.DB, policy retry.Policy, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	policy.Retryable = IsRetryableTxError
	return policy.Do(ctx, func(callCtx context.Context) error {
		return WithTransaction(callCtx, db, func(tx *sqlx.Tx) error {
			return fn(callCtx, tx)
		})
	})
}

// Read выполняет чтение под политикой вызовов: таймауты чтения повторяются.
func Read(ctx context.Context, policy retry.Policy, fn func(ctx context.Context) error) error {
	return policy.Do(ctx, fn)
}

// IsRetryableTxError сообщает, что транзакция откатилась из-за конкурентного доступа.
func IsRetryableTxError(err error) bool {
	return hasPQCode(err, pqSerializationFailure) || hasPQCode(err, pqDeadlockDetected)
}

// IsUniqueViolation сообщает о нарушении уникального индекса.
func IsUniqueViolation(err error) bool {
	return hasPQCode(err, pqUniqueViolation)
}

// IsCheckViolation сообщает о нарушении CHECK ограничения (например, balance >= 0).
func IsCheckViolation(err error) bool {
	return hasPQCode(err, pqCheckViolation)
}

func hasPQCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/bounty-backend/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/pkg/retry"
	"github.com/ignatzorin/bounty-backend/internal/repository/common"
)

// PointsRepository начисляет баллы и пополнения по подтверждённым платежам.
// Уникальный external_ref гарантирует, что один платёж зачисляется не больше одного раза.
type PointsRepository struct {
	db     *sqlx.DB
	policy retry.Policy
}

func NewPointsRepository(db *sqlx.DB, policy retry.Policy) *PointsRepository {
	return &PointsRepository{db: db, policy: policy}
}

// PointCredit — данные подтверждённой покупки пакета баллов.
type PointCredit struct {
	UserID      uuid.UUID
	PackageID   string
	Points      int64
	Amount      decimal.Decimal
	ExternalRef string
}

// DepositCredit — данные подтверждённого пополнения баланса.
type DepositCredit struct {
	UserID      uuid.UUID
	ExternalRef string
	Fee         valueobject.FeeBreakdown
}

// CreditPointPurchase начисляет баллы по платежу. Для уже учтённого платежа возвращает
// существующую покупку и created=false.
func (r *PointsRepository) CreditPointPurchase(ctx context.Context, c PointCredit) (*models.PointPurchase, bool, error) {
	var (
		purchase models.PointPurchase
		created  bool
	)
	err := common.RunInTx(ctx, r.db, r.policy, func(ctx context.Context, tx *sqlx.Tx) error {
		created = false
		if err := lockExternalRef(ctx, tx, c.ExternalRef); err != nil {
			return err
		}
		if err := ensureNotRefunded(ctx, tx, c.ExternalRef); err != nil {
			return err
		}

		err := tx.GetContext(ctx, &purchase, `
			INSERT INTO point_purchases (user_id, package_id, points, amount, external_ref, status)
			VALUES ($1, $2, $3, $4, $5, 'completed')
			ON CONFLICT (external_ref) DO NOTHING
			RETURNING *
		`, c.UserID, c.PackageID, c.Points, c.Amount, c.ExternalRef)
		if errors.Is(err, sql.ErrNoRows) {
			return tx.GetContext(ctx, &purchase, `SELECT * FROM point_purchases WHERE external_ref = $1`, c.ExternalRef)
		}
		if err != nil {
			return fmt.Errorf("points repository: insert purchase %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE users SET points = points + $2, updated_at = NOW() WHERE id = $1
		`, c.UserID, c.Points)
		if err != nil {
			return fmt.Errorf("points repository: credit points %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrUserNotFound
		}

		ref := c.ExternalRef
		txID, err := insertTransaction(ctx, tx, txRow{
			UserID:      c.UserID,
			Type:        models.TransactionTypePointPurchase,
			Amount:      c.Amount,
			Points:      c.Points,
			ExternalRef: &ref,
			Description: fmt.Sprintf("Покупка пакета баллов %s", c.PackageID),
		})
		if err != nil {
			return err
		}
		if err := insertRevenue(ctx, tx, c.Amount, models.RevenueSourcePointPurchase, nil, &txID); err != nil {
			return err
		}

		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &purchase, created, nil
}

// CreditDeposit зачисляет пополнение за вычетом комиссии. Повтор по тому же платежу не меняет баланс.
func (r *PointsRepository) CreditDeposit(ctx context.Context, c DepositCredit) (*models.Deposit, bool, error) {
	var (
		deposit models.Deposit
		created bool
	)
	err := common.RunInTx(ctx, r.db, r.policy, func(ctx context.Context, tx *sqlx.Tx) error {
		created = false
		if err := lockExternalRef(ctx, tx, c.ExternalRef); err != nil {
			return err
		}
		if err := ensureNotRefunded(ctx, tx, c.ExternalRef); err != nil {
			return err
		}

		err := tx.GetContext(ctx, &deposit, `
			INSERT INTO deposits (user_id, gross_amount, fee, net_amount, external_ref)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (external_ref) DO NOTHING
			RETURNING *
		`, c.UserID, c.Fee.Gross, c.Fee.Fee, c.Fee.Net, c.ExternalRef)
		if errors.Is(err, sql.ErrNoRows) {
			return tx.GetContext(ctx, &deposit, `SELECT * FROM deposits WHERE external_ref = $1`, c.ExternalRef)
		}
		if err != nil {
			return fmt.Errorf("points repository: insert deposit %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE users SET balance = balance + $2, updated_at = NOW() WHERE id = $1
		`, c.UserID, c.Fee.Net)
		if err != nil {
			return fmt.Errorf("points repository: credit balance %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrUserNotFound
		}

		ref := c.ExternalRef
		txID, err := insertTransaction(ctx, tx, txRow{
			UserID:      c.UserID,
			Type:        models.TransactionTypeDeposit,
			Amount:      c.Fee.Net,
			ExternalRef: &ref,
			Description: "Пополнение баланса",
		})
		if err != nil {
			return err
		}
		if c.Fee.Fee.IsPositive() {
			if err := insertRevenue(ctx, tx, c.Fee.Fee, models.RevenueSourceDepositFee, nil, &txID); err != nil {
				return err
			}
		}

		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &deposit, created, nil
}

// ApplyPointRefund списывает баллы возвращённой покупки. Уже возвращённая покупка не меняется
// и возвращается с refunded=false. Если платёж ещё не зачислен ни покупкой, ни пополнением,
// возврат запоминается в refunded_charges и метод отдаёт nil покупку: позднее событие об
// успешной оплате уже не зачислится. Для учтённого пополнения возвращается ErrPurchaseNotFound.
func (r *PointsRepository) ApplyPointRefund(ctx context.Context, externalRef string) (*models.PointPurchase, bool, error) {
	var (
		purchase models.PointPurchase
		found    bool
		refunded bool
	)
	err := common.RunInTx(ctx, r.db, r.policy, func(ctx context.Context, tx *sqlx.Tx) error {
		found, refunded = false, false
		if err := lockExternalRef(ctx, tx, externalRef); err != nil {
			return err
		}

		err := tx.GetContext(ctx, &purchase, `SELECT * FROM point_purchases WHERE external_ref = $1 FOR UPDATE`, externalRef)
		if errors.Is(err, sql.ErrNoRows) {
			return recordEarlyRefund(ctx, tx, externalRef)
		}
		if err != nil {
			return fmt.Errorf("points repository: lock purchase %w", err)
		}
		found = true
		if purchase.Status != models.PointPurchaseStatusCompleted {
			return nil
		}

		if err := debitPoints(ctx, tx, purchase.UserID, purchase.Points); err != nil {
			return err
		}

		if err := tx.GetContext(ctx, &purchase, `
			UPDATE point_purchases SET status = 'refunded', refunded_at = NOW()
			WHERE id = $1
			RETURNING *
		`, purchase.ID); err != nil {
			return fmt.Errorf("points repository: mark refunded %w", err)
		}

		ref := externalRef
		txID, err := insertTransaction(ctx, tx, txRow{
			UserID:      purchase.UserID,
			Type:        models.TransactionTypeRefund,
			Amount:      purchase.Amount,
			Points:      -purchase.Points,
			ExternalRef: &ref,
			Description: "Возврат покупки баллов",
		})
		if err != nil {
			return err
		}
		if err := insertRevenue(ctx, tx, purchase.Amount.Neg(), models.RevenueSourcePointRefund, nil, &txID); err != nil {
			return err
		}

		refunded = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &purchase, refunded, nil
}

// lockExternalRef сериализует зачисление и возврат одного внешнего платежа до конца транзакции.
func lockExternalRef(ctx context.Context, tx *sqlx.Tx, externalRef string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, externalRef); err != nil {
		return fmt.Errorf("points repository: lock external ref %w", err)
	}
	return nil
}

func ensureNotRefunded(ctx context.Context, tx *sqlx.Tx, externalRef string) error {
	var refunded bool
	if err := tx.GetContext(ctx, &refunded, `
		SELECT EXISTS (SELECT 1 FROM refunded_charges WHERE external_ref = $1)
	`, externalRef); err != nil {
		return fmt.Errorf("points repository: check refunded charge %w", err)
	}
	if refunded {
		return ErrChargeRefunded
	}
	return nil
}

func recordEarlyRefund(ctx context.Context, tx *sqlx.Tx, externalRef string) error {
	var deposited bool
	if err := tx.GetContext(ctx, &deposited, `
		SELECT EXISTS (SELECT 1 FROM deposits WHERE external_ref = $1)
	`, externalRef); err != nil {
		return fmt.Errorf("points repository: check deposit %w", err)
	}
	if deposited {
		return ErrPurchaseNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refunded_charges (external_ref) VALUES ($1)
		ON CONFLICT (external_ref) DO NOTHING
	`, externalRef); err != nil {
		return fmt.Errorf("points repository: record refund %w", err)
	}
	return nil
}

// GetPurchase возвращает покупку баллов по идентификатору.
func (r *PointsRepository) GetPurchase(ctx context.Context, id uuid.UUID) (*models.PointPurchase, error) {
	return common.GetByID[models.PointPurchase](ctx, r.db, "point_purchases", id, ErrPurchaseNotFound)
}

// ListPurchases возвращает покупки пользователя, новые первыми.
func (r *PointsRepository) ListPurchases(ctx context.Context, userID uuid.UUID) ([]models.PointPurchase, error) {
	var purchases []models.PointPurchase
	if err := r.db.SelectContext(ctx, &purchases, `
		SELECT * FROM point_purchases WHERE user_id = $1 ORDER BY created_at DESC
	`, userID); err != nil {
		return nil, fmt.Errorf("points repository: list purchases %w", err)
	}
	return purchases, nil
}

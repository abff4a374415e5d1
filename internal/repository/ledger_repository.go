package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/bounty-backend/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/pkg/retry"
	"github.com/ignatzorin/bounty-backend/internal/repository/common"
)

// LedgerRepository — единственное место, где меняются баланс, баллы и статус заданий.
// Каждая операция выполняет изменение денег, статуса и запись в transactions одной транзакцией.
type LedgerRepository struct {
	db     *sqlx.DB
	policy retry.Policy
}

func NewLedgerRepository(db *sqlx.DB, policy retry.Policy) *LedgerRepository {
	return &LedgerRepository{db: db, policy: policy}
}

// PostBountyParams — данные для публикации задания.
type PostBountyParams struct {
	AuthorID     uuid.UUID
	Title        string
	Description  string
	Reward       decimal.Decimal
	DurationDays int
	PostingCost  int64
}

// BountyResult — задание и кошелёк пользователя после операции.
type BountyResult struct {
	Bounty *models.Bounty
	Wallet *models.Wallet
}

// ExpireResult описывает итог попытки просрочить задание.
type ExpireResult struct {
	Bounty  *models.Bounty
	Expired bool
	Refund  decimal.Decimal
	Fee     decimal.Decimal
}

// BoostResult — задание после буста, запись истории и кошелёк.
type BoostResult struct {
	Bounty  *models.Bounty
	History *models.BoostHistory
	Wallet  *models.Wallet
}

// PostBounty удерживает награду с баланса автора, списывает баллы за публикацию и создаёт задание.
func (r *LedgerRepository) PostBounty(ctx context.Context, p PostBountyParams) (*BountyResult, error) {
	var res BountyResult
	err := common.RunInTx(ctx, r.db, r.policy, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := debitBalance(ctx, tx, p.AuthorID, p.Reward); err != nil {
			return err
		}
		if err := debitPoints(ctx, tx, p.AuthorID, p.PostingCost); err != nil {
			return err
		}

		var bounty models.Bounty
		err := tx.GetContext(ctx, &bounty, `
			INSERT INTO bounties (author_id, title, description, reward, status, duration_days)
			VALUES ($1, $2, $3, $4, 'active', $5)
			RETURNING *
		`, p.AuthorID, p.Title, p.Description, p.Reward, p.DurationDays)
		if err != nil {
			return fmt.Errorf("ledger repository: insert bounty %w", err)
		}

		if _, err := insertTransaction(ctx, tx, txRow{
			UserID:      p.AuthorID,
			BountyID:    &bounty.ID,
			Type:        models.TransactionTypeEscrowHold,
			Amount:      p.Reward,
			Description: "Удержание награды за задание",
		}); err != nil {
			return err
		}

		if p.PostingCost > 0 {
			if _, err := insertTransaction(ctx, tx, txRow{
				UserID:      p.AuthorID,
				BountyID:    &bounty.ID,
				Type:        models.TransactionTypeSpending,
				Amount:      models.PointsToDollars(p.PostingCost),
				Points:      -p.PostingCost,
				Description: "Баллы за публикацию задания",
			}); err != nil {
				return err
			}
		}

		wallet, err := loadWallet(ctx, tx, p.AuthorID)
		if err != nil {
			return err
		}
		res = BountyResult{Bounty: &bounty, Wallet: wallet}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CompleteBounty выплачивает исполнителю полную награду и закрывает задание.
func (r *LedgerRepository) CompleteBounty(ctx context.Context, bountyID, authorID, completedBy uuid.UUID) (*BountyResult, error) {
	var res BountyResult
	err := common.RunInTx(ctx, r.db, r.policy, func(ctx context.Context, tx *sqlx.Tx) error {
		bounty, err := lockActiveBounty(ctx, tx, bountyID, &authorID)
		if err != nil {
			return err
		}

		closed, err := closeBounty(ctx, tx, bounty, models.BountyStatusCompleted, &completedBy)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE users
			SET balance = balance + $2, lifetime_earned = lifetime_earned + $2, updated_at = NOW()
			WHERE id = $1 AND is_active
		`, completedBy, bounty.Reward)
		if err != nil {
			return fmt.Errorf("ledger repository: credit worker %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrUserNotFound
		}

		if _, err := insertTransaction(ctx, tx, txRow{
			UserID:      completedBy,
			BountyID:    &bounty.ID,
			Type:        models.TransactionTypeBountyReward,
			Amount:      bounty.Reward,
			Description: "Награда за выполненное задание",
		}); err != nil {
			return err
		}
		if _, err := insertTransaction(ctx, tx, txRow{
			UserID:      bounty.AuthorID,
			BountyID:    &bounty.ID,
			Type:        models.TransactionTypeEscrowRelease,
			Amount:      bounty.Reward,
			Description: "Выплата удержанной награды исполнителю",
		}); err != nil {
			return err
		}

		wallet, err := loadWallet(ctx, tx, completedBy)
		if err != nil {
			return err
		}
		res = BountyResult{Bounty: closed, Wallet: wallet}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ExpireBounty возвращает автору награду за вычетом комиссии. Повторный вызов для закрытого
// задания ничего не меняет и возвращает Expired=false.
func (r *LedgerRepository) ExpireBounty(ctx context.Context, bountyID uuid.UUID, fee valueobject.FeeBreakdown, asOf time.Time) (*ExpireResult, error) {
	var res ExpireResult
	err := common.RunInTx(ctx, r.db, r.policy, func(ctx context.Context, tx *sqlx.Tx) error {
		bounty, err := lockBounty(ctx, tx, bountyID)
		if err != nil {
			return err
		}
		if bounty.Status.IsTerminal() {
			res = ExpireResult{Bounty: bounty}
			return nil
		}
		if !bounty.IsOverdue(asOf) {
			return ErrNotOverdue
		}
		if !bounty.Reward.Equal(fee.Gross) || !fee.Net.Add(fee.Fee).Equal(fee.Gross) {
			return ErrFeeMismatch
		}

		closed, err := closeBounty(ctx, tx, bounty, models.BountyStatusExpired, nil)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET balance = balance + $2, updated_at = NOW() WHERE id = $1
		`, bounty.AuthorID, fee.Net); err != nil {
			return fmt.Errorf("ledger repository: refund author %w", err)
		}

		refundTx, err := insertTransaction(ctx, tx, txRow{
			UserID:      bounty.AuthorID,
			BountyID:    &bounty.ID,
			Type:        models.TransactionTypeRefund,
			Amount:      fee.Net,
			Description: "Возврат награды по истечении срока за вычетом комиссии",
		})
		if err != nil {
			return err
		}

		if err := insertRevenue(ctx, tx, fee.Fee, models.RevenueSourceBountyExpiry, &bounty.ID, &refundTx); err != nil {
			return err
		}

		res = ExpireResult{Bounty: closed, Expired: true, Refund: fee.Net, Fee: fee.Fee}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteBounty снимает задание автором и возвращает награду полностью, без комиссии.
func (r *LedgerRepository) DeleteBounty(ctx context.Context, bountyID, authorID uuid.UUID) (*BountyResult, error) {
	var res BountyResult
	err := common.RunInTx(ctx, r.db, r.policy, func(ctx context.Context, tx *sqlx.Tx) error {
		bounty, err := lockActiveBounty(ctx, tx, bountyID, &authorID)
		if err != nil {
			return err
		}

		closed, err := closeBounty(ctx, tx, bounty, models.BountyStatusDeleted, nil)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET balance = balance + $2, updated_at = NOW() WHERE id = $1
		`, bounty.AuthorID, bounty.Reward); err != nil {
			return fmt.Errorf("ledger repository: refund author %w", err)
		}

		if _, err := insertTransaction(ctx, tx, txRow{
			UserID:      bounty.AuthorID,
			BountyID:    &bounty.ID,
			Type:        models.TransactionTypeRefund,
			Amount:      bounty.Reward,
			Description: "Возврат награды за снятое задание",
		}); err != nil {
			return err
		}

		wallet, err := loadWallet(ctx, tx, authorID)
		if err != nil {
			return err
		}
		res = BountyResult{Bounty: closed, Wallet: wallet}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// BoostBounty списывает баллы и поднимает видимость активного задания. Пока действует
// буст более высокого уровня, понижение отклоняется.
func (r *LedgerRepository) BoostBounty(ctx context.Context, bountyID, userID uuid.UUID, tier valueobject.BoostTier, now time.Time) (*BoostResult, error) {
	var res BoostResult
	err := common.RunInTx(ctx, r.db, r.policy, func(ctx context.Context, tx *sqlx.Tx) error {
		bounty, err := lockActiveBounty(ctx, tx, bountyID, &userID)
		if err != nil {
			return err
		}
		if bounty.ActiveBoostLevel(now) > tier.Level {
			return ErrBoostDowngrade
		}

		if err := debitPoints(ctx, tx, userID, tier.PointsCost); err != nil {
			return err
		}

		expiresAt := now.Add(time.Duration(tier.DurationHours) * time.Hour)
		var boosted models.Bounty
		err = tx.GetContext(ctx, &boosted, `
			UPDATE bounties SET boost_level = $2, boost_expires_at = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`, bounty.ID, tier.Level, expiresAt)
		if err != nil {
			return fmt.Errorf("ledger repository: boost bounty %w", err)
		}

		var history models.BoostHistory
		err = tx.GetContext(ctx, &history, `
			INSERT INTO boost_history (bounty_id, user_id, boost_level, points_cost, duration_hours, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING *
		`, bounty.ID, userID, tier.Level, tier.PointsCost, tier.DurationHours, expiresAt)
		if err != nil {
			return fmt.Errorf("ledger repository: insert boost history %w", err)
		}

		if _, err := insertTransaction(ctx, tx, txRow{
			UserID:      userID,
			BountyID:    &bounty.ID,
			Type:        models.TransactionTypeSpending,
			Amount:      models.PointsToDollars(tier.PointsCost),
			Points:      -tier.PointsCost,
			Description: fmt.Sprintf("Буст задания, уровень %d", tier.Level),
		}); err != nil {
			return err
		}

		wallet, err := loadWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		res = BoostResult{Bounty: &boosted, History: &history, Wallet: wallet}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateWithdrawal списывает сумму с баланса и создаёт заявку на вывод.
func (r *LedgerRepository) CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, destination string) (*models.Withdrawal, *models.Wallet, error) {
	var (
		withdrawal models.Withdrawal
		wallet     *models.Wallet
	)
	err := common.RunInTx(ctx, r.db, r.policy, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := debitBalance(ctx, tx, userID, amount); err != nil {
			return err
		}

		var dest *string
		if destination != "" {
			dest = &destination
		}
		err := tx.GetContext(ctx, &withdrawal, `
			INSERT INTO withdrawals (user_id, amount, status, destination)
			VALUES ($1, $2, 'pending', $3)
			RETURNING *
		`, userID, amount, dest)
		if err != nil {
			return fmt.Errorf("ledger repository: insert withdrawal %w", err)
		}

		if _, err := insertTransaction(ctx, tx, txRow{
			UserID:      userID,
			Type:        models.TransactionTypeWithdrawal,
			Amount:      amount,
			Description: "Заявка на вывод средств",
		}); err != nil {
			return err
		}

		wallet, err = loadWallet(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &withdrawal, wallet, nil
}

// ListTransactions возвращает историю транзакций пользователя.
func (r *LedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := common.Read(ctx, r.policy, func(ctx context.Context) error {
		transactions = nil
		return r.db.SelectContext(ctx, &transactions, `
			SELECT * FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
		`, userID, limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("ledger repository: list transactions %w", err)
	}
	return transactions, nil
}

// CheckConservation сверяет удержанную награду задания с выплатами, возвратами и комиссией.
func (r *LedgerRepository) CheckConservation(ctx context.Context, bountyID uuid.UUID) (*models.ConservationReport, error) {
	var report models.ConservationReport
	err := common.Read(ctx, r.policy, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &report, `
			SELECT b.id AS bounty_id, b.status, b.reward,
				COALESCE((SELECT SUM(amount) FROM transactions WHERE bounty_id = b.id AND type = 'escrow_hold'), 0) AS held,
				COALESCE((SELECT SUM(amount) FROM transactions WHERE bounty_id = b.id AND type = 'bounty_reward'), 0) AS paid_out,
				COALESCE((SELECT SUM(amount) FROM transactions WHERE bounty_id = b.id AND type = 'refund'), 0) AS refunded,
				COALESCE((SELECT SUM(amount) FROM platform_revenue WHERE bounty_id = b.id), 0) AS fee_taken
			FROM bounties b WHERE b.id = $1
		`, bountyID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBountyNotFound
		}
		return nil, fmt.Errorf("ledger repository: check conservation %w", err)
	}
	return &report, nil
}

// txRow — данные новой строки transactions.
type txRow struct {
	UserID      uuid.UUID
	BountyID    *uuid.UUID
	Type        string
	Amount      decimal.Decimal
	Points      int64
	ExternalRef *string
	Description string
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, row txRow) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.GetContext(ctx, &id, `
		INSERT INTO transactions (user_id, bounty_id, type, amount, points, status, external_ref, description)
		VALUES ($1, $2, $3, $4, $5, 'completed', $6, $7)
		RETURNING id
	`, row.UserID, row.BountyID, row.Type, row.Amount, row.Points, row.ExternalRef, row.Description)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ledger repository: insert %s transaction %w", row.Type, err)
	}
	return id, nil
}

func insertRevenue(ctx context.Context, tx *sqlx.Tx, amount decimal.Decimal, source string, bountyID, transactionID *uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO platform_revenue (amount, source, bounty_id, transaction_id)
		VALUES ($1, $2, $3, $4)
	`, amount, source, bountyID, transactionID)
	if err != nil {
		return fmt.Errorf("ledger repository: insert revenue %w", err)
	}
	return nil
}

// debitBalance атомарно списывает деньги только если их хватает.
func debitBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance, `
		UPDATE users SET balance = balance - $2, updated_at = NOW()
		WHERE id = $1 AND is_active AND balance >= $2
		RETURNING balance
	`, userID, amount)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ledger repository: debit balance %w", err)
	}
	if err := ensureUser(ctx, tx, userID); err != nil {
		return err
	}
	return ErrInsufficientFunds
}

// debitPoints атомарно списывает баллы только если их хватает.
func debitPoints(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, points int64) error {
	if points <= 0 {
		return nil
	}
	var left int64
	err := tx.GetContext(ctx, &left, `
		UPDATE users SET points = points - $2, updated_at = NOW()
		WHERE id = $1 AND is_active AND points >= $2
		RETURNING points
	`, userID, points)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ledger repository: debit points %w", err)
	}
	if err := ensureUser(ctx, tx, userID); err != nil {
		return err
	}
	return ErrInsufficientPoints
}

func ensureUser(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND is_active)`, userID); err != nil {
		return fmt.Errorf("ledger repository: check user %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return nil
}

func loadWallet(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := tx.GetContext(ctx, &wallet, `SELECT id, balance, points, lifetime_earned FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("ledger repository: load wallet %w", err)
	}
	return &wallet, nil
}

func lockBounty(ctx context.Context, tx *sqlx.Tx, bountyID uuid.UUID) (*models.Bounty, error) {
	var bounty models.Bounty
	err := tx.GetContext(ctx, &bounty, `SELECT * FROM bounties WHERE id = $1 FOR UPDATE`, bountyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBountyNotFound
		}
		return nil, fmt.Errorf("ledger repository: lock bounty %w", err)
	}
	return &bounty, nil
}

// lockActiveBounty блокирует задание и проверяет автора и статус. Проверка автора идёт первой,
// чтобы посторонний не узнавал статус чужого задания.
func lockActiveBounty(ctx context.Context, tx *sqlx.Tx, bountyID uuid.UUID, authorID *uuid.UUID) (*models.Bounty, error) {
	bounty, err := lockBounty(ctx, tx, bountyID)
	if err != nil {
		return nil, err
	}
	if authorID != nil && bounty.AuthorID != *authorID {
		return nil, ErrNotBountyAuthor
	}
	if bounty.Status != models.BountyStatusActive {
		return nil, ErrBountyNotActive
	}
	return bounty, nil
}

// closeBounty переводит заблокированное задание в терминальный статус. Переход проверяется
// по машине состояний, а UPDATE дополнительно требует status = 'active'.
func closeBounty(ctx context.Context, tx *sqlx.Tx, locked *models.Bounty, status valueobject.BountyStatus, claimedBy *uuid.UUID) (*models.Bounty, error) {
	if !locked.Status.CanTransitionTo(status) {
		return nil, ErrBountyNotActive
	}

	var bounty models.Bounty
	err := tx.GetContext(ctx, &bounty, `
		UPDATE bounties SET status = $2, claimed_by = COALESCE($3, claimed_by), closed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING *
	`, locked.ID, string(status), claimedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBountyNotActive
		}
		return nil, fmt.Errorf("ledger repository: close bounty %w", err)
	}
	return &bounty, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/pkg/retry"
	"github.com/ignatzorin/bounty-backend/internal/repository/common"
)

// BountyRepository отвечает за чтение заданий и работу с откликами.
// Денежные переходы статуса выполняет LedgerRepository.
type BountyRepository struct {
	db     *sqlx.DB
	policy retry.Policy
}

func NewBountyRepository(db *sqlx.DB, policy retry.Policy) *BountyRepository {
	return &BountyRepository{db: db, policy: policy}
}

// GetByID возвращает задание по идентификатору.
func (r *BountyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bounty, error) {
	var bounty *models.Bounty
	err := common.Read(ctx, r.policy, func(ctx context.Context) error {
		var err error
		bounty, err = common.GetByID[models.Bounty](ctx, r.db, "bounties", id, ErrBountyNotFound)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bounty, nil
}

// ListActive возвращает активные задания, срок которых не истёк к моменту now:
// сначала с действующим бустом, затем новые.
func (r *BountyRepository) ListActive(ctx context.Context, now time.Time, limit, offset int) ([]models.Bounty, error) {
	var bounties []models.Bounty
	err := common.Read(ctx, r.policy, func(ctx context.Context) error {
		bounties = nil
		return r.db.SelectContext(ctx, &bounties, `
			SELECT * FROM bounties
			WHERE status = 'active' AND created_at + make_interval(days => duration_days) >= $1
			ORDER BY
				CASE WHEN boost_expires_at > $1 THEN boost_level ELSE 0 END DESC,
				created_at DESC
			LIMIT $2 OFFSET $3
		`, now, limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("bounty repository: list active %w", err)
	}
	return bounties, nil
}

// ListByAuthor возвращает задания автора во всех статусах.
func (r *BountyRepository) ListByAuthor(ctx context.Context, authorID uuid.UUID, limit, offset int) ([]models.Bounty, error) {
	var bounties []models.Bounty
	err := common.Read(ctx, r.policy, func(ctx context.Context) error {
		bounties = nil
		return r.db.SelectContext(ctx, &bounties, `
			SELECT * FROM bounties WHERE author_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
		`, authorID, limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("bounty repository: list by author %w", err)
	}
	return bounties, nil
}

// ListOverdueIDs возвращает идентификаторы активных заданий, срок которых истёк к моменту now.
func (r *BountyRepository) ListOverdueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := common.Read(ctx, r.policy, func(ctx context.Context) error {
		ids = nil
		return r.db.SelectContext(ctx, &ids, `
			SELECT id FROM bounties
			WHERE status = 'active' AND created_at + make_interval(days => duration_days) < $1
			ORDER BY created_at
			LIMIT $2
		`, now, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("bounty repository: list overdue %w", err)
	}
	return ids, nil
}

// ResetExpiredBoosts обнуляет истёкшие бусты активных заданий и возвращает число изменённых строк.
func (r *BountyRepository) ResetExpiredBoosts(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bounties SET boost_level = 0, boost_expires_at = NULL, updated_at = NOW()
		WHERE status = 'active' AND boost_level > 0 AND boost_expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("bounty repository: reset boosts %w", err)
	}
	return result.RowsAffected()
}

// CreateApplication создаёт отклик на активное задание.
func (r *BountyRepository) CreateApplication(ctx context.Context, bountyID, applicantID uuid.UUID, message string) (*models.BountyApplication, error) {
	var app models.BountyApplication
	err := r.db.GetContext(ctx, &app, `
		INSERT INTO bounty_applications (bounty_id, applicant_id, message, status)
		SELECT id, $2, $3, 'pending' FROM bounties WHERE id = $1 AND status = 'active'
		RETURNING *
	`, bountyID, applicantID, message)
	if err == nil {
		return &app, nil
	}
	if common.IsUniqueViolation(err) {
		return nil, ErrAlreadyApplied
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bounty repository: create application %w", err)
	}
	if _, err := r.GetByID(ctx, bountyID); err != nil {
		return nil, err
	}
	return nil, ErrBountyNotActive
}

// GetApplication возвращает отклик по идентификатору.
func (r *BountyRepository) GetApplication(ctx context.Context, id uuid.UUID) (*models.BountyApplication, error) {
	return common.GetByID[models.BountyApplication](ctx, r.db, "bounty_applications", id, ErrApplicationNotFound)
}

// ListApplications возвращает отклики на задание в порядке поступления.
func (r *BountyRepository) ListApplications(ctx context.Context, bountyID uuid.UUID) ([]models.BountyApplication, error) {
	var apps []models.BountyApplication
	if err := r.db.SelectContext(ctx, &apps, `
		SELECT * FROM bounty_applications WHERE bounty_id = $1 ORDER BY created_at
	`, bountyID); err != nil {
		return nil, fmt.Errorf("bounty repository: list applications %w", err)
	}
	return apps, nil
}

// DecideApplication принимает или отклоняет отклик. Решение принимает только автор задания и только один раз.
func (r *BountyRepository) DecideApplication(ctx context.Context, applicationID, authorID uuid.UUID, status string) (*models.BountyApplication, error) {
	var app models.BountyApplication
	err := r.db.GetContext(ctx, &app, `
		UPDATE bounty_applications a SET status = $3, updated_at = NOW()
		FROM bounties b
		WHERE a.id = $1 AND a.bounty_id = b.id AND b.author_id = $2 AND a.status = 'pending'
		RETURNING a.*
	`, applicationID, authorID, status)
	if err == nil {
		return &app, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bounty repository: decide application %w", err)
	}

	existing, err := r.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	bounty, err := r.GetByID(ctx, existing.BountyID)
	if err != nil {
		return nil, err
	}
	if bounty.AuthorID != authorID {
		return nil, ErrNotBountyAuthor
	}
	return nil, ErrApplicationDecided
}

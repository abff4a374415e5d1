package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-backend/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-backend/internal/goroutine"
	"github.com/ignatzorin/bounty-backend/internal/logger"
	"github.com/ignatzorin/bounty-backend/internal/metrics"
	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-backend/internal/repository"
	"github.com/ignatzorin/bounty-backend/internal/validation"
)

// Ограничения на публикацию задания.
var (
	MinReward = decimal.RequireFromString("1.00")
	MaxReward = decimal.RequireFromString("10000.00")
)

const (
	MinDurationDays = 1
	MaxDurationDays = 90
)

// LedgerStore — атомарные денежные операции над заданиями и кошельками.
type LedgerStore interface {
	PostBounty(ctx context.Context, p repository.PostBountyParams) (*repository.BountyResult, error)
	CompleteBounty(ctx context.Context, bountyID, authorID, completedBy uuid.UUID) (*repository.BountyResult, error)
	ExpireBounty(ctx context.Context, bountyID uuid.UUID, fee valueobject.FeeBreakdown, asOf time.Time) (*repository.ExpireResult, error)
	DeleteBounty(ctx context.Context, bountyID, authorID uuid.UUID) (*repository.BountyResult, error)
	BoostBounty(ctx context.Context, bountyID, userID uuid.UUID, tier valueobject.BoostTier, now time.Time) (*repository.BoostResult, error)
	CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, destination string) (*models.Withdrawal, *models.Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error)
	CheckConservation(ctx context.Context, bountyID uuid.UUID) (*models.ConservationReport, error)
}

// BountyStore — чтение заданий и работа с откликами.
type BountyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bounty, error)
	ListActive(ctx context.Context, now time.Time, limit, offset int) ([]models.Bounty, error)
	ListByAuthor(ctx context.Context, authorID uuid.UUID, limit, offset int) ([]models.Bounty, error)
	ListOverdueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ResetExpiredBoosts(ctx context.Context, now time.Time) (int64, error)
	CreateApplication(ctx context.Context, bountyID, applicantID uuid.UUID, message string) (*models.BountyApplication, error)
	GetApplication(ctx context.Context, id uuid.UUID) (*models.BountyApplication, error)
	ListApplications(ctx context.Context, bountyID uuid.UUID) ([]models.BountyApplication, error)
	DecideApplication(ctx context.Context, applicationID, authorID uuid.UUID, status string) (*models.BountyApplication, error)
}

// PostBountyInput — данные нового задания.
type PostBountyInput struct {
	Title        string
	Description  string
	Reward       decimal.Decimal
	DurationDays int
}

// BountyService — машина состояний задания: публикация, отклики, выполнение, истечение, снятие.
type BountyService struct {
	ledger   LedgerStore
	bounties BountyStore
	activity ActivityPublisher
	now      func() time.Time
	onList   func()
	log      *logrus.Entry
}

// NewBountyService создаёт сервис заданий.
func NewBountyService(ledger LedgerStore, bounties BountyStore, activity ActivityPublisher) *BountyService {
	if activity == nil {
		activity = noopPublisher{}
	}
	return &BountyService{
		ledger:   ledger,
		bounties: bounties,
		activity: activity,
		now:      time.Now,
		log:      logger.WithComponent("bounty"),
	}
}

// SetListingHook задаёт функцию, которая вызывается при каждом чтении ленты заданий.
func (s *BountyService) SetListingHook(fn func()) {
	s.onList = fn
}

// Post публикует задание и удерживает награду с баланса автора.
func (s *BountyService) Post(ctx context.Context, authorID uuid.UUID, in PostBountyInput) (*repository.BountyResult, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validatePost(in); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.ledger.PostBounty(ctx, repository.PostBountyParams{
		AuthorID:     authorID,
		Title:        in.Title,
		Description:  in.Description,
		Reward:       in.Reward,
		DurationDays: in.DurationDays,
		PostingCost:  models.PostingCostPoints,
	})
	metrics.ObserveLedger("post", start, err)
	if err != nil {
		return nil, translateError(err)
	}

	s.log.WithFields(logrus.Fields{
		"bounty_id": res.Bounty.ID,
		"author_id": authorID,
		"reward":    res.Bounty.Reward.StringFixed(2),
	}).Info("bounty posted")
	s.activity.Publish(ctx, authorID, models.ActivityBountyPosted, res.Bounty)

	return res, nil
}

// Apply создаёт отклик на активное задание.
func (s *BountyService) Apply(ctx context.Context, bountyID, applicantID uuid.UUID, message string) (*models.BountyApplication, error) {
	message = strings.TrimSpace(message)
	if err := validation.ValidateApplicationMessage(message); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	bounty, err := s.bounties.GetByID(ctx, bountyID)
	if err != nil {
		return nil, translateError(err)
	}
	if bounty.AuthorID == applicantID {
		return nil, apperror.Validation("нельзя откликнуться на собственное задание")
	}
	if bounty.Status != models.BountyStatusActive {
		return nil, apperror.ErrNotActive
	}

	app, err := s.bounties.CreateApplication(ctx, bountyID, applicantID, message)
	if err != nil {
		return nil, translateError(err)
	}

	s.activity.Publish(ctx, bounty.AuthorID, models.ActivityBountyApplied, app)
	return app, nil
}

// SetApplicationStatus принимает или отклоняет отклик. Деньги и статус задания не меняются.
func (s *BountyService) SetApplicationStatus(ctx context.Context, applicationID, authorID uuid.UUID, status string) (*models.BountyApplication, error) {
	decision, err := valueobject.NewApplicationDecision(status)
	if err != nil {
		return nil, err
	}

	app, err := s.bounties.DecideApplication(ctx, applicationID, authorID, string(decision))
	if err != nil {
		return nil, translateError(err)
	}

	s.activity.Publish(ctx, app.ApplicantID, models.ActivityApplicationStatus, app)
	return app, nil
}

// Complete выплачивает исполнителю полную награду. Повторный вызов возвращает NotActive.
func (s *BountyService) Complete(ctx context.Context, bountyID, authorID, completedBy uuid.UUID) (*repository.BountyResult, error) {
	if completedBy == uuid.Nil {
		return nil, apperror.Validation("не указан исполнитель")
	}
	// Чужое задание отклоняем раньше проверки исполнителя. Окончательно автор
	// и статус проверяются в хранилище под блокировкой строки.
	bounty, err := s.bounties.GetByID(ctx, bountyID)
	if err != nil {
		return nil, translateError(err)
	}
	if bounty.AuthorID != authorID {
		return nil, apperror.ErrNotAuthor
	}
	if completedBy == authorID {
		return nil, apperror.Validation("автор не может быть исполнителем собственного задания")
	}

	start := time.Now()
	res, err := s.ledger.CompleteBounty(ctx, bountyID, authorID, completedBy)
	metrics.ObserveLedger("complete", start, err)
	if err != nil {
		return nil, translateError(err)
	}

	s.log.WithFields(logrus.Fields{
		"bounty_id":    bountyID,
		"completed_by": completedBy,
		"reward":       res.Bounty.Reward.StringFixed(2),
	}).Info("bounty completed")
	s.activity.Publish(ctx, completedBy, models.ActivityBountyCompleted, res.Bounty)
	s.audit(ctx, bountyID)

	return res, nil
}

// Expire возвращает автору награду за вычетом комиссии. Для неактивного задания ничего не делает.
func (s *BountyService) Expire(ctx context.Context, bountyID uuid.UUID) (*repository.ExpireResult, error) {
	bounty, err := s.bounties.GetByID(ctx, bountyID)
	if err != nil {
		return nil, translateError(err)
	}
	if bounty.Status != models.BountyStatusActive {
		return &repository.ExpireResult{Bounty: bounty}, nil
	}

	fee := valueobject.ComputeFee(bounty.Reward)

	start := time.Now()
	res, err := s.ledger.ExpireBounty(ctx, bountyID, fee, s.now())
	metrics.ObserveLedger("expire", start, err)
	if err != nil {
		return nil, translateError(err)
	}
	if !res.Expired {
		return res, nil
	}

	metrics.AddRevenue(models.RevenueSourceBountyExpiry, res.Fee)
	s.log.WithFields(logrus.Fields{
		"bounty_id": bountyID,
		"refund":    res.Refund.StringFixed(2),
		"fee":       res.Fee.StringFixed(2),
	}).Info("bounty expired")
	s.activity.Publish(ctx, res.Bounty.AuthorID, models.ActivityBountyExpired, map[string]interface{}{
		"bounty": res.Bounty,
		"refund": res.Refund,
		"fee":    res.Fee,
	})
	s.audit(ctx, bountyID)

	return res, nil
}

// Delete снимает задание автором и возвращает награду полностью.
func (s *BountyService) Delete(ctx context.Context, bountyID, authorID uuid.UUID) (*repository.BountyResult, error) {
	start := time.Now()
	res, err := s.ledger.DeleteBounty(ctx, bountyID, authorID)
	metrics.ObserveLedger("delete", start, err)
	if err != nil {
		return nil, translateError(err)
	}

	s.log.WithField("bounty_id", bountyID).Info("bounty deleted")
	s.activity.Publish(ctx, authorID, models.ActivityBountyDeleted, res.Bounty)
	s.audit(ctx, bountyID)

	return res, nil
}

// Get возвращает задание.
func (s *BountyService) Get(ctx context.Context, bountyID uuid.UUID) (*models.Bounty, error) {
	bounty, err := s.bounties.GetByID(ctx, bountyID)
	if err != nil {
		return nil, translateError(err)
	}
	return bounty, nil
}

// BountyFeed — страница публичной ленты. Items уже развёрнуты по бустам,
// Fetched — число заданий, прочитанных из хранилища для этой страницы.
type BountyFeed struct {
	Items   []models.Bounty
	Fetched int
}

// ListActive возвращает ленту активных заданий с учётом бустов и запускает проверку сроков.
// Просроченные задания в ленту не попадают, даже если свипер их ещё не закрыл.
func (s *BountyService) ListActive(ctx context.Context, limit, offset int) (*BountyFeed, error) {
	if s.onList != nil {
		s.onList()
	}

	limit, offset = normalizePage(limit, offset)
	now := s.now()
	bounties, err := s.bounties.ListActive(ctx, now, limit, offset)
	if err != nil {
		return nil, translateError(err)
	}
	return &BountyFeed{Items: ExpandByBoost(bounties, now), Fetched: len(bounties)}, nil
}

// ListMine возвращает задания автора во всех статусах.
func (s *BountyService) ListMine(ctx context.Context, authorID uuid.UUID, limit, offset int) ([]models.Bounty, error) {
	limit, offset = normalizePage(limit, offset)
	bounties, err := s.bounties.ListByAuthor(ctx, authorID, limit, offset)
	if err != nil {
		return nil, translateError(err)
	}
	return bounties, nil
}

// ListApplications возвращает отклики на задание. Доступно только автору.
func (s *BountyService) ListApplications(ctx context.Context, bountyID, authorID uuid.UUID) ([]models.BountyApplication, error) {
	bounty, err := s.bounties.GetByID(ctx, bountyID)
	if err != nil {
		return nil, translateError(err)
	}
	if bounty.AuthorID != authorID {
		return nil, apperror.ErrNotAuthor
	}

	apps, err := s.bounties.ListApplications(ctx, bountyID)
	if err != nil {
		return nil, translateError(err)
	}
	return apps, nil
}

// CheckConservation сверяет удержанную награду с выплатами, возвратами и комиссией.
func (s *BountyService) CheckConservation(ctx context.Context, bountyID uuid.UUID) (*models.ConservationReport, error) {
	report, err := s.ledger.CheckConservation(ctx, bountyID)
	if err != nil {
		return nil, translateError(err)
	}
	return report, nil
}

// audit проверяет баланс закрытого задания в фоне и сообщает о расхождении.
func (s *BountyService) audit(ctx context.Context, bountyID uuid.UUID) {
	auditCtx := context.WithoutCancel(ctx)
	goroutine.SafeGo(func() {
		report, err := s.ledger.CheckConservation(auditCtx, bountyID)
		if err != nil {
			s.log.WithError(err).WithField("bounty_id", bountyID).Warn("conservation audit failed")
			return
		}
		if !report.Balanced() {
			metrics.ConservationViolations.Inc()
			s.log.WithFields(logrus.Fields{
				"bounty_id": bountyID,
				"held":      report.Held.StringFixed(2),
				"paid_out":  report.PaidOut.StringFixed(2),
				"refunded":  report.Refunded.StringFixed(2),
				"fee":       report.FeeTaken.StringFixed(2),
			}).Error("conservation violated")
		}
	})
}

func validatePost(in PostBountyInput) error {
	if err := validation.ValidateBountyTitle(in.Title); err != nil {
		return apperror.Validation(err.Error())
	}
	if err := validation.ValidateBountyDescription(in.Description); err != nil {
		return apperror.Validation(err.Error())
	}
	if in.Reward.LessThan(MinReward) {
		return apperror.Validation("награда должна быть не меньше 1.00")
	}
	if in.Reward.GreaterThan(MaxReward) {
		return apperror.Validation("награда превышает допустимый максимум")
	}
	if !in.Reward.Equal(in.Reward.Round(2)) {
		return apperror.Validation("награда должна содержать не более двух знаков после запятой")
	}
	if in.DurationDays < MinDurationDays || in.DurationDays > MaxDurationDays {
		return apperror.Validation("срок задания должен быть от 1 до 90 дней")
	}
	return nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

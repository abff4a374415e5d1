package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-backend/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-backend/internal/logger"
	"github.com/ignatzorin/bounty-backend/internal/metrics"
	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/payment"
	"github.com/ignatzorin/bounty-backend/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-backend/internal/repository"
)

// Ограничения на пополнение баланса.
var (
	MinDeposit = decimal.RequireFromString("1.00")
	MaxDeposit = decimal.RequireFromString("10000.00")
)

// PointsStore — идемпотентные зачисления по внешним платежам.
type PointsStore interface {
	CreditPointPurchase(ctx context.Context, c repository.PointCredit) (*models.PointPurchase, bool, error)
	CreditDeposit(ctx context.Context, c repository.DepositCredit) (*models.Deposit, bool, error)
	ApplyPointRefund(ctx context.Context, externalRef string) (*models.PointPurchase, bool, error)
	GetPurchase(ctx context.Context, id uuid.UUID) (*models.PointPurchase, error)
	ListPurchases(ctx context.Context, userID uuid.UUID) ([]models.PointPurchase, error)
}

// WalletReader читает кошелёк пользователя.
type WalletReader interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

// IntentResult — созданное намерение платежа для клиента.
type IntentResult struct {
	IntentID     string          `json:"intent_id"`
	ClientSecret string          `json:"client_secret"`
	Kind         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	PackageID    string          `json:"package_id,omitempty"`
	Points       int64           `json:"points,omitempty"`
}

// CreditResult — итог зачисления по платежу.
type CreditResult struct {
	Kind             string                `json:"type"`
	Purchase         *models.PointPurchase `json:"purchase,omitempty"`
	Deposit          *models.Deposit       `json:"deposit,omitempty"`
	Wallet           *models.Wallet        `json:"wallet,omitempty"`
	AlreadyProcessed bool                  `json:"already_processed"`
}

// RefundResult — итог возврата покупки баллов. BeforePayment означает, что возврат пришёл
// раньше успешной оплаты: он запомнен, а сам платёж зачислен не будет.
type RefundResult struct {
	Purchase         *models.PointPurchase `json:"purchase,omitempty"`
	Wallet           *models.Wallet        `json:"wallet,omitempty"`
	AlreadyProcessed bool                  `json:"already_processed"`
	BeforePayment    bool                  `json:"before_payment,omitempty"`
}

// PointsService — покупка баллов, пополнение баланса и возвраты через платёжного провайдера.
type PointsService struct {
	store    PointsStore
	wallets  WalletReader
	provider payment.Provider
	activity ActivityPublisher
	log      *logrus.Entry
}

func NewPointsService(store PointsStore, wallets WalletReader, provider payment.Provider, activity ActivityPublisher) *PointsService {
	if activity == nil {
		activity = noopPublisher{}
	}
	return &PointsService{
		store:    store,
		wallets:  wallets,
		provider: provider,
		activity: activity,
		log:      logger.WithComponent("points"),
	}
}

// Packages возвращает каталог пакетов баллов.
func (s *PointsService) Packages() []models.PointPackage {
	return models.PointPackages
}

// Purchase создаёт платёж за пакет баллов. Баллы начисляются после подтверждения платежа.
func (s *PointsService) Purchase(ctx context.Context, userID uuid.UUID, packageID string) (*IntentResult, error) {
	pkg, ok := models.FindPointPackage(packageID)
	if !ok {
		return nil, apperror.Validation("неизвестный пакет баллов")
	}

	intent, err := s.provider.CreateIntent(ctx, payment.CreateIntentParams{
		UserID:         userID,
		Kind:           payment.KindPoints,
		PackageID:      pkg.ID,
		Points:         pkg.Points,
		Amount:         pkg.Price,
		IdempotencyKey: intentKey(payment.KindPoints),
	})
	if err != nil {
		return nil, providerError(err, "не удалось создать платёж")
	}

	return &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Kind:         payment.KindPoints,
		Amount:       pkg.Price,
		PackageID:    pkg.ID,
		Points:       pkg.Points,
	}, nil
}

// Deposit создаёт платёж на пополнение баланса. Зачисляется сумма за вычетом комиссии.
func (s *PointsService) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*IntentResult, error) {
	if err := validateAmount(amount, MinDeposit, MaxDeposit); err != nil {
		return nil, err
	}

	intent, err := s.provider.CreateIntent(ctx, payment.CreateIntentParams{
		UserID:         userID,
		Kind:           payment.KindDeposit,
		Amount:         amount,
		IdempotencyKey: intentKey(payment.KindDeposit),
	})
	if err != nil {
		return nil, providerError(err, "не удалось создать платёж")
	}

	return &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Kind:         payment.KindDeposit,
		Amount:       amount,
	}, nil
}

// Confirm проверяет платёж у провайдера и зачисляет его. Повторное подтверждение
// возвращает прежний результат с AlreadyProcessed.
func (s *PointsService) Confirm(ctx context.Context, userID uuid.UUID, intentID string) (*CreditResult, error) {
	intent, err := s.provider.GetIntent(ctx, intentID)
	if err != nil {
		return nil, providerError(err, "не удалось получить платёж")
	}
	if intent.UserID != userID {
		return nil, apperror.ErrPaymentOwnerMismatch
	}
	if !intent.Succeeded() {
		return nil, apperror.ErrPaymentNotSucceeded
	}

	return s.ApplyIntent(ctx, intent)
}

// ApplyIntent зачисляет успешный платёж в леджер. Используется подтверждением и сверкой вебхуков.
func (s *PointsService) ApplyIntent(ctx context.Context, intent *payment.Intent) (*CreditResult, error) {
	if intent.UserID == uuid.Nil {
		return nil, apperror.Validation("платёж не привязан к пользователю")
	}

	var (
		res *CreditResult
		err error
	)
	start := time.Now()
	switch intent.Kind {
	case payment.KindPoints:
		res, err = s.creditPoints(ctx, intent)
		metrics.ObserveLedger("credit_points", start, err)
	case payment.KindDeposit:
		res, err = s.creditDeposit(ctx, intent)
		metrics.ObserveLedger("credit_deposit", start, err)
	default:
		return nil, apperror.Validation(fmt.Sprintf("неизвестный тип платежа %q", intent.Kind))
	}
	if err != nil {
		return nil, err
	}

	wallet, err := s.wallets.GetWallet(ctx, intent.UserID)
	if err != nil {
		return nil, translateError(err)
	}
	res.Wallet = wallet
	return res, nil
}

func (s *PointsService) creditPoints(ctx context.Context, intent *payment.Intent) (*CreditResult, error) {
	pkg, ok := models.FindPointPackage(intent.PackageID)
	if !ok {
		return nil, apperror.Validation("неизвестный пакет баллов")
	}
	if !intent.Amount.Equal(pkg.Price) {
		return nil, apperror.New(apperror.ErrCodeInvariant, "сумма платежа не совпадает с ценой пакета")
	}

	purchase, created, err := s.store.CreditPointPurchase(ctx, repository.PointCredit{
		UserID:      intent.UserID,
		PackageID:   pkg.ID,
		Points:      pkg.Points,
		Amount:      pkg.Price,
		ExternalRef: intent.ID,
	})
	if err != nil {
		return nil, translateError(err)
	}

	if created {
		metrics.AddRevenue(models.RevenueSourcePointPurchase, pkg.Price)
		s.log.WithFields(logrus.Fields{
			"user_id":   intent.UserID,
			"intent_id": intent.ID,
			"points":    pkg.Points,
		}).Info("points credited")
		s.activity.Publish(ctx, intent.UserID, models.ActivityPointsEarned, purchase)
	}

	return &CreditResult{Kind: payment.KindPoints, Purchase: purchase, AlreadyProcessed: !created}, nil
}

func (s *PointsService) creditDeposit(ctx context.Context, intent *payment.Intent) (*CreditResult, error) {
	fee := valueobject.ComputeFee(intent.Amount)

	deposit, created, err := s.store.CreditDeposit(ctx, repository.DepositCredit{
		UserID:      intent.UserID,
		ExternalRef: intent.ID,
		Fee:         fee,
	})
	if err != nil {
		return nil, translateError(err)
	}

	if created {
		metrics.AddRevenue(models.RevenueSourceDepositFee, fee.Fee)
		s.log.WithFields(logrus.Fields{
			"user_id":   intent.UserID,
			"intent_id": intent.ID,
			"net":       fee.Net.StringFixed(2),
			"fee":       fee.Fee.StringFixed(2),
		}).Info("deposit credited")
		s.activity.Publish(ctx, intent.UserID, models.ActivityBalanceDeposited, deposit)
	}

	return &CreditResult{Kind: payment.KindDeposit, Deposit: deposit, AlreadyProcessed: !created}, nil
}

// RefundPurchase возвращает деньги за неиспользованные баллы. Сначала выполняется возврат у провайдера:
// если он не удался, леджер не меняется.
func (s *PointsService) RefundPurchase(ctx context.Context, userID, purchaseID uuid.UUID) (*RefundResult, error) {
	purchase, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, translateError(err)
	}
	if purchase.UserID != userID {
		return nil, apperror.ErrPurchaseNotFound
	}
	if purchase.Status == models.PointPurchaseStatusRefunded {
		return &RefundResult{Purchase: purchase, AlreadyProcessed: true}, nil
	}

	wallet, err := s.wallets.GetWallet(ctx, userID)
	if err != nil {
		return nil, translateError(err)
	}
	if wallet.Points < purchase.Points {
		return nil, apperror.New(apperror.ErrCodeInsufficientPoints, "баллы из этой покупки уже потрачены")
	}

	if err := s.provider.Refund(ctx, purchase.ExternalRef, "refund-"+purchase.ID.String()); err != nil {
		return nil, providerError(err, "не удалось выполнить возврат платежа")
	}

	res, err := s.applyRefund(ctx, purchase.ExternalRef)
	if err != nil {
		// Деньги уже возвращены провайдером, баллы остались: нужна ручная сверка.
		s.log.WithError(err).WithFields(logrus.Fields{
			"purchase_id": purchase.ID,
			"intent_id":   purchase.ExternalRef,
		}).Error("provider refund succeeded but ledger refund failed")
		return nil, err
	}
	return res, nil
}

// ApplyRefund списывает баллы по возврату, пришедшему от провайдера. Учтённое пополнение
// пропускается, ещё не зачисленный платёж блокируется для будущего зачисления.
func (s *PointsService) ApplyRefund(ctx context.Context, intentID string) (*RefundResult, error) {
	res, err := s.applyRefund(ctx, intentID)
	if errors.Is(err, apperror.ErrPurchaseNotFound) {
		return nil, nil
	}
	return res, err
}

func (s *PointsService) applyRefund(ctx context.Context, externalRef string) (*RefundResult, error) {
	start := time.Now()
	purchase, refunded, err := s.store.ApplyPointRefund(ctx, externalRef)
	metrics.ObserveLedger("refund_points", start, err)
	if err != nil {
		return nil, translateError(err)
	}
	if purchase == nil {
		s.log.WithField("intent_id", externalRef).Warn("refund recorded before payment was credited")
		return &RefundResult{BeforePayment: true}, nil
	}

	if refunded {
		s.log.WithFields(logrus.Fields{
			"user_id":   purchase.UserID,
			"intent_id": externalRef,
			"points":    purchase.Points,
		}).Info("point purchase refunded")
		s.activity.Publish(ctx, purchase.UserID, models.ActivityPointsRefunded, purchase)
	}

	wallet, err := s.wallets.GetWallet(ctx, purchase.UserID)
	if err != nil {
		return nil, translateError(err)
	}
	return &RefundResult{Purchase: purchase, Wallet: wallet, AlreadyProcessed: !refunded}, nil
}

// Purchases возвращает покупки баллов пользователя.
func (s *PointsService) Purchases(ctx context.Context, userID uuid.UUID) ([]models.PointPurchase, error) {
	purchases, err := s.store.ListPurchases(ctx, userID)
	if err != nil {
		return nil, translateError(err)
	}
	return purchases, nil
}

// intentKey — ключ идемпотентности одного запроса на создание платежа. Повторы
// внутри политики вызовов используют тот же ключ и не создают второй платёж.
func intentKey(kind string) string {
	return kind + "-" + uuid.NewString()
}

func validateAmount(amount, min, max decimal.Decimal) error {
	if amount.LessThan(min) {
		return apperror.Validation(fmt.Sprintf("сумма должна быть не меньше %s", min.StringFixed(2)))
	}
	if amount.GreaterThan(max) {
		return apperror.Validation(fmt.Sprintf("сумма должна быть не больше %s", max.StringFixed(2)))
	}
	if !amount.Equal(amount.Round(2)) {
		return apperror.Validation("сумма должна содержать не более двух знаков после запятой")
	}
	return nil
}

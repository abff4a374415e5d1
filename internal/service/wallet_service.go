package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-backend/internal/logger"
	"github.com/ignatzorin/bounty-backend/internal/metrics"
	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-backend/internal/validation"
)

// Ограничения на вывод средств.
var (
	MinWithdrawal = decimal.RequireFromString("10.00")
	MaxWithdrawal = decimal.RequireFromString("10000.00")
)

type WalletService struct {
	ledger  LedgerStore
	wallets WalletReader
	log     *logrus.Entry
}

func NewWalletService(ledger LedgerStore, wallets WalletReader) *WalletService {
	return &WalletService{
		ledger:  ledger,
		wallets: wallets,
		log:     logger.WithComponent("wallet"),
	}
}

// GetWallet возвращает баланс, баллы и заработок пользователя.
func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.wallets.GetWallet(ctx, userID)
	if err != nil {
		return nil, translateError(err)
	}
	return wallet, nil
}

// ListTransactions возвращает историю транзакций.
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	limit, offset = normalizePage(limit, offset)
	transactions, err := s.ledger.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, translateError(err)
	}
	return transactions, nil
}

// Withdraw списывает сумму с баланса и создаёт заявку на вывод.
func (s *WalletService) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, destination string) (*models.Withdrawal, *models.Wallet, error) {
	if err := validateAmount(amount, MinWithdrawal, MaxWithdrawal); err != nil {
		return nil, nil, err
	}
	destination = strings.TrimSpace(destination)
	if err := validation.ValidateLength("реквизиты вывода", destination, 0, validation.MaxDestinationLength); err != nil {
		return nil, nil, apperror.Validation(err.Error())
	}

	start := time.Now()
	withdrawal, wallet, err := s.ledger.CreateWithdrawal(ctx, userID, amount, destination)
	metrics.ObserveLedger("withdraw", start, err)
	if err != nil {
		return nil, nil, translateError(err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":       userID,
		"withdrawal_id": withdrawal.ID,
		"amount":        amount.StringFixed(2),
	}).Info("withdrawal requested")

	return withdrawal, wallet, nil
}

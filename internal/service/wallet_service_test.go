package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/bounty-backend/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-backend/internal/repository"
)

type mockLedgerStore struct {
	mock.Mock
}

func (m *mockLedgerStore) PostBounty(ctx context.Context, p repository.PostBountyParams) (*repository.BountyResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.BountyResult), args.Error(1)
}

func (m *mockLedgerStore) CompleteBounty(ctx context.Context, bountyID, authorID, completedBy uuid.UUID) (*repository.BountyResult, error) {
	args := m.Called(ctx, bountyID, authorID, completedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.BountyResult), args.Error(1)
}

func (m *mockLedgerStore) ExpireBounty(ctx context.Context, bountyID uuid.UUID, fee valueobject.FeeBreakdown, asOf time.Time) (*repository.ExpireResult, error) {
	args := m.Called(ctx, bountyID, fee, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ExpireResult), args.Error(1)
}

func (m *mockLedgerStore) DeleteBounty(ctx context.Context, bountyID, authorID uuid.UUID) (*repository.BountyResult, error) {
	args := m.Called(ctx, bountyID, authorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.BountyResult), args.Error(1)
}

func (m *mockLedgerStore) BoostBounty(ctx context.Context, bountyID, userID uuid.UUID, tier valueobject.BoostTier, now time.Time) (*repository.BoostResult, error) {
	args := m.Called(ctx, bountyID, userID, tier, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.BoostResult), args.Error(1)
}

func (m *mockLedgerStore) CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, destination string) (*models.Withdrawal, *models.Wallet, error) {
	args := m.Called(ctx, userID, amount, destination)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.Withdrawal), args.Get(1).(*models.Wallet), args.Error(2)
}

func (m *mockLedgerStore) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *mockLedgerStore) CheckConservation(ctx context.Context, bountyID uuid.UUID) (*models.ConservationReport, error) {
	args := m.Called(ctx, bountyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConservationReport), args.Error(1)
}

type mockWalletReader struct {
	mock.Mock
}

func (m *mockWalletReader) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func TestWalletService_GetWallet(t *testing.T) {
	ledger := new(mockLedgerStore)
	wallets := new(mockWalletReader)
	svc := NewWalletService(ledger, wallets)
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.Wallet{UserID: userID, Balance: dec("42.00"), Points: 7}
	wallets.On("GetWallet", ctx, userID).Return(expected, nil)

	wallet, err := svc.GetWallet(ctx, userID)
	assert.NoError(t, err)
	assert.Equal(t, expected, wallet)
	wallets.AssertExpectations(t)
}

func TestWalletService_GetWallet_NotFound(t *testing.T) {
	wallets := new(mockWalletReader)
	svc := NewWalletService(new(mockLedgerStore), wallets)
	ctx := context.Background()
	userID := uuid.New()

	wallets.On("GetWallet", ctx, userID).Return(nil, repository.ErrUserNotFound)

	_, err := svc.GetWallet(ctx, userID)
	assert.ErrorIs(t, err, apperror.ErrUserNotFound)
}

func TestWalletService_Withdraw_Success(t *testing.T) {
	ledger := new(mockLedgerStore)
	svc := NewWalletService(ledger, new(mockWalletReader))
	ctx := context.Background()
	userID := uuid.New()
	amount := dec("25.00")

	withdrawal := &models.Withdrawal{ID: uuid.New(), UserID: userID, Amount: amount, Status: models.WithdrawalStatusPending}
	wallet := &models.Wallet{UserID: userID, Balance: dec("75.00")}
	ledger.On("CreateWithdrawal", ctx, userID, amount, "acct_123").Return(withdrawal, wallet, nil)

	gotW, gotWallet, err := svc.Withdraw(ctx, userID, amount, "acct_123")
	assert.NoError(t, err)
	assert.Equal(t, withdrawal, gotW)
	assert.Equal(t, wallet, gotWallet)
	ledger.AssertExpectations(t)
}

func TestWalletService_Withdraw_Validation(t *testing.T) {
	ledger := new(mockLedgerStore)
	svc := NewWalletService(ledger, new(mockWalletReader))
	ctx := context.Background()

	for _, amount := range []string{"9.99", "10000.01", "12.345"} {
		_, _, err := svc.Withdraw(ctx, uuid.New(), dec(amount), "")
		assert.True(t, apperror.IsValidation(err), amount)
	}
	ledger.AssertNotCalled(t, "CreateWithdrawal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWalletService_Withdraw_InsufficientFunds(t *testing.T) {
	ledger := new(mockLedgerStore)
	svc := NewWalletService(ledger, new(mockWalletReader))
	ctx := context.Background()
	userID := uuid.New()

	ledger.On("CreateWithdrawal", ctx, userID, mock.Anything, "").Return(nil, nil, repository.ErrInsufficientFunds)

	_, _, err := svc.Withdraw(ctx, userID, dec("50.00"), "")
	assert.Equal(t, apperror.ErrCodeInsufficientFunds, apperror.CodeOf(err))
}

func TestWalletService_ListTransactions_DefaultPage(t *testing.T) {
	ledger := new(mockLedgerStore)
	svc := NewWalletService(ledger, new(mockWalletReader))
	ctx := context.Background()
	userID := uuid.New()

	txs := []models.Transaction{{ID: uuid.New(), UserID: userID, Type: models.TransactionTypeDeposit}}
	ledger.On("ListTransactions", ctx, userID, 20, 0).Return(txs, nil)

	got, err := svc.ListTransactions(ctx, userID, 0, -5)
	assert.NoError(t, err)
	assert.Equal(t, txs, got)
	ledger.AssertExpectations(t)
}

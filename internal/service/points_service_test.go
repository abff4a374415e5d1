package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/payment"
	"github.com/ignatzorin/bounty-backend/internal/payment/sandbox"
	"github.com/ignatzorin/bounty-backend/internal/pkg/apperror"
)

const testWebhookSecret = "whsec_test"

func newPointsFixture() (*fakeLedger, *sandbox.Provider, *PointsService, *recordingPublisher) {
	ledger := newFakeLedger()
	provider := sandbox.New(testWebhookSecret)
	pub := &recordingPublisher{}
	return ledger, provider, NewPointsService(ledger, ledger, provider, pub), pub
}

func TestPointsService_PurchaseConfirmIdempotent(t *testing.T) {
	ledger, provider, svc, pub := newPointsFixture()
	user := ledger.addUser("0", 0)
	ctx := context.Background()

	intent, err := svc.Purchase(ctx, user, "standard")
	require.NoError(t, err)
	assert.Equal(t, int64(1100), intent.Points)
	assertMoney(t, "10.00", intent.Amount)

	_, err = svc.Confirm(ctx, user, intent.IntentID)
	assert.ErrorIs(t, err, apperror.ErrPaymentNotSucceeded)
	assert.Equal(t, int64(0), ledger.wallet(user).Points)

	require.NoError(t, provider.Succeed(intent.IntentID))

	first, err := svc.Confirm(ctx, user, intent.IntentID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)
	assert.Equal(t, int64(1100), first.Wallet.Points)
	assert.True(t, pub.has(models.ActivityPointsEarned))

	second, err := svc.Confirm(ctx, user, intent.IntentID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.Purchase.ID, second.Purchase.ID)
	assert.Equal(t, int64(1100), second.Wallet.Points)

	assertMoney(t, "10.00", ledger.revenueBy(models.RevenueSourcePointPurchase))
	assert.Equal(t, 1, ledger.txCount(user, models.TransactionTypePointPurchase))
}

func TestPointsService_ConfirmOwnerMismatch(t *testing.T) {
	ledger, provider, svc, _ := newPointsFixture()
	owner := ledger.addUser("0", 0)
	thief := ledger.addUser("0", 0)
	ctx := context.Background()

	intent, err := svc.Purchase(ctx, owner, "starter")
	require.NoError(t, err)
	require.NoError(t, provider.Succeed(intent.IntentID))

	_, err = svc.Confirm(ctx, thief, intent.IntentID)
	assert.ErrorIs(t, err, apperror.ErrPaymentOwnerMismatch)
	assert.Equal(t, int64(0), ledger.wallet(thief).Points)
	assert.Equal(t, int64(0), ledger.wallet(owner).Points)

	_, err = svc.Confirm(ctx, owner, "pi_missing")
	assert.True(t, apperror.IsNotFound(err))
}

func TestPointsService_PurchaseUnknownPackage(t *testing.T) {
	ledger, _, svc, _ := newPointsFixture()
	_, err := svc.Purchase(context.Background(), ledger.addUser("0", 0), "mega")
	assert.True(t, apperror.IsValidation(err))
}

func TestPointsService_ApplyIntentPriceMismatch(t *testing.T) {
	ledger, _, svc, _ := newPointsFixture()
	user := ledger.addUser("0", 0)

	_, err := svc.ApplyIntent(context.Background(), &payment.Intent{
		ID:        "pi_forged",
		Status:    payment.IntentStatusSucceeded,
		Amount:    dec("1.00"),
		UserID:    user,
		Kind:      payment.KindPoints,
		PackageID: "pro",
	})
	assert.Equal(t, apperror.ErrCodeInvariant, apperror.CodeOf(err))
	assert.Equal(t, int64(0), ledger.wallet(user).Points)
}

func TestPointsService_DepositCreditsNetOfFee(t *testing.T) {
	ledger, provider, svc, pub := newPointsFixture()
	user := ledger.addUser("0", 0)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, user, dec("0.50"))
	assert.True(t, apperror.IsValidation(err))

	intent, err := svc.Deposit(ctx, user, dec("100.00"))
	require.NoError(t, err)
	require.NoError(t, provider.Succeed(intent.IntentID))

	res, err := svc.Confirm(ctx, user, intent.IntentID)
	require.NoError(t, err)
	assertMoney(t, "95.00", res.Deposit.NetAmount)
	assertMoney(t, "5.00", res.Deposit.Fee)
	assertMoney(t, "95.00", res.Wallet.Balance)
	assertMoney(t, "5.00", ledger.revenueBy(models.RevenueSourceDepositFee))
	assert.True(t, pub.has(models.ActivityBalanceDeposited))

	again, err := svc.Confirm(ctx, user, intent.IntentID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assertMoney(t, "95.00", ledger.wallet(user).Balance)
}

func TestPointsService_RefundPurchase(t *testing.T) {
	ledger, provider, svc, pub := newPointsFixture()
	user := ledger.addUser("0", 0)
	ctx := context.Background()
	provider.AutoSucceed = true

	intent, err := svc.Purchase(ctx, user, "starter")
	require.NoError(t, err)
	credit, err := svc.Confirm(ctx, user, intent.IntentID)
	require.NoError(t, err)

	_, err = svc.RefundPurchase(ctx, ledger.addUser("0", 0), credit.Purchase.ID)
	assert.True(t, apperror.IsNotFound(err))

	res, err := svc.RefundPurchase(ctx, user, credit.Purchase.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, models.PointPurchaseStatusRefunded, res.Purchase.Status)
	assert.Equal(t, int64(0), res.Wallet.Points)
	assert.True(t, provider.Refunded(intent.IntentID))
	assert.True(t, pub.has(models.ActivityPointsRefunded))
	assertMoney(t, "0.00", ledger.revenueBy(models.RevenueSourcePointPurchase).Add(ledger.revenueBy(models.RevenueSourcePointRefund)))

	again, err := svc.RefundPurchase(ctx, user, credit.Purchase.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
}

func TestPointsService_RefundSpentPoints(t *testing.T) {
	ledger, provider, svc, _ := newPointsFixture()
	user := ledger.addUser("100.00", 0)
	ctx := context.Background()
	provider.AutoSucceed = true

	intent, err := svc.Purchase(ctx, user, "starter")
	require.NoError(t, err)
	credit, err := svc.Confirm(ctx, user, intent.IntentID)
	require.NoError(t, err)

	bounties := NewBountyService(ledger, ledger, nil)
	_, err = bounties.Post(ctx, user, postInput("10.00"))
	require.NoError(t, err)

	_, err = svc.RefundPurchase(ctx, user, credit.Purchase.ID)
	assert.Equal(t, apperror.ErrCodeInsufficientPoints, apperror.CodeOf(err))
	assert.False(t, provider.Refunded(intent.IntentID))
	assert.Equal(t, int64(500-models.PostingCostPoints), ledger.wallet(user).Points)
}

func TestPointsService_RefundProviderFailureKeepsLedger(t *testing.T) {
	ledger, provider, svc, _ := newPointsFixture()
	user := ledger.addUser("0", 0)
	ctx := context.Background()
	provider.AutoSucceed = true

	intent, err := svc.Purchase(ctx, user, "starter")
	require.NoError(t, err)
	credit, err := svc.Confirm(ctx, user, intent.IntentID)
	require.NoError(t, err)

	provider.RefundErr = errors.New("card network down")
	_, err = svc.RefundPurchase(ctx, user, credit.Purchase.ID)
	assert.Equal(t, apperror.ErrCodeExternal, apperror.CodeOf(err))
	assert.Equal(t, int64(500), ledger.wallet(user).Points)

	purchase, err := ledger.GetPurchase(ctx, credit.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PointPurchaseStatusCompleted, purchase.Status)
}

func TestPointsService_ApplyRefundForDepositIgnored(t *testing.T) {
	ledger, provider, svc, _ := newPointsFixture()
	user := ledger.addUser("0", 0)
	ctx := context.Background()
	provider.AutoSucceed = true

	dep, err := svc.Deposit(ctx, user, dec("20.00"))
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, user, dep.IntentID)
	require.NoError(t, err)

	res, err := svc.ApplyRefund(ctx, dep.IntentID)
	require.NoError(t, err)
	assert.Nil(t, res)
	assertMoney(t, "19.00", ledger.wallet(user).Balance)
}

func TestPointsService_RefundBeforePaymentBlocksCredit(t *testing.T) {
	ledger, provider, svc, _ := newPointsFixture()
	user := ledger.addUser("0", 0)
	ctx := context.Background()

	intent, err := svc.Purchase(ctx, user, "starter")
	require.NoError(t, err)

	res, err := svc.ApplyRefund(ctx, intent.IntentID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.BeforePayment)
	assert.Nil(t, res.Purchase)

	require.NoError(t, provider.Succeed(intent.IntentID))
	_, err = svc.Confirm(ctx, user, intent.IntentID)
	assert.ErrorIs(t, err, apperror.ErrChargeRefunded)
	assert.Equal(t, int64(0), ledger.wallet(user).Points)
	assert.Equal(t, 0, ledger.txCount(user, models.TransactionTypePointPurchase))
}

// keyRecorder запоминает ключи идемпотентности созданных платежей.
type keyRecorder struct {
	*sandbox.Provider
	keys []string
}

func (k *keyRecorder) CreateIntent(ctx context.Context, in payment.CreateIntentParams) (*payment.Intent, error) {
	k.keys = append(k.keys, in.IdempotencyKey)
	return k.Provider.CreateIntent(ctx, in)
}

func TestPointsService_IntentsCarryIdempotencyKey(t *testing.T) {
	ledger := newFakeLedger()
	provider := &keyRecorder{Provider: sandbox.New(testWebhookSecret)}
	svc := NewPointsService(ledger, ledger, provider, nil)
	user := ledger.addUser("0", 0)
	ctx := context.Background()

	first, err := svc.Purchase(ctx, user, "starter")
	require.NoError(t, err)
	second, err := svc.Purchase(ctx, user, "starter")
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, user, dec("15.00"))
	require.NoError(t, err)

	require.Len(t, provider.keys, 3)
	for _, key := range provider.keys {
		assert.NotEmpty(t, key)
	}
	assert.NotEqual(t, provider.keys[0], provider.keys[1])
	assert.NotEqual(t, first.IntentID, second.IntentID)
}

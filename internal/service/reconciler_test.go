package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/bounty-backend/internal/cache"
	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/payment"
	"github.com/ignatzorin/bounty-backend/internal/pkg/apperror"
)

func TestReconciler_DepositAppliedOnce(t *testing.T) {
	ledger, provider, points, _ := newPointsFixture()
	reconciler := NewReconciler(provider, points, ledger, cache.NewMemoryStore(), nil)
	user := ledger.addUser("0", 0)
	ctx := context.Background()

	intent, err := points.Deposit(ctx, user, dec("200.00"))
	require.NoError(t, err)
	require.NoError(t, provider.Succeed(intent.IntentID))

	body, sig, err := provider.SignedEvent("evt_dep_1", payment.EventPaymentSucceeded, intent.IntentID)
	require.NoError(t, err)

	res, err := reconciler.Reconcile(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	require.NotNil(t, res.Credit)
	assertMoney(t, "190.00", res.Credit.Wallet.Balance)
	assertMoney(t, "10.00", ledger.revenueBy(models.RevenueSourceDepositFee))

	// повторная доставка того же события
	res, err = reconciler.Reconcile(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	// новый экземпляр без кэша узнаёт событие по БД
	fresh := NewReconciler(provider, points, ledger, cache.NewMemoryStore(), nil)
	res, err = fresh.Reconcile(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	// другое событие о том же платеже не начисляет повторно
	body2, sig2, err := provider.SignedEvent("evt_dep_2", payment.EventPaymentSucceeded, intent.IntentID)
	require.NoError(t, err)
	res, err = reconciler.Reconcile(ctx, body2, sig2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.True(t, res.Credit.AlreadyProcessed)

	assertMoney(t, "190.00", ledger.wallet(user).Balance)
	assertMoney(t, "10.00", ledger.revenueBy(models.RevenueSourceDepositFee))
}

func TestReconciler_WebhookAndConfirmRace(t *testing.T) {
	ledger, provider, points, _ := newPointsFixture()
	reconciler := NewReconciler(provider, points, ledger, nil, nil)
	user := ledger.addUser("0", 0)
	ctx := context.Background()

	intent, err := points.Purchase(ctx, user, "pro")
	require.NoError(t, err)
	require.NoError(t, provider.Succeed(intent.IntentID))

	_, err = points.Confirm(ctx, user, intent.IntentID)
	require.NoError(t, err)

	body, sig, err := provider.SignedEvent("evt_pts_1", payment.EventPaymentSucceeded, intent.IntentID)
	require.NoError(t, err)
	res, err := reconciler.Reconcile(ctx, body, sig)
	require.NoError(t, err)
	assert.True(t, res.Credit.AlreadyProcessed)
	assert.Equal(t, int64(3000), ledger.wallet(user).Points)
}

func TestReconciler_InvalidSignature(t *testing.T) {
	ledger, provider, points, _ := newPointsFixture()
	reconciler := NewReconciler(provider, points, ledger, nil, nil)
	user := ledger.addUser("0", 0)
	ctx := context.Background()

	intent, err := points.Deposit(ctx, user, dec("50.00"))
	require.NoError(t, err)
	require.NoError(t, provider.Succeed(intent.IntentID))

	body, sig, err := provider.SignedEvent("evt_bad", payment.EventPaymentSucceeded, intent.IntentID)
	require.NoError(t, err)

	tampered := bytes.Replace(body, []byte("5000"), []byte("9000"), 1)
	_, err = reconciler.Reconcile(ctx, tampered, sig)
	assert.Equal(t, apperror.ErrCodeInvalidSignature, apperror.CodeOf(err))

	_, err = reconciler.Reconcile(ctx, body, "t=1,v1=deadbeef")
	assert.Equal(t, apperror.ErrCodeInvalidSignature, apperror.CodeOf(err))

	assertMoney(t, "0.00", ledger.wallet(user).Balance)
	processed, _ := ledger.IsProcessed(ctx, "evt_bad")
	assert.False(t, processed)
}

func TestReconciler_PaymentFailedPublishes(t *testing.T) {
	ledger, provider, points, _ := newPointsFixture()
	pub := &recordingPublisher{}
	reconciler := NewReconciler(provider, points, ledger, nil, pub)
	user := ledger.addUser("0", 0)
	ctx := context.Background()

	intent, err := points.Purchase(ctx, user, "starter")
	require.NoError(t, err)
	require.NoError(t, provider.Fail(intent.IntentID, "card_declined"))

	body, sig, err := provider.SignedEvent("evt_fail", payment.EventPaymentFailed, intent.IntentID)
	require.NoError(t, err)
	res, err := reconciler.Reconcile(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.True(t, pub.has(models.ActivityPaymentFailed))
	assert.Equal(t, int64(0), ledger.wallet(user).Points)
}

func TestReconciler_ChargeRefunded(t *testing.T) {
	ledger, provider, points, _ := newPointsFixture()
	reconciler := NewReconciler(provider, points, ledger, nil, nil)
	user := ledger.addUser("0", 0)
	ctx := context.Background()
	provider.AutoSucceed = true

	intent, err := points.Purchase(ctx, user, "starter")
	require.NoError(t, err)
	_, err = points.Confirm(ctx, user, intent.IntentID)
	require.NoError(t, err)

	body, sig, err := provider.SignedEvent("evt_refund", payment.EventChargeRefunded, intent.IntentID)
	require.NoError(t, err)
	res, err := reconciler.Reconcile(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	require.NotNil(t, res.Refund)
	assert.Equal(t, int64(0), ledger.wallet(user).Points)

	// возврат по пополнению не касается баллов
	dep, err := points.Deposit(ctx, user, dec("20.00"))
	require.NoError(t, err)
	_, err = points.Confirm(ctx, user, dep.IntentID)
	require.NoError(t, err)
	body, sig, err = provider.SignedEvent("evt_refund_dep", payment.EventChargeRefunded, dep.IntentID)
	require.NoError(t, err)
	res, err = reconciler.Reconcile(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
}

func TestReconciler_RefundBeforeSucceededNeverCredits(t *testing.T) {
	ledger, provider, points, _ := newPointsFixture()
	reconciler := NewReconciler(provider, points, ledger, cache.NewMemoryStore(), nil)
	user := ledger.addUser("0", 0)
	ctx := context.Background()

	intent, err := points.Purchase(ctx, user, "starter")
	require.NoError(t, err)
	require.NoError(t, provider.Succeed(intent.IntentID))

	refundBody, refundSig, err := provider.SignedEvent("evt_early_refund", payment.EventChargeRefunded, intent.IntentID)
	require.NoError(t, err)
	okBody, okSig, err := provider.SignedEvent("evt_late_success", payment.EventPaymentSucceeded, intent.IntentID)
	require.NoError(t, err)

	res, err := reconciler.Reconcile(ctx, refundBody, refundSig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	require.NotNil(t, res.Refund)
	assert.True(t, res.Refund.BeforePayment)

	res, err = reconciler.Reconcile(ctx, okBody, okSig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, int64(0), ledger.wallet(user).Points)
	assert.True(t, ledger.revenueBy(models.RevenueSourcePointPurchase).IsZero())

	// событие об оплате отмечено и не переигрывается
	processed, _ := ledger.IsProcessed(ctx, "evt_late_success")
	assert.True(t, processed)

	_, err = points.Confirm(ctx, user, intent.IntentID)
	assert.ErrorIs(t, err, apperror.ErrChargeRefunded)
	assert.Equal(t, int64(0), ledger.wallet(user).Points)
}

func TestReconciler_RejectsForgedAmount(t *testing.T) {
	ledger, provider, points, _ := newPointsFixture()
	reconciler := NewReconciler(provider, points, ledger, nil, nil)
	user := ledger.addUser("0", 0)
	ctx := context.Background()

	body, sig, err := provider.Sign("evt_forged", payment.EventPaymentSucceeded, map[string]interface{}{
		"id":       "pi_forged",
		"object":   "payment_intent",
		"amount":   100,
		"currency": "usd",
		"status":   "succeeded",
		"metadata": map[string]string{
			"user_id":    user.String(),
			"type":       payment.KindPoints,
			"package_id": "pro",
		},
	})
	require.NoError(t, err)

	res, err := reconciler.Reconcile(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, int64(0), ledger.wallet(user).Points)

	processed, _ := ledger.IsProcessed(ctx, "evt_forged")
	assert.True(t, processed)
}

func TestReconciler_UnknownEventIgnored(t *testing.T) {
	ledger, provider, points, _ := newPointsFixture()
	reconciler := NewReconciler(provider, points, ledger, nil, nil)

	body, sig, err := provider.Sign("evt_other", "customer.created", map[string]interface{}{
		"id":     "cus_1",
		"object": "customer",
	})
	require.NoError(t, err)

	res, err := reconciler.Reconcile(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
}

func TestReconciler_MalformedSignedEventRejected(t *testing.T) {
	ledger, provider, points, _ := newPointsFixture()
	reconciler := NewReconciler(provider, points, ledger, cache.NewMemoryStore(), nil)
	ctx := context.Background()

	body, sig, err := provider.Sign("evt_bad_meta", payment.EventPaymentSucceeded, map[string]interface{}{
		"id":       "pi_bad_meta",
		"object":   "payment_intent",
		"amount":   500,
		"currency": "usd",
		"status":   "succeeded",
		"metadata": map[string]string{"user_id": "not-a-uuid", "type": payment.KindPoints},
	})
	require.NoError(t, err)

	res, err := reconciler.Reconcile(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, "evt_bad_meta", res.EventID)

	processed, _ := ledger.IsProcessed(ctx, "evt_bad_meta")
	assert.True(t, processed)

	_, err = reconciler.Reconcile(ctx, body, "t=1,v1=deadbeef")
	assert.Equal(t, apperror.ErrCodeInvalidSignature, apperror.CodeOf(err))
}

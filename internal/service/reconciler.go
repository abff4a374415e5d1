package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-backend/internal/cache"
	"github.com/ignatzorin/bounty-backend/internal/logger"
	"github.com/ignatzorin/bounty-backend/internal/metrics"
	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/payment"
	"github.com/ignatzorin/bounty-backend/internal/pkg/apperror"
)

// EventDedupTTL — сколько быстрый слой помнит обработанное событие.
const EventDedupTTL = 72 * time.Hour

// Итог обработки события
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
)

// EventStore — надёжная отметка об обработанных событиях.
type EventStore interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}

// IntentApplier зачисляет платежи и возвраты в леджер.
type IntentApplier interface {
	ApplyIntent(ctx context.Context, intent *payment.Intent) (*CreditResult, error)
	ApplyRefund(ctx context.Context, intentID string) (*RefundResult, error)
}

// ReconcileResult описывает, что сделала сверка с событием.
type ReconcileResult struct {
	EventID string        `json:"event_id"`
	Type    string        `json:"type"`
	Outcome string        `json:"outcome"`
	Credit  *CreditResult `json:"credit,omitempty"`
	Refund  *RefundResult `json:"refund,omitempty"`
}

// Reconciler применяет события платёжного провайдера к леджеру. Каждое событие
// применяется не больше одного раза: быстрый слой в кэше, надёжный в processed_events,
// окончательный — уникальный external_ref в леджере.
type Reconciler struct {
	provider payment.Provider
	applier  IntentApplier
	events   EventStore
	dedup    cache.Store
	activity ActivityPublisher
	log      *logrus.Entry
}

func NewReconciler(provider payment.Provider, applier IntentApplier, events EventStore, dedup cache.Store, activity ActivityPublisher) *Reconciler {
	if activity == nil {
		activity = noopPublisher{}
	}
	if dedup == nil {
		dedup = cache.NewMemoryStore()
	}
	return &Reconciler{
		provider: provider,
		applier:  applier,
		events:   events,
		dedup:    dedup,
		activity: activity,
		log:      logger.WithComponent("reconciler"),
	}
}

// Reconcile проверяет подпись события и применяет его.
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte, signature string) (*ReconcileResult, error) {
	evt, err := r.provider.VerifyEvent(payload, signature)
	if err != nil && errors.Is(err, payment.ErrMalformedEvent) && evt != nil {
		// Подпись верна, но тело не разобрать: повтор доставки ничего не изменит.
		entry := r.log.WithFields(logrus.Fields{"event_id": evt.ID, "event_type": evt.Type})
		entry.WithError(err).Error("malformed payment event rejected")
		r.markProcessed(ctx, evt, entry)
		metrics.WebhookEvents.WithLabelValues(evt.Type, OutcomeRejected).Inc()
		return &ReconcileResult{EventID: evt.ID, Type: evt.Type, Outcome: OutcomeRejected}, nil
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		r.log.WithError(err).Warn("rejected payment event")
		if errors.Is(err, payment.ErrInvalidSignature) {
			return nil, apperror.Wrap(err, apperror.ErrCodeInvalidSignature, apperror.ErrInvalidSignature.Message)
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeBadRequest, "не удалось разобрать событие")
	}

	entry := r.log.WithFields(logrus.Fields{"event_id": evt.ID, "event_type": evt.Type})
	res := &ReconcileResult{EventID: evt.ID, Type: evt.Type}

	if r.alreadyProcessed(ctx, evt.ID, entry) {
		res.Outcome = OutcomeDuplicate
		metrics.WebhookEvents.WithLabelValues(evt.Type, OutcomeDuplicate).Inc()
		entry.Debug("duplicate payment event")
		return res, nil
	}

	switch evt.Type {
	case payment.EventPaymentSucceeded:
		if evt.Intent == nil {
			return nil, apperror.Validation("событие не содержит платежа")
		}
		credit, err := r.applier.ApplyIntent(ctx, evt.Intent)
		if err != nil && isPermanent(err) {
			// Повтор вебхука не исправит такое событие.
			entry.WithError(err).Error("payment event rejected")
			res.Outcome = OutcomeRejected
			break
		}
		if err != nil {
			metrics.WebhookEvents.WithLabelValues(evt.Type, "failed").Inc()
			entry.WithError(err).Error("failed to apply payment")
			return nil, err
		}
		res.Credit = credit
		res.Outcome = OutcomeProcessed

	case payment.EventPaymentFailed:
		r.onPaymentFailed(ctx, evt, entry)
		res.Outcome = OutcomeProcessed

	case payment.EventChargeRefunded:
		if evt.RefundedIntentID == "" {
			res.Outcome = OutcomeIgnored
			break
		}
		refund, err := r.applier.ApplyRefund(ctx, evt.RefundedIntentID)
		if err != nil {
			metrics.WebhookEvents.WithLabelValues(evt.Type, "failed").Inc()
			entry.WithError(err).Error("failed to apply refund")
			return nil, err
		}
		res.Refund = refund
		res.Outcome = OutcomeProcessed
		if refund == nil {
			res.Outcome = OutcomeIgnored
		} else if refund.BeforePayment {
			entry.WithField("intent_id", evt.RefundedIntentID).Warn("refund arrived before payment")
		}

	case payment.EventSetupSucceeded, payment.EventAccountUpdated:
		entry.Info("payment event acknowledged")
		res.Outcome = OutcomeProcessed

	default:
		entry.Debug("unhandled payment event ignored")
		res.Outcome = OutcomeIgnored
	}

	r.markProcessed(ctx, evt, entry)
	metrics.WebhookEvents.WithLabelValues(evt.Type, res.Outcome).Inc()
	return res, nil
}

func (r *Reconciler) onPaymentFailed(ctx context.Context, evt *payment.Event, entry *logrus.Entry) {
	kind := "unknown"
	if evt.Intent != nil && evt.Intent.Kind != "" {
		kind = evt.Intent.Kind
	}
	metrics.PaymentFailures.WithLabelValues(kind).Inc()

	if evt.Intent == nil {
		entry.Warn("payment failed")
		return
	}
	entry.WithFields(logrus.Fields{
		"intent_id":    evt.Intent.ID,
		"user_id":      evt.Intent.UserID,
		"failure_code": evt.Intent.FailureCode,
	}).Warn("payment failed")

	if evt.Intent.UserID != uuid.Nil {
		r.activity.Publish(ctx, evt.Intent.UserID, models.ActivityPaymentFailed, map[string]interface{}{
			"intent_id":    evt.Intent.ID,
			"type":         evt.Intent.Kind,
			"amount":       evt.Intent.Amount,
			"failure_code": evt.Intent.FailureCode,
		})
	}
}

// alreadyProcessed сначала смотрит в кэш, затем в БД. Ошибки кэша не мешают обработке.
func (r *Reconciler) alreadyProcessed(ctx context.Context, eventID string, entry *logrus.Entry) bool {
	seen, err := r.dedup.Seen(ctx, cache.EventKey(eventID))
	if err != nil {
		entry.WithError(err).Warn("dedup cache unavailable")
	} else if seen {
		return true
	}

	if r.events == nil {
		return false
	}
	processed, err := r.events.IsProcessed(ctx, eventID)
	if err != nil {
		entry.WithError(err).Warn("processed events lookup failed")
		return false
	}
	if processed {
		_ = r.dedup.Remember(ctx, cache.EventKey(eventID), EventDedupTTL)
	}
	return processed
}

func (r *Reconciler) markProcessed(ctx context.Context, evt *payment.Event, entry *logrus.Entry) {
	if r.events != nil {
		if _, err := r.events.MarkProcessed(ctx, evt.ID, evt.Type); err != nil {
			entry.WithError(err).Warn("failed to mark event processed")
		}
	}
	if err := r.dedup.Remember(ctx, cache.EventKey(evt.ID), EventDedupTTL); err != nil {
		entry.WithError(err).Warn("failed to cache processed event")
	}
}

func isPermanent(err error) bool {
	if errors.Is(err, apperror.ErrChargeRefunded) {
		return true
	}
	switch apperror.CodeOf(err) {
	case apperror.ErrCodeValidation, apperror.ErrCodeInvariant, apperror.ErrCodeNotFound:
		return true
	}
	return false
}

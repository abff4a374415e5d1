package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ignatzorin/bounty-backend/internal/payment"
	"github.com/ignatzorin/bounty-backend/internal/payment/stripe"
)

// Provider — драйвер без внешнего провайдера. Хранит намерения в памяти и подписывает
// события тем же форматом, что и Stripe. Используется в development и тестах.
type Provider struct {
	mu      sync.Mutex
	intents map[string]*payment.Intent
	byKey   map[string]string
	refunds map[string]string
	secret  string
	seq     int

	// AutoSucceed сразу переводит новые намерения в succeeded.
	AutoSucceed bool
	// RefundErr, если задан, возвращается из Refund.
	RefundErr error
}

// New создаёт драйвер, подписывающий события секретом secret.
func New(secret string) *Provider {
	return &Provider{
		intents: make(map[string]*payment.Intent),
		byKey:   make(map[string]string),
		refunds: make(map[string]string),
		secret:  secret,
	}
}

func (p *Provider) CreateIntent(_ context.Context, in payment.CreateIntentParams) (*payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if in.IdempotencyKey != "" {
		if id, ok := p.byKey[in.IdempotencyKey]; ok {
			cp := *p.intents[id]
			return &cp, nil
		}
	}

	p.seq++
	id := fmt.Sprintf("pi_sandbox_%d", p.seq)
	status := payment.IntentStatusRequiresPayment
	if p.AutoSucceed {
		status = payment.IntentStatusSucceeded
	}
	intent := &payment.Intent{
		ID:           id,
		Status:       status,
		Amount:       in.Amount,
		Currency:     "usd",
		UserID:       in.UserID,
		Kind:         in.Kind,
		PackageID:    in.PackageID,
		ClientSecret: id + "_secret",
	}
	p.intents[id] = intent
	if in.IdempotencyKey != "" {
		p.byKey[in.IdempotencyKey] = id
	}

	cp := *intent
	return &cp, nil
}

func (p *Provider) GetIntent(_ context.Context, id string) (*payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	intent, ok := p.intents[id]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}
	cp := *intent
	return &cp, nil
}

func (p *Provider) Refund(_ context.Context, intentID, idempotencyKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.RefundErr != nil {
		return p.RefundErr
	}
	intent, ok := p.intents[intentID]
	if !ok {
		return payment.ErrIntentNotFound
	}
	if !intent.Succeeded() {
		return fmt.Errorf("sandbox: intent %s is %s", intentID, intent.Status)
	}
	if prev, done := p.refunds[intentID]; done && prev != idempotencyKey {
		return fmt.Errorf("sandbox: intent %s already refunded", intentID)
	}
	p.refunds[intentID] = idempotencyKey
	return nil
}

func (p *Provider) VerifyEvent(payload []byte, signature string) (*payment.Event, error) {
	return stripe.ParseEvent(payload, signature, p.secret)
}

// Succeed переводит намерение в succeeded.
func (p *Provider) Succeed(id string) error {
	return p.setStatus(id, payment.IntentStatusSucceeded, "")
}

// Fail помечает попытку оплаты неуспешной.
func (p *Provider) Fail(id, code string) error {
	return p.setStatus(id, payment.IntentStatusRequiresPayment, code)
}

// Refunded сообщает, был ли возврат по намерению.
func (p *Provider) Refunded(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.refunds[id]
	return ok
}

func (p *Provider) setStatus(id, status, failure string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	intent, ok := p.intents[id]
	if !ok {
		return payment.ErrIntentNotFound
	}
	intent.Status = status
	intent.FailureCode = failure
	return nil
}

// SignedEvent собирает подписанное событие вебхука по текущему состоянию намерения.
// Возвращает тело и значение заголовка Stripe-Signature.
func (p *Provider) SignedEvent(eventID, eventType, intentID string) ([]byte, string, error) {
	p.mu.Lock()
	intent, ok := p.intents[intentID]
	var cp payment.Intent
	if ok {
		cp = *intent
	}
	p.mu.Unlock()
	if !ok {
		return nil, "", payment.ErrIntentNotFound
	}

	var object map[string]interface{}
	if eventType == payment.EventChargeRefunded {
		object = map[string]interface{}{
			"id":              "ch_" + cp.ID,
			"object":          "charge",
			"payment_intent":  cp.ID,
			"amount_refunded": payment.ToCents(cp.Amount),
		}
	} else {
		metadata := map[string]string{
			"user_id": cp.UserID.String(),
			"type":    cp.Kind,
		}
		if cp.PackageID != "" {
			metadata["package_id"] = cp.PackageID
		}
		object = map[string]interface{}{
			"id":            cp.ID,
			"object":        "payment_intent",
			"amount":        payment.ToCents(cp.Amount),
			"currency":      cp.Currency,
			"status":        cp.Status,
			"client_secret": cp.ClientSecret,
			"metadata":      metadata,
		}
	}

	return p.Sign(eventID, eventType, object)
}

// Sign подписывает произвольный объект события.
func (p *Provider) Sign(eventID, eventType string, object interface{}) ([]byte, string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": stripeapi.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]interface{}{"object": object},
	})
	if err != nil {
		return nil, "", err
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: body,
		Secret:  p.secret,
	})
	return signed.Payload, signed.Header, nil
}

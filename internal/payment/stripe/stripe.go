package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ignatzorin/bounty-backend/internal/logger"
	"github.com/ignatzorin/bounty-backend/internal/payment"
	"github.com/ignatzorin/bounty-backend/internal/pkg/retry"
)

// Ключи метаданных намерения.
const (
	metaUserID    = "user_id"
	metaKind      = "type"
	metaPackageID = "package_id"
	metaPoints    = "points"
)

// Config — параметры драйвера Stripe.
type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	// BackendURL переопределяет адрес API, используется в тестах.
	BackendURL string
	HTTPClient *http.Client
}

// Provider реализует payment.Provider поверх Stripe API.
// Чтения идут под политикой retry.Policy. Создание платежа и возврат повторяются
// только с ключом идемпотентности, без ключа вызов выполняется один раз.
type Provider struct {
	api           *client.API
	webhookSecret string
	currency      string
	policy        retry.Policy
	log           *logrus.Entry
}

// New создаёт драйвер Stripe.
func New(cfg Config, policy retry.Policy) *Provider {
	backendCfg := &stripeapi.BackendConfig{
		// Повторы выполняет политика, а не SDK.
		MaxNetworkRetries: stripeapi.Int64(0),
		LeveledLogger:     logger.Log,
		HTTPClient:        cfg.HTTPClient,
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripeapi.String(cfg.BackendURL)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripeapi.Backends{
		API:     stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg),
		Connect: stripeapi.GetBackendWithConfig(stripeapi.ConnectBackend, backendCfg),
		Uploads: stripeapi.GetBackendWithConfig(stripeapi.UploadsBackend, backendCfg),
	})

	currency := cfg.Currency
	if currency == "" {
		currency = string(stripeapi.CurrencyUSD)
	}

	return &Provider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
		policy:        policy,
		log:           logger.WithComponent("stripe"),
	}
}

// CreateIntent создаёт PaymentIntent с метаданными пользователя и назначения.
func (p *Provider) CreateIntent(ctx context.Context, in payment.CreateIntentParams) (*payment.Intent, error) {
	call := p.policy.Do
	if in.IdempotencyKey == "" {
		call = p.policy.Once
	}

	var pi *stripeapi.PaymentIntent
	err := call(ctx, func(ctx context.Context) error {
		params := &stripeapi.PaymentIntentParams{
			Amount:   stripeapi.Int64(payment.ToCents(in.Amount)),
			Currency: stripeapi.String(p.currency),
			AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled: stripeapi.Bool(true),
			},
		}
		params.Context = ctx
		params.AddMetadata(metaUserID, in.UserID.String())
		params.AddMetadata(metaKind, in.Kind)
		if in.PackageID != "" {
			params.AddMetadata(metaPackageID, in.PackageID)
		}
		if in.Points > 0 {
			params.AddMetadata(metaPoints, strconv.FormatInt(in.Points, 10))
		}
		if in.IdempotencyKey != "" {
			params.SetIdempotencyKey(in.IdempotencyKey)
		}

		var err error
		pi, err = p.api.PaymentIntents.New(params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: create intent %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"intent_id": pi.ID,
		"user_id":   in.UserID,
		"kind":      in.Kind,
	}).Info("payment intent created")

	return toIntent(pi)
}

// GetIntent читает текущее состояние PaymentIntent.
func (p *Provider) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	var pi *stripeapi.PaymentIntent
	err := p.policy.Do(ctx, func(ctx context.Context) error {
		params := &stripeapi.PaymentIntentParams{}
		params.Context = ctx

		var err error
		pi, err = p.api.PaymentIntents.Get(id, params)
		return err
	})
	if err != nil {
		var stripeErr *stripeapi.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, payment.ErrIntentNotFound
		}
		return nil, fmt.Errorf("stripe: get intent %w", err)
	}
	return toIntent(pi)
}

// Refund возвращает платёж целиком.
func (p *Provider) Refund(ctx context.Context, intentID, idempotencyKey string) error {
	call := p.policy.Do
	if idempotencyKey == "" {
		call = p.policy.Once
	}

	err := call(ctx, func(ctx context.Context) error {
		params := &stripeapi.RefundParams{
			PaymentIntent: stripeapi.String(intentID),
		}
		params.Context = ctx
		if idempotencyKey != "" {
			params.SetIdempotencyKey(idempotencyKey)
		}
		_, err := p.api.Refunds.New(params)
		return err
	})
	if err != nil {
		return fmt.Errorf("stripe: refund %w", err)
	}
	return nil
}

// VerifyEvent проверяет подпись Stripe-Signature и разбирает событие.
func (p *Provider) VerifyEvent(payload []byte, signature string) (*payment.Event, error) {
	return ParseEvent(payload, signature, p.webhookSecret)
}

// ParseEvent проверяет подпись тела вебхука секретом и переводит событие Stripe в payment.Event.
// Для подписанного, но неразборчивого события возвращает ErrMalformedEvent вместе с ID и типом.
func ParseEvent(payload []byte, signature, secret string) (*payment.Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrInvalidSignature, err)
	}

	out := &payment.Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data == nil {
		return out, nil
	}

	switch out.Type {
	case payment.EventPaymentSucceeded, payment.EventPaymentFailed:
		var pi stripeapi.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return out, fmt.Errorf("%w: decode payment intent: %v", payment.ErrMalformedEvent, err)
		}
		intent, err := toIntent(&pi)
		if err != nil {
			return out, fmt.Errorf("%w: %v", payment.ErrMalformedEvent, err)
		}
		out.Intent = intent
	case payment.EventChargeRefunded:
		var ch stripeapi.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return out, fmt.Errorf("%w: decode charge: %v", payment.ErrMalformedEvent, err)
		}
		if ch.PaymentIntent != nil {
			out.RefundedIntentID = ch.PaymentIntent.ID
		}
		out.RefundedAmount = payment.FromCents(ch.AmountRefunded)
	}

	return out, nil
}

func toIntent(pi *stripeapi.PaymentIntent) (*payment.Intent, error) {
	intent := &payment.Intent{
		ID:           pi.ID,
		Status:       string(pi.Status),
		Amount:       payment.FromCents(pi.Amount),
		Currency:     string(pi.Currency),
		ClientSecret: pi.ClientSecret,
		Kind:         pi.Metadata[metaKind],
		PackageID:    pi.Metadata[metaPackageID],
	}
	if pi.LastPaymentError != nil {
		intent.FailureCode = string(pi.LastPaymentError.Code)
	}
	if raw := pi.Metadata[metaUserID]; raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("stripe: intent %s has invalid user_id metadata: %w", pi.ID, err)
		}
		intent.UserID = userID
	}
	return intent, nil
}

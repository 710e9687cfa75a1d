package usecase

import (
	"context"
	"errors"
	"strings"

	"vectorizer/internal/domain"
	"vectorizer/internal/logging"
)

const (
	objectKeyPrefix = "vectorized/"
	sessionIDParam  = "{CHECKOUT_SESSION_ID}"
)

type PaymentProvider interface {
	CheckKey(ctx context.Context) error
	CreateSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error)
	GetSession(ctx context.Context, id string) (domain.CheckoutSession, error)
}

type CheckoutInput struct {
	Type           string
	ObjectKey      string
	BaseURL        string
	IdempotencyKey string
}

type CheckoutOutput struct {
	URL       string
	SessionID string
}

type CheckoutService struct {
	payments PaymentProvider
}

func NewCheckoutService(p PaymentProvider) (*CheckoutService, error) {
	if p == nil {
		return nil, errors.New("usecase: payment provider must not be nil")
	}
	return &CheckoutService{payments: p}, nil
}

// CreateCheckout validates the purchase type before any provider call and
// returns the hosted checkout URL.
func (s *CheckoutService) CreateCheckout(ctx context.Context, in CheckoutInput) (CheckoutOutput, error) {
	typ := domain.PurchaseType(in.Type)
	product, ok := domain.ProductFor(typ)
	if !ok {
		return CheckoutOutput{}, newError(ErrorInvalidInput, "invalid_purchase_type", "Invalid type", nil)
	}
	objectKey := strings.TrimSpace(in.ObjectKey)
	if objectKey != "" && !validObjectKey(objectKey) {
		return CheckoutOutput{}, newError(ErrorInvalidInput, "invalid_object_key", "Invalid object key", nil)
	}
	if err := s.payments.CheckKey(ctx); err != nil {
		logging.Error("payment provider key not set", "err", err)
		return CheckoutOutput{}, newError(ErrorNotConfigured, "stripe_key_missing", "Stripe secret key not set", err)
	}

	base := strings.TrimRight(in.BaseURL, "/")
	session, err := s.payments.CreateSession(ctx, domain.CheckoutRequest{
		Type:           typ,
		Product:        product,
		SuccessURL:     base + "/success?session_id=" + sessionIDParam,
		CancelURL:      base + "/cancel",
		ObjectKey:      objectKey,
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
	})
	if err != nil {
		return CheckoutOutput{}, providerError("checkout_create_error", err)
	}
	if session.URL == "" {
		return CheckoutOutput{}, newError(ErrorUpstream, "checkout_missing_url", "Payment provider returned no checkout URL", nil)
	}

	logging.Info("checkout session created", "sessionId", session.ID, "type", string(typ))
	return CheckoutOutput{URL: session.URL, SessionID: session.ID}, nil
}

func providerError(reason string, err error) *Error {
	msg := err.Error()
	var pm providerMessager
	if errors.As(err, &pm) && pm.ProviderMessage() != "" {
		msg = pm.ProviderMessage()
	}
	logging.Warn("payment provider call failed", "reason", reason, "err", err)
	return newError(ErrorUpstream, reason, msg, err)
}

func validObjectKey(key string) bool {
	if !strings.HasPrefix(key, objectKeyPrefix) || len(key) == len(objectKeyPrefix) {
		return false
	}
	return !strings.Contains(key, "..") && !strings.ContainsAny(key, "\\?#")
}

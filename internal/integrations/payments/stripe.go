// Package payments creates and inspects Stripe hosted checkout sessions.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"vectorizer/internal/domain"
)

const (
	metaPurchaseType = "purchase_type"
	metaObjectKey    = "object_key"
)

// ErrSecretKeyNotSet is returned when no Stripe secret key could be resolved.
var ErrSecretKeyNotSet = errors.New("payments: stripe secret key not set")

// KeySource resolves the Stripe secret key. *paramstore.Secret satisfies it.
type KeySource interface {
	Resolve(ctx context.Context) (string, error)
}

// ProviderError is a failure reported by Stripe itself.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payments: stripe returned %d: %s", e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) HTTPStatusCode() int { return e.StatusCode }

// ProviderMessage is Stripe's human-readable explanation of the failure.
func (e *ProviderError) ProviderMessage() string { return e.Message }

// Client is a lazily initialised Stripe API client.
type Client struct {
	keys     KeySource
	backends *stripe.Backends

	mu  sync.Mutex
	api *client.API
	key string
}

type Option func(*Client)

// WithBackendURL points the client at a different API host, e.g. a stub
// server in tests.
func WithBackendURL(url string, httpClient *http.Client) Option {
	return func(c *Client) {
		c.backends = newBackends(stripe.String(strings.TrimRight(url, "/")), httpClient)
	}
}

func NewClient(keys KeySource, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("payments: key source must not be nil")
	}
	c := &Client{keys: keys}
	for _, opt := range opts {
		opt(c)
	}
	if c.backends == nil {
		c.backends = newBackends(nil, nil)
	}
	return c, nil
}

// newBackends disables the library's automatic network retries; every
// provider failure is surfaced to the caller immediately.
func newBackends(url *string, httpClient *http.Client) *stripe.Backends {
	cfg := &stripe.BackendConfig{
		URL:               url,
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	api := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	return &stripe.Backends{
		API:     api,
		Connect: api,
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	}
}

func (c *Client) client(ctx context.Context) (*client.API, error) {
	key, err := c.keys.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretKeyNotSet, err)
	}
	if strings.TrimSpace(key) == "" {
		return nil, ErrSecretKeyNotSet
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil || c.key != key {
		api := &client.API{}
		api.Init(key, c.backends)
		c.api, c.key = api, key
	}
	return c.api, nil
}

// CheckKey reports whether a secret key can be resolved.
func (c *Client) CheckKey(ctx context.Context) error {
	_, err := c.client(ctx)
	return err
}

// CreateSession mints a hosted checkout session for req.
func (c *Client) CreateSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	api, err := c.client(ctx)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	params := sessionParams(req)
	params.Context = ctx

	s, err := api.CheckoutSessions.New(params)
	if err != nil {
		return domain.CheckoutSession{}, providerError("create checkout session", err)
	}
	return toDomain(s), nil
}

// GetSession retrieves a checkout session by id.
func (c *Client) GetSession(ctx context.Context, id string) (domain.CheckoutSession, error) {
	api, err := c.client(ctx)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := api.CheckoutSessions.Get(id, params)
	if err != nil {
		return domain.CheckoutSession{}, providerError("get checkout session", err)
	}
	return toDomain(s), nil
}

func sessionParams(req domain.CheckoutRequest) *stripe.CheckoutSessionParams {
	p := req.Product
	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency: stripe.String(p.Currency),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(p.Name),
		},
		UnitAmount: stripe.Int64(p.UnitAmount),
	}
	if p.Recurring {
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(p.Interval),
		}
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(p.SessionMode),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: priceData,
				Quantity:  stripe.Int64(1),
			},
		},
	}
	params.AddMetadata(metaPurchaseType, string(req.Type))
	if req.ObjectKey != "" {
		params.AddMetadata(metaObjectKey, req.ObjectKey)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	return params
}

func toDomain(s *stripe.CheckoutSession) domain.CheckoutSession {
	if s == nil {
		return domain.CheckoutSession{}
	}
	typ := domain.PurchaseType(s.Metadata[metaPurchaseType])
	if typ == "" {
		typ = domain.PurchaseOneTime
		if s.Mode == stripe.CheckoutSessionModeSubscription {
			typ = domain.PurchaseSubscription
		}
	}
	return domain.CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		Type:          typ,
		ObjectKey:     s.Metadata[metaObjectKey],
	}
}

func providerError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		msg := se.Msg
		if msg == "" {
			msg = string(se.Code)
		}
		return &ProviderError{StatusCode: se.HTTPStatusCode, Message: msg, Err: err}
	}
	return fmt.Errorf("payments: %s: %w", op, err)
}

package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"vectorizer/internal/domain"
	"vectorizer/internal/logging"
)

type EntitlementStore interface {
	SaveEntitlement(ctx context.Context, e domain.Entitlement) error
	GetByToken(ctx context.Context, token string) (domain.Entitlement, bool, error)
	GetBySession(ctx context.Context, sessionID string) (domain.Entitlement, bool, error)
	BindObjectKey(ctx context.Context, token, key string) error
}

type DownloadInput struct {
	Token     string
	ObjectKey string
}

type DownloadOutput struct {
	URL string
}

// EntitlementService turns paid checkout sessions into server-side download
// grants and exchanges those grants for fresh signed URLs.
type EntitlementService struct {
	payments PaymentProvider
	store    EntitlementStore
	objects  ObjectStore
}

// NewEntitlementService builds the service. store may be nil when no table is
// configured; every call then fails with ErrorNotConfigured.
func NewEntitlementService(p PaymentProvider, store EntitlementStore, objects ObjectStore) (*EntitlementService, error) {
	if p == nil {
		return nil, errors.New("usecase: payment provider must not be nil")
	}
	if objects == nil {
		return nil, errors.New("usecase: object store must not be nil")
	}
	return &EntitlementService{payments: p, store: store, objects: objects}, nil
}

// Redeem records an entitlement for a paid checkout session. Redeeming the
// same session again returns the existing entitlement.
func (s *EntitlementService) Redeem(ctx context.Context, sessionID string) (domain.Entitlement, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Entitlement{}, newError(ErrorInvalidInput, "missing_session_id", "Missing session id", nil)
	}
	if s.store == nil {
		return domain.Entitlement{}, newError(ErrorNotConfigured, "entitlement_table_missing", "Entitlement store not configured", nil)
	}

	existing, ok, err := s.store.GetBySession(ctx, sessionID)
	if err != nil {
		return domain.Entitlement{}, newError(ErrorInternal, "dynamodb_read_error", "Failed to read entitlement", err)
	}
	if ok {
		return existing, nil
	}

	if err := s.payments.CheckKey(ctx); err != nil {
		return domain.Entitlement{}, newError(ErrorNotConfigured, "stripe_key_missing", "Stripe secret key not set", err)
	}
	session, err := s.payments.GetSession(ctx, sessionID)
	if err != nil {
		var sc httpStatusCoder
		if errors.As(err, &sc) && sc.HTTPStatusCode() == http.StatusNotFound {
			return domain.Entitlement{}, newError(ErrorInvalidInput, "unknown_session", "Unknown checkout session", err)
		}
		return domain.Entitlement{}, providerError("checkout_get_error", err)
	}
	if !session.Paid() {
		return domain.Entitlement{}, newError(ErrorPaymentRequired, "session_unpaid", "Payment not completed", nil)
	}

	created := now().UTC()
	e := domain.Entitlement{
		Token:     newUUID(),
		SessionID: sessionID,
		Type:      session.Type,
		ObjectKey: session.ObjectKey,
		CreatedAt: created,
		ExpiresAt: created.Add(session.Type.EntitlementLifetime()),
	}
	if e.Type == domain.PurchaseSubscription {
		e.ObjectKey = ""
	}

	if err := s.store.SaveEntitlement(ctx, e); err != nil {
		// A concurrent redemption of the same session may have won.
		if existing, ok, rerr := s.store.GetBySession(ctx, sessionID); rerr == nil && ok {
			return existing, nil
		}
		return domain.Entitlement{}, newError(ErrorInternal, "dynamodb_write_error", "Failed to record entitlement", err)
	}
	logging.Info("entitlement issued", "sessionId", sessionID, "type", string(e.Type), "expiresAt", e.ExpiresAt)
	return e, nil
}

// Download checks the entitlement for in.Token and returns a signed URL for
// in.ObjectKey. A one-time entitlement not yet tied to an object is bound to
// the first object it is used for.
func (s *EntitlementService) Download(ctx context.Context, in DownloadInput) (DownloadOutput, error) {
	token := strings.TrimSpace(in.Token)
	key := strings.TrimSpace(in.ObjectKey)
	if !validObjectKey(key) {
		return DownloadOutput{}, newError(ErrorInvalidInput, "invalid_object_key", "Invalid object key", nil)
	}
	if token == "" {
		return DownloadOutput{}, newError(ErrorForbidden, "missing_token", "You must pay to download", nil)
	}
	if s.store == nil {
		return DownloadOutput{}, newError(ErrorNotConfigured, "entitlement_table_missing", "Entitlement store not configured", nil)
	}
	if err := s.objects.Ready(); err != nil {
		return DownloadOutput{}, newError(ErrorNotConfigured, "storage_not_configured", "Storage bucket not set", err)
	}

	e, ok, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return DownloadOutput{}, newError(ErrorInternal, "dynamodb_read_error", "Failed to read entitlement", err)
	}
	if !ok {
		return DownloadOutput{}, newError(ErrorForbidden, "unknown_token", "You must pay to download", nil)
	}
	if e.Expired(now()) {
		return DownloadOutput{}, newError(ErrorForbidden, "token_expired", "Entitlement expired", nil)
	}
	if !e.Covers(key) {
		return DownloadOutput{}, newError(ErrorForbidden, "object_not_covered", "Entitlement does not cover this file", nil)
	}
	if e.Type == domain.PurchaseOneTime && e.ObjectKey == "" {
		if err := s.bind(ctx, token, key); err != nil {
			return DownloadOutput{}, err
		}
	}

	url, err := s.objects.SignedURL(ctx, key)
	if err != nil {
		return DownloadOutput{}, newError(ErrorUpstream, "presign_error", "Failed to sign download URL", err).
			withDetails(err.Error())
	}
	return DownloadOutput{URL: url}, nil
}

func (s *EntitlementService) bind(ctx context.Context, token, key string) error {
	err := s.store.BindObjectKey(ctx, token, key)
	if err == nil {
		return nil
	}
	// Lost a race with another download; only the key that won is covered.
	e, ok, rerr := s.store.GetByToken(ctx, token)
	if rerr != nil {
		return newError(ErrorInternal, "dynamodb_read_error", "Failed to read entitlement", rerr)
	}
	if ok && e.ObjectKey != "" && e.Covers(key) {
		return nil
	}
	if ok && e.ObjectKey != "" {
		return newError(ErrorForbidden, "object_not_covered", "Entitlement does not cover this file", err)
	}
	return newError(ErrorInternal, "dynamodb_write_error", "Failed to bind entitlement", err)
}

var now = time.Now

package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vectorizer/internal/domain"
)

type mockVectorizer struct {
	keyErr    error
	out       []byte
	err       error
	calls     int
	lastInput domain.Upload
}

func (m *mockVectorizer) CheckKey(context.Context) error { return m.keyErr }

func (m *mockVectorizer) Vectorize(_ context.Context, upload domain.Upload) ([]byte, error) {
	m.calls++
	m.lastInput = upload
	return m.out, m.err
}

type mockStore struct {
	readyErr   error
	putErr     error
	signErr    error
	objects    map[string][]byte
	putNames   []string
	signedKeys []string
}

func newMockStore() *mockStore {
	return &mockStore{objects: map[string][]byte{}}
}

func (m *mockStore) Ready() error { return m.readyErr }

func (m *mockStore) Put(_ context.Context, name string, data []byte) (string, string, error) {
	m.putNames = append(m.putNames, name)
	if m.putErr != nil {
		return "", "", m.putErr
	}
	key := "vectorized/" + name
	m.objects[key] = data
	return key, "https://bucket.s3.amazonaws.com/" + key + "?X-Amz-Expires=3600", nil
}

func (m *mockStore) SignedURL(_ context.Context, key string) (string, error) {
	m.signedKeys = append(m.signedKeys, key)
	if m.signErr != nil {
		return "", m.signErr
	}
	return "https://bucket.s3.amazonaws.com/" + key + "?X-Amz-Expires=3600", nil
}

// upstreamErr mimics vectorizer.HTTPStatusError.
type upstreamErr struct {
	status int
	body   string
}

func (e *upstreamErr) Error() string        { return fmt.Sprintf("unexpected status %d: %s", e.status, e.body) }
func (e *upstreamErr) HTTPStatusCode() int  { return e.status }
func (e *upstreamErr) UpstreamBody() string { return e.body }

// providerErr mimics payments.ProviderError.
type providerErr struct {
	status int
	msg    string
}

func (e *providerErr) Error() string           { return "stripe: " + e.msg }
func (e *providerErr) HTTPStatusCode() int     { return e.status }
func (e *providerErr) ProviderMessage() string { return e.msg }

type mockPayments struct {
	keyErr      error
	createOut   domain.CheckoutSession
	createErr   error
	getOut      domain.CheckoutSession
	getErr      error
	createCalls int
	getCalls    int
	lastCreate  domain.CheckoutRequest
}

func (m *mockPayments) CheckKey(context.Context) error { return m.keyErr }

func (m *mockPayments) CreateSession(_ context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	m.createCalls++
	m.lastCreate = req
	return m.createOut, m.createErr
}

func (m *mockPayments) GetSession(_ context.Context, _ string) (domain.CheckoutSession, error) {
	m.getCalls++
	return m.getOut, m.getErr
}

type mockEntitlements struct {
	byToken   map[string]domain.Entitlement
	bySession map[string]string
	getErr    error
	saveErr   error
	bindErr   error
	saved     []domain.Entitlement
	bound     map[string]string
}

func newMockEntitlements() *mockEntitlements {
	return &mockEntitlements{
		byToken:   map[string]domain.Entitlement{},
		bySession: map[string]string{},
		bound:     map[string]string{},
	}
}

func (m *mockEntitlements) put(e domain.Entitlement) {
	m.byToken[e.Token] = e
	m.bySession[e.SessionID] = e.Token
}

func (m *mockEntitlements) SaveEntitlement(_ context.Context, e domain.Entitlement) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, e)
	m.put(e)
	return nil
}

func (m *mockEntitlements) GetByToken(_ context.Context, token string) (domain.Entitlement, bool, error) {
	if m.getErr != nil {
		return domain.Entitlement{}, false, m.getErr
	}
	e, ok := m.byToken[token]
	return e, ok, nil
}

func (m *mockEntitlements) GetBySession(ctx context.Context, sessionID string) (domain.Entitlement, bool, error) {
	if m.getErr != nil {
		return domain.Entitlement{}, false, m.getErr
	}
	token, ok := m.bySession[sessionID]
	if !ok {
		return domain.Entitlement{}, false, nil
	}
	return m.GetByToken(ctx, token)
}

func (m *mockEntitlements) BindObjectKey(_ context.Context, token, key string) error {
	if m.bindErr != nil {
		return m.bindErr
	}
	e := m.byToken[token]
	if e.ObjectKey != "" && e.ObjectKey != key {
		return errors.New("conditional write conflict")
	}
	e.ObjectKey = key
	m.byToken[token] = e
	m.bound[token] = key
	return nil
}

func expectError(t *testing.T, err error, code ErrorCode, reason string) *Error {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
	return usecaseErr
}

func fixClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func fixUUID(t *testing.T, id string) {
	t.Helper()
	prev := newUUID
	newUUID = func() string { return id }
	t.Cleanup(func() { newUUID = prev })
}

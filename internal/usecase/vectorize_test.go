package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vectorizer/internal/domain"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg"><path d="M0 0h1v1z"/></svg>`

func newTestVectorizeService(t *testing.T, v *mockVectorizer, store *mockStore, mode string) *VectorizeService {
	t.Helper()
	var objects ObjectStore
	if store != nil {
		objects = store
	}
	svc, err := NewVectorizeService(v, objects, mode, 1024)
	require.NoError(t, err)
	return svc
}

func pngUpload() domain.Upload {
	return domain.Upload{Filename: "cat.png", ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\nfake")}
}

func TestNewVectorizeService_Validates(t *testing.T) {
	_, err := NewVectorizeService(nil, newMockStore(), ResultModeStored, 0)
	require.Error(t, err)

	_, err = NewVectorizeService(&mockVectorizer{}, nil, ResultModeStored, 0)
	require.ErrorContains(t, err, "object store")

	_, err = NewVectorizeService(&mockVectorizer{}, nil, "bogus", 0)
	require.ErrorContains(t, err, "unknown result mode")

	svc, err := NewVectorizeService(&mockVectorizer{}, nil, " INLINE ", 0)
	require.NoError(t, err)
	require.Equal(t, ResultModeInline, svc.Mode())
	require.Equal(t, int64(defaultMaxUploadBytes), svc.maxUploadBytes)

	svc, err = NewVectorizeService(&mockVectorizer{}, newMockStore(), "", 0)
	require.NoError(t, err)
	require.Equal(t, ResultModeStored, svc.Mode())
}

func TestVectorize_InlineReturnsUpstreamBytes(t *testing.T) {
	v := &mockVectorizer{out: []byte(testSVG)}
	svc := newTestVectorizeService(t, v, nil, ResultModeInline)

	out, err := svc.Vectorize(context.Background(), VectorizeInput{Upload: pngUpload()})
	require.NoError(t, err)
	require.Equal(t, testSVG, string(out.Result.SVG))
	require.False(t, out.Result.Stored())
	require.Empty(t, out.Message)
	require.Equal(t, 1, v.calls)
	require.Equal(t, "cat.png", v.lastInput.Filename)
	require.Equal(t, "image/png", v.lastInput.ContentType)
}

func TestVectorize_StoredPutsAndReturnsURL(t *testing.T) {
	fixUUID(t, "0b8e1c8a-2f7c-4e8e-9f0f-1a2b3c4d5e6f")
	v := &mockVectorizer{out: []byte(testSVG)}
	store := newMockStore()
	svc := newTestVectorizeService(t, v, store, ResultModeStored)

	out, err := svc.Vectorize(context.Background(), VectorizeInput{Upload: pngUpload()})
	require.NoError(t, err)
	require.True(t, out.Result.Stored())
	require.Equal(t, "vectorized/0b8e1c8a-2f7c-4e8e-9f0f-1a2b3c4d5e6f.svg", out.Result.ObjectKey)
	require.Contains(t, out.Result.URL, out.Result.ObjectKey)
	require.Equal(t, "File vectorized successfully", out.Message)
	require.Equal(t, testSVG, string(store.objects[out.Result.ObjectKey]))
}

func TestVectorize_IdempotencyKeyIsDeterministic(t *testing.T) {
	store := newMockStore()
	svc := newTestVectorizeService(t, &mockVectorizer{out: []byte(testSVG)}, store, ResultModeStored)

	first, err := svc.Vectorize(context.Background(), VectorizeInput{Upload: pngUpload(), IdempotencyKey: "req-42"})
	require.NoError(t, err)
	second, err := svc.Vectorize(context.Background(), VectorizeInput{Upload: pngUpload(), IdempotencyKey: " req-42 "})
	require.NoError(t, err)
	third, err := svc.Vectorize(context.Background(), VectorizeInput{Upload: pngUpload(), IdempotencyKey: "req-43"})
	require.NoError(t, err)

	require.Equal(t, first.Result.ObjectKey, second.Result.ObjectKey)
	require.NotEqual(t, first.Result.ObjectKey, third.Result.ObjectKey)
	require.True(t, strings.HasSuffix(first.Result.ObjectKey, ".svg"))
}

func TestVectorize_DefaultsFilenameAndContentType(t *testing.T) {
	v := &mockVectorizer{out: []byte(testSVG)}
	svc := newTestVectorizeService(t, v, nil, ResultModeInline)

	_, err := svc.Vectorize(context.Background(), VectorizeInput{Upload: domain.Upload{Data: []byte("x")}})
	require.NoError(t, err)
	require.Equal(t, "upload.png", v.lastInput.Filename)
	require.Equal(t, "application/octet-stream", v.lastInput.ContentType)
}

func TestVectorize_EmptyFileIsStillForwarded(t *testing.T) {
	v := &mockVectorizer{out: []byte(testSVG)}
	svc := newTestVectorizeService(t, v, nil, ResultModeInline)

	_, err := svc.Vectorize(context.Background(), VectorizeInput{Upload: domain.Upload{Filename: "a.png", Data: []byte{}}})
	require.NoError(t, err)
	require.Equal(t, 1, v.calls)
}

func TestVectorize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		v       *mockVectorizer
		store   *mockStore
		upload  domain.Upload
		code    ErrorCode
		reason  string
		message string
		details string
		calls   int
	}{
		{
			name:    "missing key wins over missing file",
			v:       &mockVectorizer{keyErr: errors.New("not set")},
			store:   newMockStore(),
			code:    ErrorNotConfigured,
			reason:  "vectorizer_key_missing",
			message: "Vectorizer API key not set",
		},
		{
			name:    "no file",
			v:       &mockVectorizer{},
			store:   newMockStore(),
			code:    ErrorInvalidInput,
			reason:  "missing_file",
			message: "No file uploaded",
		},
		{
			name:    "bucket not configured",
			v:       &mockVectorizer{},
			store:   &mockStore{readyErr: errors.New("bucket not set")},
			upload:  pngUpload(),
			code:    ErrorNotConfigured,
			reason:  "storage_not_configured",
			message: "Storage bucket not set",
		},
		{
			name:    "too large",
			v:       &mockVectorizer{},
			store:   newMockStore(),
			upload:  domain.Upload{Data: make([]byte, 1025)},
			code:    ErrorPayloadTooLarge,
			reason:  "file_too_large",
			message: "File exceeds the 1024 byte limit",
		},
		{
			name:    "upstream non-2xx",
			v:       &mockVectorizer{err: &upstreamErr{status: 402, body: `{"error":{"code":1,"message":"Insufficient credits"}}`}},
			store:   newMockStore(),
			upload:  pngUpload(),
			code:    ErrorUpstream,
			reason:  "vectorizer_error",
			message: "Vectorizer API error",
			details: `{"error":{"code":1,"message":"Insufficient credits"}}`,
			calls:   1,
		},
		{
			name:    "upstream unreachable",
			v:       &mockVectorizer{err: errors.New("dial tcp: connection refused")},
			store:   newMockStore(),
			upload:  pngUpload(),
			code:    ErrorUpstream,
			reason:  "vectorizer_unreachable",
			message: "dial tcp: connection refused",
			calls:   1,
		},
		{
			name:    "put fails",
			v:       &mockVectorizer{out: []byte(testSVG)},
			store:   &mockStore{putErr: errors.New("access denied"), objects: map[string][]byte{}},
			upload:  pngUpload(),
			code:    ErrorUpstream,
			reason:  "storage_put_error",
			message: "Failed to store vectorized file",
			details: "access denied",
			calls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestVectorizeService(t, tt.v, tt.store, ResultModeStored)
			_, err := svc.Vectorize(context.Background(), VectorizeInput{Upload: tt.upload})
			ucErr := expectError(t, err, tt.code, tt.reason)
			require.Equal(t, tt.message, ucErr.Message)
			require.Equal(t, tt.details, ucErr.Details)
			require.Equal(t, tt.calls, tt.v.calls)
		})
	}
}

func TestVectorize_InlineIgnoresStorage(t *testing.T) {
	v := &mockVectorizer{out: []byte(testSVG)}
	store := &mockStore{readyErr: errors.New("bucket not set")}
	svc, err := NewVectorizeService(v, store, ResultModeInline, 0)
	require.NoError(t, err)

	out, err := svc.Vectorize(context.Background(), VectorizeInput{Upload: pngUpload()})
	require.NoError(t, err)
	require.Equal(t, testSVG, string(out.Result.SVG))
	require.Empty(t, store.putNames)
}

package vectorizer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vectorizer/internal/domain"
)

type staticKey struct {
	key string
	err error
}

func (s staticKey) Resolve(context.Context) (string, error) { return s.key, s.err }

const catSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><path d="M0 0h10v10z"/></svg>`

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(staticKey{key: "vk_test"},
		WithEndpoint(srv.URL+"/api/v1/vectorize"),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func TestNewClient_NilKeySource(t *testing.T) {
	_, err := NewClient(nil)
	require.ErrorContains(t, err, "nil")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(staticKey{key: "k"}, WithEndpoint("  "))
	require.NoError(t, err)
	require.Equal(t, "https://vectorizer.ai/api/v1/vectorize", c.endpoint)
	require.NotNil(t, c.httpClient)
}

func TestVectorize_ForwardsMultipartWithBearer(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/vectorize", r.URL.Path)
		require.Equal(t, "Bearer vk_test", r.Header.Get("Authorization"))

		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		defer f.Close()
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		require.Equal(t, []byte("PNGDATA"), data)
		require.Equal(t, "cat.png", hdr.Filename)
		require.Equal(t, "image/png", hdr.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write([]byte(catSVG))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	out, err := c.Vectorize(context.Background(), domain.Upload{Filename: "cat.png", ContentType: "image/png", Data: []byte("PNGDATA")})
	require.NoError(t, err)
	require.Equal(t, catSVG, string(out))
	require.Equal(t, 1, calls)
}

func TestVectorize_AppliesUploadDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		require.Equal(t, "upload.png", hdr.Filename)
		require.Equal(t, "application/octet-stream", hdr.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(catSVG))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Vectorize(context.Background(), domain.Upload{Data: []byte{1, 2, 3}})
	require.NoError(t, err)
}

func TestVectorize_Non2xxCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"code":402,"message":"Insufficient credits"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Vectorize(context.Background(), domain.Upload{Data: []byte("x")})
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusPaymentRequired, statusErr.HTTPStatusCode())
	require.Contains(t, statusErr.Body, "Insufficient credits")
	require.Contains(t, err.Error(), "402")
}

func TestVectorize_MissingKeyNeverCallsUpstream(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	for _, ks := range []KeySource{staticKey{}, staticKey{err: errors.New("no ssm")}} {
		c, err := NewClient(ks, WithEndpoint(srv.URL))
		require.NoError(t, err)

		require.ErrorIs(t, c.CheckKey(context.Background()), ErrAPIKeyNotSet)
		_, err = c.Vectorize(context.Background(), domain.Upload{Data: []byte("x")})
		require.ErrorIs(t, err, ErrAPIKeyNotSet)
	}
	require.Zero(t, calls)
}

func TestVectorize_NetworkError(t *testing.T) {
	c, err := NewClient(staticKey{key: "k"},
		WithEndpoint("http://127.0.0.1:1/vectorize"),
		WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}),
	)
	require.NoError(t, err)

	_, err = c.Vectorize(context.Background(), domain.Upload{Data: []byte("x")})
	require.ErrorContains(t, err, "request failed")
}

func TestVectorize_HonoursContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(catSVG))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv).Vectorize(ctx, domain.Upload{Data: []byte("x")})
	require.Error(t, err)
}

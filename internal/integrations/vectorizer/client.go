package vectorizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"vectorizer/internal/domain"
)

const (
	defaultEndpoint = "https://vectorizer.ai/api/v1/vectorize"
	imageField      = "image"

	maxResultBytes = 64 << 20
	maxErrorBytes  = 64 << 10
)

// ErrAPIKeyNotSet is returned when no API key could be resolved.
var ErrAPIKeyNotSet = errors.New("vectorizer: API key not set")

// KeySource resolves the bearer token sent to the vectorization API.
// *paramstore.Secret satisfies this interface.
type KeySource interface {
	Resolve(ctx context.Context) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses. Body is the raw
// upstream response text and is surfaced to callers as diagnostic detail.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("vectorizer: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) UpstreamBody() string {
	return e.Body
}

// Client forwards raster images to an external vectorization endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	keys       KeySource
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = strings.TrimSpace(endpoint)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client. No client-side timeout is set; the request
// context (the Lambda deadline) bounds each call.
func NewClient(keys KeySource, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("vectorizer: key source must not be nil")
	}
	c := &Client{
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{},
		keys:       keys,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.endpoint == "" {
		c.endpoint = defaultEndpoint
	}
	return c, nil
}

// CheckKey reports whether an API key can be resolved, without calling the
// vectorization API.
func (c *Client) CheckKey(ctx context.Context) error {
	_, err := c.apiKey(ctx)
	return err
}

func (c *Client) apiKey(ctx context.Context) (string, error) {
	key, err := c.keys.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPIKeyNotSet, err)
	}
	if strings.TrimSpace(key) == "" {
		return "", ErrAPIKeyNotSet
	}
	return key, nil
}

// Vectorize sends one multipart request carrying the upload and returns the
// response body unchanged.
func (c *Client) Vectorize(ctx context.Context, upload domain.Upload) ([]byte, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	upload = upload.WithDefaults()

	body, contentType, err := encodeUpload(upload)
	if err != nil {
		return nil, fmt.Errorf("vectorizer: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("vectorizer: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+key)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vectorizer: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBytes))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        c.endpoint,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxResultBytes))
	if err != nil {
		return nil, fmt.Errorf("vectorizer: read response body: %w", err)
	}
	return buf, nil
}

func encodeUpload(upload domain.Upload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, imageField, upload.Filename))
	h.Set("Content-Type", upload.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// Package handler adapts API Gateway proxy events to the vectorize, checkout
// and entitlement use cases and renders the HTML pages.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/xid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"vectorizer/internal/domain"
	"vectorizer/internal/logging"
	"vectorizer/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	idempotencyHeader = "Idempotency-Key"

	defaultSupportEmail = "support@instantvector.com"
	defaultBaseURL      = "http://localhost:3000"
)

type VectorizeUseCase interface {
	Vectorize(ctx context.Context, in usecase.VectorizeInput) (usecase.VectorizeOutput, error)
	Mode() string
}

type CheckoutUseCase interface {
	CreateCheckout(ctx context.Context, in usecase.CheckoutInput) (usecase.CheckoutOutput, error)
}

type EntitlementUseCase interface {
	Redeem(ctx context.Context, sessionID string) (domain.Entitlement, error)
	Download(ctx context.Context, in usecase.DownloadInput) (usecase.DownloadOutput, error)
}

type Handler struct {
	vectorize    VectorizeUseCase
	checkout     CheckoutUseCase
	entitlements EntitlementUseCase

	baseURL      func(origin string) string
	supportEmail string

	pages   *template.Template
	schemas map[string]*jsonschema.Schema
	routes  map[string]route
}

type route struct {
	method string
	serve  func(ctx context.Context, req request) events.APIGatewayProxyResponse
}

// request is a decoded proxy event.
type request struct {
	event         events.APIGatewayProxyRequest
	body          []byte
	bodyErr       error
	correlationID string
}

func (r request) header(name string) string {
	return headerValue(r.event, name)
}

func (r request) query(name string) string {
	if v := r.event.QueryStringParameters[name]; v != "" {
		return v
	}
	if vs := r.event.MultiValueQueryStringParameters[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

type Option func(*Handler)

// WithBaseURL sets how the checkout redirect base is derived from the
// request Origin header.
func WithBaseURL(fn func(origin string) string) Option {
	return func(h *Handler) {
		if fn != nil {
			h.baseURL = fn
		}
	}
}

func WithSupportEmail(email string) Option {
	return func(h *Handler) {
		if email = strings.TrimSpace(email); email != "" {
			h.supportEmail = email
		}
	}
}

func NewHandler(v VectorizeUseCase, c CheckoutUseCase, e EntitlementUseCase, opts ...Option) (*Handler, error) {
	if v == nil {
		return nil, errors.New("handler: vectorize use case must not be nil")
	}
	if c == nil {
		return nil, errors.New("handler: checkout use case must not be nil")
	}
	if e == nil {
		return nil, errors.New("handler: entitlement use case must not be nil")
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		vectorize:    v,
		checkout:     c,
		entitlements: e,
		baseURL:      originOrDefault,
		supportEmail: defaultSupportEmail,
		pages:        pages,
		schemas:      schemas,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.routes = map[string]route{
		"/api/vectorize":        {method: http.MethodPost, serve: h.handleVectorize},
		"/api/checkout-session": {method: http.MethodPost, serve: h.handleCheckout},
		"/api/entitlements":     {method: http.MethodPost, serve: h.handleRedeem},
		"/api/download":         {method: http.MethodPost, serve: h.handleDownload},
		"/":                     {method: http.MethodGet, serve: h.pageHandler(pageIndex)},
		"/success":              {method: http.MethodGet, serve: h.pageHandler(pageSuccess)},
		"/cancel":               {method: http.MethodGet, serve: h.pageHandler(pageCancel)},
		"/refund-policy":        {method: http.MethodGet, serve: h.pageHandler(pageRefund)},
	}
	return h, nil
}

// Handle is the Lambda entrypoint. It never returns an error; failures are
// reported as JSON error responses.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	req := request{event: event, correlationID: headerValue(event, correlationHeader)}
	if req.correlationID == "" {
		req.correlationID = xid.New().String()
	}
	req.body, req.bodyErr = decodeBody(event)

	resp := h.dispatch(ctx, req)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[correlationHeader] = req.correlationID

	logging.Info("request handled",
		"method", event.HTTPMethod,
		"path", event.Path,
		"status", resp.StatusCode,
		"correlationId", req.correlationID,
		"durationMs", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (h *Handler) dispatch(ctx context.Context, req request) events.APIGatewayProxyResponse {
	path := normalizePath(req.event.Path)
	rt, ok := h.routes[path]
	if !ok {
		return jsonResponse(http.StatusNotFound, errorResponse{Error: "Not found"})
	}
	method := strings.ToUpper(req.event.HTTPMethod)
	if method == http.MethodHead && rt.method == http.MethodGet {
		method = http.MethodGet
	}
	if method != rt.method {
		resp := jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		resp.Headers["Allow"] = rt.method
		return resp
	}
	return rt.serve(ctx, req)
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func jsonResponse(status int, body any) events.APIGatewayProxyResponse {
	b, err := json.Marshal(body)
	if err != nil {
		logging.Error("failed to encode response", "err", err)
		status = http.StatusInternalServerError
		b = []byte(`{"error":"Internal server error","code":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(b),
	}
}

func errorStatus(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case usecase.ErrorPaymentRequired:
		return http.StatusPaymentRequired
	case usecase.ErrorForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func errorResult(req request, err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		logging.Error("unexpected error", "correlationId", req.correlationID, "err", err)
		return jsonResponse(http.StatusInternalServerError, errorResponse{
			Error: err.Error(),
			Code:  string(usecase.ErrorInternal),
		})
	}

	status := errorStatus(ucErr.Code)
	if status >= http.StatusInternalServerError {
		logging.Error("request failed", "correlationId", req.correlationID, "code", string(ucErr.Code), "reason", ucErr.Reason, "err", ucErr.Err)
	} else {
		logging.Warn("request rejected", "correlationId", req.correlationID, "code", string(ucErr.Code), "reason", ucErr.Reason)
	}

	msg := ucErr.Message
	if msg == "" {
		msg = string(ucErr.Code)
	}
	return jsonResponse(status, errorResponse{Error: msg, Code: string(ucErr.Code), Details: ucErr.Details})
}

func badRequest(msg string) events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusBadRequest, errorResponse{Error: msg, Code: string(usecase.ErrorInvalidInput)})
}

func decodeBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if !event.IsBase64Encoded {
		return []byte(event.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(event.Body)
	if err != nil {
		return nil, errors.New("handler: body is not valid base64")
	}
	return b, nil
}

// headerValue looks a header up case-insensitively in both header maps.
func headerValue(event events.APIGatewayProxyRequest, name string) string {
	for k, v := range event.Headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	for k, vs := range event.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
	}
	return ""
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}

func originOrDefault(origin string) string {
	if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
		return origin
	}
	return defaultBaseURL
}

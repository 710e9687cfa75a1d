// Package devserver serves a Lambda proxy handler over plain net/http for
// local development.
package devserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gorilla/mux"

	"vectorizer/internal/logging"
)

// multipartOverhead is the headroom allowed on top of the upload limit for
// multipart framing and other form fields.
const multipartOverhead = 1 << 20

// LambdaFunc matches the signature passed to lambda.Start.
type LambdaFunc func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// NewRouter routes every path to fn. Routing and method checks are left to
// fn so local behaviour matches the deployed function.
func NewRouter(fn LambdaFunc, maxUploadBytes int64) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(&adapter{fn: fn, maxBody: maxUploadBytes + multipartOverhead})
	return r
}

type adapter struct {
	fn      LambdaFunc
	maxBody int64
}

func (a *adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	event, err := ToEvent(r, a.maxBody)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		logging.Warn("could not read request body", "err", err)
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := a.fn(r.Context(), event)
	if err != nil {
		logging.Error("handler returned an error", "err", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := WriteResponse(w, resp); err != nil {
		logging.Error("failed to write response", "err", err)
	}
}

// ToEvent converts r to the proxy event API Gateway would deliver. Bodies
// that are not plain text are base64 encoded, as with binary media types.
func ToEvent(r *http.Request, maxBody int64) (events.APIGatewayProxyRequest, error) {
	var body []byte
	if r.Body != nil {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = http.MaxBytesReader(nil, r.Body, maxBody)
		}
		b, err := io.ReadAll(reader)
		if err != nil {
			return events.APIGatewayProxyRequest{}, err
		}
		body = b
	}

	headers := make(map[string]string, len(r.Header))
	multiHeaders := make(map[string][]string, len(r.Header))
	for k, vs := range r.Header {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
		multiHeaders[k] = append([]string(nil), vs...)
	}

	query := map[string]string{}
	multiQuery := map[string][]string{}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
		multiQuery[k] = vs
	}

	event := events.APIGatewayProxyRequest{
		Resource:                        "/{proxy+}",
		Path:                            r.URL.Path,
		HTTPMethod:                      r.Method,
		Headers:                         headers,
		MultiValueHeaders:               multiHeaders,
		QueryStringParameters:           query,
		MultiValueQueryStringParameters: multiQuery,
		RequestContext: events.APIGatewayProxyRequestContext{
			HTTPMethod: r.Method,
			Path:       r.URL.Path,
			Identity:   events.APIGatewayRequestIdentity{SourceIP: r.RemoteAddr, UserAgent: r.UserAgent()},
		},
	}
	if isText(r.Header.Get("Content-Type")) {
		event.Body = string(body)
	} else {
		event.Body = base64.StdEncoding.EncodeToString(body)
		event.IsBase64Encoded = true
	}
	return event, nil
}

// WriteResponse copies a proxy response onto w.
func WriteResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) error {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		b, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return err
		}
		body = b
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := w.Write(body)
	return err
}

func isText(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" ||
		strings.HasPrefix(ct, "text/") ||
		strings.HasPrefix(ct, "application/json") ||
		strings.HasPrefix(ct, "application/x-www-form-urlencoded")
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	_ = WriteResponse(w, events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	})
}

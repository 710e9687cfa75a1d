package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"vectorizer/internal/domain"
	"vectorizer/internal/logging"
)

const (
	ResultModeStored = "stored"
	ResultModeInline = "inline"

	defaultMaxUploadBytes = 10 << 20
	storedMessage         = "File vectorized successfully"
)

// idempotentKeySpace namespaces object names derived from client
// idempotency keys.
var idempotentKeySpace = uuid.MustParse("5b0a3f7e-8d1c-4f6a-9c2e-7a4b1d0e6f93")

type Vectorizer interface {
	CheckKey(ctx context.Context) error
	Vectorize(ctx context.Context, upload domain.Upload) ([]byte, error)
}

type ObjectStore interface {
	Ready() error
	Put(ctx context.Context, name string, data []byte) (key, url string, err error)
	SignedURL(ctx context.Context, key string) (string, error)
}

type VectorizeInput struct {
	Upload         domain.Upload
	IdempotencyKey string
}

type VectorizeOutput struct {
	Result  domain.VectorResult
	Message string
}

// VectorizeService relays one upload to the vectorization API per call and
// either hands the result back inline or stores it and returns a signed URL.
type VectorizeService struct {
	vectorizer     Vectorizer
	store          ObjectStore
	mode           string
	maxUploadBytes int64
}

func NewVectorizeService(v Vectorizer, store ObjectStore, mode string, maxUploadBytes int64) (*VectorizeService, error) {
	if v == nil {
		return nil, errors.New("usecase: vectorizer must not be nil")
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case "":
		mode = ResultModeStored
	case ResultModeStored, ResultModeInline:
	default:
		return nil, errors.New("usecase: unknown result mode " + strconv.Quote(mode))
	}
	if mode == ResultModeStored && store == nil {
		return nil, errors.New("usecase: object store must not be nil in stored mode")
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &VectorizeService{
		vectorizer:     v,
		store:          store,
		mode:           mode,
		maxUploadBytes: maxUploadBytes,
	}, nil
}

func (s *VectorizeService) Mode() string {
	return s.mode
}

func (s *VectorizeService) Vectorize(ctx context.Context, in VectorizeInput) (VectorizeOutput, error) {
	if err := s.vectorizer.CheckKey(ctx); err != nil {
		logging.Error("vectorizer API key not set", "err", err)
		return VectorizeOutput{}, newError(ErrorNotConfigured, "vectorizer_key_missing", "Vectorizer API key not set", err)
	}
	if s.mode == ResultModeStored {
		if err := s.store.Ready(); err != nil {
			logging.Error("object storage not configured", "err", err)
			return VectorizeOutput{}, newError(ErrorNotConfigured, "storage_not_configured", "Storage bucket not set", err)
		}
	}
	if in.Upload.Empty() {
		return VectorizeOutput{}, newError(ErrorInvalidInput, "missing_file", "No file uploaded", nil)
	}
	if int64(len(in.Upload.Data)) > s.maxUploadBytes {
		return VectorizeOutput{}, newError(ErrorPayloadTooLarge, "file_too_large",
			"File exceeds the "+strconv.FormatInt(s.maxUploadBytes, 10)+" byte limit", nil)
	}

	upload := in.Upload.WithDefaults()
	logging.Info("forwarding upload to vectorizer",
		"filename", upload.Filename, "contentType", upload.ContentType, "size", len(upload.Data))

	svg, err := s.vectorizer.Vectorize(ctx, upload)
	if err != nil {
		return VectorizeOutput{}, vectorizerError(err)
	}

	if s.mode == ResultModeInline {
		return VectorizeOutput{Result: domain.VectorResult{SVG: svg}}, nil
	}

	key, url, err := s.store.Put(ctx, objectName(in.IdempotencyKey), svg)
	if err != nil {
		logging.Error("storing vectorized result failed", "err", err)
		return VectorizeOutput{}, newError(ErrorUpstream, "storage_put_error", "Failed to store vectorized file", err).
			withDetails(err.Error())
	}
	return VectorizeOutput{
		Result:  domain.VectorResult{SVG: svg, ObjectKey: key, URL: url},
		Message: storedMessage,
	}, nil
}

func vectorizerError(err error) error {
	var body upstreamBodier
	if errors.As(err, &body) {
		status := 0
		var sc httpStatusCoder
		if errors.As(err, &sc) {
			status = sc.HTTPStatusCode()
		}
		logging.Warn("vectorizer returned an error", "status", status, "body", body.UpstreamBody())
		return newError(ErrorUpstream, "vectorizer_error", "Vectorizer API error", err).
			withDetails(body.UpstreamBody())
	}
	logging.Error("vectorizer request failed", "err", err)
	return newError(ErrorUpstream, "vectorizer_unreachable", err.Error(), err)
}

// objectName is deterministic for a given idempotency key so a retried
// request overwrites its earlier object.
func objectName(idempotencyKey string) string {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return newUUID() + ".svg"
	}
	return uuid.NewSHA1(idempotentKeySpace, []byte(idempotencyKey)).String() + ".svg"
}

var newUUID = func() string {
	return uuid.NewString()
}

package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"vectorizer/internal/domain"
	"vectorizer/internal/logging"
	"vectorizer/internal/usecase"
)

type vectorizeResponse struct {
	URL     string `json:"url"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

func (h *Handler) handleVectorize(ctx context.Context, req request) events.APIGatewayProxyResponse {
	// A body that cannot be parsed is treated as carrying no file, so the
	// key check in the use case still runs first.
	upload, err := parseUpload(req)
	if err != nil {
		logging.Warn("could not read multipart body", "correlationId", req.correlationID, "err", err)
	}

	out, err := h.vectorize.Vectorize(ctx, usecase.VectorizeInput{
		Upload:         upload,
		IdempotencyKey: req.header(idempotencyHeader),
	})
	if err != nil {
		return errorResult(req, err)
	}

	if !out.Result.Stored() {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{"Content-Type": domain.SVGContentType},
			Body:       string(out.Result.SVG),
		}
	}
	return jsonResponse(http.StatusOK, vectorizeResponse{
		URL:     out.Result.URL,
		Key:     out.Result.ObjectKey,
		Message: out.Message,
	})
}

// parseUpload returns the first file part of a multipart/form-data body. A
// part is a file when it has a filename or its form name is "file".
func parseUpload(req request) (domain.Upload, error) {
	if req.bodyErr != nil {
		return domain.Upload{}, req.bodyErr
	}
	mediaType, params, err := mime.ParseMediaType(req.header("Content-Type"))
	if err != nil {
		return domain.Upload{}, err
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return domain.Upload{}, errors.New("handler: content type " + mediaType + " is not multipart")
	}
	boundary := params["boundary"]
	if boundary == "" {
		return domain.Upload{}, errors.New("handler: multipart boundary missing")
	}

	mr := multipart.NewReader(bytes.NewReader(req.body), boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return domain.Upload{}, nil
		}
		if err != nil {
			return domain.Upload{}, err
		}
		if part.FileName() == "" && part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return domain.Upload{}, err
		}
		return domain.Upload{
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		}, nil
	}
}

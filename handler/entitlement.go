package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"vectorizer/internal/logging"
	"vectorizer/internal/usecase"
)

type redeemRequest struct {
	SessionID string `json:"sessionId"`
}

type redeemResponse struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	ObjectKey string `json:"objectKey,omitempty"`
	ExpiresAt string `json:"expiresAt"`
}

type downloadRequest struct {
	Token string `json:"token"`
	Key   string `json:"key"`
}

type downloadResponse struct {
	URL string `json:"url"`
}

func (h *Handler) handleRedeem(ctx context.Context, req request) events.APIGatewayProxyResponse {
	var in redeemRequest
	if req.bodyErr != nil {
		return badRequest("Missing session id")
	}
	if err := h.decodeValidated(entitlementSchema, req.body, &in); err != nil {
		logging.Warn("invalid entitlement request", "correlationId", req.correlationID, "err", err)
		return badRequest("Missing session id")
	}

	e, err := h.entitlements.Redeem(ctx, in.SessionID)
	if err != nil {
		return errorResult(req, err)
	}
	return jsonResponse(http.StatusOK, redeemResponse{
		Token:     e.Token,
		Type:      string(e.Type),
		ObjectKey: e.ObjectKey,
		ExpiresAt: e.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleDownload(ctx context.Context, req request) events.APIGatewayProxyResponse {
	var in downloadRequest
	if req.bodyErr != nil {
		return badRequest("Invalid request body")
	}
	if err := h.decodeValidated(downloadSchema, req.body, &in); err != nil {
		logging.Warn("invalid download request", "correlationId", req.correlationID, "err", err)
		return badRequest("Invalid request body")
	}

	out, err := h.entitlements.Download(ctx, usecase.DownloadInput{Token: in.Token, ObjectKey: in.Key})
	if err != nil {
		return errorResult(req, err)
	}
	return jsonResponse(http.StatusOK, downloadResponse{URL: out.URL})
}

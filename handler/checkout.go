package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"vectorizer/internal/logging"
	"vectorizer/internal/usecase"
)

type checkoutRequest struct {
	Type      string `json:"type"`
	ObjectKey string `json:"objectKey"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

func (h *Handler) handleCheckout(ctx context.Context, req request) events.APIGatewayProxyResponse {
	if req.bodyErr != nil {
		return badRequest("Invalid type")
	}
	var in checkoutRequest
	if err := h.decodeValidated(checkoutSchema, req.body, &in); err != nil {
		logging.Warn("invalid checkout request", "correlationId", req.correlationID, "err", err)
		return badRequest("Invalid type")
	}

	out, err := h.checkout.CreateCheckout(ctx, usecase.CheckoutInput{
		Type:           in.Type,
		ObjectKey:      in.ObjectKey,
		BaseURL:        h.baseURL(req.header("Origin")),
		IdempotencyKey: req.header(idempotencyHeader),
	})
	if err != nil {
		return errorResult(req, err)
	}
	return jsonResponse(http.StatusOK, checkoutResponse{URL: out.URL})
}

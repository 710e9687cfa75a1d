package handler

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"vectorizer/internal/logging"
	"vectorizer/internal/usecase"
)

//go:embed templates/*.html
var templates embed.FS

const (
	pageIndex   = "index.html"
	pageSuccess = "success.html"
	pageCancel  = "cancel.html"
	pageRefund  = "refund.html"
)

var pageTitles = map[string]string{
	pageIndex:   "Image Vectorizer",
	pageSuccess: "Payment Successful",
	pageCancel:  "Payment Cancelled",
	pageRefund:  "Refund Policy",
}

type pageData struct {
	Title        string
	SupportEmail string
	InlineMode   bool
	SessionID    string
}

func parsePages() (*template.Template, error) {
	return template.ParseFS(templates, "templates/*.html")
}

func (h *Handler) pageHandler(name string) func(context.Context, request) events.APIGatewayProxyResponse {
	return func(_ context.Context, req request) events.APIGatewayProxyResponse {
		data := pageData{
			Title:        pageTitles[name],
			SupportEmail: h.supportEmail,
			InlineMode:   h.vectorize.Mode() == usecase.ResultModeInline,
		}
		if name == pageSuccess {
			data.SessionID = req.query("session_id")
		}

		var buf bytes.Buffer
		if err := h.pages.ExecuteTemplate(&buf, name, data); err != nil {
			logging.Error("failed to render page", "page", name, "err", err)
			return jsonResponse(http.StatusInternalServerError, errorResponse{
				Error: "Internal server error",
				Code:  string(usecase.ErrorInternal),
			})
		}
		resp := events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers: map[string]string{
				"Content-Type":  "text/html; charset=utf-8",
				"Cache-Control": "no-store",
			},
			Body: buf.String(),
		}
		if req.event.HTTPMethod == http.MethodHead {
			resp.Body = ""
		}
		return resp
	}
}

package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fictotum/internal/platform/reqctx"
	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// Error renders every handler error as an ErrorResponse
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		logger.WithContext(ctx).WithError(err).Error("api is returning an error")
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		var he *echo.HTTPError
		var httperr *httperror.HTTPError
		var validationErrs models.ValidationErrors
		var validationErr *models.ValidationError
		var ambiguousErr *models.AmbiguousDuplicateError
		var externalErr *models.ExternalServiceError
		switch {
		case errors.As(err, &he):
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		case errors.As(err, &httperr):
			code = httperr.Code
			message = httperr.Message
			if len(httperr.Meta) > 0 {
				meta = httperr.Meta
			}
		case errors.As(err, &validationErrs):
			code = http.StatusBadRequest
			message = "validation failed"
			meta["errors"] = validationErrs
		case errors.As(err, &validationErr):
			code = http.StatusBadRequest
			message = validationErr.Error()
		case errors.As(err, &ambiguousErr):
			code = http.StatusConflict
			message = ambiguousErr.Error()
		case errors.As(err, &externalErr):
			code = http.StatusBadGateway
			message = externalErr.Error()
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: reqctx.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}

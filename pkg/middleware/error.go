package middleware

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/tinusleroux/crowdbiz-graph/pkg/context"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// Error is the echo error handler. Errors without a status become an opaque 500.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		code, body := describe(err)
		log := logger.WithContext(ctx).WithError(err).WithField("status", code)
		if code >= http.StatusInternalServerError {
			log.Error("api is returning an error")
		} else {
			log.Warn("api is returning an error")
		}
		if c.Response().Committed {
			return
		}

		body.RequestID = context.GetRequestID(ctx)
		body.TraceID = tracing.GetTraceID(ctx)
		_ = c.JSON(code, body)
	}
}

func describe(err error) (int, ErrorResponse) {
	if httperror.IsHTTPError(err) {
		httperr := httperror.ToHTTPError(err)
		return httperror.GetStatusCode(err), ErrorResponse{Message: httperr.Error(), Meta: httperr.Meta}
	}
	if code, ok := importerror.StatusCode(err); ok {
		return code, ErrorResponse{
			Message: err.Error(),
			Meta:    map[string]any{"kind": importerror.KindOf(err)},
		}
	}
	if he, ok := err.(*echo.HTTPError); ok {
		message, ok := he.Message.(string)
		if !ok {
			message = http.StatusText(he.Code)
		}
		return he.Code, ErrorResponse{Message: message, Meta: map[string]any{}}
	}
	return http.StatusInternalServerError, ErrorResponse{Message: "Internal Server Error", Meta: map[string]any{}}
}

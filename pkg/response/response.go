package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"SiteSign/pkg/errors"
)

// ErrorResponse is the error envelope for every endpoint.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

func errorToHTTPStatus(err error) int {
	def, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch def.Code {
	case "RATE_LIMITED":
		return http.StatusTooManyRequests // 429
	case "INVALID_REQUEST", "MISSING_VISIT_ID", "INVALID_VISIT_ID",
		"UNKNOWN_ACTION", "INVALID_PUSH_SUBSCRIPTION",
		"NO_PUSH_SUBSCRIPTION", "PUSH_SUBSCRIPTION_EXPIRED":
		return http.StatusBadRequest // 400
	case "VISIT_NOT_FOUND", "SITE_NOT_FOUND":
		return http.StatusNotFound // 404
	default:
		return http.StatusInternalServerError // 500
	}
}

// Error writes the envelope with the status mapped from err.
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	statusCode := errorToHTTPStatus(err)

	code, message := "INTERNAL_ERROR", err.Error()
	if def, ok := errors.As(err); ok {
		code = def.Code
		message = def.Message
	}

	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// JSON writes a 200 body as-is; geofence endpoints answer with flat objects.
func JSON(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}

// This file builds the JSON envelope every endpoint answers with:
// {"success": bool, "message": string, ...payload}.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"budgetledger/internal/core"
	applog "budgetledger/internal/log"
	"budgetledger/internal/middleware/trace"
)

// JSONResponseBuilder provides a fluent API for building envelope responses.
type JSONResponseBuilder struct {
	statusCode int
	success    bool
	message    string
	fields     map[string]any
	headers    map[string]string
}

// NewJSONResponse creates a successful 200 response.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		success:    true,
		fields:     make(map[string]any),
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	b.success = code < http.StatusBadRequest
	return b
}

func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	b.message = msg
	return b
}

// Set adds a top-level payload field. success and message are reserved.
func (b *JSONResponseBuilder) Set(key string, value any) *JSONResponseBuilder {
	if key == "success" || key == "message" {
		return b
	}
	b.fields[key] = value
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write encodes the envelope to w.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	body := make(map[string]any, len(b.fields)+2)
	for k, v := range b.fields {
		body[k] = v
	}
	body["success"] = b.success
	body["message"] = b.message

	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error("Failed to encode response", applog.FieldError, err)
		b.statusCode = http.StatusInternalServerError
		payload = []byte(`{"success":false,"message":"internal server error"}`)
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
}

// ErrorResponse creates a failed response with the given status and message.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Message(message)
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal server error")
}

// TooManyRequestsError is written when a client exhausts its rate budget.
// The limiter has already set Retry-After.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// FromError maps a service error to a response. Validation and not-found
// errors are shown to the caller; anything else is logged and hidden.
func FromError(r *http.Request, err error) *JSONResponseBuilder {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		b := BadRequestError(ve.Error())
		if len(ve.Fields) > 0 {
			b.Set("fields", ve.Fields)
		}
		return b
	case errors.Is(err, core.ErrValidation):
		return BadRequestError(err.Error())
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError(err.Error())
	default:
		ctx := r.Context()
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Request failed", err,
			applog.ComponentHTTP, r.Method+" "+r.URL.Path, nil)
		b := InternalServerError()
		if id := trace.GetRequestID(ctx); id != "" {
			b.Set("requestId", id)
		}
		return b
	}
}

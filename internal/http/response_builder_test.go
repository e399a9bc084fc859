package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"budgetledger/internal/core"
	applog "budgetledger/internal/log"
	"budgetledger/internal/middleware/trace"
)

func TestJSONResponseBuilder(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Message("done").
		Set("count", 2).
		Set("success", false).
		Header("X-Extra", "1").
		Write(rec)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Extra"))
	assert.JSONEq(t, `{"success":true,"message":"done","count":2}`, rec.Body.String())
}

func TestFromError(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{
			name: "missing fields",
			err:  &core.ValidationError{Fields: []string{"title", "amount"}},
			code: http.StatusBadRequest,
			body: `{"success":false,"message":"missing required fields: title, amount","fields":["title","amount"]}`,
		},
		{
			name: "wrapped validation",
			err:  fmt.Errorf("create: %w", &core.ValidationError{Reason: "no fields to update"}),
			code: http.StatusBadRequest,
			body: `{"success":false,"message":"no fields to update"}`,
		},
		{
			name: "not found",
			err:  core.TransactionNotFound("t1"),
			code: http.StatusNotFound,
			body: `{"success":false,"message":"transaction \"t1\" not found"}`,
		},
		{
			name: "internal",
			err:  errors.New("disk on fire"),
			code: http.StatusInternalServerError,
			body: `{"success":false,"message":"internal server error"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(r, tt.err).Write(rec)
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestFromErrorEchoesRequestID(t *testing.T) {
	h := trace.NewMiddleware(applog.New(applog.Config{Output: io.Discard}), nil).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromError(r, errors.New("boom")).Write(w)
		}))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(trace.RequestIDHeader, "req-42")
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"internal server error","requestId":"req-42"}`, rec.Body.String())
}

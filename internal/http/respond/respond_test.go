package respond

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	Error(rec, req, http.StatusBadRequest, "Invalid action")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "Invalid action" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestInternalErrorLogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	ctx := context.WithValue(req.Context(), middleware.RequestIDKey, "req-123")
	ctx = logger.WithContext(ctx)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	InternalError(rec, req, errors.New("boom"), "sync failed")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"boom"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	logged := buf.String()
	if !strings.Contains(logged, `"request_id":"req-123"`) || !strings.Contains(logged, "sync failed") {
		t.Errorf("log line = %s", logged)
	}
}

package apierror

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON_PreSerialized(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, nil, http.StatusServiceUnavailable, CircuitOpen, "circuit breaker open")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.ErrorCode != string(CircuitOpen) {
		t.Errorf("unexpected error code: %q", body.ErrorCode)
	}
	if body.Error != http.StatusText(http.StatusServiceUnavailable) {
		t.Errorf("unexpected error text: %q", body.Error)
	}
	if body.RequestID != "" {
		t.Errorf("expected no request_id, got %q", body.RequestID)
	}
}

func TestWriteJSON_IncludesRequestID(t *testing.T) {
	req := httptest.NewRequest("GET", "/call/payments/x", nil)
	req.Header.Set("X-Request-ID", "req-42")

	rec := httptest.NewRecorder()
	WriteJSON(rec, req, http.StatusServiceUnavailable, CircuitOpen, "circuit breaker open")

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.RequestID != "req-42" {
		t.Errorf("expected request_id req-42, got %q", body.RequestID)
	}
}

func TestWriteJSON_CustomMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, nil, http.StatusForbidden, Forbidden, "client address not allowed")

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Message != "client address not allowed" {
		t.Errorf("unexpected message: %q", body.Message)
	}
	if body.ErrorCode != string(Forbidden) {
		t.Errorf("unexpected code: %q", body.ErrorCode)
	}
}

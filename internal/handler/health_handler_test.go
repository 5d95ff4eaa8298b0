package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) healthResponse {
	t.Helper()
	var resp healthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func okCheck(context.Context) error   { return nil }
func failCheck(context.Context) error { return errors.New("down") }

func TestHealthHandler_AllOK(t *testing.T) {
	h := NewHealthHandler(newTestLogger(),
		HealthCheck{Name: "storage", Check: okCheck, Critical: true},
		HealthCheck{Name: "payment", Check: okCheck},
	)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decodeHealth(t, w)
	if resp.Status != "ok" || resp.Checks["storage"] != "ok" || resp.Checks["payment"] != "ok" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealthHandler_NonCriticalFailureIsDegraded(t *testing.T) {
	h := NewHealthHandler(newTestLogger(),
		HealthCheck{Name: "storage", Check: okCheck, Critical: true},
		HealthCheck{Name: "payment", Check: failCheck},
	)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decodeHealth(t, w)
	if resp.Status != "degraded" || resp.Checks["payment"] != "error" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealthHandler_CriticalFailure(t *testing.T) {
	h := NewHealthHandler(newTestLogger(),
		HealthCheck{Name: "payment", Check: failCheck},
		HealthCheck{Name: "storage", Check: failCheck, Critical: true},
	)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if resp := decodeHealth(t, w); resp.Status != "unavailable" {
		t.Errorf("Status = %q, want unavailable", resp.Status)
	}
}

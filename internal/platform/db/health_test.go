package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func runHealth(t *testing.T, probes ...Probe) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := HealthHandler(time.Second, probes...)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, body
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	rec, body := runHealth(t,
		Probe{Name: "his", Check: func(context.Context) (interface{}, error) { return nil, nil }},
		Probe{Name: "staging", Check: func(context.Context) (interface{}, error) {
			return map[string]int{"staged": 2}, nil
		}},
	)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	checks := body["checks"].(map[string]interface{})
	staging := checks["staging"].(map[string]interface{})
	if staging["details"].(map[string]interface{})["staged"] != float64(2) {
		t.Errorf("expected staging details, got %v", staging)
	}
}

func TestHealthHandler_OneUnhealthy(t *testing.T) {
	rec, body := runHealth(t,
		Probe{Name: "his", Check: func(context.Context) (interface{}, error) { return nil, errors.New("connection refused") }},
		Probe{Name: "staging", Check: func(context.Context) (interface{}, error) { return nil, nil }},
	)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected unhealthy, got %v", body["status"])
	}
	his := body["checks"].(map[string]interface{})["his"].(map[string]interface{})
	if his["error"] != "connection refused" {
		t.Errorf("unexpected his check %v", his)
	}
}

func TestHealthHandler_ProbeGetsDeadline(t *testing.T) {
	runHealth(t, Probe{Name: "his", Check: func(ctx context.Context) (interface{}, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected probe context to carry a deadline")
		}
		return nil, nil
	}})
}

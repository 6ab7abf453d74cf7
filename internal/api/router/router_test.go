package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/saludtb/tb-assistant/pkg/logging"
)

func TestHealthAllUp(t *testing.T) {
	h := New(Config{
		Logger: logging.New("error"),
		Checks: map[string]Check{
			"redis":    func(context.Context) error { return nil },
			"registry": func(context.Context) error { return nil },
		},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Components["redis"] != "up" {
		t.Fatalf("body = %+v", body)
	}
}

func TestHealthDegraded(t *testing.T) {
	h := New(Config{
		Logger: logging.New("error"),
		Checks: map[string]Check{
			"redis": func(context.Context) error { return errors.New("refused") },
		},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	h := New(Config{Logger: logging.New("error")})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty metrics body")
	}
}

func TestChatRoutesAbsentWithoutHandler(t *testing.T) {
	h := New(Config{Logger: logging.New("error")})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/message", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

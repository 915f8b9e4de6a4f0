package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/opolis/payledger/internal/api"
	"github.com/opolis/payledger/internal/health"
	"go.uber.org/zap"
)

func TestReadyHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var failing error
	checker := health.New([]health.Probe{
		{Name: "journal", Check: func(context.Context) error { return failing }},
	}, health.Config{FailThreshold: 1}, zap.NewNop())

	r := gin.New()
	r.GET("/readyz", api.ReadyHandler(checker))

	get := func() (int, map[string]any) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return w.Code, body
	}

	checker.CheckAll(ctx)
	if code, body := get(); code != http.StatusOK || body["status"] != "ready" {
		t.Errorf("healthy: code=%d body=%v", code, body)
	}

	failing = errors.New("chain broken at 4")
	checker.CheckAll(ctx)
	code, body := get()
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("degraded: code=%d body=%v", code, body)
	}
	probes, _ := body["probes"].([]any)
	if len(probes) != 1 {
		t.Fatalf("probes: got %v", body["probes"])
	}
	if p := probes[0].(map[string]any); p["name"] != "journal" || p["last_error"] != "chain broken at 4" {
		t.Errorf("probe status: got %v", p)
	}
}

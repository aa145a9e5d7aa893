package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"workspace-agent-backend/config"
	"workspace-agent-backend/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRegister(t *testing.T) {
	gin.SetMode(gin.TestMode)
	prev := config.Cfg
	config.Cfg = &config.Config{JWT: config.JWTConfig{SecretKey: "secret"}}
	t.Cleanup(func() { config.Cfg = prev })

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "router_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	r := Register(reg)

	tests := []struct {
		name   string
		method string
		path   string
		auth   bool
		code   int
	}{
		{"health", http.MethodGet, "/healthz", false, http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", false, http.StatusOK},
		{"api without token", http.MethodGet, "/api/conversations", false, http.StatusUnauthorized},
		{"chat without token", http.MethodPost, "/api/chat", false, http.StatusUnauthorized},
		{"chat with bad body", http.MethodPost, "/api/chat", true, http.StatusBadRequest},
	}

	token, err := middleware.GenerateToken("u-1", "ws-1", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{"))
			req.Header.Set("Content-Type", "application/json")
			if tt.auth {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			r.ServeHTTP(w, req)

			if w.Code != tt.code {
				t.Errorf("status = %d, want %d", w.Code, tt.code)
			}
			if tt.path == "/metrics" && !strings.Contains(w.Body.String(), "router_test_total 1") {
				t.Errorf("metrics body missing counter:\n%s", w.Body.String())
			}
		})
	}
}

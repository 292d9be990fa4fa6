package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/relayctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestAdminHealthAndSessions(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	svc := NewServiceWithConfig(testServiceConfig(&syncBuffer{}))
	s, _ := pipeSession(t, "10.1.1.1:5000", time.Unix(1_700_000_000, 0))
	svc.Registry().Register(s)
	if err := svc.Registry().SetAlias(s, "agent1"); err != nil {
		t.Fatalf("set alias: %v", err)
	}
	router := svc.AdminRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status=%d body=%s", w.Code, w.Body.String())
	}
	var health map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "ok" || health["sessions"] != float64(1) || health["hub"] != "hub" {
		t.Fatalf("unexpected health: %v", health)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	var body struct {
		Sessions []SessionView `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(body.Sessions) != 1 {
		t.Fatalf("expected one session, got %+v", body.Sessions)
	}
	got := body.Sessions[0]
	if got.Alias != "agent1" || got.RemoteAddr != "10.1.1.1:5000" || got.State != "identified" || got.ID != s.ID {
		t.Fatalf("unexpected session view: %+v", got)
	}
}

func TestAdminReadyReflectsServe(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	svc := NewServiceWithConfig(testServiceConfig(&syncBuffer{}))
	router := svc.AdminRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected not ready before serve, got %d", w.Code)
	}

	svc.ready.Store(true)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d", w.Code)
	}
}

func TestAdminMetricsExposesRequestCounter(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	svc := NewServiceWithConfig(testServiceConfig(&syncBuffer{}))
	router := svc.AdminRouter()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "relayctl_http_requests_total") {
		t.Fatalf("expected http request counter in metrics output")
	}
}

package hub

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/relayctl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// SessionView is the admin rendering of one registry entry.
type SessionView struct {
	ID          string    `json:"id"`
	Alias       string    `json:"alias"`
	RemoteAddr  string    `json:"remote_addr"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
}

// AdminRouter builds the read-only admin HTTP surface.
func (s *Service) AdminRouter() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, "/metrics", "/health", "/ready"))
	r.Use(observability.RequestMetricsMiddleware(s.cfg.HubID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.AdminCORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		consistency := "ok"
		if err := s.registry.CheckConsistency(); err != nil {
			status, code = "degraded", http.StatusInternalServerError
			consistency = err.Error()
		}
		c.JSON(code, gin.H{
			"status":   status,
			"uptime":   time.Since(s.startedAt).String(),
			"hub":      s.cfg.HubID,
			"sessions": s.registry.Len(),
			"registry": consistency,
			"version":  version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		ready := s.ready.Load()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.startedAt).String(),
			"hub":     s.cfg.HubID,
			"version": version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sessions": s.SessionViews(),
		})
	})
	return r
}

// SessionViews renders the current registry snapshot.
func (s *Service) SessionViews() []SessionView {
	entries := s.registry.Snapshot()
	out := make([]SessionView, 0, len(entries))
	for _, e := range entries {
		out = append(out, SessionView{
			ID:          e.Session.ID,
			Alias:       e.Alias,
			RemoteAddr:  e.Session.RemoteAddr,
			State:       e.Session.State().String(),
			ConnectedAt: e.Session.ConnectedAt,
		})
	}
	return out
}

func (s *Service) serveAdmin(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.AdminRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("hub.Service admin listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

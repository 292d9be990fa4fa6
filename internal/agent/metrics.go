package agent

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/relayctl/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// MetricsRouter exposes the agent's command and frame counters.
func MetricsRouter(node string) *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestMetricsMiddleware(node))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "agent": node})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// serveMetrics binds addr and serves MetricsRouter until ctx is done.
// It returns the bound address and a func that waits for shutdown.
func serveMetrics(ctx context.Context, addr, node string) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}
	srv := &http.Server{
		Handler:           MetricsRouter(node),
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Str("addr", addr).Msg("agent.metrics serve failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("agent.metrics listening")
	return ln.Addr().String(), func() { <-done }, nil
}

package server

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/edgekv/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Stats is the /stats payload.
type Stats struct {
	Keys        int      `json:"keys"`
	Connections int      `json:"connections"`
	Workers     int      `json:"workers"`
	LiveWorkers int      `json:"live_workers"`
	PoolPending int      `json:"pool_pending"`
	Channels    []string `json:"channels"`
	Uptime      string   `json:"uptime"`
}

func (s *Server) Stats() Stats {
	return Stats{
		Keys:        s.dispatcher.Store().Len(),
		Connections: s.Connections(),
		Workers:     s.pool.Workers(),
		LiveWorkers: s.pool.Live(),
		PoolPending: s.pool.Pending(),
		Channels:    s.dispatcher.Broker().Channels(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	}
}

// AdminRouter builds the gin engine serving health, readiness, metrics and stats.
func (s *Server) AdminRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminRequests(s.cfg.Name, log.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.cfg.Name,
			"version": version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		ready := !s.closing.Load()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"service": s.cfg.Name,
			"version": version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Stats())
	})
	return r
}

func (s *Server) startAdmin() error {
	addr := strings.TrimSpace(s.cfg.AdminAddr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	admin := &http.Server{
		Handler:           s.AdminRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.admin, s.adminLn = admin, ln
	s.mu.Unlock()

	log.Info().Str("server", s.cfg.Name).Str("addr", ln.Addr().String()).Msg("admin listening")
	go func() {
		if err := admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("admin server stopped")
		}
	}()
	return nil
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}

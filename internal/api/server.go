// Package api exposes tipping sessions over HTTP/JSON and streams tip
// status changes over WebSocket.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rovshanmuradov/tipstark/internal/metrics"
	"github.com/rovshanmuradov/tipstark/internal/tipping"
)

type Config struct {
	Addr string
	// AllowedOrigins of browser clients; nil or "*" allows all.
	AllowedOrigins []string
	// TipRate and TipBurst limit tip submissions per session.
	TipRate  rate.Limit
	TipBurst int
}

type Server struct {
	cfg      Config
	manager  *tipping.Manager
	metrics  *metrics.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
	http     *http.Server

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

func New(cfg Config, manager *tipping.Manager, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TipRate == 0 {
		cfg.TipRate = rate.Every(time.Second)
	}
	if cfg.TipBurst <= 0 {
		cfg.TipBurst = 3
	}
	s := &Server{
		cfg:      cfg,
		manager:  manager,
		metrics:  m,
		logger:   logger.Named("api"),
		limiters: make(map[string]*rate.Limiter),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	corsCfg := cors.DefaultConfig()
	if s.allowAllOrigins() {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.AllowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api")
	api.GET("/creators", s.handleListCreators)
	api.GET("/creators/:address", s.handleGetCreator)
	api.GET("/stats", s.handleStats)
	api.POST("/sessions", s.handleOpenSession)

	sess := api.Group("/sessions/:id", s.session())
	sess.DELETE("", s.handleCloseSession)
	sess.POST("/connect", s.handleConnect)
	sess.POST("/disconnect", s.handleDisconnect)
	sess.GET("/wallet", s.handleWallet)
	sess.GET("/tips", s.handleListTips)
	sess.POST("/tips", s.rateLimit(), s.handleSubmitTip)
	sess.POST("/reconcile", s.handleReconcile)
	sess.PUT("/profile", s.handleSaveProfile)
	sess.GET("/stats", s.handleSessionStats)
	sess.GET("/ws", s.handleWS)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) allowAllOrigins() bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.allowAllOrigins() {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Server) limiter(key string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.cfg.TipRate, s.cfg.TipBurst)
		s.limiters[key] = l
	}
	return l
}

func (s *Server) dropLimiter(key string) {
	s.limitersMu.Lock()
	delete(s.limiters, key)
	s.limitersMu.Unlock()
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter(c.Param("id")).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many tip submissions"})
			return
		}
		c.Next()
	}
}

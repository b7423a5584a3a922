// Package api serves a read-only view of the running bot over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"dca-core/internal/engine"
	"dca-core/internal/events"
	"dca-core/internal/logger"
	"dca-core/internal/monitor"
	"dca-core/pkg/db"
)

// StatusSource exposes copies of the trading loop state.
type StatusSource interface {
	Status() engine.Status
}

// Journal is the read side of the order and leg journal.
type Journal interface {
	ListOrders(ctx context.Context, limit int) ([]db.Order, error)
	GetOrder(ctx context.Context, id string) (db.Order, error)
	ClosedLegs(ctx context.Context, symbol string, limit int) ([]db.Leg, error)
}

// SystemMeta describes runtime settings exposed without auth.
type SystemMeta struct {
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	DryRun     bool   `json:"dry_run"`
	MockFeed   bool   `json:"mock_feed"`
	Indicators string `json:"indicators"`
	InstanceID string `json:"instance_id"`
	Version    string `json:"version"`
}

// Server wires HTTP endpoints around the orchestrator status and journal.
type Server struct {
	Router    *gin.Engine
	Status    StatusSource
	Journal   Journal
	Bus       *events.Bus
	Metrics   http.Handler
	JWTSecret string
	Meta      SystemMeta

	logger     *slog.Logger
	apiLatency *monitor.LatencyHistogram
	startedAt  time.Time
	httpServer *http.Server
}

// NewServer builds the router. journal, bus and metrics may be nil.
func NewServer(status StatusSource, journal Journal, bus *events.Bus, metrics http.Handler, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()
	s := &Server{
		Router:     r,
		Status:     status,
		Journal:    journal,
		Bus:        bus,
		Metrics:    metrics,
		JWTSecret:  jwtSecret,
		Meta:       meta,
		logger:     logger.Component("api"),
		apiLatency: monitor.NewLatencyHistogram(1000),
		startedAt:  time.Now(),
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(s.logger, s.apiLatency))
	r.Use(RateLimitMiddleware(rate.Limit(20), 50))
	r.Use(CORSMiddleware())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	if s.Metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(s.Metrics))
	}

	v1 := s.Router.Group("/api/v1")
	{
		v1.GET("/system", s.getSystem)

		protected := v1.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/status", s.getStatus)
			protected.GET("/positions", s.getPositions)
			protected.GET("/orders", s.getOrders)
			protected.GET("/orders/:id", s.getOrder)
			protected.GET("/trades", s.getTrades)
			protected.GET("/ws", s.websocket)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	st := s.Status.Status()
	code := http.StatusOK
	if st.Phase == engine.PhaseStopped {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": "ok", "phase": st.Phase})
}

func (s *Server) getSystem(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"meta":           s.Meta,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"api_latency_ms": s.apiLatency.Stats(),
	})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Status.Status())
}

// getPositions returns the open ladder and its aggregates.
func (s *Server) getPositions(c *gin.Context) {
	st := s.Status.Status()
	var avg float64
	if st.TotalBase > 0 {
		avg = st.TotalQuote / st.TotalBase
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":      st.Symbol,
		"legs":        st.Legs,
		"max_legs":    st.MaxLegs,
		"total_base":  st.TotalBase,
		"total_quote": st.TotalQuote,
		"avg_price":   avg,
	})
}

func (s *Server) getOrders(c *gin.Context) {
	if s.Journal == nil {
		respondError(c, http.StatusServiceUnavailable, "JOURNAL_UNAVAILABLE", "order journal not configured")
		return
	}
	limit, err := parseLimit(c, 100, 500)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	orders, err := s.Journal.ListOrders(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	if orders == nil {
		orders = []db.Order{}
	}
	c.Header("X-Result-Limit", strconv.Itoa(limit))
	c.JSON(http.StatusOK, orders)
}

func (s *Server) getOrder(c *gin.Context) {
	if s.Journal == nil {
		respondError(c, http.StatusServiceUnavailable, "JOURNAL_UNAVAILABLE", "order journal not configured")
		return
	}
	o, err := s.Journal.GetOrder(c.Request.Context(), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		respondError(c, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, o)
}

// getTrades returns closed ladder legs, most recent first.
func (s *Server) getTrades(c *gin.Context) {
	if s.Journal == nil {
		respondError(c, http.StatusServiceUnavailable, "JOURNAL_UNAVAILABLE", "order journal not configured")
		return
	}
	limit, err := parseLimit(c, 50, 200)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	legs, err := s.Journal.ClosedLegs(c.Request.Context(), s.Meta.Symbol, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	if legs == nil {
		legs = []db.Leg{}
	}
	c.Header("X-Result-Limit", strconv.Itoa(limit))
	c.JSON(http.StatusOK, legs)
}

func parseLimit(c *gin.Context, def, ceiling int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if n <= 0 {
		return def, nil
	}
	if n > ceiling {
		n = ceiling
	}
	return n, nil
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("http server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

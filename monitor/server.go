// monitor/server.go
package monitor

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"riskgate/journal"
	"riskgate/logs"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the runtime summary exposed on /api/status.
type Status struct {
	Mode              string    `json:"mode"`
	Running           bool      `json:"running"`
	MarketOpen        bool      `json:"market_open"`
	LastCycleID       string    `json:"last_cycle_id"`
	LastCycleAt       time.Time `json:"last_cycle_at"`
	CyclesCompleted   int       `json:"cycles_completed"`
	LastExecuted      int       `json:"last_executed"`
	MaxTradesPerCycle int       `json:"max_trades_per_cycle"`
	RealizedPNL       float64   `json:"realized_pnl"`
}

// StatusProvider is implemented by the orchestrator.
type StatusProvider interface {
	Status() Status
}

// DecisionSource serves the journal tail and reason counts.
type DecisionSource interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	CountByReason(ctx context.Context, since time.Time) (map[string]int, error)
}

// CooldownSource is the read side of the cooldown tracker.
type CooldownSource interface {
	Entries() map[string]time.Time
	IsActive(ticker string, now time.Time, window time.Duration) bool
}

type cooldownView struct {
	Ticker           string    `json:"ticker"`
	LastSell         time.Time `json:"last_sell"`
	Active           bool      `json:"active"`
	RemainingSeconds float64   `json:"remaining_seconds"`
}

// Server wires read-only HTTP endpoints around the running engine.
type Server struct {
	Router    *gin.Engine
	status    StatusProvider
	decisions DecisionSource
	cooldowns CooldownSource
	window    time.Duration
	now       func() time.Time
	http      *http.Server
}

func NewServer(status StatusProvider, decisions DecisionSource, cooldowns CooldownSource, window time.Duration) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		Router:    r,
		status:    status,
		decisions: decisions,
		cooldowns: cooldowns,
		window:    window,
		now:       time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/cooldowns", s.getCooldowns)
		api.GET("/decisions", s.getDecisions)
		api.GET("/decisions/summary", s.getDecisionSummary)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": s.now().UTC()})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Status())
}

func (s *Server) getCooldowns(c *gin.Context) {
	now := s.now()
	entries := s.cooldowns.Entries()
	out := make([]cooldownView, 0, len(entries))
	for ticker, ts := range entries {
		v := cooldownView{Ticker: ticker, LastSell: ts, Active: s.cooldowns.IsActive(ticker, now, s.window)}
		if v.Active {
			v.RemainingSeconds = (s.window - now.Sub(ts)).Seconds()
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	c.JSON(http.StatusOK, gin.H{"window_seconds": s.window.Seconds(), "cooldowns": out})
}

func (s *Server) getDecisions(c *gin.Context) {
	if s.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision journal not configured"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}
	entries, err := s.decisions.Recent(c.Request.Context(), limit)
	if err != nil {
		logs.Errorf("[Monitor] failed to read decisions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": entries})
}

// getDecisionSummary counts journaled decisions per reason code over the last ?hours (default 24).
func (s *Server) getDecisionSummary(c *gin.Context) {
	if s.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision journal not configured"})
		return
	}
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 720 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be between 1 and 720"})
			return
		}
		hours = n
	}
	since := s.now().UTC().Add(-time.Duration(hours) * time.Hour)
	counts, err := s.decisions.CountByReason(c.Request.Context(), since)
	if err != nil {
		logs.Errorf("[Monitor] failed to count decisions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "total": total, "counts": counts})
}

// Start serves on addr in the background.
func (s *Server) Start(addr string) {
	s.http = &http.Server{Addr: addr, Handler: s.Router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logs.Infof("[Monitor] status server listening on %s", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("[Monitor] status server stopped: %v", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

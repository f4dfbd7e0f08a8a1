// Package server exposes the price resolver and backfill runner over HTTP.
package server

import (
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"price-history/internal/backfill"
	"price-history/internal/domain"
	"price-history/internal/observability"
	"price-history/internal/resolver"
	"price-history/internal/storage"
	"price-history/internal/upstream"
)

// Options configures a Server.
type Options struct {
	Resolver *resolver.Resolver
	Runner   *backfill.Runner

	// History serves bulk range reads. Typically the archive-preferring
	// mirrored store.
	History storage.PriceStore

	JobStore storage.BackfillJobStore

	Logger *log.Logger
}

// Server is the HTTP boundary of the service.
type Server struct {
	resolver *resolver.Resolver
	runner   *backfill.Runner
	history  storage.PriceStore
	jobs     storage.BackfillJobStore
	log      *log.Logger
	engine   *gin.Engine
}

// New creates a Server and registers its routes.
func New(opts Options) (*Server, error) {
	if opts.Resolver == nil {
		return nil, errors.New("server: Resolver is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("server: Runner is required")
	}
	if opts.History == nil {
		return nil, errors.New("server: History store is required")
	}
	if opts.JobStore == nil {
		return nil, errors.New("server: JobStore is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[server] ", log.LstdFlags)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		resolver: opts.Resolver,
		runner:   opts.Runner,
		history:  opts.History,
		jobs:     opts.JobStore,
		log:      logger,
		engine:   engine,
	}
	s.routes()
	return s, nil
}

// Handler returns the root HTTP handler, for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(observability.Handler()))

	v1 := s.engine.Group("/v1")
	v1.GET("/price", s.handlePrice)
	v1.GET("/history", s.handleHistory)
	v1.POST("/backfill", s.handleScheduleBackfill)
	v1.GET("/backfill", s.handleListBackfills)
	v1.GET("/backfill/:id", s.handleBackfillStatus)
	v1.DELETE("/backfill/:id", s.handleCancelBackfill)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type priceQuery struct {
	Token     string `form:"token" binding:"required"`
	Network   string `form:"network" binding:"required"`
	Timestamp int64  `form:"timestamp" binding:"required,gt=0"`
}

func (s *Server) handlePrice(c *gin.Context) {
	var q priceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.resolver.Resolve(c.Request.Context(), q.Token, q.Network, q.Timestamp)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token or network"})
		case errors.Is(err, upstream.ErrUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "price source unavailable"})
		default:
			s.log.Printf("ERROR: resolve %s/%s@%d: %v", q.Network, q.Token, q.Timestamp, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     q.Token,
		"network":   q.Network,
		"timestamp": q.Timestamp,
		"price":     res.Price.String(),
		"source":    res.Source,
		"persisted": res.Persisted,
	})
}

type historyQuery struct {
	Token   string `form:"token" binding:"required"`
	Network string `form:"network" binding:"required"`
	From    int64  `form:"from" binding:"gte=0"`
	To      int64  `form:"to" binding:"required,gt=0"`
}

func (s *Server) handleHistory(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.From > q.To {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must not exceed to"})
		return
	}

	points, err := s.history.QueryRange(c.Request.Context(), q.Token, q.Network, q.From, q.To)
	if err != nil {
		s.log.Printf("ERROR: history %s/%s [%d,%d]: %v", q.Network, q.Token, q.From, q.To, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]gin.H, 0, len(points))
	for _, p := range points {
		out = append(out, gin.H{
			"timestamp": p.Timestamp,
			"date":      p.Date,
			"price":     p.Price.String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"token":   q.Token,
		"network": q.Network,
		"points":  out,
	})
}

type backfillRequest struct {
	Token   string `json:"token" binding:"required"`
	Network string `json:"network" binding:"required"`
}

func (s *Server) handleScheduleBackfill(c *gin.Context) {
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, days, err := s.runner.Schedule(c.Request.Context(), req.Token, req.Network)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token or network"})
		case errors.Is(err, upstream.ErrUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "token origin lookup unavailable"})
		default:
			s.log.Printf("ERROR: schedule backfill %s/%s: %v", req.Network, req.Token, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":         jobID,
		"estimated_days": days,
	})
}

func (s *Server) handleBackfillStatus(c *gin.Context) {
	job, err := s.runner.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		s.log.Printf("ERROR: job status %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, jobJSON(job))
}

func (s *Server) handleListBackfills(c *gin.Context) {
	jobs, err := s.jobs.ListJobs(c.Request.Context())
	if err != nil {
		s.log.Printf("ERROR: list jobs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]gin.H, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobJSON(j))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

func (s *Server) handleCancelBackfill(c *gin.Context) {
	if err := s.runner.Cancel(c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job is not running"})
			return
		}
		s.log.Printf("ERROR: cancel job %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": c.Param("id"), "cancelling": true})
}

func jobJSON(j *domain.BackfillJob) gin.H {
	return gin.H{
		"job_id":         j.JobID,
		"token":          j.Token,
		"network":        j.Network,
		"total_days":     j.TotalDays,
		"completed_days": j.CompletedDays,
		"status":         j.Status,
		"error_message":  j.ErrorMessage,
		"started_at":     j.StartedAt,
		"updated_at":     j.UpdatedAt,
	}
}

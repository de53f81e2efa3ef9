package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenki/internal/area"
	"tenki/internal/cache"
	"tenki/internal/models"
)

var regionCodePattern = regexp.MustCompile(`^[0-9]{6}$`)

// Forecaster serves the ordered records of one region
type Forecaster interface {
	Forecast(ctx context.Context, code string) ([]models.ForecastRecord, error)
}

// Server represents the HTTP server
type Server struct {
	addr      string
	index     area.Index
	nodes     []models.RegionNode
	groups    []area.Group
	forecasts Forecaster
	engine    *gin.Engine
}

// NewServer builds the router over a loaded area document
func NewServer(addr string, doc models.AreaDocument, forecasts Forecaster) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	idx := area.BuildIndex(doc)
	s := &Server{
		addr:      addr,
		index:     idx,
		nodes:     area.Nodes(doc, idx),
		groups:    area.Groups(doc, idx),
		forecasts: forecasts,
		engine:    engine,
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is canceled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/areas", s.handleAreas)
	s.engine.GET("/forecast/:code", s.handleForecast)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// handleHealth returns the server health status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleAreas returns the region picker tree
func (s *Server) handleAreas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"count":  len(s.nodes),
		"groups": s.groups,
	})
}

func (s *Server) handleForecast(c *gin.Context) {
	code := c.Param("code")
	if !regionCodePattern.MatchString(code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "area code must be 6 digits"})
		return
	}
	if _, ok := s.index[code]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no area data"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	records, err := s.forecasts.Forecast(ctx, code)
	switch {
	case errors.Is(err, cache.ErrFetchFailed):
		log.Printf("Forecast fetch for %s failed: %v", code, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "fetch failed"})
		return
	case errors.Is(err, cache.ErrNoForecastData):
		c.JSON(http.StatusNotFound, gin.H{"error": "no forecast data"})
		return
	case err != nil:
		log.Printf("Forecast for %s failed: %v", code, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failure"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"area_code": code,
		"area_name": s.index.Name(code),
		"count":     len(records),
		"forecasts": records,
	})
}

// Package server exposes the sensor over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mklimuk/sen44/air"
	"github.com/mklimuk/sen44/config"
)

// Sensor is the part of the driver the HTTP API needs.
type Sensor interface {
	StartFanCleaning(ctx context.Context) error
	Status() air.Status
	LastMeasurement() (air.Measurement, bool)
}

type Server struct {
	sensor Sensor
	ws     http.Handler
	log    *slog.Logger
	engine *gin.Engine
}

// New builds the router. ws serves /ws when not nil.
func New(sensor Sensor, ws http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		sensor: sensor,
		ws:     ws,
		log:    logger,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.logRequests)
	s.engine.GET("/status", s.status)
	s.engine.GET("/measurement", s.measurement)
	s.engine.POST("/fan-cleaning", s.fanCleaning)
	s.engine.GET("/version", s.version)
	if ws != nil {
		s.engine.GET("/ws", gin.WrapH(ws))
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		<-errCh
		return nil
	}
}

func (s *Server) logRequests(c *gin.Context) {
	c.Next()
	s.log.Debug("http request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status())
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.sensor.Status())
}

func (s *Server) measurement(c *gin.Context) {
	m, ok := s.sensor.LastMeasurement()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no measurement yet"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) fanCleaning(c *gin.Context) {
	err := s.sensor.StartFanCleaning(c.Request.Context())
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, air.ErrFailed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.log.Warn("fan cleaning request failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

func (s *Server) version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": config.Version,
		"commit":  config.Commit,
		"date":    config.Date,
	})
}

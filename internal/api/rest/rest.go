// Package rest is a thin gin-gonic JSON HTTP layer over pkg/vectordb. It
// carries none of the core's correctness invariants — it exists only to
// expose collections, vectors, and search as REST endpoints for external
// clients, translating between JSON and the in-process API.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	vdbconfig "github.com/vectordb-io/vectordb/internal/config"
	"github.com/vectordb-io/vectordb/pkg/vectordb"
)

// Server wraps a *vectordb.DB with an HTTP router.
type Server struct {
	db     *vectordb.DB
	cfg    *vdbconfig.Config
	log    *zap.Logger
	engine *gin.Engine
	gate   *semaphore.Weighted
}

// NewServer builds the gin engine and registers every route. log may be nil,
// in which case a no-op logger is used.
func NewServer(db *vectordb.DB, cfg *vdbconfig.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	workers := cfg.Server.WorkerThreads
	if workers <= 0 {
		workers = 1
	}

	s := &Server{
		db:   db,
		cfg:  cfg,
		log:  log.Named("rest"),
		gate: semaphore.NewWeighted(int64(workers)),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(zapLogger(s.log))

	r.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	r.POST("/collections", s.createCollection)
	r.GET("/collections", s.listCollections)
	r.DELETE("/collections/:name", s.dropCollection)

	r.POST("/collections/:name/vectors", s.insertVector)
	r.GET("/collections/:name/vectors/:id", s.getVector)
	r.PUT("/collections/:name/vectors/:id", s.updateVector)
	r.DELETE("/collections/:name/vectors/:id", s.deleteVector)

	r.POST("/collections/:name/search", s.search)
	r.GET("/collections/:name/stats", s.stats)

	s.engine = r
	return s
}

// Handler returns the underlying http.Handler, for use with http.Server or
// httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// zapLogger mirrors edirooss-zmux-server's ZapLogger middleware: logs method,
// route, status, latency, and any errors gin accumulated on the request.
func zapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			log.Error("request", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// acquire bounds the number of concurrently in-flight search calls to
// cfg.Server.WorkerThreads, blocking until a slot is free or ctx is done.
func (s *Server) acquire(ctx context.Context) (release func(), err error) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.gate.Release(1) }, nil
}

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krau/birefnet-go/config"
	"github.com/krau/birefnet-go/pipeline"
)

// Server serves one shared pipeline over HTTP.
type Server struct {
	pipeline *pipeline.Pipeline
	cfg      config.Config
	// slots bounds in-flight inferences
	slots chan struct{}
}

func New(p *pipeline.Pipeline, cfg config.Config) *Server {
	workers := max(cfg.Workers, 1)
	return &Server{
		pipeline: p,
		cfg:      cfg,
		slots:    make(chan struct{}, workers),
	}
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(requestID(), gin.Recovery())
	r.GET("/health", s.HealthHandler)

	api := r.Group("/", s.authenticate)
	api.GET("/info", s.InfoHandler)
	api.POST("/remove", s.RemoveHandler)
	return r
}

// Run loads the model, then serves until ctx is done.
func Run(ctx context.Context, p *pipeline.Pipeline, cfg config.Config) error {
	gin.SetMode(gin.ReleaseMode)
	if _, err := p.Model(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           New(p, cfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening on", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/facetally/facetally/internal/catalog"
	"github.com/facetally/facetally/internal/playback"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// FilePaths maps a stored filename to its location on disk.
type FilePaths interface {
	Path(name string) string
}

type ServerConfig struct {
	Addr            string
	Videos          catalog.VideoService
	Files           FilePaths
	PlaybackServer  playback.PlaybackService
	Logger          *slog.Logger
	StartTime       time.Time
	Version         string
	Decoder         string
	Classifier      string
	SampleInterval  int
	MaxUploadBytes  int64
	AnalysisTimeout time.Duration
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Addr,
			Handler: router,
			// Uploads are large and analysis runs inside the request.
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      0,
			IdleTimeout:       60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

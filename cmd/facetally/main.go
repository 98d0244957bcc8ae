package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facetally/facetally/internal/api"
	"github.com/facetally/facetally/internal/catalog"
	"github.com/facetally/facetally/internal/config"
	"github.com/facetally/facetally/internal/db"
	"github.com/facetally/facetally/internal/deepface"
	"github.com/facetally/facetally/internal/emotion"
	"github.com/facetally/facetally/internal/ffmpeg"
	"github.com/facetally/facetally/internal/logging"
	"github.com/facetally/facetally/internal/metrics"
	"github.com/facetally/facetally/internal/opencv"
	"github.com/facetally/facetally/internal/playback"
	"github.com/facetally/facetally/internal/pyworker"
	"github.com/facetally/facetally/internal/storage"
	"github.com/facetally/facetally/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.UploadDir(), 0755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel(), cfg.LogFormat())
	logger.Info("starting facetally",
		"version", config.Version,
		"commit", config.GitCommit,
		"upload_dir", logging.SanitizePath(cfg.UploadDir()),
		"decoder", cfg.Decoder(),
		"classifier", cfg.Classifier(),
		"sample_interval", cfg.SampleInterval(),
	)

	// Records live only as long as the process.
	database, err := db.New(db.MemoryDSN, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	decoder, err := newDecoder(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize decoder: %w", err)
	}

	classifier, err := newClassifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize classifier: %w", err)
	}
	if c, ok := classifier.(io.Closer); ok {
		defer c.Close()
	}

	analyzer := emotion.NewAnalyzer(emotion.NewSampler(decoder, cfg.SampleInterval()), classifier, logging.WithComponent(logger, "analyzer"))

	repo := catalog.NewRepository(database.Conn())
	store := storage.New(cfg.UploadDir())
	videoSvc := catalog.NewService(repo, store, analyzer, logging.WithComponent(logger, "catalog"))
	metrics.VideosStored.Set(0)

	apiServer := api.NewServer(api.ServerConfig{
		Addr:            cfg.Addr(),
		Videos:          videoSvc,
		Files:           store,
		PlaybackServer:  playback.NewServer(logger),
		Logger:          logger,
		StartTime:       startTime,
		Version:         config.Version,
		Decoder:         cfg.Decoder(),
		Classifier:      cfg.Classifier(),
		SampleInterval:  cfg.SampleInterval(),
		MaxUploadBytes:  cfg.MaxUploadBytes(),
		AnalysisTimeout: cfg.AnalysisTimeout(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	quitCh := make(chan struct{})
	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Videos:    videoSvc,
			UploadURL: "http://" + cfg.Addr() + "/",
			Logger:    logging.WithComponent(logger, "tray"),
			OnQuit:    func() { close(quitCh) },
		})
		go tray.Run()
	}

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case <-quitCh:
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newDecoder(cfg config.Config, logger *slog.Logger) (emotion.Decoder, error) {
	switch cfg.Decoder() {
	case config.DecoderFFmpeg:
		return ffmpeg.NewDecoder(cfg.FFmpeg(), cfg.FFprobe(), logging.WithComponent(logger, "ffmpeg"))
	case config.DecoderOpenCV:
		return opencv.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unknown decoder %q", cfg.Decoder())
	}
}

func newClassifier(cfg config.Config, logger *slog.Logger) (emotion.Classifier, error) {
	switch cfg.Classifier() {
	case config.ClassifierOpenCV:
		return opencv.NewClassifier(opencv.ClassifierOptions{
			CascadePath:      cfg.FaceCascade(),
			ModelPath:        cfg.EmotionModel(),
			EnforceDetection: cfg.EnforceDetection(),
		}, logging.WithComponent(logger, "opencv"))
	case config.ClassifierDeepFace:
		return deepface.NewClient(deepface.Options{
			BaseURL:          cfg.DeepFaceURL(),
			Detector:         cfg.DeepFaceDetector(),
			EnforceDetection: cfg.EnforceDetection(),
			Timeout:          cfg.DeepFaceTimeout(),
		}, logging.WithComponent(logger, "deepface")), nil
	case config.ClassifierPython:
		return pyworker.New(pyworker.Config{
			PythonPath:       cfg.Python(),
			Script:           cfg.PythonWorker(),
			Detector:         cfg.DeepFaceDetector(),
			EnforceDetection: cfg.EnforceDetection(),
			Logger:           logging.WithComponent(logger, "pyworker"),
		})
	default:
		return nil, fmt.Errorf("unknown classifier %q", cfg.Classifier())
	}
}

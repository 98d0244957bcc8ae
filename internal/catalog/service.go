package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/facetally/facetally/internal/emotion"
	"github.com/facetally/facetally/internal/logging"
	"github.com/facetally/facetally/internal/metrics"
	"github.com/facetally/facetally/internal/storage"
)

// ErrInvalidFilename is returned by Upload when the client filename
// sanitises to nothing.
var ErrInvalidFilename = storage.ErrInvalidFilename

type VideoService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*Video, error)
	Delete(ctx context.Context, filename string) (bool, error)
	List(ctx context.Context) ([]*Video, error)
	Get(ctx context.Context, filename string) (*Video, error)
	Count(ctx context.Context) (int, error)
}

type FileStore interface {
	Save(name string, r io.Reader) (string, int64, error)
	Remove(name string) error
}

type VideoAnalyzer interface {
	Analyze(ctx context.Context, path string) (*emotion.Analysis, error)
}

type Service struct {
	repo     Repository
	store    FileStore
	analyzer VideoAnalyzer
	logger   *slog.Logger
	now      func() time.Time

	// mu serialises uploads and deletes so a record and its file change together.
	mu sync.Mutex
}

func NewService(repo Repository, store FileStore, analyzer VideoAnalyzer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:     repo,
		store:    store,
		analyzer: analyzer,
		logger:   logger,
		now:      time.Now,
	}
}

// Upload stores the file under its sanitised name, analyses it and records
// the result. A re-upload of the same name replaces the earlier record. When
// the analysis fails nothing is left behind: no file and no record.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*Video, error) {
	name, err := storage.SecureFilename(filename)
	if err != nil {
		return nil, fmt.Errorf("upload %q: %w", filename, err)
	}
	logger := logging.WithVideo(s.logger, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	path, size, err := s.store.Save(name, r)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	logger.Info("upload saved", "path", logging.SanitizePath(path), "size", size)

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		contentType = mt.String()
	}

	analysis, err := s.analyzer.Analyze(ctx, path)
	if err != nil {
		s.discard(ctx, logger, name)
		return nil, err
	}

	video := newVideo(name, size, contentType, analysis, s.now())
	if err := s.repo.UpsertVideo(ctx, video); err != nil {
		s.discard(ctx, logger, name)
		return nil, fmt.Errorf("record video: %w", err)
	}
	s.updateGauge(ctx)

	logger.Info("video recorded",
		"emotion", video.Emotion,
		"outcome", video.Outcome,
		"content_type", contentType,
	)
	return video, nil
}

// discard removes a failed upload. The file may have overwritten an earlier
// upload of the same name, so that record goes too.
func (s *Service) discard(ctx context.Context, logger *slog.Logger, name string) {
	if err := s.store.Remove(name); err != nil {
		logger.Warn("failed to remove discarded upload", "error", err)
	}
	removed, err := s.repo.DeleteVideo(context.WithoutCancel(ctx), name)
	if err != nil {
		logger.Warn("failed to drop stale record", "error", err)
	}
	if removed {
		logger.Info("dropped record whose file was replaced by a failed upload")
		s.updateGauge(ctx)
	}
}

// Delete removes the record and its backing file. It reports false, with no
// error, when no record has that filename.
func (s *Service) Delete(ctx context.Context, filename string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, err := s.repo.GetVideo(ctx, filename)
	if err != nil {
		return false, err
	}
	if video == nil {
		return false, nil
	}

	if err := s.store.Remove(video.Filename); err != nil {
		return false, err
	}
	if _, err := s.repo.DeleteVideo(ctx, video.Filename); err != nil {
		return false, err
	}
	s.updateGauge(ctx)

	logging.WithVideo(s.logger, video.Filename).Info("video deleted")
	return true, nil
}

func (s *Service) List(ctx context.Context) ([]*Video, error) {
	return s.repo.ListVideos(ctx)
}

func (s *Service) Get(ctx context.Context, filename string) (*Video, error) {
	return s.repo.GetVideo(ctx, filename)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.CountVideos(ctx)
}

func (s *Service) updateGauge(ctx context.Context) {
	n, err := s.repo.CountVideos(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Warn("count videos failed", "error", err)
		return
	}
	metrics.VideosStored.Set(float64(n))
}

// IsInvalidFilename reports whether err came from an unusable client filename.
func IsInvalidFilename(err error) bool {
	return errors.Is(err, ErrInvalidFilename)
}

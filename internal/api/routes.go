package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facetally/facetally/internal/catalog"
	"github.com/facetally/facetally/internal/emotion"
	"github.com/facetally/facetally/internal/logging"
	"github.com/facetally/facetally/internal/metrics"
	"github.com/facetally/facetally/internal/storage"
)

const uploadField = "file"

// Messages shown to users. A file that cannot be opened as a video and a
// video with no detectable faces must never share a message.
const (
	MsgNoFile        = "Please upload a video file."
	MsgNotVideo      = "The uploaded file could not be opened as a video."
	MsgProcessing    = "Error processing video. Please try again."
	MsgTooLarge      = "The uploaded file is too large."
	MsgVideoNotFound = "video not found"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware())

	pages := newPages(cfg)
	r.Get("/", pages.home)
	r.Post("/upload", pages.upload)
	r.Post("/delete/{filename}", pages.delete)
	r.Get("/uploads/{filename}", uploadedFileHandler(cfg))
	r.Head("/uploads/{filename}", uploadedFileHandler(cfg))

	r.Get("/health", healthHandler(cfg))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/videos", func(r chi.Router) {
		r.Get("/", listVideosHandler(cfg))
		r.Post("/", uploadVideoHandler(cfg))
		r.Get("/{filename}", getVideoHandler(cfg))
		r.Delete("/{filename}", deleteVideoHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := cfg.Videos.Count(r.Context())
		status := "ok"
		if err != nil {
			status = "degraded"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:         status,
			Version:        cfg.Version,
			UptimeS:        int64(time.Since(cfg.StartTime).Seconds()),
			Decoder:        cfg.Decoder,
			Classifier:     cfg.Classifier,
			SampleInterval: cfg.SampleInterval,
			Videos:         count,
		})
	}
}

// uploadFailure is how a failed upload is reported to the client.
type uploadFailure struct {
	status  int
	message string
	code    string
}

// receiveUpload reads the multipart "file" field and hands it to the video
// service. On failure it returns the user-facing status and message.
func receiveUpload(cfg ServerConfig, w http.ResponseWriter, r *http.Request) (*catalog.Video, *uploadFailure) {
	logger := logging.WithRequestID(cfg.Logger, RequestIDFrom(r.Context()))

	if cfg.MaxUploadBytes > 0 {
		if r.ContentLength > cfg.MaxUploadBytes {
			return nil, &uploadFailure{http.StatusRequestEntityTooLarge, MsgTooLarge, "TOO_LARGE"}
		}
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &uploadFailure{http.StatusRequestEntityTooLarge, MsgTooLarge, "TOO_LARGE"}
		}
		if !errors.Is(err, http.ErrMissingFile) {
			logger.Warn("malformed upload", "error", err)
		}
		return nil, &uploadFailure{http.StatusBadRequest, MsgNoFile, "NO_FILE"}
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	if header.Filename == "" {
		return nil, &uploadFailure{http.StatusBadRequest, MsgNoFile, "NO_FILE"}
	}
	logger.Info("received file", "filename", header.Filename, "size", header.Size)

	ctx := r.Context()
	if cfg.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.AnalysisTimeout)
		defer cancel()
	}

	video, err := cfg.Videos.Upload(ctx, header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidFilename):
			return nil, &uploadFailure{http.StatusBadRequest, MsgNoFile, "NO_FILE"}
		case emotion.IsVideoOpenError(err):
			logger.Warn("upload is not a readable video", "filename", header.Filename, "error", err)
			return nil, &uploadFailure{http.StatusUnprocessableEntity, MsgNotVideo, "NOT_A_VIDEO"}
		default:
			logger.Error("error processing video", "filename", header.Filename, "error", err)
			return nil, &uploadFailure{http.StatusInternalServerError, MsgProcessing, "PROCESSING_FAILED"}
		}
	}
	return video, nil
}

func uploadedFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		if safe, err := storage.SecureFilename(name); err != nil || safe != name {
			http.NotFound(w, r)
			return
		}

		if err := cfg.PlaybackServer.ServeFile(w, r, cfg.Files.Path(name)); err != nil {
			cfg.Logger.Error("playback failed", "filename", name, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videos, err := cfg.Videos.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list videos", "INTERNAL_ERROR")
			return
		}

		resp := VideosResponse{Videos: make([]VideoResponse, len(videos)), Count: len(videos)}
		for i, v := range videos {
			resp.Videos[i] = VideoToResponse(v)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func uploadVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, fail := receiveUpload(cfg, w, r)
		if fail != nil {
			WriteError(w, fail.status, fail.message, fail.code)
			return
		}
		WriteJSON(w, http.StatusCreated, VideoToResponse(video))
	}
}

func getVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, err := cfg.Videos.Get(r.Context(), chi.URLParam(r, "filename"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to get video", "INTERNAL_ERROR")
			return
		}
		if video == nil {
			WriteError(w, http.StatusNotFound, MsgVideoNotFound, "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, VideoToResponse(video))
	}
}

// deleteVideoHandler answers 204 whether or not the video existed.
func deleteVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := cfg.Videos.Delete(r.Context(), chi.URLParam(r, "filename")); err != nil {
			cfg.Logger.Error("delete failed", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to delete video", "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

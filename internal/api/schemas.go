package api

import (
	"time"

	"github.com/facetally/facetally/internal/catalog"
)

type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeS        int64  `json:"uptime_s"`
	Decoder        string `json:"decoder"`
	Classifier     string `json:"classifier"`
	SampleInterval int    `json:"sample_interval"`
	Videos         int    `json:"videos"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type VideoResponse struct {
	Filename         string         `json:"filename"`
	Emotion          string         `json:"emotion"`
	Outcome          string         `json:"outcome"`
	Size             int64          `json:"size"`
	ContentType      string         `json:"content_type"`
	FramesRead       int            `json:"frames_read"`
	FramesSampled    int            `json:"frames_sampled"`
	FramesClassified int            `json:"frames_classified"`
	Emotions         map[string]int `json:"emotions,omitempty"`
	URL              string         `json:"url"`
	CreatedAt        string         `json:"created_at"`
}

type VideosResponse struct {
	Videos []VideoResponse `json:"videos"`
	Count  int             `json:"count"`
}

func VideoToResponse(v *catalog.Video) VideoResponse {
	return VideoResponse{
		Filename:         v.Filename,
		Emotion:          v.Emotion,
		Outcome:          v.Outcome,
		Size:             v.Size,
		ContentType:      v.ContentType,
		FramesRead:       v.FramesRead,
		FramesSampled:    v.FramesSampled,
		FramesClassified: v.FramesClassified,
		Emotions:         v.Emotions,
		URL:              "/uploads/" + v.Filename,
		CreatedAt:        v.CreatedAt.Format(time.RFC3339),
	}
}

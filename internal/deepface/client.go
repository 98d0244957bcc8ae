// Package deepface classifies frames through a DeepFace REST API
// (deepface/api, POST /analyze).
package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/facetally/facetally/internal/emotion"
)

const (
	DefaultDetector = "opencv"
	DefaultTimeout  = 30 * time.Second

	jpegQuality = 90
)

// APIError is a non-2xx answer from the DeepFace service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deepface analyze failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// NoFace reports whether the service rejected the frame because
// enforce_detection found no face.
func (e *APIError) NoFace() bool {
	return e.StatusCode == http.StatusBadRequest && strings.Contains(e.Body, "Face could not be detected")
}

type Options struct {
	BaseURL          string
	Detector         string
	EnforceDetection bool
	Timeout          time.Duration
}

type Client struct {
	baseURL    string
	detector   string
	enforce    bool
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Detector == "" {
		opts.Detector = DefaultDetector
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		detector: opts.Detector,
		enforce:  opts.EnforceDetection,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: logger,
	}
}

func (c *Client) Name() string { return "deepface" }

type analyzeRequest struct {
	Img              string   `json:"img"`
	Actions          []string `json:"actions"`
	EnforceDetection bool     `json:"enforce_detection"`
	DetectorBackend  string   `json:"detector_backend"`
}

type analyzeResult struct {
	DominantEmotion string             `json:"dominant_emotion"`
	Emotion         map[string]float64 `json:"emotion"`
}

type analyzeResponse struct {
	Results []analyzeResult `json:"results"`
}

func (c *Client) Classify(ctx context.Context, img image.Image) emotion.Outcome {
	label, err := c.Analyze(ctx, img)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.NoFace() {
			return emotion.Failed(fmt.Errorf("%w: %v", emotion.ErrNoFace, apiErr))
		}
		return emotion.Failed(err)
	}
	return emotion.Classified(label)
}

// Analyze sends one frame and returns the dominant emotion of the first face.
func (c *Client) Analyze(ctx context.Context, img image.Image) (emotion.Label, error) {
	encoded, err := EncodeFrame(img)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(analyzeRequest{
		Img:              "data:image/jpeg;base64," + encoded,
		Actions:          []string{"emotion"},
		EnforceDetection: c.enforce,
		DetectorBackend:  c.detector,
	})
	if err != nil {
		return "", fmt.Errorf("marshal analyze request: %w", err)
	}

	url := c.baseURL + "/analyze"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}

	var result analyzeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode analyze response: %w", err)
	}
	if len(result.Results) == 0 {
		return "", emotion.ErrNoFace
	}

	label, err := emotion.ParseLabel(result.Results[0].DominantEmotion)
	if err != nil {
		return "", err
	}

	c.logger.Debug("deepface frame classified",
		"emotion", label,
		"faces", len(result.Results),
	)
	return label, nil
}

// EncodeFrame returns img as base64 JPEG, the form DeepFace accepts for images.
func EncodeFrame(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Package config provides configuration management for facetally.
// Configuration is loaded from FACETALLY_* environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	EnvPrefix = "FACETALLY_"

	DefaultDataDir = ".facetally"
	UploadsDirName = "uploads"

	DecoderOpenCV = "opencv"
	DecoderFFmpeg = "ffmpeg"

	ClassifierOpenCV   = "opencv"
	ClassifierDeepFace = "deepface"
	ClassifierPython   = "python"
)

var (
	Decoders    = []string{DecoderOpenCV, DecoderFFmpeg}
	Classifiers = []string{ClassifierOpenCV, ClassifierDeepFace, ClassifierPython}
)

// Config defines the application configuration interface
type Config interface {
	Host() string
	Port() int
	Addr() string
	LogLevel() string
	LogFormat() string
	DataDir() string
	UploadDir() string
	SampleInterval() int
	Decoder() string
	Classifier() string
	EnforceDetection() bool
	FaceCascade() string
	EmotionModel() string
	DeepFaceURL() string
	DeepFaceDetector() string
	DeepFaceTimeout() time.Duration
	Python() string
	PythonWorker() string
	FFmpeg() string
	FFprobe() string
	MaxUploadBytes() int64
	AnalysisTimeout() time.Duration
	Headless() bool
}

type rawConfig struct {
	Host      string `env:"HOST"       envDefault:"127.0.0.1"`
	Port      int    `env:"PORT"       envDefault:"5000"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	DataDir   string `env:"DATA_DIR"`
	UploadDir string `env:"UPLOAD_DIR"`

	SampleInterval   int    `env:"SAMPLE_INTERVAL"   envDefault:"10"`
	Decoder          string `env:"DECODER"           envDefault:"opencv"`
	Classifier       string `env:"CLASSIFIER"        envDefault:"opencv"`
	EnforceDetection bool   `env:"ENFORCE_DETECTION" envDefault:"false"`

	FaceCascade  string `env:"FACE_CASCADE"  envDefault:"models/haarcascade_frontalface_default.xml"`
	EmotionModel string `env:"EMOTION_MODEL" envDefault:"models/emotion-ferplus-8.onnx"`

	DeepFaceURL      string        `env:"DEEPFACE_URL"      envDefault:"http://127.0.0.1:5005"`
	DeepFaceDetector string        `env:"DEEPFACE_DETECTOR" envDefault:"opencv"`
	DeepFaceTimeout  time.Duration `env:"DEEPFACE_TIMEOUT"  envDefault:"30s"`

	Python       string `env:"PYTHON"`
	PythonWorker string `env:"PYTHON_WORKER" envDefault:"scripts/emotion_worker.py"`
	FFmpeg       string `env:"FFMPEG"`
	FFprobe      string `env:"FFPROBE"`

	MaxUploadMB     int64         `env:"MAX_UPLOAD_MB"    envDefault:"512"`
	AnalysisTimeout time.Duration `env:"ANALYSIS_TIMEOUT" envDefault:"10m"`
	Headless        bool          `env:"HEADLESS"         envDefault:"true"`
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	raw rawConfig
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	var raw rawConfig
	if err := env.ParseWithOptions(&raw, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if raw.DataDir == "" {
		raw.DataDir = defaultDataDir()
	}
	if raw.UploadDir == "" {
		raw.UploadDir = filepath.Join(raw.DataDir, UploadsDirName)
	}
	raw.Decoder = strings.ToLower(raw.Decoder)
	raw.Classifier = strings.ToLower(raw.Classifier)

	if err := raw.validate(); err != nil {
		return nil, err
	}
	return &EnvConfig{raw: raw}, nil
}

func (r *rawConfig) validate() error {
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("invalid %sPORT: port must be between 1 and 65535", EnvPrefix)
	}
	if r.SampleInterval < 1 {
		return fmt.Errorf("invalid %sSAMPLE_INTERVAL: must be at least 1", EnvPrefix)
	}
	if !slices.Contains(Decoders, r.Decoder) {
		return fmt.Errorf("invalid %sDECODER %q: want one of %s", EnvPrefix, r.Decoder, strings.Join(Decoders, ", "))
	}
	if !slices.Contains(Classifiers, r.Classifier) {
		return fmt.Errorf("invalid %sCLASSIFIER %q: want one of %s", EnvPrefix, r.Classifier, strings.Join(Classifiers, ", "))
	}
	if r.MaxUploadMB < 1 {
		return fmt.Errorf("invalid %sMAX_UPLOAD_MB: must be at least 1", EnvPrefix)
	}
	if r.AnalysisTimeout < 0 || r.DeepFaceTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

func (c *EnvConfig) Host() string { return c.raw.Host }

// Port returns the HTTP server port
func (c *EnvConfig) Port() int { return c.raw.Port }

// Addr returns host:port for the HTTP listener
func (c *EnvConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.raw.Host, c.raw.Port)
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string { return c.raw.LogLevel }

// LogFormat returns json or text
func (c *EnvConfig) LogFormat() string { return c.raw.LogFormat }

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string { return c.raw.DataDir }

// UploadDir returns where uploaded videos are stored
func (c *EnvConfig) UploadDir() string { return c.raw.UploadDir }

func (c *EnvConfig) SampleInterval() int    { return c.raw.SampleInterval }
func (c *EnvConfig) Decoder() string        { return c.raw.Decoder }
func (c *EnvConfig) Classifier() string     { return c.raw.Classifier }
func (c *EnvConfig) EnforceDetection() bool { return c.raw.EnforceDetection }

func (c *EnvConfig) FaceCascade() string  { return c.raw.FaceCascade }
func (c *EnvConfig) EmotionModel() string { return c.raw.EmotionModel }

func (c *EnvConfig) DeepFaceURL() string            { return c.raw.DeepFaceURL }
func (c *EnvConfig) DeepFaceDetector() string       { return c.raw.DeepFaceDetector }
func (c *EnvConfig) DeepFaceTimeout() time.Duration { return c.raw.DeepFaceTimeout }

func (c *EnvConfig) Python() string       { return c.raw.Python }
func (c *EnvConfig) PythonWorker() string { return c.raw.PythonWorker }
func (c *EnvConfig) FFmpeg() string       { return c.raw.FFmpeg }
func (c *EnvConfig) FFprobe() string      { return c.raw.FFprobe }

// MaxUploadBytes returns the request body limit for uploads
func (c *EnvConfig) MaxUploadBytes() int64 {
	return c.raw.MaxUploadMB << 20
}

// AnalysisTimeout bounds one upload's analysis. Zero means no limit.
func (c *EnvConfig) AnalysisTimeout() time.Duration { return c.raw.AnalysisTimeout }

// Headless disables the system tray
func (c *EnvConfig) Headless() bool { return c.raw.Headless }

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

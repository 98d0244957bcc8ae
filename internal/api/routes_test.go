package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facetally/facetally/internal/catalog"
	"github.com/facetally/facetally/internal/emotion"
	"github.com/facetally/facetally/internal/playback"
	"github.com/facetally/facetally/internal/storage"
)

type fakeVideoService struct {
	mu        sync.Mutex
	videos    []*catalog.Video
	uploadErr error
	deleteErr error
	listErr   error
	countErr  error
	label     string
	uploaded  map[string][]byte
	deleted   []string
}

func (f *fakeVideoService) Upload(_ context.Context, filename string, r io.Reader) (*catalog.Video, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	safe, err := storage.SecureFilename(filename)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploaded == nil {
		f.uploaded = make(map[string][]byte)
	}
	f.uploaded[safe] = data

	label := f.label
	if label == "" {
		label = string(emotion.Happy)
	}
	v := &catalog.Video{
		Filename:  safe,
		Emotion:   label,
		Outcome:   "analyzed",
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}
	f.videos = append(f.videos, v)
	return v, nil
}

func (f *fakeVideoService) Delete(_ context.Context, filename string) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, filename)
	for i, v := range f.videos {
		if v.Filename == filename {
			f.videos = append(f.videos[:i], f.videos[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeVideoService) List(context.Context) ([]*catalog.Video, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*catalog.Video(nil), f.videos...), nil
}

func (f *fakeVideoService) Get(_ context.Context, filename string) (*catalog.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.videos {
		if v.Filename == filename {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeVideoService) Count(context.Context) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.videos), nil
}

type dirPaths string

func (d dirPaths) Path(name string) string {
	return filepath.Join(string(d), name)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, svc *fakeVideoService) ServerConfig {
	t.Helper()
	return ServerConfig{
		Videos:          svc,
		Files:           dirPaths(t.TempDir()),
		PlaybackServer:  playback.NewServer(testLogger()),
		Logger:          testLogger(),
		StartTime:       time.Now(),
		Version:         "test",
		Decoder:         "ffmpeg",
		Classifier:      "deepface",
		SampleInterval:  10,
		MaxUploadBytes:  1 << 20,
		AnalysisTimeout: time.Minute,
	}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("part.Write() error = %v", err)
		}
	} else if err := mw.WriteField("note", "no file here"); err != nil {
		t.Fatalf("WriteField() error = %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart Close() error = %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, cfg ServerConfig, path, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, field, filename, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	NewRouter(cfg).ServeHTTP(rr, req)
	return rr
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json.Unmarshal() error = %v; body = %s", err, rr.Body.String())
	}
	return body
}

func TestHome_ListsVideos(t *testing.T) {
	svc := &fakeVideoService{videos: []*catalog.Video{
		{Filename: "clip.mp4", Emotion: "sad", Size: 2000, CreatedAt: time.Now()},
		{Filename: "empty.mp4", Emotion: string(emotion.LabelNoFrames), CreatedAt: time.Now()},
	}}
	cfg := testConfig(t, svc)

	rr := httptest.NewRecorder()
	NewRouter(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("Content-Type = %q, want text/html", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{"clip.mp4", "sad", "2.0 kB", "No frames", `action="/delete/clip.mp4"`, `name="file"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHome_Empty(t *testing.T) {
	cfg := testConfig(t, &fakeVideoService{})

	rr := httptest.NewRecorder()
	NewRouter(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "No videos uploaded yet.") {
		t.Fatal("empty list message missing")
	}
}

func TestUploadPage_Failures(t *testing.T) {
	openErr := &emotion.VideoOpenError{Path: "/tmp/x.mp4", Err: errors.New("no video stream")}

	tests := []struct {
		name       string
		field      string
		filename   string
		uploadErr  error
		wantStatus int
		wantMsg    string
	}{
		{"missing field", "", "", nil, http.StatusBadRequest, MsgNoFile},
		{"empty filename", "file", "", nil, http.StatusBadRequest, MsgNoFile},
		{"unusable filename", "file", "../..", nil, http.StatusBadRequest, MsgNoFile},
		{"not a video", "file", "notes.txt", openErr, http.StatusUnprocessableEntity, MsgNotVideo},
		{"wrapped open error", "file", "notes.txt", errors.Join(errors.New("analyze"), openErr), http.StatusUnprocessableEntity, MsgNotVideo},
		{"processing error", "file", "clip.mp4", errors.New("disk full"), http.StatusInternalServerError, MsgProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeVideoService{uploadErr: tt.uploadErr}
			cfg := testConfig(t, svc)

			rr := doUpload(t, cfg, "/upload", tt.field, tt.filename, []byte("data"))

			if rr.Code != tt.wantStatus {
				t.Fatalf("status code = %d, want %d", rr.Code, tt.wantStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.wantMsg) {
				t.Fatalf("body does not contain %q", tt.wantMsg)
			}
			if len(svc.videos) != 0 {
				t.Fatalf("videos = %d, want 0", len(svc.videos))
			}
		})
	}
}

func TestUploadPage_TooLarge(t *testing.T) {
	cfg := testConfig(t, &fakeVideoService{})
	cfg.MaxUploadBytes = 64

	rr := doUpload(t, cfg, "/upload", "file", "big.mp4", bytes.Repeat([]byte("x"), 4096))

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusRequestEntityTooLarge)
	}
	if !strings.Contains(rr.Body.String(), MsgTooLarge) {
		t.Fatalf("body does not contain %q", MsgTooLarge)
	}
}

func TestUploadPage_Success(t *testing.T) {
	svc := &fakeVideoService{label: "surprise"}
	cfg := testConfig(t, svc)

	rr := doUpload(t, cfg, "/upload", "file", "my clip.mp4", []byte("video bytes"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	body := rr.Body.String()
	for _, want := range []string{"my_clip.mp4", "surprise", `src="/uploads/my_clip.mp4"`} {
		if !strings.Contains(body, want) {
			t.Errorf("success page missing %q", want)
		}
	}
	if got := string(svc.uploaded["my_clip.mp4"]); got != "video bytes" {
		t.Fatalf("uploaded content = %q, want %q", got, "video bytes")
	}
}

func TestUploadPage_SentinelShownVerbatim(t *testing.T) {
	for _, label := range []emotion.Label{emotion.LabelNoFaces, emotion.LabelNoFrames} {
		t.Run(string(label), func(t *testing.T) {
			cfg := testConfig(t, &fakeVideoService{label: string(label)})

			rr := doUpload(t, cfg, "/upload", "file", "clip.mp4", []byte("data"))

			if rr.Code != http.StatusOK {
				t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
			}
			body := rr.Body.String()
			if !strings.Contains(body, string(label)) {
				t.Fatalf("body does not contain %q", label)
			}
			if strings.Contains(body, MsgNotVideo) {
				t.Fatal("faceless result reported as an unreadable video")
			}
		})
	}
}

func TestDeletePage_Redirects(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		videos   []*catalog.Video
		wantLeft int
	}{
		{"existing", "clip.mp4", []*catalog.Video{{Filename: "clip.mp4"}}, 0},
		{"unknown", "ghost.mp4", []*catalog.Video{{Filename: "clip.mp4"}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeVideoService{videos: tt.videos}
			cfg := testConfig(t, svc)

			rr := httptest.NewRecorder()
			NewRouter(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/delete/"+tt.filename, nil))

			if rr.Code != http.StatusSeeOther {
				t.Fatalf("status code = %d, want %d", rr.Code, http.StatusSeeOther)
			}
			if loc := rr.Header().Get("Location"); loc != "/" {
				t.Fatalf("Location = %q, want /", loc)
			}
			if len(svc.videos) != tt.wantLeft {
				t.Fatalf("videos left = %d, want %d", len(svc.videos), tt.wantLeft)
			}
		})
	}
}

func TestDeletePage_ServiceError(t *testing.T) {
	cfg := testConfig(t, &fakeVideoService{deleteErr: errors.New("db closed")})

	rr := httptest.NewRecorder()
	NewRouter(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/delete/clip.mp4", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestUploadedFile(t *testing.T) {
	cfg := testConfig(t, &fakeVideoService{})
	dir := string(cfg.Files.(dirPaths))
	if err := os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	router := NewRouter(cfg)

	t.Run("ranged", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/uploads/clip.mp4", nil)
		req.Header.Set("Range", "bytes=2-4")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusPartialContent {
			t.Fatalf("status code = %d, want %d", rr.Code, http.StatusPartialContent)
		}
		if got := rr.Body.String(); got != "234" {
			t.Fatalf("body = %q, want %q", got, "234")
		}
	})

	t.Run("missing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/uploads/ghost.mp4", nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("status code = %d, want %d", rr.Code, http.StatusNotFound)
		}
	})

	t.Run("unsanitised name", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/uploads/.hidden", nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("status code = %d, want %d", rr.Code, http.StatusNotFound)
		}
	})
}

func TestAPI_UploadAndFetch(t *testing.T) {
	svc := &fakeVideoService{label: "neutral"}
	cfg := testConfig(t, svc)
	router := NewRouter(cfg)

	body, contentType := multipartBody(t, "file", "clip.mp4", []byte("video"))
	req := httptest.NewRequest(http.MethodPost, "/api/videos", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("POST status code = %d, want %d; body = %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	var created VideoResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if created.Filename != "clip.mp4" || created.Emotion != "neutral" || created.URL != "/uploads/clip.mp4" {
		t.Fatalf("created = %+v", created)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/videos/clip.mp4", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET status code = %d, want %d", rr.Code, http.StatusOK)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	var list VideosResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if list.Count != 1 || len(list.Videos) != 1 {
		t.Fatalf("list = %+v, want one video", list)
	}
}

func TestAPI_UploadErrors(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		uploadErr  error
		wantStatus int
		wantCode   string
	}{
		{"no file", "", nil, http.StatusBadRequest, "NO_FILE"},
		{"not a video", "file", &emotion.VideoOpenError{Path: "x", Err: errors.New("bad")}, http.StatusUnprocessableEntity, "NOT_A_VIDEO"},
		{"processing", "file", errors.New("boom"), http.StatusInternalServerError, "PROCESSING_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, &fakeVideoService{uploadErr: tt.uploadErr})

			rr := doUpload(t, cfg, "/api/videos", tt.field, "clip.mp4", []byte("data"))

			if rr.Code != tt.wantStatus {
				t.Fatalf("status code = %d, want %d", rr.Code, tt.wantStatus)
			}
			body := decodeJSONBody(t, rr)
			if body["code"] != tt.wantCode {
				t.Fatalf("code = %v, want %s", body["code"], tt.wantCode)
			}
		})
	}
}

func TestAPI_GetMissing(t *testing.T) {
	cfg := testConfig(t, &fakeVideoService{})

	rr := httptest.NewRecorder()
	NewRouter(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/videos/ghost.mp4", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if body := decodeJSONBody(t, rr); body["code"] != "NOT_FOUND" {
		t.Fatalf("code = %v, want NOT_FOUND", body["code"])
	}
}

func TestAPI_DeleteIsIdempotent(t *testing.T) {
	svc := &fakeVideoService{videos: []*catalog.Video{{Filename: "clip.mp4"}}}
	router := NewRouter(testConfig(t, svc))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/videos/clip.mp4", nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("delete #%d status code = %d, want %d", i+1, rr.Code, http.StatusNoContent)
		}
	}
	if len(svc.deleted) != 2 {
		t.Fatalf("deletes = %d, want 2", len(svc.deleted))
	}
}

func TestHealthHandler(t *testing.T) {
	svc := &fakeVideoService{videos: []*catalog.Video{{Filename: "a.mp4"}, {Filename: "b.mp4"}}}
	cfg := testConfig(t, svc)

	rr := httptest.NewRecorder()
	healthHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	want := HealthResponse{Status: "ok", Version: "test", Decoder: "ffmpeg", Classifier: "deepface", SampleInterval: 10, Videos: 2}
	resp.UptimeS = 0
	if resp != want {
		t.Fatalf("health = %+v, want %+v", resp, want)
	}
}

func TestHealthHandler_Degraded(t *testing.T) {
	cfg := testConfig(t, &fakeVideoService{countErr: errors.New("db closed")})

	rr := httptest.NewRecorder()
	healthHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if body := decodeJSONBody(t, rr); body["status"] != "degraded" {
		t.Fatalf("status = %v, want degraded", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(testConfig(t, &fakeVideoService{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "facetally_http_requests_total") {
		t.Fatal("metrics output missing facetally_http_requests_total")
	}
}

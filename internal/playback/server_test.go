package playback

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// mp4Header is enough of an ftyp box for content sniffing.
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2',
}

func serve(t *testing.T, method, path, rangeHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/uploads/x", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rec := httptest.NewRecorder()
	if err := NewServer(nil).ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	return rec
}

func TestServeFile_Full(t *testing.T) {
	data := append(append([]byte{}, mp4Header...), []byte(strings.Repeat("v", 100))...)
	path := writeFile(t, "clip.mp4", data)

	rec := serve(t, http.MethodGet, path, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Content-Type = %q, want video/mp4", got)
	}
	if rec.Header().Get("Accept-Ranges") != "bytes" {
		t.Error("missing Accept-Ranges")
	}
	if rec.Body.Len() != len(data) {
		t.Errorf("body length = %d, want %d", rec.Body.Len(), len(data))
	}
}

func TestServeFile_Partial(t *testing.T) {
	path := writeFile(t, "clip.bin", []byte("0123456789"))

	rec := serve(t, http.MethodGet, path, "bytes=2-5")

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if rec.Body.String() != "2345" {
		t.Errorf("body = %q, want 2345", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 2-5/10" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "4" {
		t.Errorf("Content-Length = %q", got)
	}
}

func TestServeFile_Unsatisfiable(t *testing.T) {
	path := writeFile(t, "clip.bin", []byte("0123456789"))

	rec := serve(t, http.MethodGet, path, "bytes=50-")

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */10" {
		t.Errorf("Content-Range = %q", got)
	}
}

func TestServeFile_InvalidRangeServesWholeFile(t *testing.T) {
	path := writeFile(t, "clip.bin", []byte("0123456789"))

	rec := serve(t, http.MethodGet, path, "lines=1-2")

	if rec.Code != http.StatusOK || rec.Body.String() != "0123456789" {
		t.Errorf("got %d %q, want 200 with whole file", rec.Code, rec.Body.String())
	}
}

func TestServeFile_Head(t *testing.T) {
	path := writeFile(t, "clip.bin", []byte("0123456789"))

	rec := serve(t, http.MethodHead, path, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD wrote %d body bytes", rec.Body.Len())
	}
	if rec.Header().Get("Content-Length") != "10" {
		t.Errorf("Content-Length = %q", rec.Header().Get("Content-Length"))
	}
}

func TestServeFile_NotFound(t *testing.T) {
	rec := serve(t, http.MethodGet, filepath.Join(t.TempDir(), "missing.mp4"), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServeFile_DirectoryIsNotFound(t *testing.T) {
	rec := serve(t, http.MethodGet, t.TempDir(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/facetally/facetally/internal/catalog"
	"github.com/facetally/facetally/internal/emotion"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"bytes": func(n int64) string {
		if n < 0 {
			n = 0
		}
		return humanize.Bytes(uint64(n))
	},
	"ago":      humanize.Time,
	"comma":    func(n int) string { return humanize.Comma(int64(n)) },
	"sentinel": func(s string) bool { return emotion.Label(s).IsSentinel() },
}).ParseFS(templatesFS, "templates/*.html"))

type uploadPage struct {
	Message string
	Videos  []*catalog.Video
	Now     time.Time
}

type successPage struct {
	Video *catalog.Video
}

type pages struct {
	cfg ServerConfig
}

func newPages(cfg ServerConfig) *pages {
	return &pages{cfg: cfg}
}

func (p *pages) home(w http.ResponseWriter, r *http.Request) {
	p.renderUpload(w, r, http.StatusOK, "")
}

func (p *pages) upload(w http.ResponseWriter, r *http.Request) {
	video, fail := receiveUpload(p.cfg, w, r)
	if fail != nil {
		p.renderUpload(w, r, fail.status, fail.message)
		return
	}
	p.render(w, http.StatusOK, "upload_success.html", successPage{Video: video})
}

// delete always redirects home, also for filenames with no record.
func (p *pages) delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if _, err := p.cfg.Videos.Delete(r.Context(), name); err != nil {
		p.cfg.Logger.Error("delete failed", "filename", name, "error", err)
		p.renderUpload(w, r, http.StatusInternalServerError, "Error deleting video. Please try again.")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (p *pages) renderUpload(w http.ResponseWriter, r *http.Request, status int, message string) {
	videos, err := p.cfg.Videos.List(r.Context())
	if err != nil {
		p.cfg.Logger.Error("failed to list videos", "error", err)
	}
	p.render(w, status, "upload.html", uploadPage{Message: message, Videos: videos, Now: time.Now()})
}

// render executes into a buffer first so a template error still yields a
// clean 500 instead of a half-written page.
func (p *pages) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		p.cfg.Logger.Error("template render failed", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

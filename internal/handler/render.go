package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/dukerupert/memberqr/internal/auth"
	"github.com/dukerupert/memberqr/internal/session"
)

const layoutFile = "layout.html"

// Renderer executes per-page template sets, each parsed together with the
// shared layout.
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
}

// NewRenderer parses every page under templates/ in fsys.
func NewRenderer(fsys fs.FS) (*Renderer, error) {
	files, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("glob templates: %w", err)
	}
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, file := range files {
		name := path.Base(file)
		if name == layoutFile {
			continue
		}
		t, err := template.New(name).Funcs(funcs).ParseFS(fsys, "templates/"+layoutFile, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render writes the named page wrapped in the layout.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// base carries what every page handler needs.
type base struct {
	views    *Renderer
	sessions *session.Manager
	logger   *slog.Logger
}

// render adds the flashes and signed-in admin to data and writes the page.
func (b *base) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	flashes, err := b.sessions.PopFlashes(w, r)
	if err != nil {
		b.logger.Warn("pop flashes", "error", err)
	}
	data["Flashes"] = flashes
	if _, ok := data["Admin"]; !ok {
		data["Admin"] = auth.AdminUsername(r.Context())
	}
	if err := b.views.Render(w, status, name, data); err != nil {
		b.logger.Error("render template", "template", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (b *base) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	b.render(w, r, status, "error.html", map[string]any{
		"Title":   http.StatusText(status),
		"Message": msg,
	})
}

// serverError logs err and shows the generic error page.
func (b *base) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	b.logger.Error(msg, "path", r.URL.Path, "error", err)
	b.renderError(w, r, http.StatusInternalServerError, "Internal server error!")
}

func (b *base) flash(w http.ResponseWriter, r *http.Request, kind, msg string) {
	if err := b.sessions.AddFlash(w, r, kind, msg); err != nil {
		b.logger.Warn("add flash", "error", err)
	}
}

// ErrorPages serves the generic error pages outside any specific handler.
type ErrorPages struct {
	base
}

// NewErrorPages creates a new ErrorPages.
func NewErrorPages(views *Renderer, sessions *session.Manager, logger *slog.Logger) *ErrorPages {
	return &ErrorPages{base{views: views, sessions: sessions, logger: logger.With("component", "errors")}}
}

func (h *ErrorPages) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusNotFound, "Page not found!")
}

func (h *ErrorPages) Internal(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusInternalServerError, "Internal server error!")
}

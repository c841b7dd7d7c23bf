package renderer

import (
	"bufio"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	templates *template.Template
	once      sync.Once
)

// --------------------------------------------------------------------
// Template and asset embedding
// --------------------------------------------------------------------

//go:embed templates/*.go.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

const templateGlob = "templates/*.go.html"

// PageData is what the shell page needs to talk to the bridge.
type PageData struct {
	Title    string
	Token    string
	Commands []string
	DevTools bool
}

// jsonFunc marshals an object to JSON for use in templates
func jsonFunc(v interface{}) (template.JS, error) {
	a, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(a), nil
}

func initTemplates() *template.Template {
	tmpl, err := template.New("").
		Funcs(template.FuncMap{
			"json": jsonFunc,
		}).
		ParseFS(templatesFS, templateGlob)
	if err != nil {
		log.Fatal().Err(err).Msg("error parsing embedded templates")
	}
	return tmpl
}

// Templates returns the singleton instance of the parsed templates.
func Templates() *template.Template {
	once.Do(func() { templates = initTemplates() })
	return templates
}

// ShellHandler renders the front-end page. data is called per request so the
// token can rotate.
func ShellHandler(data func() (PageData, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		d, err := data()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := Templates().ExecuteTemplate(w, "shell", d); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// StaticHandler serves the embedded front-end assets under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("renderer: fs.Sub failed: " + err.Error())
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// --------------------------------------------------------------------
// Middleware helpers
// --------------------------------------------------------------------

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the logger.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the WebSocket upgrade through the logger.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("renderer: response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func Logger(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("http")
	}
}

// NoStore disables caching for bridge responses; file bytes must never be
// served stale after a delete.
func NoStore(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	}
}

// AuthRole defines the required access level for a route.
type AuthRole int

const (
	RolePublic AuthRole = iota
	RoleBridge
)

// AuthMiddleware guards RoleBridge routes. It is set from main.go to avoid
// an import cycle with auth.
var AuthMiddleware func(http.Handler) http.Handler

func ApplyMiddlewares(handler http.Handler, role AuthRole) http.HandlerFunc {
	h := handler
	if role != RolePublic {
		h = NoStore(h)
		if AuthMiddleware != nil {
			h = AuthMiddleware(h)
		}
	}
	return Logger(h)
}

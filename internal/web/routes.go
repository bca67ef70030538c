package web

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-search/internal/web/handlers"
	"github.com/kozaktomas/face-search/internal/web/middleware"
	"github.com/kozaktomas/face-search/internal/web/static"
)

func (s *Server) setupRoutes() {
	// Create handlers
	peopleHandler := handlers.NewPeopleHandler()
	searchHandler := handlers.NewSearchHandler(s.deps.Encoder, s.deps.Metric)
	populateHandler := handlers.NewPopulateHandler(s.jobManager, s.deps.Encoder, s.deps.LoadSource)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// Middleware-compatible endpoints
	s.router.Get("/hello", peopleHandler.List)
	s.router.Post("/encode_face", searchHandler.EncodeFace)
	s.router.Post("/api/encode_face", searchHandler.EncodeFaceUI)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// People
		r.Get("/people", peopleHandler.List)
		r.Get("/people/lookup", peopleHandler.Lookup)
		r.Get("/people/{id}", peopleHandler.Get)
		r.Get("/people/{id}/image", peopleHandler.Image)

		// Search
		r.Post("/search", searchHandler.Search)

		// Stats
		r.Get("/stats", peopleHandler.Stats)

		// Population (long-running operations)
		r.Get("/populate", populateHandler.List)
		r.Post("/populate", populateHandler.Start)
		r.Get("/populate/{jobId}", populateHandler.Status)
		r.Get("/populate/{jobId}/events", populateHandler.Events)
		r.Delete("/populate/{jobId}", populateHandler.Cancel)
	})

	// Search UI
	s.router.With(middleware.SecurityHeaders()).Get("/*", s.serveUI)
}

// contentTypes maps the file extensions shipped in the UI bundle
var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".ico":  "image/x-icon",
}

// serveUI serves the embedded search page and its assets
func (s *Server) serveUI(w http.ResponseWriter, r *http.Request) {
	if !static.HasIndex() {
		http.NotFound(w, r)
		return
	}

	p := r.URL.Path
	if p == "/" {
		p = "/index.html"
	}

	fs := static.GetFileSystem()
	f, err := fs.Open(p)
	if err != nil {
		// Unknown paths fall back to the page itself
		if strings.HasPrefix(p, "/assets/") {
			http.NotFound(w, r)
			return
		}
		p = "/index.html"
		if f, err = fs.Open(p); err != nil {
			http.NotFound(w, r)
			return
		}
	}
	defer f.Close()

	if stat, err := f.Stat(); err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}

	contentType, ok := contentTypes[path.Ext(p)]
	if !ok {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}

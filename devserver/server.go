// Package devserver serves a published update directory over HTTP so that
// transport.HTTPTransport can fetch from it.
package devserver

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/hotswap"
)

const (
	manifestSuffix = ".hot-update.json"
	chunkSuffix    = ".hot-update.msgpack"
)

// Server serves manifest and chunk files from a directory.
type Server struct {
	dir    string
	logger hotswap.Logger
	router chi.Router
}

// New creates a server for dir. A nil logger discards output.
func New(dir string, logger hotswap.Logger) *Server {
	if logger == nil {
		logger = hotswap.NopLogger()
	}
	s := &Server{dir: dir, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(noStore)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/{file}", s.serveUpdateFile)
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) serveUpdateFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	contentType, ok := updateFileType(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("Update file not found", "file", name)
			http.NotFound(w, r)
			return
		}
		s.logger.Error("Failed to read update file", "file", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
	s.logger.Debug("Served update file", "file", name, "bytes", len(data))
}

// updateFileType reports whether name is a servable update file and its
// content type. Names with path separators or leading dots are refused.
func updateFileType(name string) (string, bool) {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	switch {
	case strings.HasSuffix(name, manifestSuffix):
		return "application/json", true
	case strings.HasSuffix(name, chunkSuffix):
		return "application/msgpack", true
	default:
		return "", false
	}
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

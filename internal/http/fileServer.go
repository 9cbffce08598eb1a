package http

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// NewFileServerHandler serves a built single page frontend. Paths that do
// not match a file get index.html so client-side routes work on reload.
func NewFileServerHandler(assets fs.FS) http.HandlerFunc {
	fileServer := http.FileServer(http.FS(assets))

	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}

		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" {
			name = "."
		}
		if _, err := fs.Stat(assets, name); errors.Is(err, fs.ErrNotExist) {
			r.URL.Path = "/"
		}

		fileServer.ServeHTTP(w, r)
	}
}

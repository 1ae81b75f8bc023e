// Package web serves the embedded browser UI of the proxy.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var content embed.FS

// Handler serves index.html at / and the assets under /static/.
func Handler() http.Handler {
	static, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	files := http.StripPrefix("/static", http.FileServer(http.FS(static)))

	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		// The page holds the session token in memory only; never let it be cached.
		rw.Header().Set("Cache-Control", "no-store")
		if r.URL.Path == "/" {
			http.ServeFileFS(rw, r, static, "index.html")
			return
		}
		files.ServeHTTP(rw, r)
	})
}

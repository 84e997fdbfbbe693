// Package staticassets serves a web UI bundle supplied as an fs.FS, per
// spec §4.7: MIME-typed byte streams, an index.html fallback for
// client-side routing, and cache headers on content-hashed asset paths.
// The package embeds no bundle of its own.
package staticassets

import (
	"io/fs"
	"net/http"
	"strings"
)

// Handler serves files out of the filesystem rooted at assets,
// falling back to index.html for any path that doesn't exist (so a
// client-side router can take over).
func Handler(assets fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}

		if _, err := fs.Stat(assets, path); err != nil {
			// Unknown path: serve the SPA shell so client-side routes resolve.
			// Served by name, since FileServer answers a request path ending
			// in /index.html with a redirect to its directory.
			w.Header().Set("Cache-Control", "no-cache")
			http.ServeFileFS(w, r, assets, "index.html")
			return
		}

		if isContentHashed(path) {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}

		fileServer.ServeHTTP(w, r)
	})
}

// isContentHashed recognizes the build convention of embedding a content
// hash in the filename (e.g. app.3f9c1a2.js) so those assets can be cached
// aggressively without risking stale content after a deploy.
func isContentHashed(path string) bool {
	parts := strings.Split(path, ".")
	if len(parts) < 3 {
		return false
	}
	hash := parts[len(parts)-2]
	if len(hash) < 6 {
		return false
	}
	for _, c := range hash {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

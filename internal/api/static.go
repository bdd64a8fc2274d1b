// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

package api

import (
	"net/http"
	"strings"

	"github.com/NNTin/d-back/internal/logging"
)

// landingHTML is served at / when no static directory is configured or the
// configured directory has no index.html.
const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>D-Back WebSocket Server</title>
<style>
  body { font-family: sans-serif; max-width: 42rem; margin: 3rem auto; padding: 0 1rem; color: #2c2f33; }
  h1 { color: #7289da; }
  code { background: #f2f3f5; padding: 0.15rem 0.4rem; border-radius: 3px; }
</style>
</head>
<body>
<h1>D-Back WebSocket Server</h1>
<p>Real-time Discord presence and chat relay is running.</p>
<h2>WebSocket URL</h2>
<p>Connect your client to <code>ws://&lt;host&gt;:&lt;port&gt;/ws</code>.</p>
<h2>Features</h2>
<ul>
  <li>Live user presence across servers</li>
  <li>Chat message relay</li>
  <li>Server catalogue with join/leave notifications</li>
  <li>OAuth2-protected servers</li>
</ul>
<p>Version: <a href="/api/version">/api/version</a></p>
</body>
</html>
`

// notFoundHTML is the HTML 404 page for unknown paths.
const notFoundHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>404 Not Found</title></head>
<body>
<h1>404 Not Found</h1>
<p>The requested path does not exist. <a href="/">Back to D-Back</a></p>
</body>
</html>
`

// serveStaticOrIndex serves files from the configured static directory,
// falling back to the embedded landing page for / and an HTML 404 otherwise.
func (h *Handler) serveStaticOrIndex(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// Cache-Control by file type: long for versioned assets, shorter for
	// images, short for HTML so updates land quickly.
	switch {
	case strings.HasSuffix(path, ".js") || strings.HasSuffix(path, ".css"):
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	case strings.HasSuffix(path, ".png") || strings.HasSuffix(path, ".svg") ||
		strings.HasSuffix(path, ".jpg") || strings.HasSuffix(path, ".webp"):
		w.Header().Set("Cache-Control", "public, max-age=604800")
	case path == "/" || strings.HasSuffix(path, ".html"):
		w.Header().Set("Cache-Control", "public, max-age=300")
	}

	staticDir := h.cfg.Server.StaticDir

	if path == "/" || path == "/index.html" {
		if staticDir != "" && fileExists(staticDir, "/index.html") {
			http.ServeFile(w, r, staticDir+"/index.html")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(landingHTML)); err != nil {
			logging.Error().Err(err).Msg("failed to write landing page")
		}
		return
	}

	if staticDir != "" && fileExists(staticDir, path) {
		http.FileServer(http.Dir(staticDir)).ServeHTTP(w, r)
		return
	}

	h.notFound(w)
}

// notFound writes the HTML 404 page.
func (h *Handler) notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if _, err := w.Write([]byte(notFoundHTML)); err != nil {
		logging.Error().Err(err).Msg("failed to write 404 page")
	}
}

// fileExists checks whether path names a regular file under dir.
// http.Dir confines the lookup to the static root.
func fileExists(dir, path string) bool {
	f, err := http.Dir(dir).Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return !stat.IsDir()
}

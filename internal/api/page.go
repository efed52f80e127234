// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"html/template"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Thermoquad/canopy/internal/bridge"
)

var fallbackPage = template.Must(template.New("fallback").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>canopy</title>
<style>body{font-family:Arial,sans-serif;margin:2rem;background:#f4f4f4;}
.card{background:#fff;padding:1.5rem;border-radius:8px;box-shadow:0 2px 4px rgba(0,0,0,0.1);max-width:420px;}
h1{font-size:1.5rem;margin-bottom:1rem;}p{margin:0.25rem 0;font-size:0.95rem;}</style>
</head><body><div class="card"><h1>canopy</h1>
<p><strong>Network:</strong> {{if .Connected}}up{{else}}down{{end}}</p>
<p><strong>IP address:</strong> {{.IP}}</p>
<p><strong>Peer:</strong> {{if .PeerConnected}}connected{{else}}not connected{{end}}</p>
<p><strong>Uptime:</strong> {{.Uptime}}</p>
<p>Web assets are not available, showing the built-in status page.</p>
</div></body></html>
`))

type fallbackData struct {
	Connected     bool
	IP            string
	PeerConnected bool
	Uptime        time.Duration
}

// assetPath returns the file under webDir for urlPath, or "" when it does not exist
func (s *Server) assetPath(urlPath string) string {
	if s.webDir == "" {
		return ""
	}
	clean := path.Clean("/" + urlPath)
	p := filepath.Join(s.webDir, filepath.FromSlash(clean))
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return ""
	}
	return p
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if p := s.assetPath("index.html"); p != "" {
		http.ServeFile(w, r, p)
		return
	}

	connected, ip := s.network()
	data := fallbackData{Connected: connected, IP: ip}
	if !s.do(w, r, func(st *bridge.State) {
		data.PeerConnected = st.Connected()
		data.Uptime = st.Uptime().Truncate(time.Second)
	}) {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := fallbackPage.Execute(w, data); err != nil {
		s.logger.Error("failed to render fallback page", "error", err)
	}
}

// handleStatic serves other web assets (index.css, index.js, ...)
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	p := s.assetPath(r.URL.Path)
	if p == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, p)
}

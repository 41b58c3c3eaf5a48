// Package server exposes the HTTP surface of the tree compute service:
// multipart build uploads, progress streaming over SSE and WebSocket, and
// compressed result downloads, plus static hosting for the renderer.
package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	u "github.com/araddon/gou"
	"github.com/gorilla/websocket"

	"github.com/gganty/Gtol/internal/jobs"
)

// Server wires the HTTP handlers to a job manager.
type Server struct {
	manager   *jobs.Manager
	staticDir string
	upgrader  websocket.Upgrader
}

// New creates a Server. staticDir may be empty to disable static hosting.
func New(manager *jobs.Manager, staticDir string) *Server {
	return &Server{
		manager:   manager,
		staticDir: staticDir,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v2/graph/start", s.handleStart)
	mux.HandleFunc("GET /api/v2/graph/{job_id}/progress", s.handleProgress)
	mux.HandleFunc("GET /api/v2/graph/{job_id}/ws", s.handleProgressWS)
	mux.HandleFunc("GET /api/v2/graph/{job_id}/result", s.handleResult)
	if s.staticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
		mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(s.staticDir, "index.html"))
		})
	}
	return mux
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// handleStart accepts a multipart upload named "file", registers a job and
// returns its id immediately. The form is parsed by r.FormFile, which holds
// uploads of up to 32 MB in memory and spools larger ones to a temporary
// file; the manager then copies the file into its work dir.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing file upload")
		return
	}
	defer file.Close()

	job, err := s.manager.Start(file, header.Filename)
	if err != nil {
		u.Errorf("start failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"job_id": job.ID})
}

// handleProgress streams progress events as Server-Sent Events until a
// terminal event arrives. A disconnect closes only this subscriber; the
// worker runs to completion regardless.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	job, ok := s.manager.Get(r.PathValue("job_id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Job not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for {
		ev, ok := job.NextEvent(r.Context())
		if !ok {
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return
		}
		flusher.Flush()
		if ev.Terminal() {
			return
		}
	}
}

// handleProgressWS mirrors the progress stream over a WebSocket for
// clients behind proxies that buffer event streams.
func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	job, ok := s.manager.Get(r.PathValue("job_id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Job not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		u.Debugf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		ev, ok := job.NextEvent(r.Context())
		if !ok {
			return
		}
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
		if ev.Terminal() {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleResult serves the gzipped payload as an opaque binary attachment.
// Content-Encoding stays unset: the client decompresses manually.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	path, err := s.manager.Result(r.PathValue("job_id"))
	if err != nil {
		switch e := err.(type) {
		case *jobs.FailedError:
			writeJSONError(w, http.StatusInternalServerError, e.Reason)
		default:
			if err == jobs.ErrNotFound {
				writeJSONError(w, http.StatusNotFound, "Job not found")
			} else if err == jobs.ErrNotReady {
				writeJSONError(w, http.StatusBadRequest, "Job not ready")
			} else {
				writeJSONError(w, http.StatusInternalServerError, err.Error())
			}
		}
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "no result data on disk")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "no result data on disk")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=graph.json.gz")
	http.ServeContent(w, r, "graph.json.gz", info.ModTime(), f)
}

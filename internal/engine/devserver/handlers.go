package devserver

import (
	"bufio"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// BuildStatusHeader carries the snapshot state on every served file.
const BuildStatusHeader = "X-Kiln-Build-Status"

const (
	heartbeatInterval = 30 * time.Second

	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

//go:embed client.js
var clientScript []byte

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// statusResponse is the body of GET /__kiln/status.
type statusResponse struct {
	State      State     `json:"state"`
	Generation uint64    `json:"generation"`
	Building   bool      `json:"building"`
	Sessions   int       `json:"sessions"`
	Artifacts  []string  `json:"artifacts"`
	Failures   []Failure `json:"failures"`
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /__kiln/events", s.handleEvents)
	mux.HandleFunc("GET /__kiln/ws", s.handleWebSocket)
	mux.HandleFunc("GET /__kiln/status", s.handleStatus)
	mux.HandleFunc("GET /__kiln/client.js", handleClient)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	mux.HandleFunc("GET /", s.handleFile)
	return mux
}

// handleFile serves an artifact from the current snapshot, then a static
// file from the public directory. HTML pages get the reload client and,
// while the build is failing, the failure banner.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot.Load()
	w.Header().Set(BuildStatusHeader, string(snap.State))

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")

	if body, contentType, ok := snap.Lookup(name); ok {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(body)
		return
	}

	s.servePublic(w, r, snap, name)
}

func (s *Server) servePublic(w http.ResponseWriter, r *http.Request, snap *Snapshot, name string) {
	if s.cfg.Project.Public == "" {
		http.NotFound(w, r)
		return
	}

	root, err := os.OpenRoot(filepath.Join(s.cfg.Project.Root, s.cfg.Project.Public))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = root.Close() }()

	if name == "" {
		name = "index.html"
	}
	if info, err := root.Stat(name); err == nil && info.IsDir() {
		name = path.Join(name, "index.html")
	}

	f, err := root.Open(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to open public file " + name + ": " + err.Error())
		}
		http.NotFound(w, r)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if path.Ext(name) != ".html" {
		http.ServeContent(w, r, name, info.ModTime(), f)
		return
	}

	page, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "failed to read "+name, http.StatusInternalServerError)
		return
	}

	var failures []Failure
	if snap.State == StateFailed {
		failures = snap.FailureList()
	}
	w.Header().Set("Content-Type", mime.TypeByExtension(".html"))
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(injectHTML(page, failures))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshot.Load()
	resp := statusResponse{
		State:      snap.State,
		Generation: snap.Generation,
		Building:   s.building.Load(),
		Sessions:   s.hub.Len(),
		Artifacts:  snap.Paths(),
		Failures:   snap.FailureList(),
	}
	if resp.Failures == nil {
		resp.Failures = []Failure{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(BuildStatusHeader, string(snap.State))
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp)
}

func handleClient(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(clientScript)
}

// handleEvents streams reload events as server-sent events. The first
// event describes the current snapshot.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel, ok := s.hub.Subscribe()
	if !ok {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	send := func(ev Event) bool {
		data, err := json.Marshal(ev)
		if err != nil {
			return false
		}
		if _, err := bw.WriteString("data: " + string(data) + "\n\n"); err != nil {
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(s.snapshot.Load().Event()) {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := bw.WriteString(": ping\n\n"); err != nil {
				return
			}
			if err := bw.Flush(); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok || !send(ev) {
				return
			}
		}
	}
}

// handleWebSocket pushes the same events as JSON messages over a WebSocket,
// with ping/pong keepalive.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	events, cancel, ok := s.hub.Subscribe()
	if !ok {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// The reader only processes control frames; it ends when the peer goes away.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(fn func() error) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return false
		}
		return fn() == nil
	}

	current := s.snapshot.Load().Event()
	if !write(func() error { return conn.WriteJSON(current) }) {
		return
	}

	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()

	for {
		select {
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if !write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			if !write(func() error { return conn.WriteJSON(ev) }) {
				return
			}
		}
	}
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package viewer

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Message is what the feed sends to clients.
type Message struct {
	Type    string `json:"type"` // "scene", "frame" or "error"
	Scene   *Scene `json:"scene,omitempty"`
	Frame   *Frame `json:"frame,omitempty"`
	Message string `json:"message,omitempty"`
}

// Server exposes a scene to viewer clients. Every websocket connection keeps
// its own ViewerState.
type Server struct {
	mu    sync.RWMutex
	scene *Scene
}

func NewServer(sc *Scene) *Server {
	return &Server{scene: sc}
}

// SetScene swaps the scene served to new requests.
func (s *Server) SetScene(sc *Scene) {
	s.mu.Lock()
	s.scene = sc
	s.mu.Unlock()
}

func (s *Server) current() *Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scene
}

// Handler routes /ws, /api/calibration, /api/scene and /preview.png.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/calibration", s.handleCalibration)
	mux.HandleFunc("/api/scene", s.handleScene)
	mux.HandleFunc("/preview.png", s.handlePreview)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("viewer: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sc := s.current()
	if sc == nil {
		conn.WriteJSON(Message{Type: "error", Message: "no scene loaded"})
		return
	}
	if err := conn.WriteJSON(Message{Type: "scene", Scene: sc}); err != nil {
		log.Printf("viewer: websocket write error: %v", err)
		return
	}

	state := NewViewerState()
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("viewer: websocket read error: %v", err)
			}
			return
		}

		next, err := state.Apply(ev)
		var out Message
		if err != nil {
			out = Message{Type: "error", Message: err.Error()}
		} else {
			state = next
			f := sc.FrameAt(state)
			out = Message{Type: "frame", Frame: &f}
		}
		if err := conn.WriteJSON(out); err != nil {
			log.Printf("viewer: websocket write error: %v", err)
			return
		}
	}
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	sc := s.current()
	if sc == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sc.Calibration); err != nil {
		log.Printf("viewer: json encode error: %v", err)
	}
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	sc := s.current()
	if sc == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sc); err != nil {
		log.Printf("viewer: json encode error: %v", err)
	}
}

// handlePreview renders a PNG. Query parameters w, h, yaw, pitch and zoom
// override the default view.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sc := s.current()
	if sc == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	state := NewViewerState()
	width, height := 640, 480
	ints := map[string]*int{"w": &width, "h": &height}
	for k, dst := range ints {
		if v := q.Get(k); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 16 || n > 4096 {
				http.Error(w, "invalid "+k, http.StatusBadRequest)
				return
			}
			*dst = n
		}
	}
	floats := map[string]*float64{"yaw": &state.Yaw, "pitch": &state.Pitch, "zoom": &state.Zoom}
	for k, dst := range floats {
		if v := q.Get(k); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || !finite(f) {
				http.Error(w, "invalid "+k, http.StatusBadRequest)
				return
			}
			*dst = f
		}
	}

	state = state.clamped()

	w.Header().Set("Content-Type", "image/png")
	if err := WritePNG(w, sc, state, width, height); err != nil {
		log.Printf("viewer: png encode error: %v", err)
	}
}

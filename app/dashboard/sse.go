package dashboard

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// Hub fans the combined leaderboard broadcast out to dashboard browsers over
// server-sent events. Slow clients are skipped, not waited on: a client whose
// buffer is full misses that update and catches the next one.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[chan []byte]struct{}),
	}
}

// Publish hands one payload to every connected client. Never blocks.
func (h *Hub) Publish(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- payload:
		default:
			// Client buffer full; it will catch the next broadcast.
		}
	}
}

func (h *Hub) subscribe() (chan []byte, func()) {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}
}

// ServeHTTP streams leaderboard updates as text/event-stream.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := h.subscribe()
	defer cancel()
	h.logger.Debug("dashboard client connected", slog.String("remote", r.RemoteAddr))

	for {
		select {
		case <-r.Context().Done():
			return
		case payload := <-ch:
			fmt.Fprintf(w, "event: leaderboard\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

package gateway

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler exposes the hub over HTTP. Every client role uses the
// same socket endpoint; the optional role query only tags the connection
// for logging, since privileges flow from the access key flow.
type WebSocketHandler struct {
	manager *ConnectionManager
}

func NewWebSocketHandler(manager *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{manager: manager}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if err := h.manager.Upgrade(w, r, role); err != nil {
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

// RegisterRoutes wires the socket and health endpoints.
func (h *WebSocketHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.HandleConnection)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health response")
		}
	})
}

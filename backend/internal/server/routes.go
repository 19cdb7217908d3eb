package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpchat/backend/internal/signaling"
)

const maxPeerIDLength = 128

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Terminal clients send no Origin; browsers are not a supported client.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter registers the websocket and health endpoints.
func NewRouter(hub *signaling.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthCheck)
	mux.HandleFunc("/ws", ServeWs(hub, logger))
	return mux
}

// HealthCheck reports liveness.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// It takes the hub as a dependency.
func ServeWs(hub *signaling.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		peerID := strings.TrimSpace(r.URL.Query().Get("peer_id"))
		if peerID == "" || len(peerID) > maxPeerIDLength {
			http.Error(w, "missing or invalid peer_id", http.StatusBadRequest)
			return
		}

		// Upgrade the HTTP connection to a WebSocket
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "error", err)
			return
		}

		client := signaling.NewClient(hub, conn, peerID)

		// Register the client with the hub
		if !hub.Connect(client) {
			conn.Close()
			return
		}

		// Start the client's read and write pumps in separate goroutines
		// These methods will handle the client's lifecycle
		go client.WritePump()
		go client.ReadPump()
	}
}

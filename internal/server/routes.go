// Package server exposes the signaling router over HTTP.
package server

import (
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/confmesh/confmesh/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Signaling carries no credentials and rooms are unguessable tokens, so
	// cross-origin browser clients are allowed.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs returns the handler that upgrades a participant connection and
// starts its pumps.
func ServeWs(router *signaling.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("websocket upgrade failed")
			return
		}

		client := signaling.NewClient(router, conn)
		go client.WritePump()
		go client.ReadPump()
	}
}

// HealthHandler answers liveness probes.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("signaling server is healthy"))
}

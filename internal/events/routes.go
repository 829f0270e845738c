package events

import (
	"github.com/go-chi/chi/v5"

	"github.com/strefethen/yamaha-remote-go/internal/yamaha"
)

// RegisterRoutes wires the event stream to the router.
// GET /v1/events (WebSocket)
func RegisterRoutes(router chi.Router, hub *Hub, snapshot func() yamaha.State) {
	router.HandleFunc("/v1/events", hub.Handler(snapshot))
}

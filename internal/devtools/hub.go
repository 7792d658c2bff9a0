package devtools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Event is one reduced action as streamed to inspector clients
type Event struct {
	Seq    uint64    `json:"seq"`
	Action string    `json:"action"`
	State  any       `json:"state"`
	At     time.Time `json:"at"`
}

// Hub maintains the set of connected clients and fans events out to them
type Hub struct {
	clients map[*Client]struct{}

	// Events waiting to be broadcast
	broadcast chan []byte

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// count answers ClientCount without sharing the map
	count chan chan int

	// done is closed when Run returns
	done chan struct{}

	logger zerolog.Logger
}

// NewHub creates a new Hub instance
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set until ctx is done, then disconnects everyone
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Info().Str("addr", client.addr).Msg("Inspector client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info().Str("addr", client.addr).Msg("Inspector client disconnected")
			}

		case data := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// slow client
					h.drop(client)
					h.logger.Warn().Str("addr", client.addr).Msg("Dropped slow inspector client")
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// attach hands a new client to Run; false once the hub has stopped
func (h *Hub) attach(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
}

// Publish queues ev for every client. It never blocks the caller; when the
// queue is full the event is discarded.
func (h *Hub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("action", ev.Action).Msg("Failed to marshal inspector event")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn().Str("action", ev.Action).Msg("Inspector queue full, event discarded")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-ctx.Done():
		return 0
	case <-h.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}

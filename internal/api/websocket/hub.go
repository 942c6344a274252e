package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/nezuni1812/bidhub/internal/infrastructure/events"
	"github.com/nezuni1812/bidhub/internal/service/bidding"
)

// Hub bridges the event bus to connected websocket clients. Clients join
// per-auction rooms; targeted notices arrive on the client's own bidder
// channel, which every authenticated client is joined to implicitly.
type Hub struct {
	engine *bidding.Engine
	bus    events.Bus
	logger *zap.Logger

	clients    map[*Client]bool
	broadcast  chan events.Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub wires a hub over the bus and engine.
func NewHub(engine *bidding.Engine, bus events.Bus, logger *zap.Logger) *Hub {
	return &Hub{
		engine:     engine,
		bus:        bus,
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan events.Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run drives registration and fan-out until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	sub, err := h.bus.Subscribe(ctx, "auction:*", "bidder:*")
	if err != nil {
		return err
	}
	defer sub.Close()
	go h.pump(ctx, sub)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client connected", zap.Int("total", total))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client disconnected", zap.Int("total", total))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isJoined(msg.Channel) {
					continue
				}
				select {
				case c.send <- msg.Payload:
				default:
					h.logger.Warn("dropping message for slow ws client",
						zap.String("channel", msg.Channel))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) pump(ctx context.Context, sub events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			select {
			case h.broadcast <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

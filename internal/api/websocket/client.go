package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/errors"
	"github.com/nezuni1812/bidhub/internal/domain/values"
	"github.com/nezuni1812/bidhub/internal/infrastructure/events"
	"github.com/nezuni1812/bidhub/internal/service/bidding"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced upstream at the edge.
		return true
	},
}

// Client is one websocket connection bound to an authenticated bidder.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	bidderID uuid.UUID
	send     chan []byte

	mu    sync.RWMutex
	rooms map[string]bool
}

// clientMessage is the inbound frame format.
type clientMessage struct {
	Action        string  `json:"action"`
	AuctionID     string  `json:"auction_id"`
	Price         *string `json:"price,omitempty"`
	ObservedPrice *string `json:"observed_price,omitempty"`
	MaxPrice      *string `json:"max_price,omitempty"`
	Currency      string  `json:"currency,omitempty"`
}

type ackMessage struct {
	Type      string         `json:"type"`
	AuctionID string         `json:"auction_id,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Price     string         `json:"price,omitempty"`
}

// ServeWS upgrades the request and hands the connection to the hub. The
// bidder identity must already be authenticated by middleware.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, bidderID uuid.UUID) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &Client{
		hub:      h,
		conn:     conn,
		bidderID: bidderID,
		send:     make(chan []byte, sendBufferSize),
		rooms:    map[string]bool{events.BidderChannel(bidderID): true},
	}
	h.register <- c

	go c.writePump()
	// The request context dies when this handler returns; the connection
	// outlives it.
	go c.readPump(context.Background())
}

func (c *Client) isJoined(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[channel]
}

func (c *Client) join(channel string) {
	c.mu.Lock()
	c.rooms[channel] = true
	c.mu.Unlock()
}

func (c *Client) leave(channel string) {
	c.mu.Lock()
	delete(c.rooms, channel)
	c.mu.Unlock()
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("ws read error", zap.Error(err))
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(ackMessage{Type: "error", Code: "BAD_MESSAGE", Message: "malformed frame"})
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg clientMessage) {
	auctionID, err := uuid.Parse(msg.AuctionID)
	if err != nil {
		c.reply(ackMessage{Type: "error", Code: "BAD_MESSAGE", Message: "invalid auction_id"})
		return
	}

	switch msg.Action {
	case "join":
		c.join(events.AuctionChannel(auctionID))
		c.reply(ackMessage{Type: "joined", AuctionID: msg.AuctionID})
	case "leave":
		c.leave(events.AuctionChannel(auctionID))
		c.reply(ackMessage{Type: "left", AuctionID: msg.AuctionID})
	case "place-bid":
		c.placeBid(ctx, auctionID, msg)
	case "set-proxy":
		c.setProxy(ctx, auctionID, msg)
	default:
		c.reply(ackMessage{Type: "error", Code: "BAD_MESSAGE", Message: "unknown action"})
	}
}

func (c *Client) placeBid(ctx context.Context, auctionID uuid.UUID, msg clientMessage) {
	if msg.Price == nil {
		c.reply(ackMessage{Type: "bid-error", AuctionID: msg.AuctionID, Code: "BAD_MESSAGE", Message: "price is required"})
		return
	}
	currency := msg.Currency
	if currency == "" {
		currency = "VND"
	}
	price, err := values.NewMoneyFromString(*msg.Price, currency)
	if err != nil {
		c.reply(ackMessage{Type: "bid-error", AuctionID: msg.AuctionID, Code: "BAD_MESSAGE", Message: err.Error()})
		return
	}
	req := bidding.SubmitBidRequest{
		AuctionID: auctionID,
		BidderID:  c.bidderID,
		Price:     price,
		Origin:    bid.OriginManual,
	}
	if msg.ObservedPrice != nil {
		observed, err := values.NewMoneyFromString(*msg.ObservedPrice, currency)
		if err == nil {
			req.ObservedPrice = &observed
		}
	}

	res, err := c.hub.engine.SubmitBid(ctx, req)
	if err != nil {
		c.replyError("bid-error", msg.AuctionID, err)
		return
	}
	c.reply(ackMessage{
		Type:      "bid-success",
		AuctionID: msg.AuctionID,
		Price:     res.Bid.Price.String(),
	})
}

func (c *Client) setProxy(ctx context.Context, auctionID uuid.UUID, msg clientMessage) {
	if msg.MaxPrice == nil {
		c.reply(ackMessage{Type: "bid-error", AuctionID: msg.AuctionID, Code: "BAD_MESSAGE", Message: "max_price is required"})
		return
	}
	currency := msg.Currency
	if currency == "" {
		currency = "VND"
	}
	maxPrice, err := values.NewMoneyFromString(*msg.MaxPrice, currency)
	if err != nil {
		c.reply(ackMessage{Type: "bid-error", AuctionID: msg.AuctionID, Code: "BAD_MESSAGE", Message: err.Error()})
		return
	}

	res, err := c.hub.engine.SetProxyBid(ctx, auctionID, c.bidderID, maxPrice)
	if err != nil {
		c.replyError("bid-error", msg.AuctionID, err)
		return
	}
	c.reply(ackMessage{
		Type:      "proxy-set",
		AuctionID: msg.AuctionID,
		Price:     res.Auction.CurrentPrice.String(),
	})
}

func (c *Client) replyError(kind, auctionID string, err error) {
	ack := ackMessage{Type: kind, AuctionID: auctionID, Message: err.Error()}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		ack.Code = appErr.Code
		ack.Details = appErr.Details
	}
	c.reply(ack)
}

func (c *Client) reply(ack ackMessage) {
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

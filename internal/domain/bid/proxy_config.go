package bid

import (
	"time"

	"github.com/google/uuid"

	"github.com/nezuni1812/bidhub/internal/domain/values"
)

// ProxyBidConfig is a standing instruction to counter-bid on the owner's
// behalf up to MaxPrice. Unique per (auction, bidder); refreshed in place.
type ProxyBidConfig struct {
	ID        uuid.UUID    `json:"id"`
	AuctionID uuid.UUID    `json:"auction_id"`
	BidderID  uuid.UUID    `json:"bidder_id"`
	MaxPrice  values.Money `json:"max_price"`
	Active    bool         `json:"active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewProxyBidConfig creates an active standing instruction.
func NewProxyBidConfig(auctionID, bidderID uuid.UUID, maxPrice values.Money) *ProxyBidConfig {
	now := time.Now().UTC()
	return &ProxyBidConfig{
		ID:        uuid.New(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		MaxPrice:  maxPrice,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Refresh raises or lowers the ceiling and reactivates the instruction.
// CreatedAt is preserved: tie-breaks go to the earliest-configured bidder.
func (c *ProxyBidConfig) Refresh(maxPrice values.Money) {
	c.MaxPrice = maxPrice
	c.Active = true
	c.UpdatedAt = time.Now().UTC()
}

// Deactivate retires the instruction (cancellation, closure, or exclusion).
func (c *ProxyBidConfig) Deactivate() {
	c.Active = false
	c.UpdatedAt = time.Now().UTC()
}

// Clone returns a copy safe for speculative mutation.
func (c *ProxyBidConfig) Clone() *ProxyBidConfig {
	cp := *c
	return &cp
}

package bid

import (
	"time"

	"github.com/google/uuid"

	"github.com/nezuni1812/bidhub/internal/domain/values"
)

// Bid is an accepted bid. Immutable once admitted; retroactive exclusion is
// recorded separately and applied at read/recompute time, never by editing
// the ledger.
type Bid struct {
	ID        uuid.UUID    `json:"id"`
	AuctionID uuid.UUID    `json:"auction_id"`
	BidderID  uuid.UUID    `json:"bidder_id"`
	Price     values.Money `json:"price"`
	Origin    Origin       `json:"origin"`
	CreatedAt time.Time    `json:"created_at"`
}

type Origin int

const (
	OriginManual Origin = iota
	OriginProxy
)

func (o Origin) String() string {
	switch o {
	case OriginManual:
		return "manual"
	case OriginProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// ParseOrigin converts a storage string back into an Origin.
func ParseOrigin(s string) Origin {
	if s == "proxy" {
		return OriginProxy
	}
	return OriginManual
}

// New creates an accepted bid record.
func New(auctionID, bidderID uuid.UUID, price values.Money, origin Origin) *Bid {
	return &Bid{
		ID:        uuid.New(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Price:     price,
		Origin:    origin,
		CreatedAt: time.Now().UTC(),
	}
}

// IsProxy reports whether the bid was placed by the proxy resolver.
func (b *Bid) IsProxy() bool {
	return b.Origin == OriginProxy
}

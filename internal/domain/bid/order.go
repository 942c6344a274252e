package bid

import (
	"time"

	"github.com/google/uuid"

	"github.com/nezuni1812/bidhub/internal/domain/values"
)

// Order is the downstream record handed to checkout when an auction
// completes with a winner. A unique constraint on AuctionID is what makes
// closure exactly-once: the second closer loses the insert race and no-ops.
type Order struct {
	ID         uuid.UUID    `json:"id"`
	AuctionID  uuid.UUID    `json:"auction_id"`
	WinnerID   uuid.UUID    `json:"winner_id"`
	FinalPrice values.Money `json:"final_price"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewOrder creates the downstream order for a completed auction.
func NewOrder(auctionID, winnerID uuid.UUID, finalPrice values.Money) *Order {
	return &Order{
		ID:         uuid.New(),
		AuctionID:  auctionID,
		WinnerID:   winnerID,
		FinalPrice: finalPrice,
		CreatedAt:  time.Now().UTC(),
	}
}

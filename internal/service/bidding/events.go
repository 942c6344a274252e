package bidding

import (
	"time"

	"github.com/google/uuid"

	"github.com/nezuni1812/bidhub/internal/domain/values"
)

// EventType enumerates the closed set of broadcast events. Payloads are
// fixed-field variants validated at the boundary, never free-form maps.
type EventType string

const (
	EventNewBid          EventType = "new-bid"
	EventAuctionExtended EventType = "auction-extended"
	EventAuctionEnded    EventType = "auction-ended"
	EventOutbid          EventType = "outbid"
)

// Event is one committed state change. Fields beyond Type/AuctionID are
// populated per variant; TargetBidderID routes targeted notices (outbid)
// to a single bidder instead of the auction room.
type Event struct {
	Type           EventType    `json:"type"`
	AuctionID      uuid.UUID    `json:"auction_id"`
	TargetBidderID *uuid.UUID   `json:"target_bidder_id,omitempty"`

	// new-bid / outbid
	CurrentPrice values.Money `json:"current_price,omitempty"`
	TotalBids    int          `json:"total_bids,omitempty"`
	BidderID     uuid.UUID    `json:"bidder_id,omitempty"`
	IsProxy      bool         `json:"is_proxy,omitempty"`

	// auction-extended
	NewEndTime      time.Time `json:"new_end_time,omitempty"`
	ExtendedMinutes int       `json:"extended_minutes,omitempty"`

	// auction-ended
	FinalPrice values.Money `json:"final_price,omitempty"`
	WinnerID   *uuid.UUID   `json:"winner_id,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

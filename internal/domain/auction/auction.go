package auction

import (
	"time"

	"github.com/google/uuid"

	"github.com/nezuni1812/bidhub/internal/domain/values"
)

// Auction is the mutable per-listing state the bidding engine owns. All
// mutation happens under the engine's per-auction critical section; the
// entity itself carries no locking.
type Auction struct {
	ID         uuid.UUID `json:"id"`
	SellerID   uuid.UUID `json:"seller_id"`
	CategoryID uuid.UUID `json:"category_id"`

	StartPrice   values.Money  `json:"start_price"`
	CurrentPrice values.Money  `json:"current_price"`
	BidStep      values.Money  `json:"bid_step"`
	BuyNowPrice  *values.Money `json:"buy_now_price,omitempty"`

	EndTime        time.Time `json:"end_time"`
	AutoExtend     bool      `json:"auto_extend"`
	ExtensionCount int       `json:"extension_count"`

	Status        Status     `json:"status"`
	WinnerID      *uuid.UUID `json:"winner_id,omitempty"`
	TotalBidCount int        `json:"total_bid_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Status int

const (
	StatusActive Status = iota
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStatus converts a storage string back into a Status.
func ParseStatus(s string) Status {
	switch s {
	case "completed":
		return StatusCompleted
	case "cancelled":
		return StatusCancelled
	default:
		return StatusActive
	}
}

// New creates an active auction with CurrentPrice anchored at StartPrice.
func New(sellerID, categoryID uuid.UUID, startPrice, bidStep values.Money, duration time.Duration) *Auction {
	now := time.Now().UTC()
	return &Auction{
		ID:           uuid.New(),
		SellerID:     sellerID,
		CategoryID:   categoryID,
		StartPrice:   startPrice,
		CurrentPrice: startPrice,
		BidStep:      bidStep,
		EndTime:      now.Add(duration),
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsActive reports whether the auction still accepts bids at the given time.
func (a *Auction) IsActive(now time.Time) bool {
	return a.Status == StatusActive && now.Before(a.EndTime)
}

// HasEnded reports whether the auction window has elapsed.
func (a *Auction) HasEnded(now time.Time) bool {
	return !now.Before(a.EndTime)
}

// HasBids reports whether any accepted, non-excluded bid is on record.
func (a *Auction) HasBids() bool {
	return a.TotalBidCount > 0
}

// ApplyLeadingBid installs a new leading bid.
func (a *Auction) ApplyLeadingBid(bidderID uuid.UUID, price values.Money) {
	a.CurrentPrice = price
	a.WinnerID = &bidderID
	a.TotalBidCount++
	a.UpdatedAt = time.Now().UTC()
}

// Restate overwrites price/winner/count after an exclusion recompute.
func (a *Auction) Restate(winnerID *uuid.UUID, price values.Money, eligibleBids int) {
	a.WinnerID = winnerID
	a.CurrentPrice = price
	a.TotalBidCount = eligibleBids
	a.UpdatedAt = time.Now().UTC()
}

// Extend pushes EndTime out by d and counts the extension.
func (a *Auction) Extend(d time.Duration) {
	a.EndTime = a.EndTime.Add(d)
	a.ExtensionCount++
	a.UpdatedAt = time.Now().UTC()
}

// Complete transitions the auction to its terminal completed state.
func (a *Auction) Complete() {
	a.Status = StatusCompleted
	a.UpdatedAt = time.Now().UTC()
}

// Cancel transitions the auction to its terminal cancelled state.
func (a *Auction) Cancel() {
	a.Status = StatusCancelled
	a.UpdatedAt = time.Now().UTC()
}

// MeetsBuyNow reports whether price reaches the configured buy-now ceiling.
func (a *Auction) MeetsBuyNow(price values.Money) bool {
	return a.BuyNowPrice != nil && price.Compare(*a.BuyNowPrice) >= 0
}

// Clone returns a deep-enough copy for the engine to mutate speculatively
// before committing. Money values are immutable, so field copies suffice.
func (a *Auction) Clone() *Auction {
	c := *a
	if a.WinnerID != nil {
		id := *a.WinnerID
		c.WinnerID = &id
	}
	if a.BuyNowPrice != nil {
		p := *a.BuyNowPrice
		c.BuyNowPrice = &p
	}
	return &c
}
